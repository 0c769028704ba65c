package pipeline

import "time"

// timeNow stamps run start and finish times. Tests freeze it.
var timeNow = time.Now
