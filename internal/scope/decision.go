package scope

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// QuestionThreshold is the most unanswered questions allowed before
// stories can be written. Equal to the threshold is acceptable.
const QuestionThreshold = 5

// Action is one cell of the decision table.
type Action int

const (
	ActionProceedWithStories Action = iota + 1
	ActionAskForClarification
	ActionRegenerateAnalysis
)

func (a Action) String() string {
	switch a {
	case ActionProceedWithStories:
		return "proceed-with-stories"
	case ActionAskForClarification:
		return "ask-for-clarification"
	case ActionRegenerateAnalysis:
		return "regenerate-analysis"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// DecideAction evaluates the decision table with QuestionThreshold.
func DecideAction(hadExisting bool, questionCount int) Action {
	return decide(hadExisting, questionCount, QuestionThreshold)
}

func decide(hadExisting bool, questionCount, threshold int) Action {
	if questionCount <= threshold {
		return ActionProceedWithStories
	}
	if hadExisting {
		return ActionRegenerateAnalysis
	}
	return ActionAskForClarification
}

// OutcomeKind is where the engine stopped.
type OutcomeKind int

const (
	// OutcomeProceed means the analysis is good enough to write stories.
	OutcomeProceed OutcomeKind = iota + 1
	// OutcomeAskForClarification means a fresh analysis raised too many
	// questions; it should be persisted and the run stopped.
	OutcomeAskForClarification
	// OutcomeStillNeedsClarification means the single regeneration did not
	// bring the question count under the threshold.
	OutcomeStillNeedsClarification
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeProceed:
		return "proceed"
	case OutcomeAskForClarification:
		return "ask-for-clarification"
	case OutcomeStillNeedsClarification:
		return "still-needs-clarification"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// Step records one evaluation of the decision table.
type Step struct {
	HadExisting bool   `json:"had_existing"`
	Questions   int    `json:"questions"`
	Action      Action `json:"action"`
}

// Outcome is the engine's result.
type Outcome struct {
	Kind      OutcomeKind
	Analysis  string
	Questions int
	// Generated is true when Analysis was produced during this run.
	Generated   bool
	Regenerated bool
	Trail       []Step
}

// NeedsClarification reports whether the run must stop before stories.
func (o *Outcome) NeedsClarification() bool {
	return o.Kind != OutcomeProceed
}

// GenerateFunc produces scope-analysis text. previous is the prior analysis
// when regenerating, empty otherwise.
type GenerateFunc func(ctx context.Context, previous string) (string, error)

// Input is what the engine decides on.
type Input struct {
	// Existing is the analysis already persisted on the target, if any.
	Existing string
	// Screens is the number of screens behind the analysis, for errors.
	Screens  int
	Generate GenerateFunc
}

// GenerationEmptyError reports that the generator returned no text.
type GenerationEmptyError struct {
	Screens      int
	Regenerating bool
}

func (e *GenerationEmptyError) Error() string {
	what := "scope analysis"
	if e.Regenerating {
		what = "scope analysis regeneration"
	}
	return fmt.Sprintf("%s returned empty output (%d screens analyzed)", what, e.Screens)
}

// Engine runs the self-healing decision procedure.
type Engine struct {
	Threshold int
	Logger    *zap.Logger
}

// NewEngine returns an Engine. A non-positive threshold uses
// QuestionThreshold.
func NewEngine(threshold int, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{Threshold: threshold, Logger: logger}
}

// EffectiveThreshold is the threshold in use.
func (e *Engine) EffectiveThreshold() int {
	if e.Threshold <= 0 {
		return QuestionThreshold
	}
	return e.Threshold
}

// Decide evaluates the decision table with the engine's threshold.
func (e *Engine) Decide(hadExisting bool, questionCount int) Action {
	return decide(hadExisting, questionCount, e.EffectiveThreshold())
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Run generates an analysis when none exists, evaluates the decision table
// and, when an existing analysis has too many questions, regenerates it
// exactly once with the previous text as context.
func (e *Engine) Run(ctx context.Context, in Input) (*Outcome, error) {
	threshold := e.EffectiveThreshold()
	out := &Outcome{}

	analysis := strings.TrimSpace(in.Existing)
	hadExisting := analysis != ""
	if !hadExisting {
		text, err := e.generate(ctx, in, "")
		if err != nil {
			return nil, err
		}
		analysis = text
		out.Generated = true
	}

	count := CountUnansweredQuestions(analysis)
	action := decide(hadExisting, count, threshold)
	out.Trail = append(out.Trail, Step{HadExisting: hadExisting, Questions: count, Action: action})
	e.logger().Debug("scope decision",
		zap.Bool("had_existing", hadExisting),
		zap.Int("questions", count),
		zap.Stringer("action", action))

	switch action {
	case ActionProceedWithStories:
		out.Kind = OutcomeProceed
	case ActionAskForClarification:
		out.Kind = OutcomeAskForClarification
	case ActionRegenerateAnalysis:
		text, err := e.generate(ctx, in, analysis)
		if err != nil {
			return nil, err
		}
		analysis = text
		out.Generated = true
		out.Regenerated = true
		count = CountUnansweredQuestions(analysis)

		next := decide(false, count, threshold)
		out.Trail = append(out.Trail, Step{HadExisting: false, Questions: count, Action: next})
		if next == ActionProceedWithStories {
			out.Kind = OutcomeProceed
		} else {
			out.Kind = OutcomeStillNeedsClarification
		}
		e.logger().Debug("scope regenerated", zap.Int("questions", count), zap.Stringer("outcome", out.Kind))
	}

	out.Analysis = analysis
	out.Questions = count
	return out, nil
}

func (e *Engine) generate(ctx context.Context, in Input, previous string) (string, error) {
	if in.Generate == nil {
		return "", fmt.Errorf("scope: no generator configured")
	}
	text, err := in.Generate(ctx, previous)
	if err != nil {
		return "", fmt.Errorf("generating scope analysis: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &GenerationEmptyError{Screens: in.Screens, Regenerating: previous != ""}
	}
	return text, nil
}
