package analysis

import "fmt"

// Phases reported by TransientError.
const (
	PhaseFetchArtifacts = "fetch-artifacts"
	PhaseAnalyze        = "analyze"
)

// TransientError is a collaborator failure that aborted the analysis phase.
// Artifacts cached before the failure stay valid for a retry.
type TransientError struct {
	Phase    string
	FileKey  string
	ScreenID string
	// Screens is how many screens the failed call covered.
	Screens int
	Err     error
}

func (e *TransientError) Error() string {
	if e.ScreenID != "" {
		return fmt.Sprintf("%s failed for screen %s of %s: %v", e.Phase, e.ScreenID, e.FileKey, e.Err)
	}
	return fmt.Sprintf("%s failed for %d screens of %s: %v", e.Phase, e.Screens, e.FileKey, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// MissingArtifactError means the batched retrieval succeeded but had no
// artifact for one screen. The screen is skipped.
type MissingArtifactError struct {
	FileKey  string
	ScreenID string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("no artifact returned for screen %s of %s", e.ScreenID, e.FileKey)
}

// GenerationEmptyError means the generator returned no text. With ScreenID
// set it describes one screen; otherwise every attempted screen came back
// empty.
type GenerationEmptyError struct {
	ScreenID string
	// Screens is the number of screens in the run; Empty how many of them
	// produced no text.
	Screens int
	Empty   int
}

func (e *GenerationEmptyError) Error() string {
	if e.ScreenID != "" {
		return fmt.Sprintf("analysis of screen %s returned empty output (%d screens in file)", e.ScreenID, e.Screens)
	}
	return fmt.Sprintf("screen analysis returned empty output for %d of %d screens", e.Empty, e.Screens)
}
