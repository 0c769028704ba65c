// Package pipeline sequences the design-to-stories flow:
// setup, cache-check, analyze, decide, compose, persist.
//
// Each run returns a Result that tells "succeeded with N screens skipped"
// apart from "failed at phase X", so callers can decide whether a retry is
// worth it.
package pipeline

import (
	"fmt"
	"time"

	"github.com/HendryAvila/shellstory/internal/analysis"
	"github.com/HendryAvila/shellstory/internal/design"
	"github.com/HendryAvila/shellstory/internal/scope"
)

// Phase names a pipeline step.
type Phase string

const (
	PhaseSetup      Phase = "setup"
	PhaseCacheCheck Phase = "cache-check"
	PhaseAnalyze    Phase = "analyze"
	PhaseDecide     Phase = "decide"
	PhaseCompose    Phase = "compose"
	PhasePersist    Phase = "persist"
)

// Status is the overall run outcome.
type Status string

const (
	StatusSucceeded          Status = "succeeded"
	StatusNeedsClarification Status = "needs-clarification"
	StatusFailed             Status = "failed"
)

// PhaseError wraps a collaborator failure with the phase it stopped.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Result describes one run.
type Result struct {
	RunID  string `json:"run_id"`
	Phase  Phase  `json:"phase"`
	Status Status `json:"status"`

	FileKey string `json:"file_key"`
	ItemID  string `json:"item_id"`

	Screens             []design.Screen          `json:"screens"`
	UnassociatedNoteIDs []string                 `json:"unassociated_note_ids,omitempty"`
	Analyzed            int                      `json:"analyzed"`
	Cached              int                      `json:"cached"`
	Skipped             []analysis.SkippedScreen `json:"skipped,omitempty"`

	Decision      *scope.Outcome `json:"-"`
	ScopeAnalysis string         `json:"scope_analysis,omitempty"`
	Questions     int            `json:"questions"`
	Stories       string         `json:"stories,omitempty"`

	DocumentSize int      `json:"document_size"`
	Overflowed   bool     `json:"overflowed"`
	Warnings     []string `json:"warnings,omitempty"`

	Err        error     `json:"-"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Failed reports whether the run stopped on an error.
func (r *Result) Failed() bool { return r.Status == StatusFailed }

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}
