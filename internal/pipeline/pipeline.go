package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HendryAvila/shellstory/internal/analysis"
	"github.com/HendryAvila/shellstory/internal/cache"
	"github.com/HendryAvila/shellstory/internal/design"
	"github.com/HendryAvila/shellstory/internal/document"
	"github.com/HendryAvila/shellstory/internal/llm"
	"github.com/HendryAvila/shellstory/internal/scope"
	"github.com/HendryAvila/shellstory/internal/tracker"
)

// ErrEmptyGeneration is returned when story generation produced no text.
var ErrEmptyGeneration = errors.New("generation returned empty output")

// Request identifies the design file and the work item a run targets.
type Request struct {
	FileKey string
	ItemID  string
	// Context is optional free text about the feature.
	Context string
}

// Options tunes a Pipeline. Zero values select defaults.
type Options struct {
	MaxConcurrency    int
	Association       design.AssociateOptions
	QuestionThreshold int
	Composer          document.Composer
	Logger            *zap.Logger
}

// Pipeline wires the collaborators together.
type Pipeline struct {
	source    design.Source
	tracker   tracker.Tracker
	cache     *cache.Cache
	generator llm.Generator
	analyzer  *analysis.Orchestrator
	engine    *scope.Engine
	composer  document.Composer
	assoc     design.AssociateOptions
	logger    *zap.Logger
	newRunID  func() string
}

// New builds a Pipeline.
func New(src design.Source, trk tracker.Tracker, c *cache.Cache, gen llm.Generator, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	composer := opts.Composer
	if composer.Limit <= 0 {
		composer = document.NewComposer()
	}
	if composer.OverflowHeading == "" {
		composer.OverflowHeading = document.ScopeAnalysisHeading
	}
	return &Pipeline{
		source:    src,
		tracker:   trk,
		cache:     c,
		generator: gen,
		analyzer: analysis.New(c, src,
			analysis.WithGenerator(gen),
			analysis.WithMaxConcurrency(opts.MaxConcurrency),
			analysis.WithLogger(logger.Named("analysis"))),
		engine:   scope.NewEngine(opts.QuestionThreshold, logger.Named("scope")),
		composer: composer,
		assoc:    opts.Association,
		logger:   logger,
		newRunID: uuid.NewString,
	}
}

// run carries state between phases of one execution.
type run struct {
	req      Request
	res      *Result
	log      *zap.Logger
	analyses []analysis.ScreenAnalysis
	doc      document.Document
	comments []tracker.Comment
}

func (p *Pipeline) start(req Request) *run {
	res := &Result{
		RunID:     p.newRunID(),
		FileKey:   req.FileKey,
		ItemID:    req.ItemID,
		Status:    StatusSucceeded,
		StartedAt: timeNow(),
	}
	return &run{
		req: req,
		res: res,
		log: p.logger.With(zap.String("run_id", res.RunID), zap.String("file_key", req.FileKey), zap.String("item_id", req.ItemID)),
	}
}

func (p *Pipeline) fail(r *run, phase Phase, err error) (*Result, error) {
	perr := &PhaseError{Phase: phase, Err: err}
	r.res.Phase = phase
	r.res.Status = StatusFailed
	r.res.Err = perr
	r.res.FinishedAt = timeNow()
	r.log.Error("pipeline failed", zap.String("phase", string(phase)), zap.Error(err))
	return r.res, perr
}

func (p *Pipeline) finish(r *run) (*Result, error) {
	r.res.FinishedAt = timeNow()
	r.log.Info("pipeline finished",
		zap.String("status", string(r.res.Status)),
		zap.Int("screens", len(r.res.Screens)),
		zap.Int("skipped", len(r.res.Skipped)),
		zap.Duration("took", r.res.FinishedAt.Sub(r.res.StartedAt)))
	return r.res, nil
}

// AnalyzeScope produces a scope analysis for the design file and writes it
// to the work item, replacing any previous one. An existing analysis and
// the item's comments are fed back so answered questions are kept.
func (p *Pipeline) AnalyzeScope(ctx context.Context, req Request) (*Result, error) {
	r := p.start(req)
	if err := p.prepare(ctx, r); err != nil {
		return p.fail(r, r.res.Phase, err)
	}

	r.res.Phase = PhaseDecide
	previous, _ := document.SectionText(r.doc, document.ScopeAnalysisHeading)
	text, err := p.generateScope(ctx, r, strings.TrimSpace(previous))
	if err != nil {
		return p.fail(r, PhaseDecide, err)
	}
	count := scope.CountUnansweredQuestions(text)
	action := p.engine.Decide(false, count)
	outcome := &scope.Outcome{
		Kind:      scope.OutcomeProceed,
		Analysis:  text,
		Questions: count,
		Generated: true,
		Trail:     []scope.Step{{Questions: count, Action: action}},
	}
	if action != scope.ActionProceedWithStories {
		outcome.Kind = scope.OutcomeAskForClarification
	}
	p.recordDecision(r, outcome)

	r.res.Phase = PhaseCompose
	section := document.Section(document.ScopeAnalysisHeading, text)
	composed := p.composer.Compose(document.RemoveSection(r.doc, document.ScopeAnalysisHeading), section)
	p.recordCompose(r, composed)

	r.res.Phase = PhasePersist
	if err := p.persist(ctx, r, composed); err != nil {
		return p.fail(r, PhasePersist, err)
	}
	if outcome.NeedsClarification() {
		p.postClarification(ctx, r, outcome)
	}
	return p.finish(r)
}

// WriteShellStories writes shell stories to the work item. A missing scope
// analysis is generated first; too many open questions stop the run after
// the analysis is persisted, before any story is written.
func (p *Pipeline) WriteShellStories(ctx context.Context, req Request) (*Result, error) {
	r := p.start(req)
	if err := p.prepare(ctx, r); err != nil {
		return p.fail(r, r.res.Phase, err)
	}

	r.res.Phase = PhaseDecide
	existing, _ := document.SectionText(r.doc, document.ScopeAnalysisHeading)
	outcome, err := p.engine.Run(ctx, scope.Input{
		Existing: existing,
		Screens:  len(r.analyses),
		Generate: func(ctx context.Context, previous string) (string, error) {
			return p.generateScope(ctx, r, previous)
		},
	})
	if err != nil {
		return p.fail(r, PhaseDecide, err)
	}
	p.recordDecision(r, outcome)

	doc := r.doc
	if outcome.Generated {
		doc = document.ReplaceSection(doc, document.ScopeAnalysisHeading,
			document.Section(document.ScopeAnalysisHeading, outcome.Analysis))
	}

	if outcome.NeedsClarification() {
		r.res.Phase = PhaseCompose
		composed := p.composer.Compose(document.RemoveSection(doc, document.ScopeAnalysisHeading),
			document.Section(document.ScopeAnalysisHeading, outcome.Analysis))
		p.recordCompose(r, composed)

		r.res.Phase = PhasePersist
		if err := p.persist(ctx, r, composed); err != nil {
			return p.fail(r, PhasePersist, err)
		}
		p.postClarification(ctx, r, outcome)
		return p.finish(r)
	}

	r.res.Phase = PhaseCompose
	stories, err := p.generateStories(ctx, r, outcome.Analysis)
	if err != nil {
		return p.fail(r, PhaseCompose, err)
	}
	r.res.Stories = stories

	composed := p.composer.Compose(document.RemoveSection(doc, document.ShellStoriesHeading),
		document.Section(document.ShellStoriesHeading, stories))
	p.recordCompose(r, composed)

	r.res.Phase = PhasePersist
	if err := p.persist(ctx, r, composed); err != nil {
		return p.fail(r, PhasePersist, err)
	}
	return p.finish(r)
}

// prepare runs setup, cache-check and analyze, and loads the target
// document. On error r.res.Phase names the failing phase.
func (p *Pipeline) prepare(ctx context.Context, r *run) error {
	if r.req.FileKey == "" || r.req.ItemID == "" {
		r.res.Phase = PhaseSetup
		return fmt.Errorf("file key and item id are required")
	}

	r.res.Phase = PhaseSetup
	file, err := p.source.File(ctx, r.req.FileKey)
	if err != nil {
		return fmt.Errorf("fetching design file: %w", err)
	}
	assoc := design.Associate(file.Frames, file.Notes, p.assoc)
	r.res.Screens = assoc.Screens
	r.res.UnassociatedNoteIDs = assoc.UnassociatedNoteIDs
	r.log.Info("screens associated",
		zap.Int("screens", len(assoc.Screens)),
		zap.Int("notes", len(file.Notes)),
		zap.Int("unassociated", len(assoc.UnassociatedNoteIDs)))
	if len(assoc.Screens) == 0 {
		return fmt.Errorf("design file %q has no frames", r.req.FileKey)
	}

	r.res.Phase = PhaseCacheCheck
	current, err := p.source.LastTouchedAt(ctx, r.req.FileKey)
	if err != nil {
		return fmt.Errorf("fetching last touched time: %w", err)
	}
	if valid, err := p.cache.Validate(ctx, r.req.FileKey, current); err != nil {
		r.log.Warn("cache check failed", zap.Error(err))
		r.res.warn("cache check failed: %v", err)
	} else if !valid {
		r.log.Info("cache rebuilt", zap.Time("last_touched_at", current))
	}

	r.res.Phase = PhaseAnalyze
	ares, err := p.analyzer.Analyze(ctx, analysis.Request{
		FileKey:       r.req.FileKey,
		FileName:      file.Name,
		Screens:       assoc.Screens,
		Notes:         file.Notes,
		LastTouchedAt: current,
	})
	if err != nil {
		return err
	}
	r.res.Analyzed = len(ares.Analyzed)
	r.res.Cached = len(ares.Cached)
	r.res.Skipped = ares.Skipped
	r.res.Warnings = append(r.res.Warnings, ares.Warnings...)
	for _, s := range ares.Skipped {
		r.res.warn("screen %s skipped: %s", s.ScreenID, s.Reason)
	}
	r.analyses = ares.Ordered(assoc.Screens)
	if len(r.analyses) == 0 {
		return fmt.Errorf("no screen of %q could be analyzed", r.req.FileKey)
	}

	r.res.Phase = PhaseDecide
	doc, err := p.tracker.Document(ctx, r.req.ItemID)
	if err != nil {
		return fmt.Errorf("reading work item document: %w", err)
	}
	r.doc = doc
	comments, err := p.tracker.Comments(ctx, r.req.ItemID)
	if err != nil {
		r.log.Warn("reading comments failed", zap.Error(err))
		r.res.warn("reading comments failed: %v", err)
	}
	r.comments = comments
	return nil
}

func (p *Pipeline) generateScope(ctx context.Context, r *run, previous string) (string, error) {
	if p.generator == nil {
		return "", llm.ErrNoProvider
	}
	// Comments go in even without a previous analysis: answers may refer to
	// one that overflowed into a comment.
	extra := screensContext(r.analyses)
	if c := commentsContext(r.comments); c != "" {
		extra += "\n" + c
	}
	text, err := p.generator.Generate(ctx, llm.Request{
		System:  scopeSystemPrompt,
		Prompt:  scopePrompt(r.req.Context, len(r.analyses), previous),
		Context: extra,
	})
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &scope.GenerationEmptyError{Screens: len(r.analyses), Regenerating: previous != ""}
	}
	return text, nil
}

func (p *Pipeline) generateStories(ctx context.Context, r *run, scopeText string) (string, error) {
	if p.generator == nil {
		return "", llm.ErrNoProvider
	}
	text, err := p.generator.Generate(ctx, llm.Request{
		System:  storiesSystemPrompt,
		Prompt:  storiesPrompt(r.req.Context, scopeText),
		Context: screensContext(r.analyses),
	})
	if err != nil {
		return "", fmt.Errorf("generating shell stories: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("shell stories for %d screens: %w", len(r.analyses), ErrEmptyGeneration)
	}
	return text, nil
}

func (p *Pipeline) recordDecision(r *run, o *scope.Outcome) {
	r.res.Decision = o
	r.res.ScopeAnalysis = o.Analysis
	r.res.Questions = o.Questions
	if o.NeedsClarification() {
		r.res.Status = StatusNeedsClarification
	}
	r.log.Info("scope decided",
		zap.Stringer("outcome", o.Kind),
		zap.Int("questions", o.Questions),
		zap.Bool("generated", o.Generated))
}

func (p *Pipeline) recordCompose(r *run, c document.ComposeResult) {
	r.res.DocumentSize = c.Size
	r.res.Overflowed = c.OverflowedFound
	if c.Warning != nil {
		r.log.Warn("document over size limit", zap.Error(c.Warning))
		r.res.warn("%v", c.Warning)
	}
}

// persist writes the document and posts any overflowed section. A failed
// comment is a warning; a failed write is an error.
func (p *Pipeline) persist(ctx context.Context, r *run, c document.ComposeResult) error {
	if err := p.tracker.WriteDocument(ctx, r.req.ItemID, c.Content); err != nil {
		return fmt.Errorf("writing work item document: %w", err)
	}
	if c.OverflowedFound {
		if err := p.tracker.PostComment(ctx, r.req.ItemID, overflowComment(c.Overflowed)); err != nil {
			r.log.Warn("posting overflow comment failed", zap.Error(err))
			r.res.warn("posting overflow comment failed: %v", err)
		}
	}
	return nil
}

func (p *Pipeline) postClarification(ctx context.Context, r *run, o *scope.Outcome) {
	var questions []string
	for _, q := range scope.Parse(o.Analysis).Questions() {
		questions = append(questions, q.Text)
	}
	if err := p.tracker.PostComment(ctx, r.req.ItemID, clarificationComment(questions, o.Questions, p.engine.EffectiveThreshold())); err != nil {
		r.log.Warn("posting clarification comment failed", zap.Error(err))
		r.res.warn("posting clarification comment failed: %v", err)
	}
}

// Elapsed is how long the run took.
func (r *Result) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
