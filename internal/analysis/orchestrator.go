// Package analysis drives per-screen analysis of a design file.
//
// Analyze runs in two phases. Phase A splits screens into cached and
// needs-analysis, then fetches artifacts for the needs-analysis set in one
// batched call. Phase B analyzes each of those screens, concurrently up to
// a limit, storing every result in the cache as soon as it exists. Cache
// metadata is refreshed once at the end, and only when something new was
// analyzed.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HendryAvila/shellstory/internal/cache"
	"github.com/HendryAvila/shellstory/internal/design"
	"github.com/HendryAvila/shellstory/internal/llm"
)

// DefaultMaxConcurrency bounds concurrent analysis calls.
const DefaultMaxConcurrency = 4

// ScreenInput is everything one analysis call receives.
type ScreenInput struct {
	FileKey  string
	FileName string
	Screen   design.Screen
	Image    []byte
	Notes    string
	// Index is the screen's position in reading order; Total the number of
	// screens in the file.
	Index int
	Total int
}

// AnalyzeFunc turns one screen into analysis text.
type AnalyzeFunc func(ctx context.Context, in ScreenInput) (string, error)

// Request describes one file's analysis run.
type Request struct {
	FileKey  string
	FileName string
	// Screens must be in reading order.
	Screens []design.Screen
	Notes   []design.Note
	// LastTouchedAt is recorded in cache metadata. Zero means ask the
	// source.
	LastTouchedAt time.Time
	// Analyze overrides the orchestrator's generator.
	Analyze AnalyzeFunc
}

// SkippedScreen is a screen that produced no analysis, with the reason.
type SkippedScreen struct {
	ScreenID string `json:"screen_id"`
	Name     string `json:"name"`
	Reason   string `json:"reason"`
	Err      error  `json:"-"`
}

// Result summarizes a run. Slices follow input screen order.
type Result struct {
	Analyzed []design.Screen
	Cached   []design.Screen
	Skipped  []SkippedScreen
	// Analyses holds text for every analyzed or cached screen.
	Analyses map[string]string
	Warnings []string
}

// Ordered returns (screen, analysis) pairs in reading order for screens
// that have an analysis.
func (r *Result) Ordered(screens []design.Screen) []ScreenAnalysis {
	out := make([]ScreenAnalysis, 0, len(r.Analyses))
	for _, s := range screens {
		if text, ok := r.Analyses[s.ID]; ok {
			out = append(out, ScreenAnalysis{Screen: s, Text: text})
		}
	}
	return out
}

// ScreenAnalysis pairs a screen with its analysis text.
type ScreenAnalysis struct {
	Screen design.Screen
	Text   string
}

// Orchestrator runs Analyze against a cache and a design source.
type Orchestrator struct {
	cache          *cache.Cache
	source         design.Source
	generator      llm.Generator
	maxConcurrency int
	logger         *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGenerator sets the generator behind the default AnalyzeFunc.
func WithGenerator(g llm.Generator) Option {
	return func(o *Orchestrator) { o.generator = g }
}

// WithMaxConcurrency bounds concurrent analysis calls. Values below 1 use
// DefaultMaxConcurrency.
func WithMaxConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxConcurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an Orchestrator.
func New(c *cache.Cache, src design.Source, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cache:          c,
		source:         src,
		maxConcurrency: DefaultMaxConcurrency,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type screenOutcome struct {
	text    string
	skipped *SkippedScreen
}

// Analyze runs both phases for req.
//
// A failed batched retrieval aborts with a *TransientError before any
// screen is analyzed. A failed analysis call aborts the remaining screens
// with a *TransientError; results stored before it stay cached. Screens
// with no artifact or empty output are reported in Result.Skipped.
func (o *Orchestrator) Analyze(ctx context.Context, req Request) (*Result, error) {
	if req.FileKey == "" {
		return nil, fmt.Errorf("analysis: file key is required")
	}
	analyze := req.Analyze
	if analyze == nil {
		if o.generator == nil {
			return nil, fmt.Errorf("analysis: %w", llm.ErrNoProvider)
		}
		analyze = o.generateAnalysis
	}
	log := o.logger.With(zap.String("file_key", req.FileKey))

	res := &Result{
		Analyzed: []design.Screen{},
		Cached:   []design.Screen{},
		Skipped:  []SkippedScreen{},
		Analyses: make(map[string]string, len(req.Screens)),
	}

	// Phase A: partition, then one batched fetch.
	var pending []int
	for i, s := range req.Screens {
		data, ok, err := o.cache.Get(ctx, req.FileKey, s.ID, cache.KindAnalysis)
		if err != nil {
			log.Warn("cache read failed, reanalyzing", zap.String("screen_id", s.ID), zap.Error(err))
			res.Warnings = append(res.Warnings, err.Error())
		}
		if ok && len(data) > 0 {
			res.Cached = append(res.Cached, s)
			res.Analyses[s.ID] = string(data)
			continue
		}
		pending = append(pending, i)
	}
	log.Info("screens partitioned", zap.Int("cached", len(res.Cached)), zap.Int("pending", len(pending)))
	if len(pending) == 0 {
		return res, nil
	}

	ids := make([]string, len(pending))
	for j, i := range pending {
		ids[j] = req.Screens[i].ID
	}
	artifacts, err := o.source.Artifacts(ctx, req.FileKey, ids)
	if err != nil {
		return nil, &TransientError{Phase: PhaseFetchArtifacts, FileKey: req.FileKey, Screens: len(ids), Err: err}
	}

	// Phase B: per-screen analysis.
	notes := design.NotesByID(req.Notes)
	outcomes := make([]screenOutcome, len(pending))
	var (
		mu    sync.Mutex
		fresh int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrency)
	for j, i := range pending {
		screen := req.Screens[i]
		in := ScreenInput{
			FileKey:  req.FileKey,
			FileName: req.FileName,
			Screen:   screen,
			Index:    i,
			Total:    len(req.Screens),
		}
		g.Go(func() error {
			img, ok := artifacts[screen.ID]
			if !ok {
				err := &MissingArtifactError{FileKey: req.FileKey, ScreenID: screen.ID}
				log.Warn("screen skipped", zap.String("screen_id", screen.ID), zap.Error(err))
				outcomes[j].skipped = &SkippedScreen{ScreenID: screen.ID, Name: screen.Name, Reason: err.Error(), Err: err}
				return nil
			}
			in.Image = img
			in.Notes = o.screenNotes(gctx, log, req.FileKey, screen, notes)

			text, err := analyze(gctx, in)
			if err != nil {
				return &TransientError{Phase: PhaseAnalyze, FileKey: req.FileKey, ScreenID: screen.ID, Screens: 1, Err: err}
			}
			text = strings.TrimSpace(text)
			if text == "" {
				err := &GenerationEmptyError{ScreenID: screen.ID, Screens: len(req.Screens)}
				log.Warn("screen skipped", zap.String("screen_id", screen.ID), zap.Error(err))
				outcomes[j].skipped = &SkippedScreen{ScreenID: screen.ID, Name: screen.Name, Reason: err.Error(), Err: err}
				return nil
			}

			if err := o.cache.Put(gctx, req.FileKey, screen.ID, cache.KindAnalysis, []byte(text)); err != nil {
				log.Warn("caching analysis failed", zap.String("screen_id", screen.ID), zap.Error(err))
			}
			if err := o.cache.Put(gctx, req.FileKey, screen.ID, cache.KindImage, img); err != nil {
				log.Warn("caching image failed", zap.String("screen_id", screen.ID), zap.Error(err))
			}
			outcomes[j].text = text
			mu.Lock()
			fresh++
			mu.Unlock()
			return nil
		})
	}
	runErr := g.Wait()

	if fresh > 0 {
		if err := o.touch(context.WithoutCancel(ctx), req); err != nil {
			log.Warn("refreshing cache metadata failed", zap.Error(err))
			res.Warnings = append(res.Warnings, err.Error())
		}
	}
	if runErr != nil {
		return nil, runErr
	}

	empty := 0
	for j, i := range pending {
		out := outcomes[j]
		switch {
		case out.skipped != nil:
			res.Skipped = append(res.Skipped, *out.skipped)
			var ge *GenerationEmptyError
			if errors.As(out.skipped.Err, &ge) {
				empty++
			}
		default:
			res.Analyzed = append(res.Analyzed, req.Screens[i])
			res.Analyses[req.Screens[i].ID] = out.text
		}
	}
	log.Info("screens analyzed",
		zap.Int("analyzed", len(res.Analyzed)),
		zap.Int("cached", len(res.Cached)),
		zap.Int("skipped", len(res.Skipped)))

	if len(res.Analyses) == 0 && empty > 0 {
		return res, &GenerationEmptyError{Screens: len(req.Screens), Empty: empty}
	}
	return res, nil
}

// screenNotes reads the cached notes artifact or builds and stores it.
func (o *Orchestrator) screenNotes(ctx context.Context, log *zap.Logger, fileKey string, screen design.Screen, notes map[string]design.Note) string {
	data, ok, err := o.cache.Get(ctx, fileKey, screen.ID, cache.KindNotes)
	if err != nil {
		log.Warn("cache read failed for notes", zap.String("screen_id", screen.ID), zap.Error(err))
	}
	if ok {
		return string(data)
	}
	text := NotesText(screen, notes)
	if err := o.cache.Put(ctx, fileKey, screen.ID, cache.KindNotes, []byte(text)); err != nil {
		log.Warn("caching notes failed", zap.String("screen_id", screen.ID), zap.Error(err))
	}
	return text
}

func (o *Orchestrator) touch(ctx context.Context, req Request) error {
	ts := req.LastTouchedAt
	if ts.IsZero() {
		var err error
		ts, err = o.source.LastTouchedAt(ctx, req.FileKey)
		if err != nil {
			return fmt.Errorf("fetching last touched time: %w", err)
		}
	}
	return o.cache.Touch(ctx, req.FileKey, ts)
}

func (o *Orchestrator) generateAnalysis(ctx context.Context, in ScreenInput) (string, error) {
	return o.generator.Generate(ctx, llm.Request{
		System:  screenSystemPrompt,
		Prompt:  screenPrompt(in),
		Image:   in.Image,
		Context: screenContext(in),
	})
}
