// Package pipeline turns one image into song recommendations.
//
// A run is a fixed chain of four stages with no retries:
//
//	describe → keywords → features → vector_query
//
// followed by a local postprocess step that flattens index metadata into
// song.Info values and normalises keywords. Any stage failure aborts the run
// and is returned as a *StageError naming the stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/54b3r/toonify-go/internal/budget"
	"github.com/54b3r/toonify-go/internal/descriptor"
	"github.com/54b3r/toonify-go/internal/embedder"
	"github.com/54b3r/toonify-go/internal/index"
	"github.com/54b3r/toonify-go/internal/logging"
	"github.com/54b3r/toonify-go/internal/song"
)

// DefaultTopK is the number of songs requested from the index.
const DefaultTopK = 15

// Describer is the language-model surface the pipeline depends on.
// *descriptor.Generator satisfies it.
type Describer interface {
	DescribeImage(ctx context.Context, img descriptor.Image) (string, error)
	ExtractKeywords(ctx context.Context, text string) (string, error)
	DeriveFeatures(ctx context.Context, keywords string) (string, error)
}

// Deps are the process-wide handles a Pipeline reads from. They are built
// once at startup and never mutated, so a single Pipeline serves concurrent
// runs without locking.
type Deps struct {
	// Descriptor runs the three language-model stages.
	Descriptor Describer
	// Encoder turns the feature text into a query vector.
	Encoder embedder.Embedder
	// Index answers nearest-neighbour queries.
	Index index.Querier
}

// Config tunes a Pipeline. Zero values select defaults.
type Config struct {
	// TopK is the number of songs requested from the index. Defaults to 15.
	TopK int
	// Budget bounds the run and each stage. The zero Budget has no limits.
	Budget budget.Budget
	// Metrics receives stage and run observations. Nil disables them.
	Metrics *Metrics
}

// Result is the output of a successful run.
type Result struct {
	// Songs are the nearest matches, closest first.
	Songs []song.Info `json:"songs"`
	// ShortKeywords holds at most three normalised keywords.
	ShortKeywords []string `json:"short_keywords"`
	// Features is the parsed feature object when the model produced one.
	// Retrieval never depends on it.
	Features *song.Features `json:"features,omitempty"`
	// FeatureParse records how the feature text was read.
	FeatureParse descriptor.FeatureParse `json:"-"`
	// Description is the raw image description.
	Description string `json:"-"`
}

// Pipeline runs the image-to-songs chain. It is safe for concurrent use.
type Pipeline struct {
	deps    Deps
	topK    int
	budget  budget.Budget
	metrics *Metrics
}

// New validates deps and returns a ready Pipeline.
func New(deps Deps, cfg Config) (*Pipeline, error) {
	if deps.Descriptor == nil {
		return nil, errors.New("pipeline: descriptor must not be nil")
	}
	if deps.Encoder == nil {
		return nil, errors.New("pipeline: encoder must not be nil")
	}
	if deps.Index == nil {
		return nil, errors.New("pipeline: index must not be nil")
	}
	if cfg.TopK < 0 {
		return nil, fmt.Errorf("pipeline: top-k must be positive, got %d", cfg.TopK)
	}
	if cfg.TopK == 0 {
		cfg.TopK = DefaultTopK
	}
	return &Pipeline{deps: deps, topK: cfg.TopK, budget: cfg.Budget, metrics: cfg.Metrics}, nil
}

// Run executes every stage in order and returns the songs and short
// keywords. On failure the returned error is a *StageError and no partial
// result is returned.
func (p *Pipeline) Run(ctx context.Context, img descriptor.Image) (*Result, error) {
	log := logging.FromContext(ctx)
	start := time.Now()

	ctx, cancel := p.budget.Run(ctx)
	defer cancel()

	durations := make(map[string]string, len(Stages))

	var description string
	if err := p.stage(ctx, log, StageDescribe, durations, func(sctx context.Context) (err error) {
		description, err = p.deps.Descriptor.DescribeImage(sctx, img)
		return err
	}); err != nil {
		return nil, p.fail(err)
	}

	var keywordText string
	if err := p.stage(ctx, log, StageKeywords, durations, func(sctx context.Context) (err error) {
		keywordText, err = p.deps.Descriptor.ExtractKeywords(sctx, description)
		return err
	}); err != nil {
		return nil, p.fail(err)
	}
	keywords := NormalizeKeywords(keywordText)
	if len(keywords) == 0 {
		log.Warn("pipeline: keyword output empty after normalisation, continuing")
	}

	var featureText string
	if err := p.stage(ctx, log, StageFeatures, durations, func(sctx context.Context) (err error) {
		featureText, err = p.deps.Descriptor.DeriveFeatures(sctx, keywordText)
		return err
	}); err != nil {
		return nil, p.fail(err)
	}
	parse := descriptor.ParseFeatures(featureText)
	switch {
	case featureText == "":
		log.Warn("pipeline: feature output empty, embedding empty text")
	case parse.Kind == descriptor.Unparsed:
		log.Warn("pipeline: feature output is not a JSON object, embedding raw text")
	case len(parse.Missing) > 0:
		log.Debug("pipeline: feature object incomplete", slog.Any("missing", parse.Missing))
	}

	var matches []index.Match
	if err := p.stage(ctx, log, StageVectorQuery, durations, func(sctx context.Context) error {
		vec, err := embedder.EncodeOne(sctx, p.deps.Encoder, featureText)
		if err != nil {
			return err
		}
		matches, err = p.deps.Index.Query(sctx, vec, p.topK)
		return err
	}); err != nil {
		return nil, p.fail(err)
	}

	res := &Result{
		Songs:         make([]song.Info, 0, len(matches)),
		ShortKeywords: ShortKeywords(keywords),
		Features:      parse.Features,
		FeatureParse:  parse,
		Description:   description,
	}
	for _, m := range matches {
		res.Songs = append(res.Songs, song.InfoFromMetadata(m.Metadata))
	}

	p.metrics.observeRun(outcomeOK, len(res.Songs))
	log.Info("pipeline: run complete",
		slog.Int("songs", len(res.Songs)),
		slog.Any("short_keywords", res.ShortKeywords),
		slog.Any("stage_durations", durations),
		slog.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

// stage runs fn under the stage's slice of the budget, records its duration
// and tags any error with the stage name.
func (p *Pipeline) stage(ctx context.Context, log *slog.Logger, s Stage, durations map[string]string, fn func(context.Context) error) error {
	sctx, cancel := p.budget.Stage(ctx, string(s))
	defer cancel()

	log.Debug("pipeline: stage start", slog.String("stage", string(s)), slog.Duration("remaining", budget.Remaining(sctx)))

	t := time.Now()
	err := fn(sctx)
	elapsed := time.Since(t)
	durations[string(s)] = elapsed.Round(time.Millisecond).String()
	p.metrics.observeStage(s, elapsed, err != nil)

	if err != nil {
		log.Debug("pipeline: stage failed", slog.String("stage", string(s)), slog.String("error", err.Error()))
		return &StageError{Stage: s, Err: err}
	}
	return nil
}

// fail records the run outcome for a stage error and returns it unchanged.
func (p *Pipeline) fail(err error) error {
	outcome := outcomeError
	if errors.Is(err, context.DeadlineExceeded) {
		outcome = outcomeTimeout
	}
	p.metrics.observeRun(outcome, 0)
	return err
}
