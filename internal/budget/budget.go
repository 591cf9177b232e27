// Package budget bounds the time and prompt size spent on a pipeline run.
//
// A Budget holds a total deadline for one run plus a cap per named stage.
// Each stage runs under min(stage cap, time left in the run), so a slow
// early stage eats into the time available to later ones and no stage can
// stall the run past its total.
package budget

import (
	"context"
	"os"
	"time"
)

// Defaults applied when no override is configured.
const (
	DefaultTotal      = 120 * time.Second
	DefaultLLMStage   = 60 * time.Second
	DefaultQueryStage = 15 * time.Second
)

// Budget is an immutable set of deadlines. The zero value has no limits.
type Budget struct {
	// Total bounds a whole run. Zero means unbounded.
	Total time.Duration
	// Stages maps a stage name to its cap. Stages not listed use Default.
	Stages map[string]time.Duration
	// Default is the cap for stages not present in Stages. Zero means the
	// stage is bounded only by Total.
	Default time.Duration
}

// New returns a Budget with the given total, a default LLM stage cap, and
// per-stage overrides.
func New(total, defaultStage time.Duration, stages map[string]time.Duration) Budget {
	return Budget{Total: total, Default: defaultStage, Stages: stages}
}

// FromEnv builds a Budget from PIPELINE_TIMEOUT and PIPELINE_STAGE_TIMEOUT
// (Go duration strings, e.g. "90s"). queryStage names the vector query
// stage, which keeps its own shorter cap.
func FromEnv(queryStage string) Budget {
	return New(
		getEnvDuration("PIPELINE_TIMEOUT", DefaultTotal),
		getEnvDuration("PIPELINE_STAGE_TIMEOUT", DefaultLLMStage),
		map[string]time.Duration{queryStage: DefaultQueryStage},
	)
}

// Run derives the context for a whole run.
func (b Budget) Run(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.Total <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.Total)
}

// Stage derives the context for one stage of a run started with Run. The
// effective deadline is the earlier of the stage cap and the run deadline.
func (b Budget) Stage(ctx context.Context, name string) (context.Context, context.CancelFunc) {
	limit := b.StageCap(name)
	if limit <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, limit)
}

// StageCap returns the cap configured for name.
func (b Budget) StageCap(name string) time.Duration {
	if d, ok := b.Stages[name]; ok {
		return d
	}
	return b.Default
}

// Remaining returns the time left before ctx's deadline, or -1 if ctx has
// none.
func Remaining(ctx context.Context) time.Duration {
	dl, ok := ctx.Deadline()
	if !ok {
		return -1
	}
	return time.Until(dl)
}

// getEnvDuration parses a duration env var, returning fallback when unset
// or unparseable.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
