package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/toonify-go/internal/logging"
	"github.com/54b3r/toonify-go/internal/provider"
)

// LLMPinger probes the chat/vision backend for GET /api/ready.
type LLMPinger struct {
	// check is the zero-cost HTTP probe for the backend, when one exists.
	check provider.HealthChecker
	// model is the fallback probe for backends without a health endpoint.
	model model.BaseChatModel
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewLLMPinger constructs an LLMPinger. check may be nil, in which case m
// is probed with a one-word generate call.
func NewLLMPinger(check provider.HealthChecker, m model.BaseChatModel, name string) *LLMPinger {
	return &LLMPinger{check: check, model: m, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping probes the backend. The generate fallback consumes tokens.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if p.check != nil {
		if err := p.check.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s health check failed: %w", p.name, err)
		}
		return nil
	}
	if p.model == nil {
		return errors.New("no health check available")
	}

	logging.FromContext(ctx).Debug("pinger: probing with a generate call", "backend", p.name)
	resp, err := p.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")})
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return errors.New("generate returned nil response")
	}
	return nil
}

// pingable is any dependency handle with a reachability probe: index
// stores, embedders and the embedding cache all qualify.
type pingable interface {
	Ping(ctx context.Context) error
}

// namedPinger attaches a readiness label to a pingable.
type namedPinger struct {
	name string
	p    pingable
}

// NewPinger labels p for readiness responses.
func NewPinger(name string, p pingable) Pinger {
	return &namedPinger{name: name, p: p}
}

func (n *namedPinger) Name() string                   { return n.name }
func (n *namedPinger) Ping(ctx context.Context) error { return n.p.Ping(ctx) }
