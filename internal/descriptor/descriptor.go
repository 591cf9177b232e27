// Package descriptor wraps a vision-capable chat model behind the three
// prompts of the image-to-playlist pipeline: describe an image, distill the
// description into keywords, and turn keywords into acoustic feature text.
//
// Each operation is a single round-trip with no retries and no validation of
// the model output; callers normalise what comes back.
package descriptor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/toonify-go/internal/budget"
	"github.com/54b3r/toonify-go/internal/logging"
)

var (
	// ErrEmptyImage is returned when DescribeImage receives no bytes.
	ErrEmptyImage = errors.New("descriptor: empty image")
	// ErrServiceUnavailable wraps any failure of the model round-trip.
	ErrServiceUnavailable = errors.New("descriptor: language model unavailable")
)

// Image is the input to DescribeImage. Data is never persisted.
type Image struct {
	// Data is the raw encoded image.
	Data []byte
	// MIMEType is the sniffed content type (e.g. "image/jpeg").
	MIMEType string
}

// Generator runs the three descriptor prompts against a chat model. It holds
// no per-request state and is safe for concurrent use.
type Generator struct {
	// model is the vision-capable chat model.
	model model.BaseChatModel
	// handlers are eino callback handlers (e.g. Langfuse) attached to every call.
	handlers []callbacks.Handler
}

// Option configures a Generator.
type Option func(*Generator)

// WithCallbacks attaches eino callback handlers to every model call.
func WithCallbacks(h ...callbacks.Handler) Option {
	return func(g *Generator) { g.handlers = append(g.handlers, h...) }
}

// New constructs a Generator over m.
func New(m model.BaseChatModel, opts ...Option) (*Generator, error) {
	if m == nil {
		return nil, fmt.Errorf("descriptor: model must not be nil")
	}
	g := &Generator{model: m}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// DescribeImage asks the model for a short mood and scene description of img.
// The expected 10–15 word length is requested, not enforced.
func (g *Generator) DescribeImage(ctx context.Context, img Image) (string, error) {
	if len(img.Data) == 0 {
		return "", ErrEmptyImage
	}
	mime := img.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)

	msgs := []*schema.Message{
		schema.SystemMessage(describeSystemPrompt),
		{
			Role: schema.User,
			MultiContent: []schema.ChatMessagePart{ //nolint:staticcheck // SA1019: MultiContent is what the eino-ext backends read
				{Type: schema.ChatMessagePartTypeText, Text: describeUserPrompt},
				{
					Type:     schema.ChatMessagePartTypeImageURL,
					ImageURL: &schema.ChatMessageImageURL{URL: dataURL, MIMEType: mime},
				},
			},
		},
	}
	return g.generate(ctx, "describe_image", msgs)
}

// ExtractKeywords distills text into a short keyword list. The model may
// answer comma-delimited, newline-delimited or numbered.
func (g *Generator) ExtractKeywords(ctx context.Context, text string) (string, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(keywordsSystemPrompt),
		schema.UserMessage(keywordsUserPrompt + text),
	}
	return g.generate(ctx, "extract_keywords", msgs)
}

// DeriveFeatures maps keywords to acoustic feature text, nominally a JSON
// object. The raw model output is returned unparsed; see ParseFeatures.
func (g *Generator) DeriveFeatures(ctx context.Context, keywords string) (string, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(featuresSystemPrompt),
		schema.UserMessage(featuresUserPrompt + keywords),
		schema.AssistantMessage(featuresFormatHint, nil),
	}
	return g.generate(ctx, "derive_features", msgs)
}

// generate performs one round-trip and returns the message content.
func (g *Generator) generate(ctx context.Context, op string, msgs []*schema.Message) (string, error) {
	log := logging.FromContext(ctx)
	if len(g.handlers) > 0 {
		ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
			Name:      op,
			Type:      "Descriptor",
			Component: components.ComponentOfChatModel,
		}, g.handlers...)
	}

	start := time.Now()
	log.Debug("descriptor: calling model",
		slog.String("op", op),
		slog.Int("prompt_tokens_est", budget.EstimateMessages(msgs)),
	)

	resp, err := g.model.Generate(ctx, msgs)
	if err != nil {
		log.Debug("descriptor: model call failed", slog.String("op", op), slog.Any("error", err))
		return "", fmt.Errorf("descriptor: %s: %w: %w", op, ErrServiceUnavailable, err)
	}
	if resp == nil {
		return "", fmt.Errorf("descriptor: %s: %w: nil response", op, ErrServiceUnavailable)
	}

	log.Debug("descriptor: model call complete",
		slog.String("op", op),
		slog.Int("output_chars", len(resp.Content)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return resp.Content, nil
}
