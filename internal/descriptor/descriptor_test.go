package descriptor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// fakeChatModel records every prompt and replies with a canned message.
type fakeChatModel struct {
	mu    sync.Mutex
	calls [][]*schema.Message
	reply string
	err   error
	nilOK bool
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, input)
	if f.err != nil {
		return nil, f.err
	}
	if f.nilOK {
		return nil, nil
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not supported")
}

func newTestGenerator(t *testing.T, m *fakeChatModel) *Generator {
	t.Helper()
	g, err := New(m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestNew_NilModel(t *testing.T) {
	t.Parallel()
	if _, err := New(nil); err == nil {
		t.Fatal("want error for nil model")
	}
}

func TestDescribeImage_AttachesImage(t *testing.T) {
	t.Parallel()
	m := &fakeChatModel{reply: "golden hour beach, calm waves, warm nostalgic breeze"}
	g := newTestGenerator(t, m)

	got, err := g.DescribeImage(context.Background(), Image{Data: []byte{0x89, 'P', 'N', 'G'}, MIMEType: "image/png"})
	if err != nil {
		t.Fatalf("DescribeImage: %v", err)
	}
	if got != m.reply {
		t.Errorf("got %q", got)
	}

	msgs := m.calls[0]
	if len(msgs) != 2 || msgs[0].Role != schema.System || msgs[1].Role != schema.User {
		t.Fatalf("want [system, user], got %d messages", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, "photography expert") {
		t.Errorf("system prompt = %q", msgs[0].Content)
	}
	parts := msgs[1].MultiContent //nolint:staticcheck // SA1019
	if len(parts) != 2 {
		t.Fatalf("want text + image parts, got %d", len(parts))
	}
	img := parts[1]
	if img.Type != schema.ChatMessagePartTypeImageURL || img.ImageURL == nil {
		t.Fatalf("second part = %+v, want image", img)
	}
	if !strings.HasPrefix(img.ImageURL.URL, "data:image/png;base64,") {
		t.Errorf("image url = %q", img.ImageURL.URL)
	}
}

func TestDescribeImage_Empty(t *testing.T) {
	t.Parallel()
	m := &fakeChatModel{}
	g := newTestGenerator(t, m)

	_, err := g.DescribeImage(context.Background(), Image{})
	if !errors.Is(err, ErrEmptyImage) {
		t.Fatalf("want ErrEmptyImage, got %v", err)
	}
	if len(m.calls) != 0 {
		t.Error("model must not be called for an empty image")
	}
}

func TestExtractKeywords_Prompt(t *testing.T) {
	t.Parallel()
	m := &fakeChatModel{reply: "1. calm, 2. ocean"}
	g := newTestGenerator(t, m)

	got, err := g.ExtractKeywords(context.Background(), "a quiet beach at dusk")
	if err != nil {
		t.Fatalf("ExtractKeywords: %v", err)
	}
	if got != "1. calm, 2. ocean" {
		t.Errorf("output must be returned raw, got %q", got)
	}
	user := m.calls[0][1]
	if !strings.HasSuffix(user.Content, "a quiet beach at dusk") {
		t.Errorf("user prompt = %q", user.Content)
	}
}

func TestDeriveFeatures_IncludesFormatHint(t *testing.T) {
	t.Parallel()
	m := &fakeChatModel{reply: "not json at all"}
	g := newTestGenerator(t, m)

	got, err := g.DeriveFeatures(context.Background(), "calm, ocean")
	if err != nil {
		t.Fatalf("DeriveFeatures: %v", err)
	}
	if got != "not json at all" {
		t.Errorf("got %q", got)
	}
	msgs := m.calls[0]
	if len(msgs) != 3 || msgs[2].Role != schema.Assistant {
		t.Fatalf("want [system, user, assistant hint], got %d messages", len(msgs))
	}
	if !strings.Contains(msgs[2].Content, `"danceability": float`) {
		t.Errorf("hint = %q", msgs[2].Content)
	}
}

func TestGenerate_ServiceError(t *testing.T) {
	t.Parallel()
	cause := errors.New("connection refused")
	g := newTestGenerator(t, &fakeChatModel{err: cause})

	_, err := g.ExtractKeywords(context.Background(), "x")
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("want ErrServiceUnavailable, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("want cause preserved, got %v", err)
	}
}

func TestGenerate_DeadlinePreserved(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t, &fakeChatModel{err: context.DeadlineExceeded})

	_, err := g.DeriveFeatures(context.Background(), "x")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("want DeadlineExceeded reachable, got %v", err)
	}
}

func TestGenerate_NilResponse(t *testing.T) {
	t.Parallel()
	g := newTestGenerator(t, &fakeChatModel{nilOK: true})

	if _, err := g.ExtractKeywords(context.Background(), "x"); !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("want ErrServiceUnavailable for nil response, got %v", err)
	}
}
