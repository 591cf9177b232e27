// Package tracing wires optional Langfuse tracing into the describe,
// keyword and feature model calls.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// DefaultHost is used when LANGFUSE_HOST is unset.
const DefaultHost = "http://localhost:3000"

// Tracer bundles the callback handler with its flush function.
type Tracer struct {
	// Handler receives model callbacks. Nil when tracing is disabled.
	Handler callbacks.Handler
	// Host is the Langfuse endpoint traces are sent to.
	Host  string
	flush func()
}

// Enabled reports whether traces are being sent.
func (t *Tracer) Enabled() bool {
	return t != nil && t.Handler != nil
}

// Handlers returns the handler as a slice suitable for descriptor options,
// or nil when tracing is disabled.
func (t *Tracer) Handlers() []callbacks.Handler {
	if !t.Enabled() {
		return nil
	}
	return []callbacks.Handler{t.Handler}
}

// Flush sends buffered traces. Safe to call on a disabled tracer.
func (t *Tracer) Flush() {
	if t != nil && t.flush != nil {
		t.flush()
	}
}

// FromEnv builds a Tracer from LANGFUSE_PUBLIC_KEY, LANGFUSE_SECRET_KEY and
// LANGFUSE_HOST. Without both keys the returned tracer is disabled.
func FromEnv() *Tracer {
	publicKey := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secretKey := os.Getenv("LANGFUSE_SECRET_KEY")
	if publicKey == "" || secretKey == "" {
		return &Tracer{}
	}
	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = DefaultHost
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: publicKey,
		SecretKey: secretKey,
	})
	return &Tracer{Handler: handler, Host: host, flush: flusher}
}
