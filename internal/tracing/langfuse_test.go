package tracing

import "testing"

func TestFromEnv_Disabled(t *testing.T) {
	t.Setenv("LANGFUSE_PUBLIC_KEY", "")
	t.Setenv("LANGFUSE_SECRET_KEY", "sk")

	tr := FromEnv()
	if tr.Enabled() {
		t.Fatal("tracer enabled without public key")
	}
	if h := tr.Handlers(); h != nil {
		t.Errorf("Handlers() = %v, want nil", h)
	}
	tr.Flush()
}

func TestNilTracer(t *testing.T) {
	t.Parallel()

	var tr *Tracer
	if tr.Enabled() {
		t.Fatal("nil tracer reports enabled")
	}
	tr.Flush()
}
