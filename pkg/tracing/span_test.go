package tracing

import (
	"context"
	"testing"
)

func TestSpanTree(t *testing.T) {
	tracer := NewTracer(true, 1)
	ctx, root := tracer.StartSpan(context.Background(), "search", "req-1")
	if root == nil {
		t.Fatal("sampled tracer returned nil span")
	}
	_, parse := StartChildSpan(ctx, "parse")
	parse.SetAttr("tokens", 3)
	parse.End()
	_, compile := StartChildSpan(ctx, "compile")
	compile.End()
	root.End()

	if len(root.Children) != 2 || root.Children[0].Name != "parse" || root.Children[1].TraceID != "req-1" {
		t.Errorf("unexpected tree: %+v", root.Children)
	}
	if root.Children[0].Attrs["tokens"] != 3 {
		t.Errorf("attrs = %v", root.Children[0].Attrs)
	}
	root.Log()
}

func TestDisabledTracerIsNilSafe(t *testing.T) {
	var tracer *Tracer
	ctx, root := tracer.StartSpan(context.Background(), "search", "req-1")
	if root != nil {
		t.Fatal("nil tracer produced a span")
	}
	ctx, child := StartChildSpan(ctx, "parse")
	child.SetAttr("k", "v")
	child.End()
	root.End()
	root.Log()
	if SpanFromContext(ctx) != nil {
		t.Error("span stored in context without tracing")
	}

	_, span := NewTracer(false, 1).StartSpan(context.Background(), "search", "x")
	if span != nil {
		t.Error("disabled tracer produced a span")
	}
}
