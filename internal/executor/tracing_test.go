package executor

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestExecute_RunSpanCarriesRunID(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	runner := &mockRunner{handler: func(ctx context.Context, host, command string) *Result {
		return &Result{Stdout: []byte("ok")}
	}}
	New(runner, WithRunID("run-42")).Execute(context.Background(), []string{"h1"}, []string{"id"})

	var found bool
	for _, span := range recorder.Ended() {
		if span.Name() != "executor.Execute" {
			continue
		}
		found = true
		var got attribute.Value
		for _, kv := range span.Attributes() {
			if kv.Key == "run_id" {
				got = kv.Value
			}
		}
		if got.AsString() != "run-42" {
			t.Errorf("run_id attribute = %q, want run-42", got.AsString())
		}
	}
	if !found {
		t.Fatal("no executor.Execute span recorded")
	}
}
