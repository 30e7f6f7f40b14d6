package logctx

import (
	"context"
	"log/slog"
	"testing"
)

func TestFrom(t *testing.T) {
	fallback := slog.Default()
	if got := From(context.Background(), fallback); got != fallback {
		t.Fatal("expected fallback for bare context")
	}

	scoped := fallback.With("request_id", "r1")
	ctx := With(context.Background(), scoped)
	if got := From(ctx, fallback); got != scoped {
		t.Fatal("expected scoped logger")
	}
}
