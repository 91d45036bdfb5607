package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestWithAddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := WithLogger(context.Background(), base)

	ctx, logger := With(ctx, "compilation", "c1")
	logger.Info("started")
	FromContext(ctx).Info("again")

	out := buf.String()
	assert.Contains(t, out, "msg=started compilation=c1")
	assert.Contains(t, out, "msg=again compilation=c1")
}
