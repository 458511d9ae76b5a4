package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	appctx "advisorcrm/internal/core/context"
)

func TestFromContext_AddsActorAndTrace(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := &Logger{zap.New(core).Sugar()}

	ctx := WithLogger(context.Background(), log)
	ctx = appctx.WithActor(ctx, &appctx.Actor{AdvisorID: "adv-1", FirmID: "firm-9"})
	ctx = appctx.WithTrace(ctx, &appctx.TraceContext{TraceID: "t-1", RequestID: "r-1"})

	Info(ctx, "contact committed", "class", "Contact")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "adv-1", fields["advisor_id"])
		assert.Equal(t, "firm-9", fields["firm_id"])
		assert.Equal(t, "t-1", fields["trace_id"])
		assert.Equal(t, "Contact", fields["class"])
	}
}

func TestWithComponent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := (&Logger{zap.New(core).Sugar()}).WithComponent("lifecycle")

	log.Infow("batch aborted")

	assert.Equal(t, "lifecycle", logs.All()[0].ContextMap()["component"])
}
