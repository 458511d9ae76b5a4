package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActor(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetActor(ctx))
	assert.Equal(t, "", GetAdvisorID(ctx))

	ctx = WithActor(ctx, &Actor{AdvisorID: "adv-7", FirmID: "firm-1"})
	assert.Equal(t, "adv-7", GetAdvisorID(ctx))

	ctx = WithActor(ctx, &Actor{System: true})
	assert.Equal(t, "system", GetAdvisorID(ctx))
}

func TestTrace(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", GetRequestID(ctx))

	tc := NewTraceContext()
	ctx = WithTrace(ctx, tc)
	assert.Equal(t, tc.RequestID, GetRequestID(ctx))
	assert.Len(t, GetTrace(ctx).SpanID, 16)
}
