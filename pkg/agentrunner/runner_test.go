package agentrunner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type verdict struct {
	Value   string
	Success bool
}

func TestRun_Success(t *testing.T) {
	result := Run(context.Background(), "ok", time.Second, verdict{}, func(ctx context.Context) (verdict, error) {
		return verdict{Value: "done", Success: true}, nil
	})
	assert.False(t, result.Fallback)
	assert.Equal(t, "done", result.Value.Value)
}

func TestRun_ReturnsOwnFailureVerbatim(t *testing.T) {
	// An agent that returns success:false is NOT a fallback; the caller sees
	// the value the agent produced.
	result := Run(context.Background(), "own-failure", time.Second, verdict{Value: "fb"}, func(ctx context.Context) (verdict, error) {
		return verdict{Value: "partial", Success: false}, nil
	})
	assert.False(t, result.Fallback)
	assert.Equal(t, "partial", result.Value.Value)
}

func TestRun_Timeout(t *testing.T) {
	result := Run(context.Background(), "slow", 30*time.Millisecond, verdict{Value: "fb"}, func(ctx context.Context) (verdict, error) {
		select {
		case <-time.After(time.Second):
			return verdict{Value: "late"}, nil
		case <-ctx.Done():
			return verdict{}, ctx.Err()
		}
	})
	assert.True(t, result.Fallback)
	assert.Equal(t, "fb", result.Value.Value)
	assert.Error(t, result.Err)
}

func TestRun_Error(t *testing.T) {
	result := Run(context.Background(), "failing", time.Second, verdict{Value: "fb"}, func(ctx context.Context) (verdict, error) {
		return verdict{}, errors.New("boom")
	})
	assert.True(t, result.Fallback)
	assert.Equal(t, "fb", result.Value.Value)
}

func TestRun_PanicBecomesFallback(t *testing.T) {
	result := Run(context.Background(), "panicking", time.Second, verdict{Value: "fb"}, func(ctx context.Context) (verdict, error) {
		panic("unexpected")
	})
	assert.True(t, result.Fallback)
	assert.Equal(t, "fb", result.Value.Value)
}
