package groutine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGoRunsFunctionWithNamedContext(t *testing.T) {
	done := make(chan string, 1)
	Go(context.Background(), "test-worker", func(ctx context.Context) {
		done <- GetName(ctx)
	})

	select {
	case name := <-done:
		assert.Equal(t, "test-worker", name)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for goroutine")
	}
}

func TestGoDefaultsToBackgroundWhenParentNil(t *testing.T) {
	done := make(chan struct{})
	Go(nil, "nil-parent-worker", func(ctx context.Context) {
		assert.NotNil(t, ctx)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for goroutine")
	}
}

func TestGetNameReturnsEmptyForUnnamedContext(t *testing.T) {
	assert.Equal(t, "", GetName(context.Background()))
	assert.Equal(t, "", GetName(nil))
}
