package main

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestShutdownContextInterrupt(t *testing.T) {
	ctx, interrupted, cancel := shutdownContext(100*time.Millisecond, zap.NewNop())
	defer cancel()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGINT))

	select {
	case <-interrupted:
	case <-time.After(2 * time.Second):
		t.Fatal("interrupt not reported")
	}
	assert.NoError(t, ctx.Err(), "work keeps its context during the grace period")

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled after the grace period")
	}
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestShutdownContextCancel(t *testing.T) {
	ctx, interrupted, cancel := shutdownContext(time.Minute, zap.NewNop())
	cancel()

	<-ctx.Done()
	select {
	case <-interrupted:
		t.Fatal("cancel is not an interrupt")
	case <-time.After(50 * time.Millisecond):
	}
}
