package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type blockingConsumer struct{ started chan struct{} }

func (b blockingConsumer) Run(ctx context.Context) error {
	close(b.started)
	<-ctx.Done()
	return ctx.Err()
}

type failingConsumer struct{ err error }

func (f failingConsumer) Run(context.Context) error { return f.err }

func newTestService(t *testing.T, db pinger, consumer runner) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		DB:       db,
		Redis:    fakePinger{},
		PubSub:   fakePinger{},
		Consumer: consumer,
	})
	require.NoError(t, err)
	return svc
}

func TestRunStopsOnCancel(t *testing.T) {
	consumer := blockingConsumer{started: make(chan struct{})}
	svc := newTestService(t, fakePinger{}, consumer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	<-consumer.started
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRunFailsWhenDependencyDown(t *testing.T) {
	svc := newTestService(t, fakePinger{err: errors.New("refused")}, failingConsumer{})
	err := svc.Run(context.Background())
	assert.ErrorContains(t, err, "database ping failed")
}

func TestRunSurfacesConsumerError(t *testing.T) {
	svc := newTestService(t, fakePinger{}, failingConsumer{err: errors.New("subscription deleted")})
	assert.EqualError(t, svc.Run(context.Background()), "subscription deleted")
}

func TestNewServiceRequiresConsumer(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: logger.Nop(), DB: fakePinger{}, Redis: fakePinger{}, PubSub: fakePinger{}})
	assert.Error(t, err)
}
