package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/service"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/storage"
)

func TestSweeperDeletesOrphans(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	// The database pool's goroutines outlive the deferred check.
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	id, err := f.docs.Create(ctx, storage.NewFile{Filename: "orphan.txt", Content: []byte("x")})
	require.NoError(t, err)

	sweeper := service.NewSweeper(f.cleanup, 10*time.Millisecond, 0)
	sweeper.Start(ctx)

	assert.Eventually(t, func() bool {
		meta, err := f.docs.Metadata(ctx, id)
		return err == nil && meta == nil
	}, 2*time.Second, 10*time.Millisecond)

	sweeper.Stop()
	sweeper.Stop()
}

func TestSweeperStopsWithContext(t *testing.T) {
	f := newFixture(t)
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx, cancel := context.WithCancel(context.Background())

	sweeper := service.NewSweeper(f.cleanup, time.Hour, 1)
	sweeper.Start(ctx)
	cancel()
	sweeper.Stop()
}
