package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRejectsInvalidSchedule(t *testing.T) {
	t.Parallel()

	s := New()
	err := s.Add("drain", "not a schedule", func(context.Context) error { return nil })
	assert.Error(t, err)

	err = s.Add("drain", "*/5 * * * * *", func(context.Context) error { return nil })
	assert.Error(t, err, "six-field schedules are not accepted")
}

func TestAddAcceptsStandardCrontab(t *testing.T) {
	t.Parallel()

	s := New()
	require.NoError(t, s.Add("drain", "* * * * *", func(context.Context) error { return nil }))
	require.NoError(t, s.Add("sweep", "0 * * * *", func(context.Context) error { return nil }))
	require.NoError(t, s.Add("prune", "30 3 * * *", func(context.Context) error { return nil }))
}

func TestStopWaitsForShutdown(t *testing.T) {
	t.Parallel()

	s := New()
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
