package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Freeeeeet/pbl_scheduler/internal/service"
)

type countingSyncer struct {
	calls atomic.Int32
	err   error
}

func (s *countingSyncer) Sync(ctx context.Context, opts service.FacultySyncOptions) (*service.FacultySyncResult, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &service.FacultySyncResult{Fetched: 1, Created: 1}, nil
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	_, err := NewScheduler(&countingSyncer{}, "every day", zap.NewNop())
	require.Error(t, err)
}

func TestSchedulerDisabled(t *testing.T) {
	syncer := &countingSyncer{}
	s, err := NewScheduler(syncer, "", zap.NewNop())
	require.NoError(t, err)

	s.Start(context.Background())
	s.Stop()
	assert.Equal(t, int32(0), syncer.calls.Load())
}

func TestRunFacultySyncSwallowsErrors(t *testing.T) {
	syncer := &countingSyncer{err: errors.New("partner down")}
	s, err := NewScheduler(syncer, "0 3 * * *", zap.NewNop())
	require.NoError(t, err)

	s.RunFacultySync(context.Background())
	s.RunFacultySync(context.Background())
	assert.Equal(t, int32(2), syncer.calls.Load())
}
