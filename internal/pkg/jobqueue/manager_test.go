package jobqueue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_GetQueue(t *testing.T) {
	q := NewQueueWithClient(nil, 1)
	manager := NewManager(q)

	assert.Same(t, q, manager.GetQueue())
	assert.False(t, manager.IsRunning())
}

func TestManager_ScheduleRejectsInvalidSpec(t *testing.T) {
	manager := NewManager(NewQueueWithClient(nil, 1))

	assert.NoError(t, manager.Schedule("@every 30m", JobTypeSweepStaleProvisioning, nil))
	assert.NoError(t, manager.Schedule("@daily", JobTypeCheckExpiringSubscriptions, nil))
	assert.NoError(t, manager.Schedule("@weekly", JobTypePrunePaymentEvents, nil))
	assert.Error(t, manager.Schedule("every thirty minutes", JobTypeSweepStaleProvisioning, nil))
	assert.Len(t, manager.entries, 3)
}

func TestManager_StopWithoutStart(t *testing.T) {
	manager := NewManager(NewQueueWithClient(nil, 1))

	assert.False(t, manager.IsRunning())
	manager.Stop()
	assert.False(t, manager.IsRunning())
}

func TestManager_StartStop(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	manager := NewManager(q)

	manager.Start()
	assert.True(t, manager.IsRunning())
	assert.True(t, q.IsRunning())

	// Starting twice is a no-op.
	manager.Start()

	manager.Stop()
	assert.False(t, manager.IsRunning())
	assert.False(t, q.IsRunning())
}

func TestManager_FireDispatchesScheduledJob(t *testing.T) {
	q, _ := newTestQueue(t, 1)
	manager := NewManager(q)

	var calls int32
	q.RegisterHandler(JobTypePrunePaymentEvents, func(ctx context.Context, job *Job) error {
		atomic.AddInt32(&calls, 1)
		assert.NotEmpty(t, job.Payload["scheduled_at"])
		return nil
	})

	manager.fire(scheduledJob{spec: "@weekly", jobType: JobTypePrunePaymentEvents})

	size, err := q.GetQueueSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	q.Start()
	defer q.Stop()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, 5*time.Second, 20*time.Millisecond)
}
