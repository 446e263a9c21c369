package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Init(ctx, Status{
		JobID:     "job-1",
		Status:    StatusQueued,
		StartedAt: time.Now().UTC(),
	}))

	require.NoError(t, s.Update(ctx, "job-1", func(st *Status) {
		st.Status = StatusRunning
		st.Stage = "scoring"
		st.Progress = 0.3
	}))

	st, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, st.Status)
	assert.Equal(t, "scoring", st.Stage)
	assert.Equal(t, 0.3, st.Progress)

	// returned status is a copy, mutating it must not leak back
	st.Status = StatusFailed
	again, err := s.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, again.Status)
}

func TestMemoryStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Get(ctx, "missing")
	var nf *ErrNotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.ID)

	err = s.Update(ctx, "missing", func(*Status) {})
	assert.ErrorAs(t, err, &nf)
}
