package idle_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micro-nova/musicbox-go/internal/idle"
)

func waitExpired(t *testing.T, s *idle.Supervisor, within time.Duration) {
	t.Helper()
	select {
	case <-s.Expired():
	case <-time.After(within):
		t.Fatalf("supervisor did not expire within %s", within)
	}
}

func TestExpiresExactlyOnce(t *testing.T) {
	var calls atomic.Int32
	s, err := idle.New(20*time.Millisecond, func() { calls.Add(1) })
	require.NoError(t, err)
	s.Start()

	waitExpired(t, s, time.Second)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, s.Fired())

	// Activity after firing does not re-arm
	s.NoteActivity()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNoteActivityPostponesExpiry(t *testing.T) {
	s, err := idle.New(60*time.Millisecond, nil)
	require.NoError(t, err)
	s.Start()

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		s.NoteActivity()
		time.Sleep(10 * time.Millisecond)
	}
	assert.False(t, s.Fired(), "steady activity must keep the device awake")

	waitExpired(t, s, time.Second)
}

func TestNotStartedNeverFires(t *testing.T) {
	s, err := idle.New(10*time.Millisecond, nil)
	require.NoError(t, err)
	s.NoteActivity()
	time.Sleep(40 * time.Millisecond)
	assert.False(t, s.Fired())
}

func TestStopCancels(t *testing.T) {
	s, err := idle.New(20*time.Millisecond, nil)
	require.NoError(t, err)
	s.Start()
	s.Stop()
	time.Sleep(60 * time.Millisecond)
	assert.False(t, s.Fired())
}

func TestInvalidDuration(t *testing.T) {
	_, err := idle.New(0, nil)
	assert.True(t, errors.Is(err, idle.ErrInvalidDuration))
	_, err = idle.New(-time.Second, nil)
	assert.True(t, errors.Is(err, idle.ErrInvalidDuration))
}

func TestNilSupervisorIsInert(t *testing.T) {
	var s *idle.Supervisor
	s.Start()
	s.NoteActivity()
	s.Stop()
	assert.False(t, s.Fired())
	assert.Nil(t, s.Expired())
	assert.Equal(t, time.Duration(0), s.Timeout())
}
