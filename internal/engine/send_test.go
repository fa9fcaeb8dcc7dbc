package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) commitEdit(t *testing.T, content string) {
	t.Helper()
	f.engine.SetContent(content)
	require.True(t, f.engine.Check(context.Background(), CheckOptions{Force: true, SuppressSend: true}))
}

func TestSendSkipsWhenAlreadySent(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.engine.Send(context.Background(), SendOptions{}))
	assert.Zero(t, f.sender.callCount())
}

func TestSendDeliversStoredSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.grades.byPoints[15] = "good"
	f.engine.SetContent("the corrected essay")
	f.engine.SetPoints(15)
	require.True(t, f.engine.Check(ctx, CheckOptions{Force: true, SuppressSend: true}))

	assert.True(t, f.engine.Send(ctx, SendOptions{}))

	require.Equal(t, 1, f.sender.callCount())
	sent := f.sender.lastCall()
	assert.Equal(t, "the corrected essay", sent.Text)
	assert.Equal(t, 15.0, sent.Points)
	assert.Equal(t, "good", sent.GradeKey)
	assert.False(t, sent.IsAuthorized)

	assert.True(t, f.engine.IsSent())
	v, _ := f.storage.get(keyIsSent)
	assert.Equal(t, "true", v)
}

func TestSendFailureStaysUnsentAndAdvancesTry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.commitEdit(t, "unreachable backend")
	f.sender.setErr(errors.New("connection refused"))

	assert.False(t, f.engine.Send(ctx, SendOptions{}))
	assert.False(t, f.engine.IsSent())
	assert.Equal(t, f.clock.Now(), f.engine.Status().LastSendingTry)
	v, _ := f.storage.get(keyIsSent)
	assert.Equal(t, "false", v)
}

func TestSendRateLimitAfterFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.commitEdit(t, "retry cadence")
	f.sender.setErr(errors.New("connection refused"))
	require.False(t, f.engine.Send(ctx, SendOptions{}))

	// Within the window nothing is attempted, even after the backend
	// recovers.
	f.sender.setErr(nil)
	f.clock.Advance(2 * time.Second)
	assert.False(t, f.engine.Send(ctx, SendOptions{}))
	assert.Equal(t, 1, f.sender.callCount())

	f.clock.Advance(4 * time.Second)
	assert.True(t, f.engine.Send(ctx, SendOptions{}))
	assert.Equal(t, 2, f.sender.callCount())
	assert.True(t, f.engine.IsSent())
}

func TestSendForceSkipsRateLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.commitEdit(t, "urgent")
	f.sender.setErr(errors.New("connection refused"))
	require.False(t, f.engine.Send(ctx, SendOptions{}))

	f.sender.setErr(nil)
	assert.True(t, f.engine.Send(ctx, SendOptions{Force: true}))
}

func TestSendGuardDropsConcurrentAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.commitEdit(t, "slow backend")
	f.sender.release = make(chan struct{})

	first := make(chan bool, 1)
	go func() { first <- f.engine.Send(ctx, SendOptions{Force: true}) }()
	<-f.sender.called

	// The overlapping attempt is dropped, not queued.
	assert.False(t, f.engine.Send(ctx, SendOptions{Force: true}))
	assert.Equal(t, 1, f.sender.callCount())

	close(f.sender.release)
	assert.True(t, <-first)
}

func TestSendFlagPersistFailureLogsOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.commitEdit(t, "flaky disk")
	f.storage.failOn = keyIsSent

	assert.True(t, f.engine.Send(ctx, SendOptions{}))
	assert.True(t, f.engine.IsSent())
}

func TestAuthorizeCommitsAndSends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.SetContent("final verdict")
	f.engine.SetPoints(10)
	f.grades.byPoints[10] = "pass"

	require.NoError(t, f.engine.Authorize(ctx))

	st := f.engine.Status()
	assert.Equal(t, StateAuthorized, st.State)
	assert.True(t, st.StoredIsAuthorized)
	assert.True(t, st.IsSent)
	require.Equal(t, 1, f.sender.callCount())
	assert.True(t, f.sender.lastCall().IsAuthorized)

	v, _ := f.storage.get(keyStoredIsAuthorized)
	assert.Equal(t, "true", v)
}

func TestAuthorizeTwiceReturnsErrAuthorized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.SetContent("final verdict")
	require.NoError(t, f.engine.Authorize(ctx))

	assert.ErrorIs(t, f.engine.Authorize(ctx), ErrAuthorized)
	assert.Equal(t, 1, f.sender.callCount())
}

func TestAuthorizeAfterDeadlineFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.SetContent("missed it")
	f.deadline.reached = true

	assert.ErrorIs(t, f.engine.Authorize(ctx), ErrDeadlineReached)
	st := f.engine.Status()
	assert.False(t, st.StoredIsAuthorized)
	assert.Equal(t, StateClean, st.State)
	assert.Zero(t, f.sender.callCount())
}

func TestAuthorizeWaitsOutCheckGuardCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.SetContent("final verdict")
	f.deadline.polled = make(chan struct{}, 1)

	// Another pass holds the check guard while Authorize starts.
	require.True(t, f.engine.checkGuard.CompareAndSwap(false, true))

	done := make(chan error, 1)
	go func() { done <- f.engine.Authorize(ctx) }()

	// Authorize consulted the deadline after a dropped pass, so it is in
	// the retry loop. Releasing the guard must let it commit.
	select {
	case <-f.deadline.polled:
	case <-time.After(2 * time.Second):
		t.Fatal("authorize never reached the retry loop")
	}
	f.engine.checkGuard.Store(false)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("authorize did not finish after the guard was released")
	}
	st := f.engine.Status()
	assert.True(t, st.StoredIsAuthorized)
	assert.True(t, st.IsSent)
}

func TestAuthorizeSendFailureIsNotAnError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.SetContent("final verdict")
	f.sender.setErr(errors.New("backend down"))

	require.NoError(t, f.engine.Authorize(ctx))
	st := f.engine.Status()
	assert.True(t, st.StoredIsAuthorized)
	assert.False(t, st.IsSent)
}

func TestAuthorizeRetriesOutstandingTransferOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.SetContent("final verdict")
	f.sender.setErr(errors.New("backend down"))
	require.NoError(t, f.engine.Authorize(ctx))
	require.False(t, f.engine.IsSent())

	f.sender.setErr(nil)
	require.NoError(t, f.engine.Authorize(ctx))
	assert.True(t, f.engine.IsSent())
	assert.Equal(t, 2, f.sender.callCount())
}
