package engine

import (
	"context"
	"runtime"
)

// SendOptions controls a single send attempt.
type SendOptions struct {
	// Force skips both the already-sent shortcut and the rate limit.
	Force bool
}

// Send pushes the stored snapshot to the backend when it is unsent.
// Returns whether the backend acknowledged a transfer during this call.
//
// Failures are swallowed after logging: the stored snapshot stays marked
// unsent and the next eligible pass retries at the regular cadence.
// lastSendingTry advances on every real attempt, success or not.
func (e *Engine) Send(ctx context.Context, opts SendOptions) bool {
	now := e.now()

	e.mu.Lock()
	if !opts.Force {
		if e.isSent {
			e.mu.Unlock()
			return false
		}
		if !e.lastSendingTry.IsZero() && now.Sub(e.lastSendingTry) < e.sendInterval {
			e.mu.Unlock()
			return false
		}
	}
	e.mu.Unlock()

	if !e.sendGuard.CompareAndSwap(false, true) {
		return false
	}
	defer e.sendGuard.Store(false)

	e.mu.Lock()
	if e.isSent && !opts.Force {
		e.mu.Unlock()
		return false
	}
	summary := Summary{
		Text:         e.storedContent,
		Points:       e.storedPoints,
		GradeKey:     e.storedGradeKey,
		IsAuthorized: e.storedIsAuthorized,
	}
	e.lastSendingTry = now
	e.mu.Unlock()

	if err := e.sender.SaveSummary(ctx, summary); err != nil {
		e.log.Warn("summary not sent", "error", err)
		return false
	}

	e.mu.Lock()
	e.isSent = true
	e.mu.Unlock()

	if err := e.storage.Set(ctx, keyIsSent, "true"); err != nil {
		e.log.Error("sent flag not persisted", "error", err)
	}

	e.log.Debug("summary sent", "authorized", summary.IsAuthorized)
	return true
}

// Authorize finalizes the correction. It raises the authorization flag on
// the live document, forces a dirty-check commit and a send, and leaves
// the document in the terminal state. If the stored snapshot is already
// authorized and acknowledged there is nothing to do.
//
// A send failure is not an error here; the snapshot stays unsent and the
// periodic loop keeps retrying. Callers that need confirmation check
// IsSent afterwards.
func (e *Engine) Authorize(ctx context.Context) error {
	e.mu.Lock()
	if e.storedIsAuthorized && e.isSent {
		e.mu.Unlock()
		return ErrAuthorized
	}
	if e.storedIsAuthorized {
		// Already committed locally, only the transfer is outstanding.
		e.mu.Unlock()
		e.Send(ctx, SendOptions{Force: true})
		return nil
	}
	e.currentIsAuthorized = true
	e.mu.Unlock()

	// A concurrently ticking pass can hold the check guard for a moment.
	// Only the deadline gate refuses the transition; a guard drop retries.
	for !e.Check(ctx, CheckOptions{Force: true, SuppressSend: true}) {
		e.mu.Lock()
		committed := e.storedIsAuthorized
		e.mu.Unlock()
		if committed {
			break
		}
		if e.deadline.CorrectionEndReached(e.now()) {
			e.mu.Lock()
			e.currentIsAuthorized = false
			e.mu.Unlock()
			return ErrDeadlineReached
		}
		runtime.Gosched()
	}

	e.Send(ctx, SendOptions{Force: true})
	return nil
}
