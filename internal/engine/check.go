package engine

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/text/unicode/norm"
)

// CheckOptions controls a single dirty-check run.
type CheckOptions struct {
	// Force skips the rate limit against lastCheck.
	Force bool
	// SuppressSend prevents the asynchronous send trigger after a commit.
	// Used when the caller performs its own forced send.
	SuppressSend bool
}

// Check runs one dirty-check pass: snapshot the live bindings, compare
// against the stored snapshot, and commit a new stored snapshot when they
// differ. Returns whether a commit happened.
//
// A pass is skipped entirely when rate limited, when another pass holds
// the guard, or when the correction window has closed. Skipped passes do
// not advance lastCheck.
func (e *Engine) Check(ctx context.Context, opts CheckOptions) bool {
	now := e.now()

	e.mu.Lock()
	if !opts.Force && !e.lastCheck.IsZero() && now.Sub(e.lastCheck) < e.checkInterval {
		e.mu.Unlock()
		return false
	}
	e.mu.Unlock()

	if !e.checkGuard.CompareAndSwap(false, true) {
		return false
	}
	defer e.checkGuard.Store(false)

	if e.deadline.CorrectionEndReached(now) {
		e.log.Debug("dirty check skipped, correction end reached")
		return false
	}

	e.mu.Lock()
	if e.storedIsAuthorized {
		// Terminal state, edits no longer commit.
		e.mu.Unlock()
		return false
	}

	// Snapshot and derive. Points are clamped into [0, max] and the grade
	// key is recomputed only when points changed since the last commit.
	content := norm.NFC.String(e.currentContent)
	points := e.currentPoints
	if max := e.limits.MaxPoints(); points > max {
		points = max
	}
	if points < 0 {
		points = 0
	}
	gradeKey := e.currentGradeKey
	if points != e.lastCommittedPoints {
		gradeKey = e.grades.GradeKeyFor(points)
	}
	authorized := e.currentIsAuthorized

	dirty := content != e.storedContent ||
		points != e.storedPoints ||
		gradeKey != e.storedGradeKey ||
		authorized != e.storedIsAuthorized

	// The live binding takes the clamped value even when nothing commits,
	// so an out-of-range edit cannot survive a pass.
	e.currentPoints = points
	e.currentGradeKey = gradeKey

	e.lastCheck = now
	if !dirty {
		e.mu.Unlock()
		return false
	}

	e.storedContent = content
	e.storedPoints = points
	e.storedGradeKey = gradeKey
	e.storedIsAuthorized = authorized
	e.isSent = false
	e.lastStored = now
	e.lastCommittedPoints = points
	e.mu.Unlock()

	e.persistSnapshot(ctx, content, points, gradeKey, authorized, now)

	e.log.Debug("summary stored",
		"points", points,
		"grade_key", gradeKey,
		"authorized", authorized)

	if !opts.SuppressSend {
		go e.Send(context.WithoutCancel(ctx), SendOptions{})
	}
	return true
}

// persistSnapshot writes the committed snapshot to durable storage. The
// unsent flag goes down before the content so a crash between writes
// leaves the edits marked unsent rather than silently acknowledged.
// Persistence failures keep the in-memory commit and are only logged; the
// in-memory state stays authoritative for the running session.
func (e *Engine) persistSnapshot(ctx context.Context, content string, points float64, gradeKey string, authorized bool, now time.Time) {
	writes := []struct {
		key   string
		value string
	}{
		{keyIsSent, "false"},
		{keyStoredContent, content},
		{keyStoredPoints, formatPoints(points)},
		{keyStoredGradeKey, gradeKey},
		{keyStoredIsAuthorized, strconv.FormatBool(authorized)},
		{keyLastStored, strconv.FormatInt(now.UnixMilli(), 10)},
	}
	for _, w := range writes {
		if err := e.storage.Set(ctx, w.key, w.value); err != nil {
			e.log.Error("summary snapshot not persisted", "key", w.key, "error", err)
			return
		}
	}
}
