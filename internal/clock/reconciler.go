// Package clock maintains the offset between the backend clock and the
// local clock.
//
// Local clocks are untrusted; every time-bounded decision (for example
// "has the correction window closed") must be computed against server
// time. The offset is refreshed from the server-time header of every
// remote response and persisted, so a reloaded session starts with the
// last known offset instead of a purely local guess.
package clock

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// offsetKey is the storage key for the persisted offset (milliseconds).
const offsetKey = "timeOffset"

// Storage is the slice of the durable local store the reconciler needs.
// Implemented by *store.Namespace.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Reconciler converts between client time and server time.
//
// The offset is clientTimeAtReceipt - serverTime*1000, in milliseconds.
// It is monotonically refreshed on every successful remote call and never
// computed purely locally.
type Reconciler struct {
	storage Storage
	log     *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	offsetMs int64
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithNow overrides the wall clock source. Used by tests.
func WithNow(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// New creates a reconciler persisting its offset to the given storage.
func New(storage Storage, log *slog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		storage: storage,
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load restores the persisted offset. A missing or unparseable value
// leaves the offset at zero.
func (r *Reconciler) Load(ctx context.Context) error {
	raw, ok, err := r.storage.Get(ctx, offsetKey)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	offset, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		r.log.Warn("ignoring unparseable time offset", "value", raw)
		return nil
	}
	r.mu.Lock()
	r.offsetMs = offset
	r.mu.Unlock()
	return nil
}

// Observe records a server timestamp (unix seconds) taken from a response
// header and refreshes the persisted offset.
func (r *Reconciler) Observe(ctx context.Context, serverSeconds int64) {
	offset := r.now().UnixMilli() - serverSeconds*1000

	r.mu.Lock()
	r.offsetMs = offset
	r.mu.Unlock()

	if err := r.storage.Set(ctx, offsetKey, strconv.FormatInt(offset, 10)); err != nil {
		// the in-memory offset stays authoritative for this session
		r.log.Error("failed to persist time offset", "error", err)
	}
}

// ServerTime returns the server unix timestamp (seconds) corresponding to
// the given client time.
func (r *Reconciler) ServerTime(t time.Time) int64 {
	r.mu.Lock()
	offset := r.offsetMs
	r.mu.Unlock()

	ms := t.UnixMilli() - offset
	// floor division, correct for times before the epoch too
	if ms < 0 && ms%1000 != 0 {
		return ms/1000 - 1
	}
	return ms / 1000
}

// Offset returns the current offset in milliseconds.
func (r *Reconciler) Offset() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offsetMs
}
