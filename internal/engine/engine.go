package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Default cadence of the two periodic operations.
const (
	DefaultCheckInterval = 1 * time.Second
	DefaultSendInterval  = 5 * time.Second
)

// Storage keys within the summary namespace.
const (
	keyStoredContent      = "storedContent"
	keyStoredPoints       = "storedPoints"
	keyStoredGradeKey     = "storedGradeKey"
	keyStoredIsAuthorized = "storedIsAuthorized"
	keyIsSent             = "isSent"
	keyLastStored         = "lastStored"
)

// ErrAuthorized reports an operation on a document that is already in the
// terminal authorized state.
var ErrAuthorized = errors.New("summary is already authorized")

// ErrDeadlineReached reports that the correction window has closed and no
// further edits can be committed.
var ErrDeadlineReached = errors.New("correction end reached")

// Summary is the document payload exchanged with the sender and the
// bootstrap loaders.
type Summary struct {
	Text         string
	Points       float64
	GradeKey     string
	IsAuthorized bool
}

// State classifies the document.
type State int

const (
	// StateClean means the stored snapshot is acknowledged by the backend
	// and matches the current snapshot.
	StateClean State = iota
	// StateDirtyLocal means the stored snapshot is durable locally but not
	// yet confirmed remotely.
	StateDirtyLocal
	// StateAuthorized is terminal; no further edits are accepted.
	StateAuthorized
)

// String returns a readable name for logging and status output.
func (s State) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateDirtyLocal:
		return "dirty"
	case StateAuthorized:
		return "authorized"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Storage is the slice of the durable local store the engine needs.
// Implemented by *store.Namespace.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Clear(ctx context.Context) error
}

// Sender pushes the stored snapshot to the remote authority.
// Implemented by the session's adapter around the api client.
type Sender interface {
	SaveSummary(ctx context.Context, summary Summary) error
}

// DeadlineSource reports whether the correction window has closed.
// Implemented by *refdata.TaskStore.
type DeadlineSource interface {
	CorrectionEndReached(now time.Time) bool
}

// GradeSource derives a grade key from points.
// Implemented by *refdata.LevelsStore.
type GradeSource interface {
	GradeKeyFor(points float64) string
}

// PointsLimit bounds the points that can be given.
// Implemented by *refdata.SettingsStore.
type PointsLimit interface {
	MaxPoints() float64
}

// Engine owns the editable summary and its synchronization state.
//
// The editing surface mutates only the current snapshot (SetContent,
// SetPoints, Authorize); the stored snapshot is mutated only by the
// dirty-check. A mutex serializes snapshot access; the per-operation
// compare-and-swap guards keep at most one dirty-check and one send in
// flight.
type Engine struct {
	log      *slog.Logger
	storage  Storage
	sender   Sender
	deadline DeadlineSource
	grades   GradeSource
	limits   PointsLimit
	now      func() time.Time

	checkInterval time.Duration
	sendInterval  time.Duration

	checkGuard atomic.Bool
	sendGuard  atomic.Bool

	mu                  sync.Mutex
	currentContent      string
	currentPoints       float64
	currentGradeKey     string
	currentIsAuthorized bool
	storedContent       string
	storedPoints        float64
	storedGradeKey      string
	storedIsAuthorized  bool
	isSent              bool
	lastCheck           time.Time
	lastStored          time.Time
	lastSendingTry      time.Time
	lastCommittedPoints float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithCheckInterval sets the dirty-check rate limit interval.
func WithCheckInterval(d time.Duration) Option {
	return func(e *Engine) { e.checkInterval = d }
}

// WithSendInterval sets the send rate limit interval.
func WithSendInterval(d time.Duration) Option {
	return func(e *Engine) { e.sendInterval = d }
}

// WithNow overrides the wall clock source. Used by tests and the harness.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine over the given collaborators.
// A session has exactly one engine instance; the guards live for its
// lifetime and are never reset.
func New(storage Storage, sender Sender, deadline DeadlineSource, grades GradeSource, limits PointsLimit, log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		log:           log,
		storage:       storage,
		sender:        sender,
		deadline:      deadline,
		grades:        grades,
		limits:        limits,
		now:           time.Now,
		checkInterval: DefaultCheckInterval,
		sendInterval:  DefaultSendInterval,
		isSent:        true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetContent updates the live content binding.
func (e *Engine) SetContent(content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentContent = content
}

// SetPoints updates the live points binding.
func (e *Engine) SetPoints(points float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentPoints = points
}

// State returns the current document state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.storedIsAuthorized:
		return StateAuthorized
	case !e.isSent:
		return StateDirtyLocal
	default:
		return StateClean
	}
}

// IsSent reports whether the stored snapshot is acknowledged remotely.
func (e *Engine) IsSent() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isSent
}

// Status is a point-in-time view of the engine for status output and the
// scenario harness.
type Status struct {
	State              State
	IsSent             bool
	StoredContent      string
	StoredPoints       float64
	StoredGradeKey     string
	StoredIsAuthorized bool
	CurrentContent     string
	CurrentPoints      float64
	LastStored         time.Time
	LastCheck          time.Time
	LastSendingTry     time.Time
}

// Status returns a consistent snapshot of the engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := StateClean
	switch {
	case e.storedIsAuthorized:
		state = StateAuthorized
	case !e.isSent:
		state = StateDirtyLocal
	}

	return Status{
		State:              state,
		IsSent:             e.isSent,
		StoredContent:      e.storedContent,
		StoredPoints:       e.storedPoints,
		StoredGradeKey:     e.storedGradeKey,
		StoredIsAuthorized: e.storedIsAuthorized,
		CurrentContent:     e.currentContent,
		CurrentPoints:      e.currentPoints,
		LastStored:         e.lastStored,
		LastCheck:          e.lastCheck,
		LastSendingTry:     e.lastSendingTry,
	}
}

// LoadFromData replaces the document with a backend payload and persists
// it as a clean, sent snapshot. Called when the session boots from the
// backend.
func (e *Engine) LoadFromData(ctx context.Context, summary Summary) error {
	text := norm.NFC.String(summary.Text)

	if err := e.storage.Clear(ctx); err != nil {
		return fmt.Errorf("load summary: %w", err)
	}
	fields := map[string]string{
		keyStoredContent:      text,
		keyStoredPoints:       formatPoints(summary.Points),
		keyStoredGradeKey:     summary.GradeKey,
		keyStoredIsAuthorized: strconv.FormatBool(summary.IsAuthorized),
		keyIsSent:             "true",
		keyLastStored:         strconv.FormatInt(e.now().UnixMilli(), 10),
	}
	for key, value := range fields {
		if err := e.storage.Set(ctx, key, value); err != nil {
			return fmt.Errorf("load summary: %w", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentContent = text
	e.currentPoints = summary.Points
	e.currentGradeKey = summary.GradeKey
	e.currentIsAuthorized = summary.IsAuthorized
	e.storedContent = text
	e.storedPoints = summary.Points
	e.storedGradeKey = summary.GradeKey
	e.storedIsAuthorized = summary.IsAuthorized
	e.isSent = true
	e.lastStored = e.now()
	e.lastCommittedPoints = summary.Points
	return nil
}

// LoadFromStorage resumes the document from the local store after a
// restart. Missing keys load as the empty start state with isSent=true.
func (e *Engine) LoadFromStorage(ctx context.Context) error {
	content, _, err := e.storage.Get(ctx, keyStoredContent)
	if err != nil {
		return fmt.Errorf("resume summary: %w", err)
	}
	rawPoints, ok, err := e.storage.Get(ctx, keyStoredPoints)
	if err != nil {
		return fmt.Errorf("resume summary: %w", err)
	}
	points := 0.0
	if ok {
		points, err = strconv.ParseFloat(rawPoints, 64)
		if err != nil {
			return fmt.Errorf("resume summary: parse points %q: %w", rawPoints, err)
		}
	}
	gradeKey, _, err := e.storage.Get(ctx, keyStoredGradeKey)
	if err != nil {
		return fmt.Errorf("resume summary: %w", err)
	}
	authorized, err := e.loadBool(ctx, keyStoredIsAuthorized, false)
	if err != nil {
		return fmt.Errorf("resume summary: %w", err)
	}
	isSent, err := e.loadBool(ctx, keyIsSent, true)
	if err != nil {
		return fmt.Errorf("resume summary: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.storedContent = content
	e.storedPoints = points
	e.storedGradeKey = gradeKey
	e.storedIsAuthorized = authorized
	e.isSent = isSent
	e.currentContent = content
	e.currentPoints = points
	e.currentGradeKey = gradeKey
	e.currentIsAuthorized = authorized
	e.lastCommittedPoints = points
	return nil
}

// ClearStorage wipes the summary namespace and resets the document to the
// empty start state. Used on context switch.
func (e *Engine) ClearStorage(ctx context.Context) error {
	if err := e.storage.Clear(ctx); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentContent = ""
	e.currentPoints = 0
	e.currentGradeKey = ""
	e.currentIsAuthorized = false
	e.storedContent = ""
	e.storedPoints = 0
	e.storedGradeKey = ""
	e.storedIsAuthorized = false
	e.isSent = true
	e.lastStored = time.Time{}
	e.lastCheck = time.Time{}
	e.lastSendingTry = time.Time{}
	e.lastCommittedPoints = 0
	return nil
}

func (e *Engine) loadBool(ctx context.Context, key string, fallback bool) (bool, error) {
	raw, ok, err := e.storage.Get(ctx, key)
	if err != nil || !ok {
		return fallback, err
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback, nil
	}
	return value, nil
}

// HasUnsentSaving reports whether the given summary storage holds edits
// that were never acknowledged by the backend. Consulted by the identity
// resolver before any destructive bootstrap load.
func HasUnsentSaving(ctx context.Context, storage Storage) (bool, error) {
	raw, ok, err := storage.Get(ctx, keyIsSent)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	isSent, err := strconv.ParseBool(raw)
	if err != nil {
		return false, nil
	}
	return !isSent, nil
}

func formatPoints(points float64) string {
	return strconv.FormatFloat(points, 'f', -1, 64)
}
