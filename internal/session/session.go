// Package session assembles a correction session: the durable store, the
// clock reconciler, the backend client, the reference data stores and the
// summary engine, bootstrapped through the identity resolution that
// decides whether the session resumes local state or reloads from the
// backend.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/graderist/corrsync/internal/api"
	"github.com/graderist/corrsync/internal/clock"
	"github.com/graderist/corrsync/internal/engine"
	"github.com/graderist/corrsync/internal/identity"
	"github.com/graderist/corrsync/internal/refdata"
	"github.com/graderist/corrsync/internal/store"
)

// Namespaces within the local store. One namespace per concern; a context
// switch wipes them all, an item switch wipes only the item-scoped ones.
const (
	nsIdentity   = "api"
	nsTask       = "task"
	nsSettings   = "settings"
	nsLevels     = "levels"
	nsItems      = "items"
	nsCorrectors = "correctors"
	nsEssay      = "essay"
	nsResources  = "resources"
	nsSummary    = "summary"
	nsClock      = "clock"
)

// ErrInitFailed reports that the session could not be established. The
// identity is incomplete or the backend rejected the bootstrap load.
var ErrInitFailed = errors.New("session initialization failed")

// ErrItemLoadFailed reports that the correction item could not be loaded.
var ErrItemLoadFailed = errors.New("item load failed")

// ErrConfirmationRequired reports that booting would discard local edits
// that were never acknowledged by the backend, and the caller has not
// confirmed the loss.
var ErrConfirmationRequired = errors.New("unsent local edits require confirmation")

// Config configures a session.
type Config struct {
	// Identity holds the observed launch parameters. Empty fields fall
	// back to the values persisted by the previous session.
	Identity identity.Identity

	// ConfirmReplace allows a context change to discard unsent local
	// edits. ConfirmItemReplace allows the same for an item change.
	ConfirmReplace     bool
	ConfirmItemReplace bool

	CheckInterval time.Duration
	SendInterval  time.Duration
	Timeout       time.Duration

	// RequestIDs is passed through to the backend client. Nil selects
	// UUIDv7 request ids.
	RequestIDs api.RequestIDGenerator
}

// Session is one correction session over a single item.
type Session struct {
	log   *slog.Logger
	store *store.Store
	cfg   Config

	identityNS *store.Namespace
	summaryNS  *store.Namespace

	identity identity.Identity
	clock    *clock.Reconciler
	client   *api.Client

	Task       *refdata.TaskStore
	Settings   *refdata.SettingsStore
	Levels     *refdata.LevelsStore
	Items      *refdata.ItemsStore
	Correctors *refdata.CorrectorsStore
	Essay      *refdata.EssayStore
	Resources  *refdata.ResourcesStore
	Engine     *engine.Engine
}

// New creates a session over an open store. Bootstrap must run before the
// engine is used.
func New(st *store.Store, cfg Config, log *slog.Logger) *Session {
	s := &Session{
		log:        log,
		store:      st,
		cfg:        cfg,
		identityNS: st.Namespace(nsIdentity),
		summaryNS:  st.Namespace(nsSummary),
	}
	s.clock = clock.New(st.Namespace(nsClock), log)
	s.Task = refdata.NewTaskStore(st.Namespace(nsTask), s.clock)
	s.Settings = refdata.NewSettingsStore(st.Namespace(nsSettings))
	s.Levels = refdata.NewLevelsStore(st.Namespace(nsLevels))
	s.Items = refdata.NewItemsStore(st.Namespace(nsItems))
	s.Correctors = refdata.NewCorrectorsStore(st.Namespace(nsCorrectors))
	s.Essay = refdata.NewEssayStore(st.Namespace(nsEssay))
	s.Resources = refdata.NewResourcesStore(st.Namespace(nsResources))

	engineOpts := []engine.Option{}
	if cfg.CheckInterval > 0 {
		engineOpts = append(engineOpts, engine.WithCheckInterval(cfg.CheckInterval))
	}
	if cfg.SendInterval > 0 {
		engineOpts = append(engineOpts, engine.WithSendInterval(cfg.SendInterval))
	}
	s.Engine = engine.New(s.summaryNS, &summarySender{s}, s.Task, s.Levels, s.Settings, log, engineOpts...)
	return s
}

// Identity returns the resolved session identity.
func (s *Session) Identity() identity.Identity {
	return s.identity
}

// Client returns the backend client. Valid after Bootstrap.
func (s *Session) Client() *api.Client {
	return s.client
}

// Clock returns the clock reconciler.
func (s *Session) Clock() *clock.Reconciler {
	return s.clock
}

// Bootstrap resolves the session identity, decides the data source and
// loads the full working state.
//
// A context change wipes the whole store and loads everything from the
// backend. An item change keeps the cached context data and reloads only
// the item scope. An unchanged identity resumes from local storage when
// unsent edits exist, otherwise the document reloads from the backend
// over the cached reference data. Either kind of change refuses to
// discard unsent edits unless confirmed.
func (s *Session) Bootstrap(ctx context.Context) error {
	stored, err := identity.Load(ctx, s.identityNS)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}
	merged, change := identity.Merge(stored, s.cfg.Identity)
	if err := merged.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}
	s.log.Info("session identity resolved",
		"change", change.String(),
		"user", merged.UserKey,
		"environment", merged.EnvironmentKey,
		"item", merged.ItemKey)

	hasUnsent, err := engine.HasUnsentSaving(ctx, s.summaryNS)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}

	if err := s.clock.Load(ctx); err != nil {
		s.log.Warn("clock offset not restored", "error", err)
	}

	s.client, err = api.New(api.Config{
		BackendURL:     merged.BackendURL,
		UserKey:        merged.UserKey,
		EnvironmentKey: merged.EnvironmentKey,
		DataToken:      merged.DataToken,
		FileToken:      merged.FileToken,
		Timeout:        s.cfg.Timeout,
		RequestIDs:     s.cfg.RequestIDs,
	}, s.clock, &tokenSink{s.identityNS}, s.log)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}

	switch change {
	case identity.ChangeContext:
		if hasUnsent && !s.cfg.ConfirmReplace {
			return fmt.Errorf("%w: a different context is starting", ErrConfirmationRequired)
		}
		if err := s.store.ClearAll(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrInitFailed, err)
		}
		if err := s.loadDataFromBackend(ctx); err != nil {
			return err
		}
		if err := s.loadItemFromBackend(ctx, &merged); err != nil {
			return err
		}

	case identity.ChangeItem:
		if hasUnsent && !s.cfg.ConfirmItemReplace {
			return fmt.Errorf("%w: a different item is starting", ErrConfirmationRequired)
		}
		// The context is unchanged, its reference data stays cached.
		if err := s.loadDataFromStorage(ctx); err != nil {
			return err
		}
		if err := s.clearItemScope(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrItemLoadFailed, err)
		}
		if err := s.loadItemFromBackend(ctx, &merged); err != nil {
			return err
		}

	default:
		if hasUnsent {
			s.log.Info("resuming with unsent local edits")
			if err := s.loadDataFromStorage(ctx); err != nil {
				return err
			}
			if err := s.loadItemFromStorage(ctx); err != nil {
				return err
			}
		} else {
			// Cached reference data, fresh document from the backend.
			if err := s.loadDataFromStorage(ctx); err != nil {
				return err
			}
			if err := s.loadItemFromBackend(ctx, &merged); err != nil {
				return err
			}
		}
	}

	// Tokens may have rotated during the bootstrap calls.
	if s.client != nil {
		merged.DataToken, merged.FileToken = s.client.Tokens()
	}
	if err := identity.Save(ctx, s.identityNS, merged); err != nil {
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}
	s.identity = merged
	return nil
}

// Run drives the periodic synchronization loop at the configured check
// cadence until the context is canceled or the summary reaches the
// terminal state fully acknowledged.
func (s *Session) Run(ctx context.Context) error {
	interval := s.cfg.CheckInterval
	if interval <= 0 {
		interval = engine.DefaultCheckInterval
	}
	return s.Engine.Run(ctx, engine.NewIntervalTicker(interval))
}

func (s *Session) loadDataFromBackend(ctx context.Context) error {
	payload, err := s.client.Data(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}
	loads := []error{
		s.Task.LoadFromData(ctx, payload.Task),
		s.Settings.LoadFromData(ctx, payload.Settings),
		s.Levels.LoadFromData(ctx, payload.Levels),
		s.Items.LoadFromData(ctx, payload.Items),
		s.Resources.LoadFromData(ctx, payload.Resources),
	}
	for _, err := range loads {
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInitFailed, err)
		}
	}
	return nil
}

func (s *Session) loadDataFromStorage(ctx context.Context) error {
	loads := []error{
		s.Task.LoadFromStorage(ctx),
		s.Settings.LoadFromStorage(ctx),
		s.Levels.LoadFromStorage(ctx),
		s.Items.LoadFromStorage(ctx),
		s.Resources.LoadFromStorage(ctx),
	}
	for _, err := range loads {
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInitFailed, err)
		}
	}
	if !s.Task.Loaded() {
		// Nothing persisted locally after all, the backend has to serve.
		return s.loadDataFromBackend(ctx)
	}
	return nil
}

// loadItemFromBackend resolves the item key, loads the item payload and
// seeds the summary engine with the remote summary. An empty item key
// falls back to the first item of the context.
func (s *Session) loadItemFromBackend(ctx context.Context, id *identity.Identity) error {
	itemKey := id.ItemKey
	if itemKey == "" {
		itemKey = s.Items.FirstKey()
	}
	if itemKey == "" {
		return fmt.Errorf("%w: the context has no correction items", ErrItemLoadFailed)
	}

	payload, err := s.client.Item(ctx, itemKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrItemLoadFailed, err)
	}
	if err := s.Essay.LoadFromData(ctx, payload.Essay); err != nil {
		return fmt.Errorf("%w: %v", ErrItemLoadFailed, err)
	}
	if err := s.Correctors.LoadFromData(ctx, payload.Correctors); err != nil {
		return fmt.Errorf("%w: %v", ErrItemLoadFailed, err)
	}
	if err := s.Engine.LoadFromData(ctx, engine.Summary{
		Text:         payload.Summary.Text,
		Points:       payload.Summary.Points,
		GradeKey:     payload.Summary.GradeKey,
		IsAuthorized: payload.Summary.IsAuthorized,
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrItemLoadFailed, err)
	}
	id.ItemKey = itemKey
	return nil
}

func (s *Session) loadItemFromStorage(ctx context.Context) error {
	if err := s.Essay.LoadFromStorage(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrItemLoadFailed, err)
	}
	if err := s.Correctors.LoadFromStorage(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrItemLoadFailed, err)
	}
	if err := s.Engine.LoadFromStorage(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrItemLoadFailed, err)
	}
	return nil
}

// clearItemScope wipes the namespaces bound to a single item.
func (s *Session) clearItemScope(ctx context.Context) error {
	if err := s.Essay.ClearStorage(ctx); err != nil {
		return err
	}
	if err := s.Correctors.ClearStorage(ctx); err != nil {
		return err
	}
	return s.Engine.ClearStorage(ctx)
}

// summarySender adapts the backend client to the engine's sender over the
// session's resolved item.
type summarySender struct {
	s *Session
}

func (a *summarySender) SaveSummary(ctx context.Context, summary engine.Summary) error {
	client := a.s.client
	itemKey := a.s.identity.ItemKey
	if client == nil || itemKey == "" {
		return fmt.Errorf("session is not bootstrapped")
	}
	return client.SaveSummary(ctx, itemKey, api.SummaryBody{
		Text:         summary.Text,
		Points:       summary.Points,
		GradeKey:     summary.GradeKey,
		IsAuthorized: summary.IsAuthorized,
	})
}

// tokenSink persists rotated tokens as soon as the client observes them.
type tokenSink struct {
	storage identity.Storage
}

func (t *tokenSink) SaveTokens(ctx context.Context, dataToken, fileToken string) error {
	return identity.SaveTokens(ctx, t.storage, dataToken, fileToken)
}
