package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/graderist/corrsync/internal/clock"
	"github.com/graderist/corrsync/internal/engine"
	"github.com/graderist/corrsync/internal/identity"
	"github.com/graderist/corrsync/internal/refdata"
	"github.com/graderist/corrsync/internal/store"
)

// LocalStatus is the locally observable session state. It is assembled
// from the store alone, without contacting the backend.
type LocalStatus struct {
	BackendURL      string  `json:"backend_url"`
	UserKey         string  `json:"user_key"`
	EnvironmentKey  string  `json:"environment_key"`
	ItemKey         string  `json:"item_key"`
	HasDataToken    bool    `json:"has_data_token"`
	HasFileToken    bool    `json:"has_file_token"`
	TaskTitle       string  `json:"task_title"`
	State           string  `json:"state"`
	HasUnsentSaving bool    `json:"has_unsent_saving"`
	StoredPoints    float64 `json:"stored_points"`
	StoredGradeKey  string  `json:"stored_grade_key"`
	ClockOffsetMs   int64   `json:"clock_offset_ms"`

	// RemainingSeconds is the time left until the correction closes, in
	// server time. Nil when the task has no deadline or is not loaded.
	RemainingSeconds *int64 `json:"remaining_seconds,omitempty"`
}

// ReadLocalStatus inspects the persisted session state of a store.
func ReadLocalStatus(ctx context.Context, st *store.Store, log *slog.Logger) (*LocalStatus, error) {
	id, err := identity.Load(ctx, st.Namespace(nsIdentity))
	if err != nil {
		return nil, err
	}

	clk := clock.New(st.Namespace(nsClock), log)
	if err := clk.Load(ctx); err != nil {
		return nil, err
	}

	task := refdata.NewTaskStore(st.Namespace(nsTask), clk)
	if err := task.LoadFromStorage(ctx); err != nil {
		return nil, err
	}

	summaryNS := st.Namespace(nsSummary)
	unsent, err := engine.HasUnsentSaving(ctx, summaryNS)
	if err != nil {
		return nil, err
	}

	eng := engine.New(summaryNS, nil, task, nil, nil, log)
	if err := eng.LoadFromStorage(ctx); err != nil {
		return nil, err
	}
	es := eng.Status()

	var remaining *int64
	if secs, ok := task.RemainingSeconds(time.Now()); ok {
		remaining = &secs
	}

	return &LocalStatus{
		BackendURL:       id.BackendURL,
		UserKey:          id.UserKey,
		EnvironmentKey:   id.EnvironmentKey,
		ItemKey:          id.ItemKey,
		HasDataToken:     id.DataToken != "",
		HasFileToken:     id.FileToken != "",
		TaskTitle:        task.Data().Title,
		State:            es.State.String(),
		HasUnsentSaving:  unsent,
		StoredPoints:     es.StoredPoints,
		StoredGradeKey:   es.StoredGradeKey,
		ClockOffsetMs:    clk.Offset(),
		RemainingSeconds: remaining,
	}, nil
}
