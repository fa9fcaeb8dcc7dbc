package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/graderist/corrsync/internal/clock"
	"github.com/graderist/corrsync/internal/engine"
	"github.com/graderist/corrsync/internal/refdata"
	"github.com/graderist/corrsync/internal/store"
	"github.com/graderist/corrsync/internal/testutil"
)

// scenarioStart is the fixed wall clock every scenario begins at.
var scenarioStart = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// TraceEvent records one executed step and the engine state after it.
type TraceEvent struct {
	Step      string        `json:"step"`
	Detail    string        `json:"detail,omitempty"`
	Committed *bool         `json:"committed,omitempty"`
	Sent      *bool         `json:"sent,omitempty"`
	Error     string        `json:"error,omitempty"`
	State     StateSnapshot `json:"state"`
}

// StateSnapshot is the engine state as it appears in the trace.
type StateSnapshot struct {
	State      string  `json:"state"`
	IsSent     bool    `json:"is_sent"`
	Text       string  `json:"text"`
	Points     float64 `json:"points"`
	GradeKey   string  `json:"grade_key"`
	Authorized bool    `json:"authorized"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// scriptedSender answers sends with the response scripted for the step.
type scriptedSender struct {
	fail  bool
	calls int
}

func (s *scriptedSender) SaveSummary(context.Context, engine.Summary) error {
	s.calls++
	if s.fail {
		return errors.New("scripted backend failure")
	}
	return nil
}

// Run executes a scenario against a fresh in-memory store and returns the
// trace. Every step runs synchronously; sends triggered by a commit are
// suppressed so the trace only contains scripted attempts.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := testutil.NewClock(scenarioStart)

	// Server time equals client time in scenarios: the reconciler starts
	// with a zero offset and never observes a server response.
	reconciler := clock.New(st.Namespace("clock"), log)

	task := refdata.NewTaskStore(st.Namespace("task"), reconciler)
	if err := task.LoadFromData(ctx, refdata.Task{CorrectionEnd: scenario.Fixtures.Task.CorrectionEnd}); err != nil {
		return nil, fmt.Errorf("seed task: %w", err)
	}
	settings := refdata.NewSettingsStore(st.Namespace("settings"))
	if err := settings.LoadFromData(ctx, refdata.Settings{MaxPoints: scenario.Fixtures.Settings.MaxPoints}); err != nil {
		return nil, fmt.Errorf("seed settings: %w", err)
	}
	levels := refdata.NewLevelsStore(st.Namespace("levels"))
	seedLevels := make([]refdata.Level, len(scenario.Fixtures.Levels))
	for i, level := range scenario.Fixtures.Levels {
		seedLevels[i] = refdata.Level{Key: level.Key, MinPoints: level.MinPoints}
	}
	if err := levels.LoadFromData(ctx, seedLevels); err != nil {
		return nil, fmt.Errorf("seed levels: %w", err)
	}

	sender := &scriptedSender{}
	eng := engine.New(st.Namespace("summary"), sender, task, levels, settings, log,
		engine.WithNow(clk.Now))

	seed := scenario.Fixtures.Summary
	if err := eng.LoadFromData(ctx, engine.Summary{
		Text:         seed.Text,
		Points:       seed.Points,
		GradeKey:     seed.GradeKey,
		IsAuthorized: seed.IsAuthorized,
	}); err != nil {
		return nil, fmt.Errorf("seed summary: %w", err)
	}

	result := &Result{ScenarioName: scenario.Name}
	for i, step := range scenario.Steps {
		event, err := runStep(ctx, eng, clk, sender, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		event.State = snapshot(eng)
		result.Trace = append(result.Trace, event)
	}
	return result, nil
}

func runStep(ctx context.Context, eng *engine.Engine, clk *testutil.Clock, sender *scriptedSender, step Step) (TraceEvent, error) {
	switch {
	case step.Edit != nil:
		detail := ""
		if step.Edit.Text != nil {
			eng.SetContent(*step.Edit.Text)
			detail = "text"
		}
		if step.Edit.Points != nil {
			eng.SetPoints(*step.Edit.Points)
			if detail != "" {
				detail += " and points"
			} else {
				detail = "points"
			}
		}
		return TraceEvent{Step: "edit", Detail: detail}, nil

	case step.Advance != 0:
		clk.Advance(time.Duration(step.Advance) * time.Millisecond)
		return TraceEvent{Step: "advance", Detail: fmt.Sprintf("+%dms", step.Advance)}, nil

	case step.Check != nil:
		committed := eng.Check(ctx, engine.CheckOptions{
			Force:        step.Check.Force,
			SuppressSend: true,
		})
		return TraceEvent{Step: "check", Committed: &committed}, nil

	case step.Send != nil:
		sender.fail = step.Send.Backend == BackendFail
		sent := eng.Send(ctx, engine.SendOptions{Force: step.Send.Force})
		detail := BackendOK
		if sender.fail {
			detail = BackendFail
		}
		return TraceEvent{Step: "send", Detail: "backend " + detail, Sent: &sent}, nil

	case step.Authorize != nil:
		event := TraceEvent{Step: "authorize"}
		if err := eng.Authorize(ctx); err != nil {
			event.Error = err.Error()
		}
		return event, nil

	default:
		return TraceEvent{}, fmt.Errorf("empty step")
	}
}

func snapshot(eng *engine.Engine) StateSnapshot {
	status := eng.Status()
	return StateSnapshot{
		State:      status.State.String(),
		IsSent:     status.IsSent,
		Text:       status.StoredContent,
		Points:     status.StoredPoints,
		GradeKey:   status.StoredGradeKey,
		Authorized: status.StoredIsAuthorized,
	}
}
