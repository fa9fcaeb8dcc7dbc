package refdata

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedTime is a TimeSource with a constant offset of zero: server time
// equals the client unix time.
type fixedTime struct{}

func (fixedTime) ServerTime(t time.Time) int64 {
	return t.Unix()
}

func TestTask_RemainingSeconds(t *testing.T) {
	ctx := context.Background()
	task := NewTaskStore(testNamespace(t, "task"), fixedTime{})
	require.NoError(t, task.LoadFromData(ctx, Task{
		Title:         "Essay 2026",
		CorrectionEnd: 1_000_600,
	}))

	now := time.Unix(1_000_000, 0)
	remaining, ok := task.RemainingSeconds(now)
	require.True(t, ok)
	assert.Equal(t, int64(600), remaining)
	assert.False(t, task.CorrectionEndReached(now))
}

func TestTask_CorrectionEndReached(t *testing.T) {
	ctx := context.Background()
	task := NewTaskStore(testNamespace(t, "task"), fixedTime{})
	require.NoError(t, task.LoadFromData(ctx, Task{CorrectionEnd: 1_000_000}))

	assert.True(t, task.CorrectionEndReached(time.Unix(1_000_000, 0)))
	assert.True(t, task.CorrectionEndReached(time.Unix(2_000_000, 0)))

	remaining, ok := task.RemainingSeconds(time.Unix(2_000_000, 0))
	require.True(t, ok)
	assert.Zero(t, remaining, "remaining time never goes negative")
}

func TestTask_WithoutDeadlineNeverCloses(t *testing.T) {
	ctx := context.Background()
	task := NewTaskStore(testNamespace(t, "task"), fixedTime{})
	require.NoError(t, task.LoadFromData(ctx, Task{Title: "Open ended"}))

	assert.False(t, task.HasCorrectionEnd())
	assert.False(t, task.CorrectionEndReached(time.Unix(9_999_999, 0)))
	_, ok := task.RemainingSeconds(time.Unix(9_999_999, 0))
	assert.False(t, ok)
}

func TestTask_StorageRoundtrip(t *testing.T) {
	ctx := context.Background()
	ns := testNamespace(t, "task")

	first := NewTaskStore(ns, fixedTime{})
	require.NoError(t, first.LoadFromData(ctx, Task{
		Title:                "Essay 2026",
		Instructions:         "<p>Grade fairly.</p>",
		CorrectionEnd:        1_000_600,
		CorrectionAllowed:    true,
		AuthorizationAllowed: true,
	}))

	second := NewTaskStore(ns, fixedTime{})
	require.NoError(t, second.LoadFromStorage(ctx))

	assert.True(t, second.Loaded())
	assert.Equal(t, first.Data(), second.Data())
}

func TestSettings_StorageRoundtrip(t *testing.T) {
	ctx := context.Background()
	ns := testNamespace(t, "settings")

	first := NewSettingsStore(ns)
	require.NoError(t, first.LoadFromData(ctx, Settings{
		MaxPoints:       20,
		MaxAutoDistance: 2,
	}))

	second := NewSettingsStore(ns)
	require.NoError(t, second.LoadFromStorage(ctx))

	assert.Equal(t, 20.0, second.MaxPoints())
	assert.Equal(t, first.Data(), second.Data())
}

func TestCorrectors_SelectPersists(t *testing.T) {
	ctx := context.Background()
	ns := testNamespace(t, "correctors")

	first := NewCorrectorsStore(ns)
	require.NoError(t, first.LoadFromData(ctx, []Corrector{
		{Key: "corr-1", Title: "First Corrector"},
		{Key: "corr-2", Title: "Second Corrector"},
	}))
	require.NoError(t, first.Select(ctx, "corr-2"))
	assert.Equal(t, "Second Corrector", first.ActiveTitle())

	second := NewCorrectorsStore(ns)
	require.NoError(t, second.LoadFromStorage(ctx))
	assert.Equal(t, "corr-2", second.ActiveKey())
	assert.Equal(t, "Second Corrector", second.ActiveTitle())
}

func TestCorrectors_SelectUnknown(t *testing.T) {
	ctx := context.Background()
	correctors := NewCorrectorsStore(testNamespace(t, "correctors"))
	require.NoError(t, correctors.LoadFromData(ctx, []Corrector{{Key: "corr-1"}}))

	assert.Error(t, correctors.Select(ctx, "missing"))
}

func TestEssay_StorageRoundtrip(t *testing.T) {
	ctx := context.Background()
	ns := testNamespace(t, "essay")

	first := NewEssayStore(ns)
	require.NoError(t, first.LoadFromData(ctx, Essay{
		Text:       "<p>The essay text.</p>",
		Started:    999_000,
		Ended:      999_900,
		Authorized: true,
	}))

	second := NewEssayStore(ns)
	require.NoError(t, second.LoadFromStorage(ctx))
	assert.Equal(t, first.Data(), second.Data())
}

func TestResources_StorageRoundtrip(t *testing.T) {
	ctx := context.Background()
	ns := testNamespace(t, "resources")

	first := NewResourcesStore(ns)
	require.NoError(t, first.LoadFromData(ctx, []Resource{
		{Key: "res-1", Title: "Grading guide", Type: "file", Source: "guide.pdf"},
		{Key: "res-2", Title: "Reference", Type: "url", Source: "https://example.com"},
	}))

	second := NewResourcesStore(ns)
	require.NoError(t, second.LoadFromStorage(ctx))

	assert.True(t, second.Has())
	res, ok := second.Get("res-1")
	require.True(t, ok)
	assert.Equal(t, "file", res.Type)
}
