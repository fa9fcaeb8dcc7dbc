package refdata

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graderist/corrsync/internal/store"
)

func testNamespace(t *testing.T, name string) *store.Namespace {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s.Namespace(name)
}

func gradeTable() []Level {
	return []Level{
		{Key: "failed", MinPoints: 0, Title: "Failed"},
		{Key: "passed", MinPoints: 10, Title: "Passed"},
		{Key: "good", MinPoints: 15, Title: "Good"},
		{Key: "excellent", MinPoints: 18, Title: "Excellent"},
	}
}

func TestGradeFor_SelectsGreatestQualifyingLevel(t *testing.T) {
	ctx := context.Background()
	levels := NewLevelsStore(testNamespace(t, "levels"))
	require.NoError(t, levels.LoadFromData(ctx, gradeTable()))

	tests := []struct {
		points float64
		want   string
	}{
		{0, "failed"},
		{9.9, "failed"},
		{10, "passed"},
		{14.5, "passed"},
		{15, "good"},
		{17.99, "good"},
		{18, "excellent"},
		{20, "excellent"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, levels.GradeKeyFor(tt.points), "points=%v", tt.points)
	}
}

func TestGradeFor_NoQualifyingLevel(t *testing.T) {
	ctx := context.Background()
	levels := NewLevelsStore(testNamespace(t, "levels"))
	require.NoError(t, levels.LoadFromData(ctx, []Level{
		{Key: "passed", MinPoints: 10, Title: "Passed"},
	}))

	_, ok := levels.GradeFor(5)
	assert.False(t, ok)
	assert.Empty(t, levels.GradeKeyFor(5))
}

func TestGradeFor_EmptyTable(t *testing.T) {
	levels := NewLevelsStore(testNamespace(t, "levels"))
	assert.False(t, levels.Has())
	assert.Empty(t, levels.GradeKeyFor(12))
}

// Moving the points without crossing a threshold must not change the grade.
func TestGradeFor_StableBetweenThresholds(t *testing.T) {
	ctx := context.Background()
	levels := NewLevelsStore(testNamespace(t, "levels"))
	require.NoError(t, levels.LoadFromData(ctx, gradeTable()))

	for p := 10.0; p < 15.0; p += 0.5 {
		assert.Equal(t, "passed", levels.GradeKeyFor(p), "points=%v", p)
	}
}

func TestLevels_StorageRoundtrip(t *testing.T) {
	ctx := context.Background()
	ns := testNamespace(t, "levels")

	first := NewLevelsStore(ns)
	require.NoError(t, first.LoadFromData(ctx, gradeTable()))

	second := NewLevelsStore(ns)
	require.NoError(t, second.LoadFromStorage(ctx))

	assert.Equal(t, first.Levels(), second.Levels())

	level, ok := second.Get("good")
	require.True(t, ok)
	assert.Equal(t, "Good", level.Title)
}

func TestLevels_ClearStorage(t *testing.T) {
	ctx := context.Background()
	ns := testNamespace(t, "levels")

	levels := NewLevelsStore(ns)
	require.NoError(t, levels.LoadFromData(ctx, gradeTable()))
	require.NoError(t, levels.ClearStorage(ctx))

	assert.False(t, levels.Has())

	reloaded := NewLevelsStore(ns)
	require.NoError(t, reloaded.LoadFromStorage(ctx))
	assert.False(t, reloaded.Has())
}
