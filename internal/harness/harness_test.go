package harness

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/surveydb/internal/command"
	"github.com/roach88/surveydb/internal/database"
	"github.com/roach88/surveydb/internal/schema"
	"github.com/roach88/surveydb/internal/store"
	"github.com/roach88/surveydb/internal/testutil"
)

func newDispatcher(t *testing.T) *command.Dispatcher {
	t.Helper()
	ctx := context.Background()

	joins, err := schema.ParseJoins([]byte(testutil.JoinsYAML))
	require.NoError(t, err)
	declared, err := schema.Parse([]byte(testutil.SchemaYAML), joins, nil)
	require.NoError(t, err)

	st, err := store.Open(ctx, store.Options{Driver: "sqlite", DSN: testutil.NewDatabase(t)})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	conn, err := database.NewConnection(ctx, st, declared, nil)
	require.NoError(t, err)
	return command.NewDispatcher(map[string]*database.Connection{"testdb": conn}, nil)
}

func TestRun_Scenario(t *testing.T) {
	d := newDispatcher(t)
	scenario, err := LoadScenario(afero.NewOsFs(), "testdata/scenarios/quicklook_night.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), d, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Trace, 4)

	assert.Equal(t, 1, result.Trace[0].Step)
	assert.Equal(t, "testdb", result.Trace[0].Parameters["database"])
	assert.Equal(t, "column bounds", result.Trace[1].Type)
	assert.Equal(t, "error", result.Trace[3].Type)
}

func TestRun_Mismatches(t *testing.T) {
	d := newDispatcher(t)
	rows := 3

	scenario := &Scenario{
		Name:        "mismatches",
		Description: "Every kind of mismatch",
		Database:    "testdb",
		Steps: []Step{
			{
				Command:    "get bounds",
				Parameters: map[string]any{"column": "exposure.dec"},
				Expect:     &Expect{Type: "table columns"},
			},
			{
				Command:    "get bounds",
				Parameters: map[string]any{"column": "exposure.dec"},
				Expect:     &Expect{Type: "column bounds", Content: map[string]any{"bounds": []any{-40, 60}}},
			},
			{
				Command:    "get bounds",
				Parameters: map[string]any{"column": "exposure.dec"},
				Expect:     &Expect{Type: "column bounds", Content: map[string]any{"minimum": -40}},
			},
			{
				Command:    "load columns",
				Parameters: map[string]any{"columns": []string{"exposure.ra", "exposure.dec"}},
				Expect:     &Expect{Type: "table columns", Rows: &rows},
			},
			{
				// No expect clause: any reply passes.
				Command:    "load schema",
				Parameters: map[string]any{},
			},
		},
	}

	result, err := Run(context.Background(), d, scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Len(t, result.Trace, 5)

	assert.Contains(t, result.Errors[0], `step 1 (get bounds): expected reply type "table columns", got reply type "column bounds"`)
	assert.Contains(t, result.Errors[1], "content.bounds[1] = 60")
	assert.Contains(t, result.Errors[2], "content.minimum to exist")
	assert.Contains(t, result.Errors[3], "expected 3 row(s), got 7 row(s)")
}

func TestRun_ExplicitDatabaseWins(t *testing.T) {
	d := newDispatcher(t)
	scenario := &Scenario{
		Name:        "explicit",
		Description: "A step naming its own database",
		Database:    "testdb",
		Steps: []Step{{
			Command:    "load schema",
			Parameters: map[string]any{"database": "other"},
			Expect:     &Expect{Type: "error", Content: map[string]any{"error": "execution error"}},
		}},
	}

	result, err := Run(context.Background(), d, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "other", result.Trace[0].Parameters["database"])
	// The scenario's parameters are not modified.
	assert.Len(t, scenario.Steps[0].Parameters, 1)
}

func TestRun_UnencodableParameters(t *testing.T) {
	d := newDispatcher(t)
	scenario := &Scenario{
		Name:        "bad",
		Description: "Parameters that cannot be encoded",
		Steps: []Step{{
			Command:    "load schema",
			Parameters: map[string]any{"database": make(chan int)},
		}},
	}

	_, err := Run(context.Background(), d, scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 1: failed to encode command")
}

func TestHarness_Logs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	d := newDispatcher(t)
	scenario := &Scenario{
		Name:        "logged",
		Description: "One logged step",
		Database:    "testdb",
		Steps: []Step{{
			Command:    "get bounds",
			Parameters: map[string]any{"column": "exposure.ra"},
		}},
	}

	_, err := New(d, zap.New(core)).Run(context.Background(), scenario)
	require.NoError(t, err)

	entries := logs.FilterMessage("step completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "logged", fields["scenario"])
	assert.Equal(t, "column bounds", fields["type"])
}

func TestMatchValue(t *testing.T) {
	actual := map[string]any{
		"schema":  "testdb",
		"columns": []any{"exposure.ra"},
		"data":    map[string]any{"exposure.ra": 370.0},
	}

	assert.Nil(t, matchValue("content", map[string]any{"schema": "testdb"}, actual))
	assert.Nil(t, matchValue("content", map[string]any{"data": map[string]any{"exposure.ra": 370}}, actual))
	assert.Nil(t, matchValue("content", map[string]any{"columns": []any{"exposure.ra"}}, actual))

	m := matchValue("content", map[string]any{"columns": []any{"exposure.ra", "exposure.dec"}}, actual)
	require.NotNil(t, m)
	assert.Contains(t, m.expected, "content.columns")

	m = matchValue("content", map[string]any{"schema": map[string]any{"name": "testdb"}}, actual)
	require.NotNil(t, m)
	assert.Equal(t, "content.schema to be an object", m.expected)

	m = matchValue("content", map[string]any{"data": map[string]any{"exposure.ra": nil}}, actual)
	require.NotNil(t, m)
	assert.Equal(t, "content.data.exposure.ra = <nil>", m.expected)
}
