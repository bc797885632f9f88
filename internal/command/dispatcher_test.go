package command

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/roach88/surveydb/internal/database"
	"github.com/roach88/surveydb/internal/schema"
	"github.com/roach88/surveydb/internal/store"
	"github.com/roach88/surveydb/internal/testutil"
)

func setupDispatcher(t *testing.T, log *zap.Logger) *Dispatcher {
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
	return NewDispatcher(map[string]*database.Connection{"testdb": conn}, log)
}

// execute sends a command and decodes the reply, checking its type.
func execute(t *testing.T, d *Dispatcher, command any, responseType string) map[string]any {
	t.Helper()
	var message []byte
	switch c := command.(type) {
	case string:
		message = []byte(c)
	default:
		var err error
		message, err = json.Marshal(c)
		require.NoError(t, err)
	}

	var reply struct {
		Type    string         `json:"type"`
		Content map[string]any `json:"content"`
	}
	require.NoError(t, json.Unmarshal(d.Execute(context.Background(), message), &reply))
	require.Equal(t, responseType, reply.Type, "reply content: %v", reply.Content)
	return reply.Content
}

func loadColumnsCommand(params map[string]any) map[string]any {
	params["database"] = "testdb"
	return map[string]any{"name": CommandLoadColumns, "parameters": params}
}

// numbers converts a decoded JSON array of numbers to float64s, sorted.
func numbers(t *testing.T, v any) []float64 {
	t.Helper()
	list, ok := v.([]any)
	require.True(t, ok, "expected a list, got %T", v)
	out := make([]float64, len(list))
	for i, x := range list {
		f, ok := x.(float64)
		require.True(t, ok, "expected a number, got %T", x)
		out[i] = f
	}
	sort.Float64s(out)
	return out
}

func TestGetBounds(t *testing.T) {
	d := setupDispatcher(t, nil)

	content := execute(t, d, map[string]any{
		"name":       "get bounds",
		"parameters": map[string]any{"database": "testdb", "column": "exposure.dec"},
	}, "column bounds")

	assert.Equal(t, "exposure.dec", content["column"])
	assert.Equal(t, []any{-40.0, 50.0}, content["bounds"])
}

func TestLoadColumns_Full(t *testing.T) {
	d := setupDispatcher(t, nil)

	content := execute(t, d, loadColumnsCommand(map[string]any{
		"columns": []string{"exposure.ra", "exposure.dec"},
	}), "table columns")

	assert.Equal(t, "testdb", content["schema"])
	assert.Equal(t, []any{"exposure.ra", "exposure.dec", "exposure.day_obs", "exposure.seq_num"}, content["columns"])

	data := content["data"].(map[string]any)
	assert.Equal(t, []float64{0, 1, 3, 4, 5, 8, 9}, numbers(t, data["exposure.seq_num"]))
	assert.Equal(t, []float64{10, 20, 40, 50, 60, 90, 100}, numbers(t, data["exposure.ra"]))
}

func TestLoadColumns_WithQuery(t *testing.T) {
	d := setupDispatcher(t, nil)

	content := execute(t, d, loadColumnsCommand(map[string]any{
		"columns": []string{"visit1_quicklook.visit_id", "exposure.ra", "exposure.dec"},
		"query": map[string]any{
			"type":          "EqualityQuery",
			"field":         map[string]any{"schema": "exposure", "name": "exp_time"},
			"rightOperator": "eq",
			"rightValue":    30,
		},
	}), "table columns")

	assert.Equal(t, []any{
		"visit1_quicklook.visit_id",
		"exposure.ra",
		"exposure.dec",
		"exposure.day_obs",
		"exposure.seq_num",
	}, content["columns"])

	data := content["data"].(map[string]any)
	assert.Equal(t, []float64{0, 1, 5}, numbers(t, data["exposure.seq_num"]))
	assert.Equal(t, []float64{0, 2, 10}, numbers(t, data["visit1_quicklook.visit_id"]))
}

func TestLoadColumns_GlobalQuery(t *testing.T) {
	d := setupDispatcher(t, nil)

	content := execute(t, d, loadColumnsCommand(map[string]any{
		"columns": []string{"exposure.ra", "exposure.dec"},
		"query": map[string]any{
			"type":          "EqualityQuery",
			"field":         map[string]any{"schema": "exposure", "name": "dec"},
			"rightOperator": "gt",
			"rightValue":    0,
		},
		"global_query": map[string]any{
			"type":          "EqualityQuery",
			"field":         map[string]any{"schema": "exposure", "name": "ra"},
			"rightOperator": "lt",
			"rightValue":    95,
		},
	}), "table columns")

	data := content["data"].(map[string]any)
	assert.Equal(t, []float64{5, 8}, numbers(t, data["exposure.seq_num"]))
}

func TestLoadColumns_DayObs(t *testing.T) {
	d := setupDispatcher(t, nil)

	t.Run("own column", func(t *testing.T) {
		content := execute(t, d, loadColumnsCommand(map[string]any{
			"columns": []string{"exposure.ra", "exposure.dec"},
			"day_obs": "2023-02-14",
		}), "table columns")

		data := content["data"].(map[string]any)
		assert.Equal(t, []float64{5, 8, 9}, numbers(t, data["exposure.seq_num"]))
	})

	t.Run("joined column", func(t *testing.T) {
		content := execute(t, d, loadColumnsCommand(map[string]any{
			"columns": []string{"visit1_quicklook.psf_sigma"},
			"day_obs": "2023-05-19",
		}), "table columns")

		data := content["data"].(map[string]any)
		assert.Equal(t, []float64{0, 2, 4, 6}, numbers(t, data["visit1_quicklook.visit_id"]))
	})
}

func TestLoadColumns_DataIDs(t *testing.T) {
	d := setupDispatcher(t, nil)

	content := execute(t, d, loadColumnsCommand(map[string]any{
		"columns":  []string{"exposure.ra"},
		"data_ids": [][]int{{20230214, 5}, {20230214, 6}, {20230519, 0}},
	}), "table columns")

	data := content["data"].(map[string]any)
	assert.Equal(t, []float64{0, 5, 6}, numbers(t, data["exposure.seq_num"]))
}

func TestLoadColumns_Aggregator(t *testing.T) {
	d := setupDispatcher(t, nil)
	columns := []string{"exposure.ra", "exposure.dec"}

	t.Run("count", func(t *testing.T) {
		content := execute(t, d, loadColumnsCommand(map[string]any{
			"columns": columns, "aggregator": "count",
		}), "table columns")
		assert.Equal(t, map[string]any{"exposure.ra": 7.0, "exposure.dec": 7.0}, content["data"])
	})

	t.Run("sum", func(t *testing.T) {
		content := execute(t, d, loadColumnsCommand(map[string]any{
			"columns": columns, "aggregator": "sum",
		}), "table columns")
		assert.Equal(t, map[string]any{"exposure.ra": 370.0, "exposure.dec": 20.0}, content["data"])
	})

	t.Run("with conditions", func(t *testing.T) {
		content := execute(t, d, loadColumnsCommand(map[string]any{
			"columns":    columns,
			"aggregator": "avg",
			"query": map[string]any{
				"type":          "EqualityQuery",
				"field":         map[string]any{"schema": "exposure", "name": "exp_time"},
				"rightOperator": "eq",
				"rightValue":    30,
			},
		}), "table columns")
		assert.Equal(t, map[string]any{"exposure.ra": 30.0, "exposure.dec": -20.0}, content["data"])
	})
}

func TestLoadSchema(t *testing.T) {
	d := setupDispatcher(t, nil)

	content := execute(t, d, map[string]any{
		"name":       "load schema",
		"parameters": map[string]any{"database": "testdb"},
	}, "database schema")

	assert.Equal(t, "testdb", content["name"])
	tables := content["tables"].([]any)
	require.Len(t, tables, 3)

	var names []string
	for _, tbl := range tables {
		names = append(names, tbl.(map[string]any)["name"].(string))
	}
	assert.Equal(t, []string{"exposure", "visit1", "visit1_quicklook"}, names)
	assert.Len(t, content["joins"], 2)
}

func TestErrors(t *testing.T) {
	d := setupDispatcher(t, nil)

	check := func(t *testing.T, content map[string]any, category, description string) {
		t.Helper()
		assert.Equal(t, category, content["error"])
		if description != "" {
			assert.Equal(t, description, content["description"])
		}
	}

	t.Run("not json", func(t *testing.T) {
		check(t, execute(t, d, "{'test': [1,2,3,0004,}", "error"), ErrorParsing, "")
	})
	t.Run("not an object", func(t *testing.T) {
		check(t, execute(t, d, `"{'test': [1,2,3,0004,}"`, "error"), ErrorParsing, "")
	})
	t.Run("no name", func(t *testing.T) {
		check(t, execute(t, d, map[string]any{"content": map[string]any{}}, "error"),
			ErrorParsing, "'No command 'name' given' error while parsing command")
	})
	t.Run("invalid name", func(t *testing.T) {
		check(t, execute(t, d, map[string]any{"name": "invalid name"}, "error"),
			ErrorParsing, "'Unrecognized command 'invalid name'' error while parsing command")
	})
	t.Run("no parameters", func(t *testing.T) {
		check(t, execute(t, d, map[string]any{"name": "get bounds"}, "error"), ErrorParsing, "")
	})
	t.Run("invalid parameters", func(t *testing.T) {
		check(t, execute(t, d, map[string]any{
			"name":       "get bounds",
			"parameters": map[string]any{"a": 1},
		}, "error"), ErrorParsing, "")
	})
	t.Run("missing parameter", func(t *testing.T) {
		check(t, execute(t, d, map[string]any{
			"name":       "get bounds",
			"parameters": map[string]any{"database": "testdb"},
		}, "error"), ErrorParsing,
			"'Invalid parameters for command 'get bounds': missing parameter 'column'' error while parsing command")
	})
	t.Run("invalid table", func(t *testing.T) {
		check(t, execute(t, d, map[string]any{
			"name":       "get bounds",
			"parameters": map[string]any{"database": "testdb", "column": "InvalidTable.invalid_column"},
		}, "error"), ErrorExecution, "")
	})
	t.Run("unknown database", func(t *testing.T) {
		check(t, execute(t, d, map[string]any{
			"name":       "load schema",
			"parameters": map[string]any{"database": "nope"},
		}, "error"), ErrorExecution, `'unknown database "nope"' error while executing command 'load schema'`)
	})
	t.Run("invalid query", func(t *testing.T) {
		check(t, execute(t, d, loadColumnsCommand(map[string]any{
			"columns": []string{"exposure.ra"},
			"query":   map[string]any{"type": "EqualityQuery"},
		}), "error"), ErrorExecution, "")
	})
	t.Run("invalid day_obs", func(t *testing.T) {
		check(t, execute(t, d, loadColumnsCommand(map[string]any{
			"columns": []string{"exposure.ra"},
			"day_obs": "yesterday",
		}), "error"), ErrorExecution, "")
	})
	t.Run("invalid data id", func(t *testing.T) {
		check(t, execute(t, d, loadColumnsCommand(map[string]any{
			"columns":  []string{"exposure.ra"},
			"data_ids": [][]int{{20230214}},
		}), "error"), ErrorParsing, "")
	})
}

func TestErrors_Logged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	d := setupDispatcher(t, zap.New(core))

	execute(t, d, map[string]any{"name": "invalid name"}, "error")
	execute(t, d, map[string]any{
		"name":       "get bounds",
		"parameters": map[string]any{"database": "testdb", "column": "exposure.nope"},
	}, "error")

	assert.Equal(t, 1, logs.FilterMessage("could not parse command").Len())
	failed := logs.FilterMessage("command failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "get bounds", failed[0].ContextMap()["command"])
}

func TestRun(t *testing.T) {
	d := setupDispatcher(t, nil)
	ctx := context.Background()

	resp, err := d.Run(ctx, CommandGetBounds, GetBoundsParams{Database: "testdb", Column: "exposure.ra"})
	require.NoError(t, err)
	assert.Equal(t, ResponseColumnBounds, resp.Type)
	bounds := resp.Content.(ColumnBounds)
	assert.Equal(t, 10.0, bounds.Bounds.Min)
	assert.Equal(t, 100.0, bounds.Bounds.Max)

	_, err = d.Run(ctx, "nope", struct{}{})
	assert.True(t, IsParseError(err))

	_, err = d.Run(ctx, CommandGetBounds, GetBoundsParams{Database: "testdb", Column: "exposure.nope"})
	assert.True(t, IsExecutionError(err))
	assert.True(t, schema.IsInvalidReference(err))
}

func TestCommands(t *testing.T) {
	d := setupDispatcher(t, nil)

	assert.Equal(t, []string{"get bounds", "load columns", "load schema"}, d.Commands())
	assert.Equal(t, []string{"testdb"}, d.Databases())
}

func TestExecute_Concurrent(t *testing.T) {
	d := setupDispatcher(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				execute(t, d, map[string]any{
					"name":       "get bounds",
					"parameters": map[string]any{"database": "testdb", "column": "exposure.dec"},
				}, "column bounds")
				return
			}
			execute(t, d, loadColumnsCommand(map[string]any{
				"columns": []string{"exposure.ra", "visit1_quicklook.psf_sigma"},
			}), "table columns")
		}(i)
	}
	wg.Wait()
}

func TestParseDayObs(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "2023-05-19", want: 20230519},
		{in: "2023-02-14", want: 20230214},
		{in: "20230519", want: 20230519},
		{in: "2023-13-01", wantErr: true},
		{in: "yesterday", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDayObs(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
