package cli

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/surveydb/internal/worker"
)

// jsonOutput decodes a --format json response.
type jsonOutput struct {
	Status string          `json:"status"`
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

func decodeOutput(t *testing.T, out string) jsonOutput {
	t.Helper()
	var decoded jsonOutput
	require.NoError(t, json.Unmarshal([]byte(out), &decoded), "output: %s", out)
	return decoded
}

// tableColumns decodes the data of a "table columns" response.
func tableColumns(t *testing.T, out string) (columns []string, data map[string]any) {
	t.Helper()
	decoded := decodeOutput(t, out)
	require.Equal(t, "ok", decoded.Status, "output: %s", out)
	require.Equal(t, "table columns", decoded.Type)

	var content struct {
		Schema  string         `json:"schema"`
		Columns []string       `json:"columns"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(decoded.Data, &content))
	assert.Equal(t, "testdb", content.Schema)
	return content.Columns, content.Data
}

func sortedNumbers(t *testing.T, v any) []float64 {
	t.Helper()
	list, ok := v.([]any)
	require.True(t, ok, "expected a list, got %T", v)
	out := make([]float64, len(list))
	for i, x := range list {
		out[i] = x.(float64)
	}
	sort.Float64s(out)
	return out
}

func TestQueryCommand_Text(t *testing.T) {
	fs := newTestFs(t)

	out, err := run(t, fs, "query", "testdb", "exposure.ra", "exposure.dec")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 9)
	assert.Equal(t, []string{"exposure.ra", "exposure.dec", "exposure.day_obs", "exposure.seq_num"}, strings.Fields(lines[0]))
	assert.Equal(t, "(7 rows)", lines[8])
}

func TestQueryCommand_JSON(t *testing.T) {
	fs := newTestFs(t)

	out, err := run(t, fs, "--format", "json", "query", "testdb", "exposure.ra", "exposure.dec")
	require.NoError(t, err)

	columns, data := tableColumns(t, out)
	assert.Equal(t, []string{"exposure.ra", "exposure.dec", "exposure.day_obs", "exposure.seq_num"}, columns)
	assert.Equal(t, []float64{0, 1, 3, 4, 5, 8, 9}, sortedNumbers(t, data["exposure.seq_num"]))
}

func TestQueryCommand_Filters(t *testing.T) {
	fs := newTestFs(t)
	require.NoError(t, afero.WriteFile(fs, "/widgets/long.json", []byte(`{
		"type": "EqualityQuery",
		"field": {"schema": "exposure", "name": "exp_time"},
		"rightOperator": "eq",
		"rightValue": 30
	}`), 0o644))

	tests := []struct {
		name string
		args []string
		want []float64
	}{
		{
			name: "day obs",
			args: []string{"--day-obs", "2023-02-14"},
			want: []float64{5, 8, 9},
		},
		{
			name: "data ids",
			args: []string{"--data-id", "20230214:5", "--data-id", "20230519:0"},
			want: []float64{0, 5},
		},
		{
			name: "query file",
			args: []string{"--query", "@/widgets/long.json"},
			want: []float64{0, 1, 5},
		},
		{
			name: "query and global query",
			args: []string{
				"--query", "@/widgets/long.json",
				"--global-query", `{"type": "EqualityQuery", "field": {"schema": "exposure", "name": "day_obs"}, "rightOperator": "eq", "rightValue": 20230519}`,
			},
			want: []float64{0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--format", "json", "query", "testdb", "exposure.ra", "exposure.dec"}, tt.args...)
			out, err := run(t, fs, args...)
			require.NoError(t, err)

			_, data := tableColumns(t, out)
			assert.Equal(t, tt.want, sortedNumbers(t, data["exposure.seq_num"]))
		})
	}
}

func TestQueryCommand_Aggregator(t *testing.T) {
	fs := newTestFs(t)

	out, err := run(t, fs, "--format", "json", "query", "testdb", "exposure.ra", "exposure.dec", "--aggregator", "sum")
	require.NoError(t, err)
	_, data := tableColumns(t, out)
	assert.Equal(t, map[string]any{"exposure.ra": 370.0, "exposure.dec": 20.0}, data)

	out, err = run(t, fs, "query", "testdb", "exposure.ra", "exposure.dec", "--aggregator", "sum")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"column", "sum"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"exposure.dec", "20"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"exposure.ra", "370"}, strings.Fields(lines[2]))
}

func TestQueryCommand_Errors(t *testing.T) {
	fs := newTestFs(t)

	tests := []struct {
		name string
		args []string
		code string
		exit int
	}{
		{"unknown column", []string{"testdb", "exposure.nope"}, ErrCodeReference, ExitFailure},
		{"unknown table", []string{"testdb", "nope.ra"}, ErrCodeReference, ExitFailure},
		{"unknown database", []string{"nope", "exposure.ra"}, ErrCodeUnknownDB, ExitCommandError},
		{"invalid query JSON", []string{"testdb", "exposure.ra", "--query", "{"}, ErrCodeQuery, ExitFailure},
		{"invalid query tree", []string{"testdb", "exposure.ra", "--query", `{"type": "Nope"}`}, ErrCodeQuery, ExitFailure},
		{"missing query file", []string{"testdb", "exposure.ra", "--query", "@/nope.json"}, ErrCodeQuery, ExitFailure},
		{"invalid data id", []string{"testdb", "exposure.ra", "--data-id", "20230519"}, ErrCodeQuery, ExitFailure},
		{"invalid day obs", []string{"testdb", "exposure.ra", "--day-obs", "yesterday"}, ErrCodeGeneric, ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, fs, append([]string{"--format", "json", "query"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.exit, GetExitCode(err))

			decoded := decodeOutput(t, out)
			assert.Equal(t, "error", decoded.Status)
			require.NotNil(t, decoded.Error)
			assert.Equal(t, tt.code, decoded.Error.Code, "message: %s", decoded.Error.Message)
		})
	}
}

func TestBoundsCommand(t *testing.T) {
	fs := newTestFs(t)

	out, err := run(t, fs, "bounds", "testdb", "exposure.dec")
	require.NoError(t, err)
	assert.Equal(t, "exposure.dec: [-40, 50]\n", out)

	out, err = run(t, fs, "--format", "json", "bounds", "testdb", "exposure.ra")
	require.NoError(t, err)
	decoded := decodeOutput(t, out)
	assert.Equal(t, "column bounds", decoded.Type)
	assert.JSONEq(t, `{"column": "exposure.ra", "bounds": [10, 100]}`, string(decoded.Data))
}

func TestBoundsCommand_UnknownColumn(t *testing.T) {
	fs := newTestFs(t)

	out, err := run(t, fs, "bounds", "testdb", "exposure.focus_z")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeReference+"]")
}

func TestSchemaCommand(t *testing.T) {
	fs := newTestFs(t)

	out, err := run(t, fs, "schema", "testdb")
	require.NoError(t, err)
	assert.Contains(t, out, "Schema testdb: 3 table(s), 2 join(s)")
	assert.Contains(t, out, "exposure (index: day_obs, seq_num)")
	assert.Contains(t, out, "  ra real [deg]")
	assert.Contains(t, out, "  inner: exposure(exposure_id) = visit1(visit_id)")
	// Declared but not deployed.
	assert.NotContains(t, out, "ccdvisit1")
	assert.NotContains(t, out, "focus_z")

	out, err = run(t, fs, "--format", "json", "schema", "testdb")
	require.NoError(t, err)
	decoded := decodeOutput(t, out)
	assert.Equal(t, "database schema", decoded.Type)

	var desc struct {
		Name   string `json:"name"`
		Tables []struct {
			Name string `json:"name"`
		} `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(decoded.Data, &desc))
	assert.Equal(t, "testdb", desc.Name)
	require.Len(t, desc.Tables, 3)
	assert.Equal(t, "visit1_quicklook", desc.Tables[2].Name)
}

func TestSchemaCommand_BadSchemaFile(t *testing.T) {
	fs := newTestFs(t)
	require.NoError(t, afero.WriteFile(fs, "/etc/surveydb/testdb.yaml", []byte("name: testdb\ntables: nope\n"), 0o644))

	out, err := run(t, fs, "--format", "json", "schema", "testdb")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	decoded := decodeOutput(t, out)
	require.NotNil(t, decoded.Error)
	assert.Equal(t, ErrCodeDocument, decoded.Error.Code)
}

func TestSchemaCommand_Unreachable(t *testing.T) {
	fs := newTestFs(t)
	require.NoError(t, afero.WriteFile(fs, testConfigPath, []byte(`databases:
  testdb:
    driver: postgres
    url: postgres://reader@127.0.0.1:1/nope?connect_timeout=1
    schema: testdb.yaml
`), 0o644))

	out, err := run(t, fs, "--format", "json", "schema", "testdb")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	decoded := decodeOutput(t, out)
	require.NotNil(t, decoded.Error)
	assert.Equal(t, ErrCodeConnect, decoded.Error.Code)
}

func TestWorkerCommand(t *testing.T) {
	fs := newTestFs(t)

	replies := make(chan []byte, 1)
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc(worker.DefaultPath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		message := `{"name": "get bounds", "parameters": {"database": "testdb", "column": "exposure.dec"}}`
		if err := conn.WriteMessage(websocket.TextMessage, []byte(message)); err != nil {
			t.Errorf("write: %v", err)
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("read: %v", err)
			return
		}
		replies <- data
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
		_, _, _ = conn.ReadMessage()
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	host, port, err := net.SplitHostPort(server.Listener.Addr().String())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := runContext(ctx, t, fs, "worker", "--address", host, "--port", port, "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "connecting to ws://"+server.Listener.Addr().String()+"/ws/worker")

	select {
	case reply := <-replies:
		assert.JSONEq(t, `{"type": "column bounds", "content": {"column": "exposure.dec", "bounds": [-40, 50]}}`, string(reply))
	default:
		t.Fatal("broker received no reply")
	}
}

func TestWorkerCommand_BrokerUnreachable(t *testing.T) {
	fs := newTestFs(t)

	// Reserve a port nothing listens on.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)
	require.NoError(t, listener.Close())

	_, err = run(t, fs, "worker", "--address", "127.0.0.1", "--port", port)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestValidateCommand(t *testing.T) {
	fs := newTestFs(t)
	schemaPath := "/etc/surveydb/testdb.yaml"
	joinsPath := "/etc/surveydb/joins.yaml"

	t.Run("disconnected tables are warnings", func(t *testing.T) {
		out, err := run(t, fs, "validate", schemaPath)
		require.NoError(t, err)
		assert.Contains(t, out, "✓ Schema testdb valid: 4 table(s), 1 join(s)")
		assert.Contains(t, out, "warning "+ErrCodeJoinPath+": tables visit1_quicklook cannot be joined with exposure, visit1")
		assert.Contains(t, out, "warning "+ErrCodeJoinPath+": tables ccdvisit1 cannot be joined with exposure, visit1")
	})

	t.Run("with joins", func(t *testing.T) {
		out, err := run(t, fs, "--format", "json", "validate", schemaPath, "--joins", joinsPath)
		require.NoError(t, err)

		decoded := decodeOutput(t, out)
		assert.Equal(t, "ok", decoded.Status)
		var result ValidationResult
		require.NoError(t, json.Unmarshal(decoded.Data, &result))
		assert.True(t, result.Valid)
		assert.Equal(t, 3, result.Joins)
		assert.Equal(t, [][]string{{"exposure", "visit1", "visit1_quicklook", "ccdvisit1"}}, result.Groups)
		assert.Empty(t, result.Issues)
	})

	query := `--query={"type": "ParentQuery", "operator": "AND", "children": [
		{"type": "EqualityQuery", "field": {"schema": "exposure", "name": "exp_time"}, "rightOperator": "eq", "rightValue": 30},
		{"type": "EqualityQuery", "field": {"schema": "visit1_quicklook", "name": "psf_sigma"}, "rightOperator": "gt", "rightValue": 2}
	]}`

	t.Run("query with join path", func(t *testing.T) {
		_, err := run(t, fs, "validate", schemaPath, "--joins", joinsPath, query)
		require.NoError(t, err)
	})

	t.Run("query without join path", func(t *testing.T) {
		out, err := run(t, fs, "--format", "json", "validate", schemaPath, query)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		decoded := decodeOutput(t, out)
		require.NotNil(t, decoded.Error)
		assert.Equal(t, ErrCodeJoinPath, decoded.Error.Code)
		assert.Contains(t, decoded.Error.Message, "visit1_quicklook")
	})

	t.Run("unknown column", func(t *testing.T) {
		out, err := run(t, fs, "validate", schemaPath,
			`--query={"type": "EqualityQuery", "field": {"schema": "exposure", "name": "nope"}, "rightOperator": "eq", "rightValue": 1}`)
		require.Error(t, err)
		assert.Contains(t, out, "✗ Validation failed")
		assert.Contains(t, out, "error "+ErrCodeReference)
	})

	t.Run("bad document", func(t *testing.T) {
		require.NoError(t, afero.WriteFile(fs, "/bad.yaml", []byte("name: bad\ntables: nope\n"), 0o644))
		out, err := run(t, fs, "validate", "/bad.yaml")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "error "+ErrCodeDocument)
	})
}
