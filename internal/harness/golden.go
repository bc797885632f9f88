package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// goldenDir holds trace snapshots, relative to the test's package.
const goldenDir = "testdata/golden"

// TraceSnapshot is the golden form of a scenario run: which database the
// commands went to and every reply they produced.
type TraceSnapshot struct {
	Scenario string       `json:"scenario"`
	Database string       `json:"database,omitempty"`
	Trace    []TraceEvent `json:"trace"`
}

// Snapshot pairs a scenario with the trace of one of its runs.
func Snapshot(scenario *Scenario, result *Result) TraceSnapshot {
	return TraceSnapshot{
		Scenario: scenario.Name,
		Database: scenario.Database,
		Trace:    result.Trace,
	}
}

// RunWithGolden replays scenario and compares its trace with
// testdata/golden/<scenario name>.golden. Expect clauses are still checked;
// the returned result carries their outcome.
//
// Regenerate snapshots with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, handler Handler, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), handler, scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, Snapshot(scenario, result)); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden fails t when snapshot differs from its golden file.
func AssertGolden(t *testing.T, snapshot TraceSnapshot) error {
	t.Helper()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(goldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, snapshot.Scenario, append(data, '\n'))
	return nil
}
