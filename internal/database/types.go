package database

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/surveydb/internal/queryir"
)

// DataID identifies one exposure by observing day and sequence number. On
// the wire it is a two-element array [day_obs, seq_num].
type DataID struct {
	DayObs int64
	SeqNum int64
}

func (d DataID) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int64{d.DayObs, d.SeqNum})
}

func (d *DataID) UnmarshalJSON(data []byte) error {
	var pair []int64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("data id must be [day_obs, seq_num]: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("data id must be [day_obs, seq_num], got %d values", len(pair))
	}
	d.DayObs, d.SeqNum = pair[0], pair[1]
	return nil
}

// Request is a column query.
type Request struct {
	// Columns are qualified "table.column" names. A single entry without a
	// "." names a table and requests all of its columns.
	Columns []string

	// Query filters the rows. Optional.
	Query queryir.Node

	// DataIDs restricts the rows to these exposures. Optional.
	DataIDs []DataID

	// Aggregator, when set, is one of count, sum, avg, min or max and is
	// applied to every requested column.
	Aggregator string
}

// Result is column-oriented query output.
type Result struct {
	// Columns lists the output columns in projection order: the requested
	// columns, then the index columns that were added.
	Columns []string

	// Data maps each column to its values, one per row. Nil for aggregate
	// queries.
	Data map[string][]any

	// Aggregates maps each requested column to its aggregate value. Nil
	// unless the request had an aggregator.
	Aggregates map[string]any
}

// Bounds is the (min, max) of a column. On the wire it is [min, max].
type Bounds struct {
	Min any
	Max any
}

func (b Bounds) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{b.Min, b.Max})
}

// TableID names a table of a database.
type TableID struct {
	Database string `json:"database"`
	Table    string `json:"table"`
}

// SelectionID describes how rows of a table are identified.
type SelectionID struct {
	TableID TableID  `json:"dataId"`
	Columns []string `json:"columns"`
}
