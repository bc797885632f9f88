// Package testutil provides the survey fixture database shared by tests.
//
// The fixture has three deployed tables, exposure, visit1 and
// visit1_quicklook, plus a declared-but-undeployed ccdvisit1 table and a
// declared-but-undeployed exposure.focus_z column, so every test sees the
// same reconciliation warnings. exposure and visit1_quicklook have no direct
// join template; they meet through visit1.
package testutil

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// SchemaYAML is the fixture schema document.
const SchemaYAML = `name: testdb
description: Fixture survey database
tables:
  - name: exposure
    index_columns: [day_obs, seq_num]
    columns:
      - name: exposure_id
        datatype: long
      - name: day_obs
        datatype: int
      - name: seq_num
        datatype: int
      - name: ra
        datatype: double
        unit: deg
      - name: dec
        datatype: double
        unit: deg
      - name: physical_filter
        datatype: char
      - name: obs_start
        datatype: timestamp
      - name: exp_time
        datatype: double
        unit: s
      - name: focus_z
        datatype: double
  - name: visit1
    index_columns: [visit_id]
    columns:
      - name: visit_id
        datatype: long
      - name: day_obs
        datatype: int
      - name: seq_num
        datatype: int
      - name: airmass
        datatype: double
  - name: visit1_quicklook
    index_columns: [visit_id]
    columns:
      - name: visit_id
        datatype: long
      - name: psf_sigma
        datatype: double
      - name: sky_bg
        datatype: double
  - name: ccdvisit1
    index_columns: [ccdvisit_id]
    columns:
      - name: ccdvisit_id
        datatype: long
      - name: visit_id
        datatype: long
      - name: detector
        datatype: int
joins:
  - type: inner
    matches:
      exposure: [exposure_id]
      visit1: [visit_id]
`

// JoinsYAML is the fixture joins document, loaded alongside SchemaYAML.
const JoinsYAML = `joins:
  - type: inner
    matches:
      visit1: [visit_id]
      visit1_quicklook: [visit_id]
  - type: inner
    matches:
      visit1: [visit_id]
      ccdvisit1: [visit_id]
`

// ExposureRow is one row of the exposure fixture table.
type ExposureRow struct {
	ExposureID     int64
	DayObs         int64
	SeqNum         int64
	RA             *float64
	Dec            *float64
	PhysicalFilter string
	ObsStart       string
	ExpTime        float64
}

// VisitRow is one row of the visit1 fixture table.
type VisitRow struct {
	VisitID int64
	DayObs  int64
	SeqNum  int64
	Airmass float64
}

// QuicklookRow is one row of the visit1_quicklook fixture table.
type QuicklookRow struct {
	VisitID  int64
	PSFSigma *float64
	SkyBg    float64
}

// F returns a pointer to v.
func F(v float64) *float64 {
	return &v
}

// Exposures returns the exposure fixture rows in insertion order.
func Exposures() []ExposureRow {
	ra := []*float64{F(10), F(20), nil, F(40), F(50), F(60), F(70), nil, F(90), F(100)}
	dec := []*float64{F(-40), F(-30), nil, F(-10), F(0), F(10), nil, F(30), F(40), F(50)}
	filters := []string{
		"LSST g-band", "LSST r-band", "LSST i-band", "LSST z-band", "LSST y-band",
		"DECam g-band", "DECam r-band", "DECam i-band", "DECam z-band", "DECam y-band",
	}
	obsStart := []string{
		"2023-05-19 20:20:20", "2023-05-19 21:21:21", "2023-05-19 22:22:22", "2023-05-19 23:23:23", "2023-05-20 00:00:00",
		"2023-02-14 22:22:22", "2023-02-14 23:23:23", "2023-02-14 00:00:00", "2023-02-14 01:01:01", "2023-02-14 02:02:02",
	}
	expTime := []float64{30, 30, 10, 15, 15, 30, 30, 30, 15, 20}

	rows := make([]ExposureRow, 10)
	for i := range rows {
		dayObs := int64(20230519)
		if i >= 5 {
			dayObs = 20230214
		}
		rows[i] = ExposureRow{
			ExposureID:     int64(2 * i),
			DayObs:         dayObs,
			SeqNum:         int64(i),
			RA:             ra[i],
			Dec:            dec[i],
			PhysicalFilter: filters[i],
			ObsStart:       obsStart[i],
			ExpTime:        expTime[i],
		}
	}
	return rows
}

// Visits returns the visit1 fixture rows. Only the first eight exposures
// became visits.
func Visits() []VisitRow {
	exposures := Exposures()
	airmass := []float64{1.0, 1.1, 1.2, 1.3, 1.4, 1.5, 1.6, 1.7}
	rows := make([]VisitRow, len(airmass))
	for i := range rows {
		rows[i] = VisitRow{
			VisitID: exposures[i].ExposureID,
			DayObs:  exposures[i].DayObs,
			SeqNum:  exposures[i].SeqNum,
			Airmass: airmass[i],
		}
	}
	return rows
}

// Quicklooks returns the visit1_quicklook fixture rows. There is a quicklook
// row for every exposure id, including the two with no visit1 row.
func Quicklooks() []QuicklookRow {
	psf := []*float64{F(1.5), F(1.6), F(1.7), F(1.8), nil, F(2.0), F(2.1), F(2.2), F(2.3), F(2.4)}
	sky := []float64{100, 110, 120, 130, 140, 150, 160, 170, 180, 190}
	rows := make([]QuicklookRow, len(psf))
	for i := range rows {
		rows[i] = QuicklookRow{VisitID: int64(2 * i), PSFSigma: psf[i], SkyBg: sky[i]}
	}
	return rows
}

// fixtureDDL creates the deployed fixture tables. The %s verb is the
// (possibly namespace-qualified) table name.
var fixtureDDL = []struct {
	table string
	ddl   string
}{
	{"exposure", `CREATE TABLE %s (
		exposure_id INTEGER,
		day_obs INTEGER,
		seq_num INTEGER,
		ra DOUBLE PRECISION,
		dec DOUBLE PRECISION,
		physical_filter TEXT,
		obs_start TEXT,
		exp_time DOUBLE PRECISION
	)`},
	{"visit1", `CREATE TABLE %s (
		visit_id INTEGER,
		day_obs INTEGER,
		seq_num INTEGER,
		airmass DOUBLE PRECISION
	)`},
	{"visit1_quicklook", `CREATE TABLE %s (
		visit_id INTEGER,
		psf_sigma DOUBLE PRECISION,
		sky_bg DOUBLE PRECISION
	)`},
}

// NewDatabase creates and populates the fixture SQLite database in a
// temporary directory and returns its path.
func NewDatabase(t testing.TB) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "testdb.sqlite")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open fixture database: %v", err)
	}
	defer db.Close()

	if err := Populate(db, "", false); err != nil {
		t.Fatalf("populate fixture database: %v", err)
	}
	return path
}

// Populate creates the fixture tables in db and inserts the fixture rows.
// namespace, when set, is created as a schema and qualifies every table;
// numbered selects "$n" placeholders instead of "?".
func Populate(db *sql.DB, namespace string, numbered bool) error {
	name := func(table string) string {
		if namespace == "" {
			return table
		}
		return namespace + "." + table
	}
	insert := func(table string, n int) string {
		marks := make([]string, n)
		for i := range marks {
			marks[i] = "?"
			if numbered {
				marks[i] = fmt.Sprintf("$%d", i+1)
			}
		}
		return fmt.Sprintf("INSERT INTO %s VALUES (%s)", name(table), strings.Join(marks, ", "))
	}

	if namespace != "" {
		if _, err := db.Exec("CREATE SCHEMA IF NOT EXISTS " + namespace); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	for _, d := range fixtureDDL {
		if _, err := db.Exec(fmt.Sprintf(d.ddl, name(d.table))); err != nil {
			return fmt.Errorf("create table %s: %w", d.table, err)
		}
	}

	for _, r := range Exposures() {
		if _, err := db.Exec(
			insert("exposure", 8),
			r.ExposureID, r.DayObs, r.SeqNum, nullable(r.RA), nullable(r.Dec), r.PhysicalFilter, r.ObsStart, r.ExpTime,
		); err != nil {
			return fmt.Errorf("insert exposure: %w", err)
		}
	}
	for _, r := range Visits() {
		if _, err := db.Exec(
			insert("visit1", 4),
			r.VisitID, r.DayObs, r.SeqNum, r.Airmass,
		); err != nil {
			return fmt.Errorf("insert visit1: %w", err)
		}
	}
	for _, r := range Quicklooks() {
		if _, err := db.Exec(
			insert("visit1_quicklook", 3),
			r.VisitID, nullable(r.PSFSigma), r.SkyBg,
		); err != nil {
			return fmt.Errorf("insert visit1_quicklook: %w", err)
		}
	}
	return nil
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
