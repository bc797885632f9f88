package testutil

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDatabase_PopulatesTables(t *testing.T) {
	path := NewDatabase(t)

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	counts := map[string]int{
		"exposure":         len(Exposures()),
		"visit1":           len(Visits()),
		"visit1_quicklook": len(Quicklooks()),
	}
	for table, want := range counts {
		var got int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&got))
		assert.Equal(t, want, got, table)
	}
}

func TestNewDatabase_KeepsNulls(t *testing.T) {
	db, err := sql.Open("sqlite3", NewDatabase(t))
	require.NoError(t, err)
	defer db.Close()

	var nulls int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM exposure WHERE dec IS NULL").Scan(&nulls))
	assert.Equal(t, 2, nulls)
}

func TestVisits_FollowExposures(t *testing.T) {
	exposures := Exposures()
	for i, v := range Visits() {
		assert.Equal(t, exposures[i].ExposureID, v.VisitID)
		assert.Equal(t, exposures[i].SeqNum, v.SeqNum)
	}
}
