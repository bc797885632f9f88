// Package harness runs command scenarios against a command handler and
// checks the replies.
//
// A scenario is a recorded dashboard session: an ordered list of commands,
// each with the reply it is expected to produce. Scenarios catch regressions
// in query results after a schema, joins or database change.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: quicklook_night
//	description: "PSF widths for one observing night"
//	database: latiss
//	steps:
//	  - command: load columns
//	    parameters:
//	      columns: [visit1_quicklook.psf_sigma]
//	      day_obs: "2023-05-19"
//	    expect:
//	      type: table columns
//	      rows: 3
//	  - command: get bounds
//	    parameters: { column: exposure.dec }
//	    expect:
//	      type: column bounds
//	      content: { bounds: [-40, 50] }
//
// The scenario's database is added to every step whose parameters do not
// name one. Expected content is a subset match: only the keys given are
// compared, and numbers compare by value whatever their JSON form.
//
// # Golden Files
//
// RunWithGolden snapshots the full trace of replies to
// testdata/golden/{name}.golden. To regenerate golden files, run:
//
//	go test ./... -update
package harness
