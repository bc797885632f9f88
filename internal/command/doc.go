// Package command decodes worker messages, runs them against the configured
// databases and encodes the replies.
//
// A request is a JSON object naming a command and its parameters:
//
//	{"name": "get bounds", "parameters": {"database": "testdb", "column": "exposure.dec"}}
//
// Every request produces exactly one reply, either the command's response
//
//	{"type": "column bounds", "content": {"column": "exposure.dec", "bounds": [-40, 50]}}
//
// or an error envelope:
//
//	{"type": "error", "content": {"error": "execution error", "description": "..."}}
//
// Failures before a handler runs (undecodable JSON, a missing or unknown
// name, missing or unknown parameters) are parsing errors. Anything that
// fails inside a handler is an execution error and no partial content is
// returned.
//
// Commands:
//
//	load columns  -> table columns    columns of one or more tables, filtered and optionally aggregated
//	get bounds    -> column bounds    [min, max] of a column
//	load schema   -> database schema  the reconciled schema of a database
package command
