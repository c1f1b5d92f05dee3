// Package localdb defines the domain types for the local database access
// worker: SQL statements with positional bind values, ordered result rows,
// and the error taxonomy surfaced across the worker protocol.
//
// The worker itself lives in the worker package. It owns the only handle to
// an embedded SQLite database, consumes serialized requests from a queue one
// at a time, and produces exactly one response per request in arrival order.
// Mutating requests execute as all-or-nothing transactional batches; reads
// bypass the transaction bracket and materialise their rows before the
// response is sent.
//
// Callers do not touch the database handle directly. They speak the JSON
// protocol defined in the protocol package, usually through the client
// package which correlates requests with responses.
package localdb
