// Package runlog keeps the history of planning runs. Each run is appended as
// a Record to a Store: a JSONL file, a rotating JSONL file or a SQLite
// database, selected by Config.
package runlog
