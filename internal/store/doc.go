// Package store holds the messages SMSHog has accepted.
//
// This package is internal to SMSHog and owns the authoritative collection
// of received SMS messages. The protocol dispatcher writes to it; the REST
// API and the event stream read from it.
//
// The main components are:
//
//   - [Store]: Interface defining the message operations
//   - [MemoryStore]: In-memory implementation with an optional snapshot file
//   - [Message]: An accepted publish request
//   - [Flusher]: Background loop that serializes snapshot writes
//
// MemoryStore is safe for concurrent access. Reads share a lock; mutations
// are exclusive, and a read issued after a mutation returns observes it.
//
// When a snapshot path is configured, the whole store is rewritten to disk
// after every mutation and on a fixed interval. Writes go to a temporary
// file that is renamed over the snapshot, so readers of the file never see
// a partial write. Flushing is best-effort: failures are logged and never
// reach the caller of a mutation.
package store
