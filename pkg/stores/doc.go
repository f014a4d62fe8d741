// Package stores persists the deployment record between invocations.
//
// Two backends implement RecordStore:
//
//   - FileStore keeps a YAML document that operators may read and edit by
//     hand. Writes are atomic and refuse to clobber a file that changed since
//     it was read.
//   - SQLiteStore keeps the record in a migrated SQLite database together with
//     the run history and the orchestrator event log.
//
// Both also serve as the orchestrator's pending-transaction journal, so a step
// whose confirmation was interrupted resumes by awaiting the journaled hash
// rather than submitting again.
package stores
