// Package engine implements the document sync engine of the corrector
// client.
//
// The engine owns the editable summary in two snapshots: the stored
// snapshot, which is always a value that was durably written to the local
// store, and the current snapshot, which is bound to the editing surface
// and may run ahead by at most one poll interval. Two periodic operations
// reconcile them:
//
//   - the dirty-check commits the current snapshot to the local store when
//     anything changed, and
//   - the send attempt pushes the stored snapshot to the backend.
//
// Both operations are rate limited and guarded by a compare-and-swap flag:
// at most one instance of each is in flight, overlapping triggers are
// dropped, not queued. Send failures are silent; the document simply stays
// flagged as unsent and the next cadence window retries, indefinitely.
//
// Authorization is a one-way transition into a terminal state. Once the
// stored snapshot is authorized the document accepts no further edits.
package engine
