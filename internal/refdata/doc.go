// Package refdata holds the read-only reference data of a correction
// session: task, settings, grade levels, item list, corrector roster,
// essay and resources.
//
// Each store is a load-and-cache wrapper over one namespace of the durable
// local store. Data arrives either from a backend bootstrap payload
// (LoadFromData, which also persists it) or from the local store after a
// reload (LoadFromStorage). None of these stores carries sync state; the
// editable summary lives in the sync package.
package refdata
