// Package store provides the durable local store for the corrector client.
//
// The store is a SQLite-backed key/value table scoped by namespace, one
// namespace per logical document (identity, settings, task, levels, items,
// correctors, essay, resources, summary). It survives process restarts and
// is cleared wholesale when the session context changes.
//
// The store offers no transactional guarantee across keys. Callers that
// need crash recoverability order their writes accordingly (the sync engine
// writes its dirty flag before the content it covers).
package store
