// Package recorder persists per-epoch training metrics into one growing
// document per run.
//
// States:
//   - uninitialized -> active (New/Open: document inserted, id file written)
//   - active -> active (AppendEpoch: one record appended server-side)
//
// There is no closed state for the document. Close only releases the store
// connection owned by a Recorder created through Open.
//
// Epoch data is filtered to the configured variables, then unknown-typed
// leaves are resolved by the unknown-type policy, then the record is
// appended with a single targeted update. A failed append leaves both the
// stored document and the Recorder untouched, so callers may retry the
// same epoch; duplicates are stored as given.
//
// A Recorder is meant for one sequential training loop and is not safe for
// concurrent use.
package recorder
