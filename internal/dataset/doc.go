// Package dataset is the in-memory store of entity versions.
//
// A Dataset is the source the memory provider interprets plans against and
// the seed the SQLite provider is loaded from, so both backends see the
// same rows. Fixtures are YAML (see Load).
//
// Version rules:
//   - ids are positive and unique across entity types
//   - temporal entities have at most one current (open-ended) version per id
//     and versions of one id never overlap
//   - non-temporal entities have exactly one unbounded version per id
package dataset
