// Package store provides the SQLite database the SQL provider queries.
//
// Tables are generated from the schema (see querysql's layout):
//   - one e_<entity> table per entity type holding every version
//   - one c_<entity>__<property> child table per collection property
//   - dynq_entity, mapping each id to its entity type
//   - dynq_meta, recording the layout fingerprint and versions
//
// # Critical Patterns
//
// Values are written with querysql.Encode and read with querysql.Decode,
// so the compiled SQL and the stored bytes always agree on representation.
//
// Lites returned by a query carry only an id (and a type when the column
// has a single implementation); CompleteLites fills polymorphic types from
// dynq_entity and the display text from the entity's latest version.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Child rows reference their parent version
package store
