// Package compiler turns CUE schema definitions into ir.Schema.
//
// A schema source has three top-level sections:
//
//	entity:   Name: { toStr, temporal?, properties }
//	embedded: Name: { properties }
//	query:    Name: { entity, columns }
//
// CompileSchema checks structure and reports CompileError with the CUE
// position. Validate checks the compiled schema as a whole and returns
// every finding with an E-code; Build and LoadDir run both.
//
// # Critical Patterns
//
// CRITICAL: collection elements carry an Owner (entity + property). The
// SQL interpreter derives child table names from it, so CompileEntity
// sets it and Validate rejects schemas built without it.
//
// Embedded types may not contain themselves; AnalyzeEmbeddedCycles
// finds such types with Tarjan's algorithm.
package compiler
