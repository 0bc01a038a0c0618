// Package provider implements the backing queryables the pipeline hands its
// plans to.
//
// Two providers exist side by side:
//   - SQLite compiles plans with querysql and runs them on a store
//   - Memory interprets plans with querymem over a dataset
//
// Both return identical rows for the same plan and data, in the same order,
// with every lite carrying its entity type and display text. Tests in this
// package hold them to that.
package provider
