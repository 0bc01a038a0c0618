// Package ir provides the value and metadata types every other dynq package
// shares.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - numbers are int64 or exact decimals
//   - Times are UTC with millisecond precision (TimeLayout)
//   - A row (tuple) is an IRArray indexed by slot
//   - Lites compare by id; ids are unique across entity types
//   - Value identity (group keys, distinct counts, unique values) goes
//     through CanonicalKey, never through ==
package ir
