// Package harness runs conformance scenarios against every query backend.
//
// A scenario is a list of engine requests with expectations. Each scenario
// runs on the in-memory backend (the reference) and on an in-memory SQLite
// database. Expectations are checked on both, and the two backends must
// produce byte-identical outputs for every step.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	schema: schema/        # optional, with data
//	data: data.yaml        # optional, with schema
//	steps:
//	  - name: first_page
//	    query:
//	      queryName: Orders
//	      filters: [{ token: Total, operation: GreaterThan, value: 100 }]
//	      orders: [{ token: OrderDate, orderType: Descending }]
//	      columns: [{ token: Number }, { token: Customer }]
//	      pagination: { mode: Paginate, elementsPerPage: 10, currentPage: 1 }
//	    expect:
//	      rows: 10
//	      total: 12
//	  - name: count
//	    value: { queryName: Orders }
//	    expect: { value: "25" }
//
// A step carries exactly one of query, value, unique or entities. Without
// schema and data the shared Orders fixture is used.
//
// # Expectations
//
//   - error: the step fails with this code (TOKEN_NOT_FOUND, ...)
//   - rows, total, no_total: table size and total element count
//   - entities: row entities (or returned lites) as "Type;id" keys
//   - columns: per column, every cell in display form
//   - value: the display form of a value or unique entity
//
// Null cells display as "null" and lites as their "Type;id" key.
//
// # Deterministic Testing
//
// Every backend gets a fresh engine with sequential request ids, so
// outputs are reproducible and can be compared against golden snapshots
// (see RunWithGolden).
package harness
