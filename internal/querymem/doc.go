// Package querymem interprets query plans over in-memory rows.
//
// It is the reference interpreter: querysql must return what Run returns,
// row for row. The exported row operators (Filter, Sort, Project, Flatten,
// Group) are also what the pipeline uses on already-materialized results.
package querymem
