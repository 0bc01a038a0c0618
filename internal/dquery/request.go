package dquery

import (
	"fmt"
	"slices"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/token"
)

// Filter is a node of a filter tree: a condition or a group.
//
// This is a sealed interface - only types in this package implement it.
type Filter interface {
	// Conditions flattens the tree into its primitive conditions.
	Conditions() []*FilterCondition
	filterNode()
}

// FilterCondition compares a token to a value. Value is a raw scalar (or
// a slice of them for IsIn/IsNotIn) coerced to the token type when the
// predicate is built; nil tests for null.
type FilterCondition struct {
	Token     token.Token
	Operation token.Operation
	Value     any
}

// GroupOperation joins the members of a FilterGroup.
type GroupOperation string

const (
	GroupAnd GroupOperation = "And"
	GroupOr  GroupOperation = "Or"
)

// FilterGroup combines filters with And or Or. When Token is an Any/All
// token the whole group is tested against each element of its collection.
type FilterGroup struct {
	Token     token.Token
	Operation GroupOperation
	Filters   []Filter
}

func (*FilterCondition) filterNode() {}
func (*FilterGroup) filterNode()     {}

func (c *FilterCondition) Conditions() []*FilterCondition { return []*FilterCondition{c} }

func (g *FilterGroup) Conditions() []*FilterCondition {
	var out []*FilterCondition
	for _, f := range g.Filters {
		out = append(out, f.Conditions()...)
	}
	return out
}

// filterTokens returns every token a filter references, group tokens included.
func filterTokens(f Filter) []token.Token {
	switch n := f.(type) {
	case *FilterCondition:
		return []token.Token{n.Token}
	case *FilterGroup:
		var out []token.Token
		if n.Token != nil {
			out = append(out, n.Token)
		}
		for _, sub := range n.Filters {
			out = append(out, filterTokens(sub)...)
		}
		return out
	}
	return nil
}

// IsAggregateFilter reports filters over aggregates; they apply after
// grouping.
func IsAggregateFilter(f Filter) bool {
	return slices.ContainsFunc(filterTokens(f), token.IsAggregate)
}

// Order is one sort key of a request.
type Order struct {
	Token token.Token
	Desc  bool
}

// Column is a requested result column. DisplayName overrides the token's.
type Column struct {
	Token       token.Token
	DisplayName string
}

// Name returns the column's display name.
func (c Column) Name() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.Token.DisplayName()
}

// PaginationMode names a Pagination variant.
type PaginationMode string

const (
	ModeAll      PaginationMode = "All"
	ModeFirsts   PaginationMode = "Firsts"
	ModePaginate PaginationMode = "Paginate"
)

// Pagination selects how many rows a request materializes.
//
// This is a sealed interface - only All, Firsts and Paginate implement it.
type Pagination interface {
	Mode() PaginationMode
	paginationNode()
}

// All materializes every row; the total is the row count.
type All struct{}

// Firsts materializes the first N rows; the total stays unknown.
type Firsts struct {
	N int
}

// Paginate materializes page Page (1-based) of PageSize rows.
type Paginate struct {
	PageSize int
	Page     int
}

func (All) Mode() PaginationMode      { return ModeAll }
func (Firsts) Mode() PaginationMode   { return ModeFirsts }
func (Paginate) Mode() PaginationMode { return ModePaginate }

func (All) paginationNode()      {}
func (Firsts) paginationNode()   {}
func (Paginate) paginationNode() {}

// ValidatePagination rejects unknown variants and out-of-range sizes.
func ValidatePagination(p Pagination) error {
	switch v := p.(type) {
	case All:
		return nil
	case Firsts:
		if v.N < 0 {
			return &QueryError{Code: ErrCodeInvalidValue, Message: fmt.Sprintf("firsts: negative count %d", v.N)}
		}
		return nil
	case Paginate:
		if v.PageSize <= 0 || v.Page < 1 {
			return &QueryError{Code: ErrCodeInvalidValue, Message: fmt.Sprintf("paginate: page size %d and page %d must be positive", v.PageSize, v.Page)}
		}
		return nil
	}
	return &QueryError{Code: ErrCodeUnsupportedPagination, Message: fmt.Sprintf("pagination %T not supported", p)}
}

// QueryRequest is a full table request.
type QueryRequest struct {
	QueryName    string
	Filters      []Filter
	Orders       []Order
	Columns      []Column
	Pagination   Pagination
	SystemTime   *ir.SystemTime
	GroupResults bool
}

// AllTokens returns every token the request references.
func (r *QueryRequest) AllTokens() []token.Token {
	var out []token.Token
	for _, f := range r.Filters {
		out = append(out, filterTokens(f)...)
	}
	for _, o := range r.Orders {
		out = append(out, o.Token)
	}
	for _, c := range r.Columns {
		out = append(out, c.Token)
	}
	return out
}

// Multiplications returns the Element tokens the request uses, outer
// collections first. Each one multiplies rows through a SelectMany.
func (r *QueryRequest) Multiplications() []*token.Element {
	return multiplications(r.AllTokens())
}

func multiplications(tokens []token.Token) []*token.Element {
	seen := map[string]bool{}
	var out []*token.Element
	for _, t := range tokens {
		for _, e := range token.Elements(t) {
			if e.Mode != token.ModeElement || seen[e.FullKey()] {
				continue
			}
			seen[e.FullKey()] = true
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b *token.Element) int {
		return len(a.FullKey()) - len(b.FullKey())
	})
	return out
}

// ColumnTokens returns the column tokens without duplicates.
func (r *QueryRequest) ColumnTokens() []token.Token {
	tokens := make([]token.Token, len(r.Columns))
	for i, c := range r.Columns {
		tokens[i] = c.Token
	}
	return distinct(tokens)
}

// IsMultiKeyGrouping reports a grouping request with at least two
// non-aggregate columns.
func (r *QueryRequest) IsMultiKeyGrouping() bool {
	if !r.GroupResults {
		return false
	}
	n := 0
	for _, c := range r.Columns {
		if !token.IsAggregate(c.Token) {
			n++
		}
	}
	return n >= 2
}

func distinct(tokens []token.Token) []token.Token {
	out := make([]token.Token, 0, len(tokens))
	for _, t := range tokens {
		if !slices.ContainsFunc(out, func(o token.Token) bool { return token.Equal(o, t) }) {
			out = append(out, t)
		}
	}
	return out
}

// UniqueType selects how ExecuteUniqueEntity and Unique reduce a sequence
// to one element.
type UniqueType string

const (
	// UniqueFirst fails on an empty sequence.
	UniqueFirst UniqueType = "First"
	// UniqueFirstOrDefault yields the zero value on an empty sequence.
	UniqueFirstOrDefault UniqueType = "FirstOrDefault"
	// UniqueSingle fails unless there is exactly one element.
	UniqueSingle UniqueType = "Single"
	// UniqueSingleOrDefault fails on more than one element.
	UniqueSingleOrDefault UniqueType = "SingleOrDefault"
	// UniqueOnly yields the element when there is exactly one, otherwise
	// the zero value.
	UniqueOnly UniqueType = "Only"
)

// Unique reduces items to one element according to u.
func Unique[T any](items []T, u UniqueType) (T, error) {
	var zero T
	switch u {
	case UniqueFirst:
		if len(items) == 0 {
			return zero, &QueryError{Code: ErrCodeUniqueViolation, Message: "First: sequence is empty"}
		}
		return items[0], nil
	case UniqueFirstOrDefault:
		if len(items) == 0 {
			return zero, nil
		}
		return items[0], nil
	case UniqueSingle:
		if len(items) != 1 {
			return zero, &QueryError{Code: ErrCodeUniqueViolation, Message: fmt.Sprintf("Single: sequence has %s", elements(len(items)))}
		}
		return items[0], nil
	case UniqueSingleOrDefault:
		if len(items) > 1 {
			return zero, &QueryError{Code: ErrCodeUniqueViolation, Message: fmt.Sprintf("SingleOrDefault: sequence has %s", elements(len(items)))}
		}
		if len(items) == 0 {
			return zero, nil
		}
		return items[0], nil
	case UniqueOnly:
		if len(items) != 1 {
			return zero, nil
		}
		return items[0], nil
	}
	return zero, &QueryError{Code: ErrCodeInvalidValue, Message: fmt.Sprintf("unknown unique type %q", u)}
}

// uniqueLimit is how many rows a UniqueType needs to decide.
func uniqueLimit(u UniqueType) int {
	switch u {
	case UniqueFirst, UniqueFirstOrDefault:
		return 1
	}
	return 2
}

func elements(n int) string {
	if n == 0 {
		return "no elements"
	}
	return fmt.Sprintf("%d elements", n)
}
