package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/dynq/internal/dquery"
	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/token"
)

// QueryRequestDTO is the wire form of a table request. Tokens are full
// keys; values are plain JSON/YAML scalars.
type QueryRequestDTO struct {
	QueryName    string         `json:"queryName" yaml:"queryName"`
	Filters      []FilterDTO    `json:"filters,omitempty" yaml:"filters,omitempty"`
	Orders       []OrderDTO     `json:"orders,omitempty" yaml:"orders,omitempty"`
	Columns      []ColumnDTO    `json:"columns,omitempty" yaml:"columns,omitempty"`
	Pagination   *PaginationDTO `json:"pagination,omitempty" yaml:"pagination,omitempty"`
	SystemTime   *ir.SystemTime `json:"systemTime,omitempty" yaml:"systemTime,omitempty"`
	GroupResults bool           `json:"groupResults,omitempty" yaml:"groupResults,omitempty"`
}

// FilterDTO is a condition (Token, Operation, Value) or, when
// GroupOperation is set, a group of Filters. A group Token is optional.
type FilterDTO struct {
	Token          string      `json:"token,omitempty" yaml:"token,omitempty"`
	Operation      string      `json:"operation,omitempty" yaml:"operation,omitempty"`
	Value          any         `json:"value,omitempty" yaml:"value,omitempty"`
	GroupOperation string      `json:"groupOperation,omitempty" yaml:"groupOperation,omitempty"`
	Filters        []FilterDTO `json:"filters,omitempty" yaml:"filters,omitempty"`
}

// Order types accepted by OrderDTO.
const (
	OrderAscending  = "Ascending"
	OrderDescending = "Descending"
)

// OrderDTO is one sort key. OrderType defaults to Ascending.
type OrderDTO struct {
	Token     string `json:"token" yaml:"token"`
	OrderType string `json:"orderType,omitempty" yaml:"orderType,omitempty"`
}

// ColumnDTO is one requested column.
type ColumnDTO struct {
	Token       string `json:"token" yaml:"token"`
	DisplayName string `json:"displayName,omitempty" yaml:"displayName,omitempty"`
}

// PaginationDTO selects All, Firsts (ElementsPerPage rows) or Paginate
// (page CurrentPage of ElementsPerPage rows).
type PaginationDTO struct {
	Mode            string `json:"mode" yaml:"mode"`
	ElementsPerPage int    `json:"elementsPerPage,omitempty" yaml:"elementsPerPage,omitempty"`
	CurrentPage     int    `json:"currentPage,omitempty" yaml:"currentPage,omitempty"`
}

// ValueRequestDTO is the wire form of a value request.
type ValueRequestDTO struct {
	QueryName      string         `json:"queryName" yaml:"queryName"`
	Filters        []FilterDTO    `json:"filters,omitempty" yaml:"filters,omitempty"`
	ValueToken     string         `json:"valueToken,omitempty" yaml:"valueToken,omitempty"`
	MultipleValues bool           `json:"multipleValues,omitempty" yaml:"multipleValues,omitempty"`
	SystemTime     *ir.SystemTime `json:"systemTime,omitempty" yaml:"systemTime,omitempty"`
}

// UniqueEntityRequestDTO is the wire form of a unique entity request.
type UniqueEntityRequestDTO struct {
	QueryName  string            `json:"queryName" yaml:"queryName"`
	Filters    []FilterDTO       `json:"filters,omitempty" yaml:"filters,omitempty"`
	Orders     []OrderDTO        `json:"orders,omitempty" yaml:"orders,omitempty"`
	UniqueType dquery.UniqueType `json:"uniqueType" yaml:"uniqueType"`
	SystemTime *ir.SystemTime    `json:"systemTime,omitempty" yaml:"systemTime,omitempty"`
}

// EntitiesRequestDTO is the wire form of an entities (lites or full)
// request.
type EntitiesRequestDTO struct {
	QueryName  string         `json:"queryName" yaml:"queryName"`
	Filters    []FilterDTO    `json:"filters,omitempty" yaml:"filters,omitempty"`
	Orders     []OrderDTO     `json:"orders,omitempty" yaml:"orders,omitempty"`
	Count      *int           `json:"count,omitempty" yaml:"count,omitempty"`
	SystemTime *ir.SystemTime `json:"systemTime,omitempty" yaml:"systemTime,omitempty"`
}

// Token options per request part. Aggregates are only reachable in
// grouped requests.
func filterOptions(grouped bool) token.Options {
	o := token.CanElement | token.CanAnyAll
	if grouped {
		o |= token.CanAggregate
	}
	return o
}

func columnOptions(grouped bool) token.Options {
	o := token.CanElement
	if grouped {
		o |= token.CanAggregate
	}
	return o
}

// decoder converts DTOs against one query description. Token errors are
// collected so that a request reports every bad token at once.
type decoder struct {
	catalog *token.Catalog
	desc    ir.QueryDescription
	errs    []error
}

func (d *decoder) parse(key string, opts token.Options) token.Token {
	t, err := d.catalog.Parse(d.desc, key, opts)
	if err != nil {
		d.errs = append(d.errs, err)
		return nil
	}
	return t
}

func (d *decoder) fail(format string, args ...any) {
	d.errs = append(d.errs, &dquery.QueryError{Code: dquery.ErrCodeInvalidValue, Message: fmt.Sprintf(format, args...)})
}

func (d *decoder) err() error {
	return errors.Join(d.errs...)
}

func (d *decoder) filters(dtos []FilterDTO, opts token.Options) []dquery.Filter {
	out := make([]dquery.Filter, 0, len(dtos))
	for _, f := range dtos {
		if n := d.filter(f, opts); n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (d *decoder) filter(f FilterDTO, opts token.Options) dquery.Filter {
	if f.GroupOperation != "" {
		op := dquery.GroupOperation(f.GroupOperation)
		if op != dquery.GroupAnd && op != dquery.GroupOr {
			d.fail("unknown group operation %q", f.GroupOperation)
			return nil
		}
		g := &dquery.FilterGroup{Operation: op, Filters: d.filters(f.Filters, opts)}
		if f.Token != "" {
			g.Token = d.parse(f.Token, opts)
		}
		return g
	}
	if f.Token == "" {
		d.fail("filter without token")
		return nil
	}
	if f.Operation == "" {
		d.fail("filter on %s without operation", f.Token)
		return nil
	}
	t := d.parse(f.Token, opts)
	if t == nil {
		return nil
	}
	return &dquery.FilterCondition{Token: t, Operation: token.Operation(f.Operation), Value: f.Value}
}

func (d *decoder) orders(dtos []OrderDTO, opts token.Options) []dquery.Order {
	out := make([]dquery.Order, 0, len(dtos))
	for _, o := range dtos {
		var desc bool
		switch strings.ToLower(o.OrderType) {
		case "", "ascending", "asc":
		case "descending", "desc":
			desc = true
		default:
			d.fail("order on %s: unknown order type %q", o.Token, o.OrderType)
			continue
		}
		if t := d.parse(o.Token, opts); t != nil {
			out = append(out, dquery.Order{Token: t, Desc: desc})
		}
	}
	return out
}

func (d *decoder) columns(dtos []ColumnDTO, opts token.Options) []dquery.Column {
	out := make([]dquery.Column, 0, len(dtos))
	for _, c := range dtos {
		if t := d.parse(c.Token, opts); t != nil {
			out = append(out, dquery.Column{Token: t, DisplayName: c.DisplayName})
		}
	}
	return out
}

// ToPagination converts the wire pagination. A missing pagination means
// All.
func ToPagination(p *PaginationDTO) (dquery.Pagination, error) {
	if p == nil {
		return dquery.All{}, nil
	}
	var out dquery.Pagination
	switch dquery.PaginationMode(p.Mode) {
	case dquery.ModeAll, "":
		out = dquery.All{}
	case dquery.ModeFirsts:
		out = dquery.Firsts{N: p.ElementsPerPage}
	case dquery.ModePaginate:
		out = dquery.Paginate{PageSize: p.ElementsPerPage, Page: p.CurrentPage}
	default:
		return nil, &dquery.QueryError{Code: dquery.ErrCodeUnsupportedPagination, Message: fmt.Sprintf("unknown pagination mode %q", p.Mode)}
	}
	if err := dquery.ValidatePagination(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ToQueryRequest resolves every token of dto against desc.
func ToQueryRequest(catalog *token.Catalog, desc ir.QueryDescription, dto *QueryRequestDTO) (*dquery.QueryRequest, error) {
	d := &decoder{catalog: catalog, desc: desc}
	req := &dquery.QueryRequest{
		QueryName:    desc.QueryName,
		Filters:      d.filters(dto.Filters, filterOptions(dto.GroupResults)),
		Orders:       d.orders(dto.Orders, columnOptions(dto.GroupResults)),
		Columns:      d.columns(dto.Columns, columnOptions(dto.GroupResults)),
		SystemTime:   dto.SystemTime,
		GroupResults: dto.GroupResults,
	}
	p, err := ToPagination(dto.Pagination)
	if err != nil {
		d.errs = append(d.errs, err)
	}
	req.Pagination = p
	if err := d.err(); err != nil {
		return nil, err
	}
	return req, nil
}

// ToValueRequest resolves the tokens of a value request. The value token
// may be an aggregate.
func ToValueRequest(catalog *token.Catalog, desc ir.QueryDescription, dto *ValueRequestDTO) (*dquery.QueryValueRequest, error) {
	d := &decoder{catalog: catalog, desc: desc}
	req := &dquery.QueryValueRequest{
		QueryName:      desc.QueryName,
		Filters:        d.filters(dto.Filters, filterOptions(false)),
		MultipleValues: dto.MultipleValues,
		SystemTime:     dto.SystemTime,
	}
	if dto.ValueToken != "" {
		req.ValueToken = d.parse(dto.ValueToken, token.CanElement|token.CanAggregate)
	}
	if err := d.err(); err != nil {
		return nil, err
	}
	return req, nil
}

// ToUniqueEntityRequest resolves the tokens of a unique entity request.
func ToUniqueEntityRequest(catalog *token.Catalog, desc ir.QueryDescription, dto *UniqueEntityRequestDTO) (*dquery.UniqueEntityRequest, error) {
	d := &decoder{catalog: catalog, desc: desc}
	req := &dquery.UniqueEntityRequest{
		QueryName:  desc.QueryName,
		Filters:    d.filters(dto.Filters, filterOptions(false)),
		Orders:     d.orders(dto.Orders, columnOptions(false)),
		UniqueType: dto.UniqueType,
		SystemTime: dto.SystemTime,
	}
	if req.UniqueType == "" {
		req.UniqueType = dquery.UniqueFirstOrDefault
	}
	if err := d.err(); err != nil {
		return nil, err
	}
	return req, nil
}

// ToEntitiesRequest resolves the tokens of an entities request.
func ToEntitiesRequest(catalog *token.Catalog, desc ir.QueryDescription, dto *EntitiesRequestDTO) (*dquery.QueryEntitiesRequest, error) {
	d := &decoder{catalog: catalog, desc: desc}
	req := &dquery.QueryEntitiesRequest{
		QueryName:  desc.QueryName,
		Filters:    d.filters(dto.Filters, filterOptions(false)),
		Orders:     d.orders(dto.Orders, columnOptions(false)),
		Count:      dto.Count,
		SystemTime: dto.SystemTime,
	}
	if dto.Count != nil && *dto.Count < 0 {
		d.fail("count must not be negative, got %d", *dto.Count)
	}
	if err := d.err(); err != nil {
		return nil, err
	}
	return req, nil
}
