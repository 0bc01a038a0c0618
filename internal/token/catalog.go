package token

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/roach88/dynq/internal/expr"
	"github.com/roach88/dynq/internal/ir"
)

// Options widen the subtokens a discovery returns.
type Options uint8

const (
	// CanElement exposes collection Element tokens (flattening).
	CanElement Options = 1 << iota
	// CanAnyAll exposes collection Any/All tokens (quantified filters).
	CanAnyAll
	// CanAggregate exposes aggregates, including the root Count.
	CanAggregate
)

// Has reports whether every flag of o2 is set.
func (o Options) Has(o2 Options) bool { return o&o2 == o2 }

// Precision is the finest date/time component discovery exposes.
type Precision int

const (
	PrecisionDays Precision = iota
	PrecisionHours
	PrecisionMinutes
	PrecisionSeconds
	PrecisionMilliseconds
)

var precisionNames = map[string]Precision{
	"days":         PrecisionDays,
	"hours":        PrecisionHours,
	"minutes":      PrecisionMinutes,
	"seconds":      PrecisionSeconds,
	"milliseconds": PrecisionMilliseconds,
}

// ParsePrecision parses "days" through "milliseconds".
func ParsePrecision(s string) (Precision, error) {
	p, ok := precisionNames[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("unknown date precision %q", s)
	}
	return p, nil
}

// DefaultCacheSize bounds the subtoken cache when no size is given.
const DefaultCacheSize = 4096

// Catalog discovers and parses the tokens of a schema's queries.
//
// Discovered subtoken lists are cached by (query, full key, options). The
// cache is owned by the catalog and safe to share: tokens never change once
// built.
type Catalog struct {
	schema     *ir.Schema
	precision  Precision
	auth       Authorizer
	extensions []Extension
	cacheSize  int
	cache      Cache

	collatorMu sync.Mutex
	collator   *collate.Collator
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithPrecision sets the finest date part exposed. Default: milliseconds.
func WithPrecision(p Precision) CatalogOption {
	return func(c *Catalog) { c.precision = p }
}

// WithAuthorizer filters discovery and parsing through a.
func WithAuthorizer(a Authorizer) CatalogOption {
	return func(c *Catalog) { c.auth = a }
}

// WithExtensions registers synthetic subtokens.
func WithExtensions(exts ...Extension) CatalogOption {
	return func(c *Catalog) { c.extensions = append(c.extensions, exts...) }
}

// WithCacheSize bounds the subtoken cache.
func WithCacheSize(n int) CatalogOption {
	return func(c *Catalog) { c.cacheSize = n }
}

// NewCatalog creates a catalog over schema.
func NewCatalog(schema *ir.Schema, opts ...CatalogOption) (*Catalog, error) {
	c := &Catalog{
		schema:    schema,
		precision: PrecisionMilliseconds,
		auth:      AllowAll{},
		cacheSize: DefaultCacheSize,
		collator:  collate.New(language.English),
	}
	for _, opt := range opts {
		opt(c)
	}
	cache, err := newCache(c.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("token cache: %w", err)
	}
	c.cache = cache
	return c, nil
}

// Schema returns the schema the catalog discovers tokens in.
func (c *Catalog) Schema() *ir.Schema { return c.schema }

// Authorizer returns the authorizer filtering the catalog.
func (c *Catalog) Authorizer() Authorizer { return c.auth }

// Columns returns the root tokens of a query: its columns in description
// order, then the root Count when opts has CanAggregate.
func (c *Catalog) Columns(desc ir.QueryDescription, opts Options) []Token {
	out := make([]Token, 0, len(desc.Columns)+1)
	for _, col := range desc.Columns {
		out = append(out, NewColumn(desc.QueryName, col))
	}
	if opts.Has(CanAggregate) {
		out = append(out, NewRootCount(desc.QueryName))
	}
	return out
}

// SubTokens returns the allowed children of parent, sorted: Id first,
// then ToString, then type casts, then by display text.
func (c *Catalog) SubTokens(parent Token, opts Options) []Token {
	key := cacheKey(parent, opts)
	if cached, ok := c.cache.Get(key); ok {
		return cached
	}

	all := c.discover(parent, opts)
	out := all[:0:0]
	for _, t := range all {
		if c.auth.IsAllowed(t) == "" {
			out = append(out, t)
		}
	}
	c.sort(out)

	c.cache.Set(key, out)
	return out
}

func cacheKey(t Token, opts Options) string {
	return fmt.Sprintf("%s|%s|%d", t.QueryName(), t.FullKey(), opts)
}

// discover lists every child of parent before authorization.
func (c *Catalog) discover(parent Token, opts Options) []Token {
	if _, ok := parent.(*Aggregate); ok {
		return nil
	}

	t := parent.Type()
	var out []Token
	switch t.Kind {
	case ir.KindDateTime:
		precision := c.precision
		if dp, ok := parent.(*DatePart); ok && (dp.Part == expr.PartDate || dp.Part == expr.PartMonthStart) {
			precision = PrecisionDays
		}
		out = append(out, datePartTokens(parent, precision)...)

	case ir.KindDecimal:
		out = append(out, newRound(parent, expr.RoundCeil), newRound(parent, expr.RoundFloor))

	case ir.KindLite:
		out = append(out, c.liteTokens(parent)...)

	case ir.KindEmbedded:
		for _, p := range c.schema.Properties(t) {
			out = append(out, newProperty(parent, p))
		}

	case ir.KindCollection:
		out = append(out, newCount(parent))
		if opts.Has(CanElement) && !HasAnyAll(parent) {
			out = append(out, newElement(parent, ModeElement))
		}
		if opts.Has(CanAnyAll) {
			out = append(out, newElement(parent, ModeAny), newElement(parent, ModeAll))
		}
	}

	for _, ext := range extensionsFor(c.extensions, parent) {
		dup := slices.ContainsFunc(out, func(t Token) bool { return t.Key() == ext.Key })
		if !dup {
			out = append(out, newExtended(parent, ext))
		}
	}

	if opts.Has(CanAggregate) && canAggregateBelow(parent) {
		out = append(out, aggregateTokens(parent)...)
	}
	return out
}

func (c *Catalog) liteTokens(parent Token) []Token {
	impl := parent.Type().Implementations
	if impl == nil || impl.ByAll {
		return nil
	}
	only, ok := impl.Only()
	if !ok {
		out := make([]Token, len(impl.Types))
		for i, typ := range impl.Types {
			out[i] = newAsType(parent, typ)
		}
		return out
	}
	entity, ok := c.schema.Entities[only]
	if !ok {
		return nil
	}
	out := []Token{newID(parent), newToString(parent, entity)}
	for _, p := range entity.Properties {
		out = append(out, newProperty(parent, p))
	}
	return out
}

func datePartTokens(parent Token, precision Precision) []Token {
	parts := []expr.DatePartKind{
		expr.PartYear, expr.PartMonth, expr.PartMonthStart, expr.PartDay,
		expr.PartDayOfYear, expr.PartDayOfWeek, expr.PartDate,
	}
	fine := []expr.DatePartKind{expr.PartHour, expr.PartMinute, expr.PartSecond, expr.PartMillisecond}
	for i, p := range fine {
		if precision >= Precision(i+1) {
			parts = append(parts, p)
		}
	}
	out := make([]Token, len(parts))
	for i, p := range parts {
		out[i] = newDatePart(parent, p)
	}
	return out
}

// canAggregateBelow is false under quantifiers. Under a plain element the
// rows are flattened before grouping, so the aggregate sees each element.
func canAggregateBelow(t Token) bool {
	return !HasAnyAll(t)
}

func aggregateTokens(parent Token) []Token {
	t := parent.Type()
	var fns []AggregateFunc
	switch t.Kind {
	case ir.KindInt, ir.KindDecimal:
		fns = []AggregateFunc{AggSum, AggAverage, AggMin, AggMax, AggCountDistinct}
	case ir.KindDateTime:
		fns = []AggregateFunc{AggMin, AggMax, AggCountDistinct}
	case ir.KindString, ir.KindBool, ir.KindEnum, ir.KindLite:
		fns = []AggregateFunc{AggCountDistinct}
	}
	out := make([]Token, len(fns))
	for i, fn := range fns {
		out[i] = newAggregate(parent, fn)
	}
	return out
}

func (c *Catalog) sort(tokens []Token) {
	c.collatorMu.Lock()
	defer c.collatorMu.Unlock()
	slices.SortStableFunc(tokens, func(a, b Token) int {
		if r, ok := priority(a.Key(), b.Key(), func(k string) bool { return k == "Id" }); ok {
			return r
		}
		if r, ok := priority(a.Key(), b.Key(), func(k string) bool { return k == "ToString" }); ok {
			return r
		}
		if r, ok := priority(a.Key(), b.Key(), func(k string) bool { return strings.HasPrefix(k, "(") }); ok {
			return r
		}
		if r := c.collator.CompareString(a.DisplayName(), b.DisplayName()); r != 0 {
			return r
		}
		return strings.Compare(a.Key(), b.Key())
	})
}

// priority orders keys matching isPriority first; ok is false when neither
// matches.
func priority(a, b string, isPriority func(string) bool) (int, bool) {
	pa, pb := isPriority(a), isPriority(b)
	switch {
	case pa && pb:
		return strings.Compare(a, b), true
	case pa:
		return -1, true
	case pb:
		return 1, true
	}
	return 0, false
}

// Cache holds discovered subtoken lists.
type Cache struct {
	cache *lru.TwoQueueCache[string, []Token]
}

func newCache(size int) (Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New2Q[string, []Token](size)
	if err != nil {
		return Cache{}, err
	}
	return Cache{cache: c}, nil
}

// Get returns a cached list.
func (c Cache) Get(key string) ([]Token, bool) {
	return c.cache.Get(key)
}

// Set stores a list.
func (c Cache) Set(key string, tokens []Token) {
	c.cache.Add(key, tokens)
}

// Len is the number of cached lists.
func (c Cache) Len() int {
	return c.cache.Len()
}

// CacheLen reports how many subtoken lists are cached.
func (c *Catalog) CacheLen() int {
	return c.cache.Len()
}
