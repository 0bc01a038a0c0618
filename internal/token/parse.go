package token

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/dynq/internal/ir"
)

var countWherePattern = regexp.MustCompile(`^Count\((\w+),(.*)\)$`)

// Parse resolves a full key against a query description. The first
// segment names a column (or the root Count when opts has CanAggregate);
// each further segment names a subtoken of the previous one.
//
// Count-with-condition aggregates are not discoverable and are only
// reachable by parsing: "Total.Count(GreaterThan,100)".
func (c *Catalog) Parse(desc ir.QueryDescription, fullKey string, opts Options) (Token, error) {
	if strings.TrimSpace(fullKey) == "" {
		return nil, &Error{Code: CodeNotFound, Path: fullKey, Message: "empty token"}
	}
	segments := Path(fullKey)

	var current Token
	for i, seg := range segments {
		var candidates []Token
		if i == 0 {
			candidates = c.Columns(desc, opts)
		} else {
			candidates = c.SubTokens(current, opts)
		}

		next := find(candidates, seg)
		if next == nil && i > 0 {
			// Disallowed tokens are missing from SubTokens; report them as such.
			if hidden := find(c.discover(current, opts), seg); hidden != nil {
				return nil, &Error{Code: CodeNotAllowed, Path: fullKey, Segment: seg, Message: c.auth.IsAllowed(hidden)}
			}
			if opts.Has(CanAggregate) {
				agg, err := c.parseCountWhere(current, seg)
				if err != nil {
					return nil, &Error{Code: CodeNotFound, Path: fullKey, Segment: seg, Message: err.Error()}
				}
				if agg != nil {
					next = agg
				}
			}
		}
		if next == nil {
			return nil, &Error{Code: CodeNotFound, Path: fullKey, Segment: seg, Message: notFoundMessage(desc.QueryName, current, candidates)}
		}
		if reason := c.auth.IsAllowed(next); reason != "" {
			return nil, &Error{Code: CodeNotAllowed, Path: fullKey, Segment: seg, Message: reason}
		}
		current = next
	}
	return current, nil
}

// ParseAll resolves several keys, reporting every failure at once.
func (c *Catalog) ParseAll(desc ir.QueryDescription, keys []string, opts Options) ([]Token, error) {
	out := make([]Token, 0, len(keys))
	var errs []error
	for _, k := range keys {
		t, err := c.Parse(desc, k, opts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, t)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func find(tokens []Token, key string) Token {
	for _, t := range tokens {
		if t.Key() == key {
			return t
		}
	}
	return nil
}

func (c *Catalog) parseCountWhere(parent Token, seg string) (*Aggregate, error) {
	m := countWherePattern.FindStringSubmatch(seg)
	if m == nil || !canAggregateBelow(parent) {
		return nil, nil
	}
	op := Operation(m[1])
	if op.IsList() {
		return nil, fmt.Errorf("%s takes a list and cannot condition a count", op)
	}
	if reason := CanFilterWith(parent, op); reason != "" {
		return nil, fmt.Errorf("%s", reason)
	}
	var value ir.IRValue = ir.IRNull{}
	if m[2] != "null" {
		v, err := ir.CoerceScalar(parent.Type(), m[2])
		if err != nil {
			return nil, fmt.Errorf("count condition value: %w", err)
		}
		value = v
	}
	return newCountWhere(parent, op, value), nil
}

func notFoundMessage(query string, parent Token, candidates []Token) string {
	keys := make([]string, len(candidates))
	for i, t := range candidates {
		keys[i] = t.Key()
	}
	slices.Sort(keys)
	where := "query " + query
	if parent != nil {
		where = parent.FullKey()
	}
	if len(keys) == 0 {
		return fmt.Sprintf("%s has no subtokens", where)
	}
	return fmt.Sprintf("not found in %s (expected one of %s)", where, strings.Join(keys, ", "))
}

