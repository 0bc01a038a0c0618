package compiler

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/dynq/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrInvalidName = "E100" // entity, property or column name is not an identifier

	// Entity errors (E101-E109)
	ErrMissingToStr       = "E101" // toStr is required and must name a property
	ErrToStrNotScalar     = "E102" // toStr must name a scalar or lite property
	ErrLiteNoImpl         = "E103" // lite type without implementations
	ErrInvalidFieldType   = "E104" // unknown type kind
	ErrDuplicateName      = "E105" // duplicate column name
	ErrUnknownReference   = "E106" // lite implementation or embedded type not declared
	ErrEnumNoValues       = "E107" // enum without values
	ErrCollectionNesting  = "E108" // collection inside an embedded value or another collection
	ErrCollectionOwner    = "E109" // collection element does not name its owner
	ErrEmbeddedCycle      = "E110" // embedded type contains itself
	ErrReservedName       = "E111" // property uses a reserved name
	ErrNullableCollection = "E112" // collections are never nullable

	// Query errors (E120-E129)
	ErrUnknownQueryEntity   = "E120" // query entity not declared
	ErrUnknownQueryProperty = "E121" // query column maps to an unknown property
	ErrUnselectableColumn   = "E122" // query column is an embedded value or collection
)

// Reserved property names: the implicit identifier and the entity column.
var reservedNames = []string{"Id", ir.EntityColumnName}

var identPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors joins every finding of one validation run.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	lines := make([]string, len(es))
	for i, e := range es {
		lines[i] = e.Error()
	}
	return strings.Join(lines, "\n")
}

// Validate checks a compiled schema and returns every problem found
// (does not fail-fast). Findings are ordered by entity, embedded type,
// then query, each sorted by name.
func Validate(schema *ir.Schema) []ValidationError {
	var errs []ValidationError

	for _, name := range schema.EntityNames() {
		errs = append(errs, validateEntity(schema, schema.Entities[name])...)
	}

	embedded := make([]string, 0, len(schema.Embedded))
	for name := range schema.Embedded {
		embedded = append(embedded, name)
	}
	slices.Sort(embedded)
	for _, name := range embedded {
		emb := schema.Embedded[name]
		errs = append(errs, validateProperties(schema, "embedded."+name, emb.Properties, true)...)
	}

	for _, c := range AnalyzeEmbeddedCycles(schema) {
		errs = append(errs, ValidationError{
			Field:   "embedded." + c.Path[0],
			Message: c.Message,
			Code:    ErrEmbeddedCycle,
		})
	}

	for _, name := range schema.QueryNames() {
		errs = append(errs, validateQuery(schema, schema.Queries[name])...)
	}
	return errs
}

func validateEntity(schema *ir.Schema, spec *ir.EntitySpec) []ValidationError {
	field := "entity." + spec.Name
	var errs []ValidationError

	if !identPattern.MatchString(spec.Name) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid entity name %q", spec.Name), Code: ErrInvalidName})
	}

	// E101/E102: toStr names a displayable property
	if strings.TrimSpace(spec.ToStr) == "" {
		errs = append(errs, ValidationError{Field: field + ".toStr", Message: "toStr is required and must be non-empty", Code: ErrMissingToStr})
	} else if p, ok := spec.Property(spec.ToStr); !ok {
		errs = append(errs, ValidationError{Field: field + ".toStr", Message: fmt.Sprintf("toStr names unknown property %q", spec.ToStr), Code: ErrMissingToStr})
	} else if p.Type.Kind == ir.KindEmbedded || p.Type.Kind == ir.KindCollection {
		errs = append(errs, ValidationError{Field: field + ".toStr", Message: fmt.Sprintf("toStr property %q is %s, not a scalar", spec.ToStr, p.Type), Code: ErrToStrNotScalar})
	}

	errs = append(errs, validateProperties(schema, field, spec.Properties, false)...)

	// E109: every collection element knows its owner
	for _, p := range spec.Properties {
		if p.Type.Kind != ir.KindCollection || p.Type.Elem == nil {
			continue
		}
		owner := p.Type.Elem.Owner
		if owner == nil || owner.Entity != spec.Name || owner.Property != p.Name {
			errs = append(errs, ValidationError{
				Field:   field + "." + p.Name,
				Message: fmt.Sprintf("collection element must be owned by %s.%s", spec.Name, p.Name),
				Code:    ErrCollectionOwner,
			})
		}
	}
	return errs
}

func validateProperties(schema *ir.Schema, field string, props []ir.PropertySpec, embedded bool) []ValidationError {
	var errs []ValidationError
	seen := map[string]bool{}
	for _, p := range props {
		pf := field + "." + p.Name
		if !identPattern.MatchString(p.Name) {
			errs = append(errs, ValidationError{Field: pf, Message: fmt.Sprintf("invalid property name %q", p.Name), Code: ErrInvalidName})
		}
		if slices.Contains(reservedNames, p.Name) {
			errs = append(errs, ValidationError{Field: pf, Message: fmt.Sprintf("%q is reserved", p.Name), Code: ErrReservedName})
		}
		if seen[p.Name] {
			errs = append(errs, ValidationError{Field: pf, Message: "duplicate property", Code: ErrDuplicateName})
		}
		seen[p.Name] = true

		if p.Type.Kind == ir.KindCollection {
			if embedded {
				errs = append(errs, ValidationError{Field: pf, Message: "collections are only allowed on entities", Code: ErrCollectionNesting})
			}
			if p.Type.Nullable {
				errs = append(errs, ValidationError{Field: pf, Message: "collections cannot be nullable", Code: ErrNullableCollection})
			}
			if p.Type.Elem == nil {
				errs = append(errs, ValidationError{Field: pf, Message: "collection requires an element type", Code: ErrInvalidFieldType})
				continue
			}
			if p.Type.Elem.Kind == ir.KindCollection {
				errs = append(errs, ValidationError{Field: pf + "[]", Message: "collections cannot be nested", Code: ErrCollectionNesting})
				continue
			}
			errs = append(errs, validateType(schema, pf+"[]", *p.Type.Elem)...)
			continue
		}
		errs = append(errs, validateType(schema, pf, p.Type)...)
	}
	return errs
}

func validateType(schema *ir.Schema, field string, t ir.TypeRef) []ValidationError {
	switch t.Kind {
	case ir.KindString, ir.KindInt, ir.KindDecimal, ir.KindBool, ir.KindDateTime:
		return nil
	case ir.KindEnum:
		if len(t.Values) == 0 {
			return []ValidationError{{Field: field, Message: "enum requires at least one value", Code: ErrEnumNoValues}}
		}
		return nil
	case ir.KindLite:
		return validateImplementations(schema, field, t.Implementations)
	case ir.KindEmbedded:
		if _, ok := schema.Embedded[t.Embedded]; !ok {
			return []ValidationError{{Field: field, Message: fmt.Sprintf("unknown embedded type %q", t.Embedded), Code: ErrUnknownReference}}
		}
		return nil
	default:
		return []ValidationError{{Field: field, Message: fmt.Sprintf("invalid type %q", t.Kind), Code: ErrInvalidFieldType}}
	}
}

func validateImplementations(schema *ir.Schema, field string, impl *ir.Implementations) []ValidationError {
	if impl == nil || (!impl.ByAll && len(impl.Types) == 0) {
		return []ValidationError{{Field: field, Message: "lite type requires entity, implementedBy or implementedByAll", Code: ErrLiteNoImpl}}
	}
	var errs []ValidationError
	for _, typ := range impl.Types {
		if _, ok := schema.Entities[typ]; !ok {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("unknown entity %q", typ), Code: ErrUnknownReference})
		}
	}
	return errs
}

func validateQuery(schema *ir.Schema, q *ir.QuerySpec) []ValidationError {
	field := "query." + q.Name
	entity, ok := schema.Entities[q.Entity]
	if !ok {
		return []ValidationError{{Field: field + ".entity", Message: fmt.Sprintf("unknown entity %q", q.Entity), Code: ErrUnknownQueryEntity}}
	}

	var errs []ValidationError
	seen := map[string]bool{ir.EntityColumnName: true}
	for _, c := range q.Columns {
		cf := field + ".columns." + c.Name
		if !identPattern.MatchString(c.Name) {
			errs = append(errs, ValidationError{Field: cf, Message: fmt.Sprintf("invalid column name %q", c.Name), Code: ErrInvalidName})
		}
		if seen[c.Name] {
			errs = append(errs, ValidationError{Field: cf, Message: "duplicate column", Code: ErrDuplicateName})
		}
		seen[c.Name] = true

		if c.Property == "Id" {
			continue
		}
		p, ok := entity.Property(c.Property)
		if !ok {
			errs = append(errs, ValidationError{Field: cf, Message: fmt.Sprintf("property %s.%s not found", q.Entity, c.Property), Code: ErrUnknownQueryProperty})
			continue
		}
		if p.Type.Kind == ir.KindEmbedded || p.Type.Kind == ir.KindCollection {
			errs = append(errs, ValidationError{Field: cf, Message: fmt.Sprintf("%s is %s and cannot be a column", c.Property, p.Type), Code: ErrUnselectableColumn})
		}
	}
	return errs
}
