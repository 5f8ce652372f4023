package gqlapi

import (
	"fmt"
	"strconv"
	"strings"

	"ledgerql/pkg/domain"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
)

// Decimal carries money as a string with two decimals so values never pass
// through float64. Inputs may be strings or numeric literals; the service
// validates them.
var Decimal = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "Decimal",
	Description: "Fixed-point amount rendered with two decimals, e.g. \"100.50\".",
	Serialize: func(value interface{}) interface{} {
		switch v := value.(type) {
		case domain.Amount:
			return v.String()
		case *domain.Amount:
			if v == nil {
				return nil
			}
			return v.String()
		case string:
			return v
		default:
			return nil
		}
	},
	ParseValue: func(value interface{}) interface{} {
		switch v := value.(type) {
		case string:
			return v
		case int:
			return strconv.Itoa(v)
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return nil
		}
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		switch v := valueAST.(type) {
		case *ast.StringValue:
			return v.Value
		case *ast.IntValue:
			return v.Value
		case *ast.FloatValue:
			return v.Value
		default:
			return nil
		}
	},
})

// sourceOf unpacks a resolver source that may arrive by value or by pointer.
func sourceOf[T any](src interface{}) (T, bool) {
	switch v := src.(type) {
	case T:
		return v, true
	case *T:
		if v != nil {
			return *v, true
		}
	}
	var zero T
	return zero, false
}

// prop builds a field that reads from a source of type T.
func prop[T any](typ graphql.Output, get func(T) interface{}) *graphql.Field {
	return &graphql.Field{
		Type: typ,
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			src, ok := sourceOf[T](p.Source)
			if !ok {
				return nil, wrap(fmt.Errorf("field %s: unexpected source %T", p.Info.FieldName, p.Source))
			}
			return get(src), nil
		},
	}
}

// optional turns a nil pointer into an untyped nil.
func optional[T any](p *T) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }

func optionalInt(p *int64) interface{} {
	if p == nil {
		return nil
	}
	return formatInt(*p)
}

// deferred adapts a loader thunk to graphql-go's thunk form. The batch runs
// when the executor first resolves any thunk of the pending set.
func deferred[V any](load func() (V, error), convert func(V) interface{}) interface{} {
	return func() (interface{}, error) {
		v, err := load()
		if err != nil {
			return nil, wrap(err)
		}
		return convert(v), nil
	}
}

func asIs[V any](v V) interface{} { return v }

func deref[V any](v *V) interface{} { return optional(v) }

func requiredString(args map[string]interface{}, name string) (string, error) {
	v, ok := args[name].(string)
	if !ok {
		return "", invalidArg(name, "is required")
	}
	return v, nil
}

func optionalString(args map[string]interface{}, name string) *string {
	v, ok := args[name].(string)
	if !ok {
		return nil
	}
	return &v
}

func parseID(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, invalidArg(name, fmt.Sprintf("%q is not an integer identifier", raw))
	}
	return id, nil
}

func requiredID(args map[string]interface{}, name string) (int64, error) {
	raw, err := requiredString(args, name)
	if err != nil {
		return 0, err
	}
	return parseID(raw, name)
}

func optionalID(args map[string]interface{}, name string) (*int64, error) {
	raw := optionalString(args, name)
	if raw == nil {
		return nil, nil
	}
	id, err := parseID(*raw, name)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func boolArg(args map[string]interface{}, name string) bool {
	v, _ := args[name].(bool)
	return v
}
