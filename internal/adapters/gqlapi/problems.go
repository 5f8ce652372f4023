package gqlapi

import (
	"fmt"
	"reflect"

	"ledgerql/internal/core"

	"github.com/graphql-go/graphql"
)

// problemObjects exposes every core.Problem as an object type named after
// its Go type, each with a single message field.
type problemObjects map[string]*graphql.Object

func newProblemObjects(samples ...core.Problem) problemObjects {
	out := make(problemObjects, len(samples))
	for _, sample := range samples {
		name := reflect.TypeOf(sample).Name()
		out[name] = graphql.NewObject(graphql.ObjectConfig{
			Name: name,
			Fields: graphql.Fields{
				"message": &graphql.Field{
					Type: nonNull(graphql.String),
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						problem, ok := p.Source.(core.Problem)
						if !ok {
							return nil, wrap(fmt.Errorf("%s.message: unexpected source %T", name, p.Source))
						}
						return problem.Message(), nil
					},
				},
			},
		})
	}
	return out
}

func defaultProblems() problemObjects {
	return newProblemObjects(
		core.AuthorExists{},
		core.AuthorNameMissing{},
		core.AuthorNotFound{},
		core.DescriptionMissing{},
		core.InvalidAfipCode{},
		core.DocumentTypeNotFound{},
		core.DocumentNotFound{},
		core.AccountingEntryNotFound{},
		core.AccountingEntryExists{},
		core.AccountingEntryDetailNotFound{},
		core.InvalidIdentifier{},
		core.InvalidAmount{},
		core.InvalidColumn{},
		core.InvalidPercentage{},
		core.CatalogEntryNotFound{},
	)
}

// union builds the result type of a mutation: the created object or one of
// the listed problems.
func (p problemObjects) union(name string, success *graphql.Object, problems ...core.Problem) *graphql.Union {
	types := []*graphql.Object{success}
	for _, problem := range problems {
		types = append(types, p[reflect.TypeOf(problem).Name()])
	}
	return graphql.NewUnion(graphql.UnionConfig{
		Name:  name,
		Types: types,
		ResolveType: func(rp graphql.ResolveTypeParams) *graphql.Object {
			if problem, ok := rp.Value.(core.Problem); ok {
				return p[reflect.TypeOf(problem).Name()]
			}
			return success
		},
	})
}
