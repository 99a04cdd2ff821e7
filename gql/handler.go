package gql

import (
	"encoding/json"

	"github.com/goliatone/go-accounts"
	"github.com/goliatone/go-router"
	"github.com/graph-gophers/graphql-go"
)

// Request is a GraphQL POST body
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

// NewSchema parses the schema against the resolver
func NewSchema(service AccountService, phoneRegion string, logger accounts.Logger) *graphql.Schema {
	return graphql.MustParseSchema(Schema, NewResolver(service, phoneRegion, logger),
		graphql.MaxDepth(8),
	)
}

// Handler executes GraphQL requests. The session, if any, is read from the
// request context.
func Handler(schema *graphql.Schema) router.HandlerFunc {
	return func(ctx router.Context) error {
		req := new(Request)
		if err := json.Unmarshal(ctx.Body(), req); err != nil || req.Query == "" {
			return ctx.JSON(router.StatusBadRequest, map[string]any{
				"errors": []map[string]any{{"message": "request body must be a JSON object with a query"}},
			})
		}

		res := schema.Exec(ctx.Context(), req.Query, req.OperationName, req.Variables)
		return ctx.JSON(router.StatusOK, res)
	}
}
