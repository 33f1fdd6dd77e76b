package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	// A coordinate is a [lng, lat] pair.
	coordinateType := graphql.NewList(graphql.Float)
	polylineType := graphql.NewList(coordinateType)

	fleetMemberType := graphql.NewObject(graphql.ObjectConfig{
		Name: "FleetMember",
		Fields: graphql.Fields{
			"user_id":      &graphql.Field{Type: graphql.String},
			"status":       &graphql.Field{Type: graphql.String},
			"last_changed": &graphql.Field{Type: graphql.DateTime},
			"coord":        &graphql.Field{Type: coordinateType},
			"updated_at":   &graphql.Field{Type: graphql.DateTime},
		},
	})

	routeType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Route",
		Fields: graphql.Fields{
			"id":              &graphql.Field{Type: graphql.String},
			"user_id":         &graphql.Field{Type: graphql.String},
			"start":           &graphql.Field{Type: coordinateType},
			"end":             &graphql.Field{Type: coordinateType},
			"coordinates":     &graphql.Field{Type: polylineType},
			"snapped":         &graphql.Field{Type: polylineType},
			"distance_meters": &graphql.Field{Type: graphql.Float},
			"created_at":      &graphql.Field{Type: graphql.DateTime},
		},
	})

	planType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Plan",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"user_id":     &graphql.Field{Type: graphql.String},
			"start_name":  &graphql.Field{Type: graphql.String},
			"end_name":    &graphql.Field{Type: graphql.String},
			"start":       &graphql.Field{Type: coordinateType},
			"end":         &graphql.Field{Type: coordinateType},
			"coordinates": &graphql.Field{Type: polylineType},
			"created_at":  &graphql.Field{Type: graphql.DateTime},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"fleet": &graphql.Field{
				Type:        graphql.NewList(fleetMemberType),
				Description: "Joined presence and last known location for every tracked user",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Fleet.Fleet(), nil
				},
			},
			"routeHistory": &graphql.Field{
				Type:        graphql.NewList(routeType),
				Description: "A user's archived routes, newest first",
				Args: graphql.FieldConfigArgument{
					"user_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					userID := p.Args["user_id"].(string)
					return deps.Archive.List(p.Context, userID)
				},
			},
			"plans": &graphql.Field{
				Type:        graphql.NewList(planType),
				Description: "A user's saved tour plans",
				Args: graphql.FieldConfigArgument{
					"user_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					userID := p.Args["user_id"].(string)
					return deps.Plans.List(p.Context, userID)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.Context(),
		})

		return c.JSON(result)
	}
}
