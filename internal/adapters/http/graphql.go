package http

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/shiftfence/internal/core/domain"
	"github.com/samirrijal/shiftfence/internal/core/usecases"
)

// gqlError carries the REST error code into the GraphQL error extensions.
type gqlError struct {
	code      string
	message   string
	requestID string
}

func (e *gqlError) Error() string { return e.message }

func (e *gqlError) Extensions() map[string]interface{} {
	ext := map[string]interface{}{"code": e.code}
	if e.requestID != "" {
		ext["request_id"] = e.requestID
	}
	return ext
}

func toGQLError(ctx context.Context, err error) error {
	status, code, msg := errorStatus(err)
	if status >= fiber.StatusInternalServerError {
		LoggerFromCtx(ctx).Error("graphql resolver failed", "code", code, "error", err)
	}
	return &gqlError{code: code, message: msg, requestID: RequestIDFromCtx(ctx)}
}

func principalArg(p graphql.ResolveParams) (domain.Principal, error) {
	principal, ok := PrincipalFromCtx(p.Context)
	if !ok {
		return domain.Principal{}, &gqlError{code: "unauthorized", message: "missing identity"}
	}
	return principal, nil
}

// buildSchema creates the GraphQL schema wired to our services. Every
// resolver acts on behalf of the principal in the request context.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	coordinateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Coordinate",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	clockStampType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ClockStamp",
		Fields: graphql.Fields{
			"time":     &graphql.Field{Type: graphql.DateTime},
			"location": &graphql.Field{Type: coordinateType},
			"note":     &graphql.Field{Type: graphql.String},
		},
	})

	shiftType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Shift",
		Fields: graphql.Fields{
			"id":              &graphql.Field{Type: graphql.String},
			"worker_id":       &graphql.Field{Type: graphql.String},
			"organization_id": &graphql.Field{Type: graphql.String},
			"clock_in":        &graphql.Field{Type: clockStampType},
			"clock_out":       &graphql.Field{Type: clockStampType},
			"total_hours":     &graphql.Field{Type: graphql.Float},
		},
	})

	shiftPageType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ShiftPage",
		Fields: graphql.Fields{
			"data":   &graphql.Field{Type: graphql.NewList(shiftType)},
			"offset": &graphql.Field{Type: graphql.Int},
			"limit":  &graphql.Field{Type: graphql.Int},
			"total":  &graphql.Field{Type: graphql.Int},
		},
	})

	perimeterType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Perimeter",
		Fields: graphql.Fields{
			"organization_id": &graphql.Field{Type: graphql.String},
			"center":          &graphql.Field{Type: coordinateType},
			"radius_meters":   &graphql.Field{Type: graphql.Float},
			"updated_at":      &graphql.Field{Type: graphql.DateTime},
		},
	})

	geofenceEventType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeofenceEvent",
		Fields: graphql.Fields{
			"worker_id":       &graphql.Field{Type: graphql.String},
			"organization_id": &graphql.Field{Type: graphql.String},
			"kind":            &graphql.Field{Type: graphql.String},
			"location":        &graphql.Field{Type: coordinateType},
			"timestamp":       &graphql.Field{Type: graphql.DateTime},
			"shift_id":        &graphql.Field{Type: graphql.String},
		},
	})

	locationSampleType := graphql.NewObject(graphql.ObjectConfig{
		Name: "LocationSample",
		Fields: graphql.Fields{
			"worker_id":       &graphql.Field{Type: graphql.String},
			"location":        &graphql.Field{Type: coordinateType},
			"timestamp":       &graphql.Field{Type: graphql.DateTime},
			"accuracy_meters": &graphql.Field{Type: graphql.Float},
		},
	})

	clockArgs := graphql.FieldConfigArgument{
		"lat":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
		"lon":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
		"note": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
	}
	clockRequest := func(p graphql.ResolveParams) (usecases.ClockRequest, error) {
		principal, err := principalArg(p)
		if err != nil {
			return usecases.ClockRequest{}, err
		}
		note, _ := p.Args["note"].(string)
		return usecases.ClockRequest{
			WorkerID: principal.UserID,
			Location: domain.Coordinate{Lat: p.Args["lat"].(float64), Lon: p.Args["lon"].(float64)},
			Note:     note,
		}, nil
	}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"activeShift": &graphql.Field{
				Type:        shiftType,
				Description: "The caller's open shift, or null",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					principal, err := principalArg(p)
					if err != nil {
						return nil, err
					}
					shift, err := deps.Shifts.ActiveShift(p.Context, principal.UserID)
					if errors.Is(err, domain.ErrNoActiveShift) {
						return nil, nil
					}
					if err != nil {
						return nil, toGQLError(p.Context, err)
					}
					return shift, nil
				},
			},
			"shifts": &graphql.Field{
				Type:        shiftPageType,
				Description: "The caller's shift history, newest first",
				Args: graphql.FieldConfigArgument{
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: DefaultPageLimit},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					principal, err := principalArg(p)
					if err != nil {
						return nil, err
					}
					offset, limit := p.Args["offset"].(int), p.Args["limit"].(int)
					if offset < 0 {
						offset = 0
					}
					if limit <= 0 || limit > MaxPageLimit {
						limit = DefaultPageLimit
					}
					shifts, total, err := deps.Shifts.History(p.Context, principal.UserID, offset, limit)
					if err != nil {
						return nil, toGQLError(p.Context, err)
					}
					return map[string]interface{}{
						"data": shifts, "offset": offset, "limit": limit, "total": total,
					}, nil
				},
			},
			"perimeter": &graphql.Field{
				Type:        perimeterType,
				Description: "The perimeter of the caller's organization",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					principal, err := principalArg(p)
					if err != nil {
						return nil, err
					}
					perimeter, err := deps.Perimeters.Get(p.Context, principal.OrganizationID)
					if err != nil {
						return nil, toGQLError(p.Context, err)
					}
					return perimeter, nil
				},
			},
			"onShift": &graphql.Field{
				Type:        graphql.NewList(shiftType),
				Description: "Open shifts in the caller's organization (managers only)",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					principal, err := principalArg(p)
					if err != nil {
						return nil, err
					}
					shifts, err := deps.Shifts.OnShift(p.Context, principal, principal.OrganizationID)
					if err != nil {
						return nil, toGQLError(p.Context, err)
					}
					return shifts, nil
				},
			},
			"workerLocation": &graphql.Field{
				Type:        locationSampleType,
				Description: "A worker's last known location (managers only)",
				Args: graphql.FieldConfigArgument{
					"worker_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					principal, err := principalArg(p)
					if err != nil {
						return nil, err
					}
					sample, err := deps.Tracker.WorkerLocation(p.Context, principal, p.Args["worker_id"].(string))
					if err != nil {
						return nil, toGQLError(p.Context, err)
					}
					return sample, nil
				},
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"clockIn": &graphql.Field{
				Type: shiftType,
				Args: clockArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					req, err := clockRequest(p)
					if err != nil {
						return nil, err
					}
					shift, err := deps.Shifts.ClockIn(p.Context, req)
					if err != nil {
						return nil, toGQLError(p.Context, err)
					}
					return shift, nil
				},
			},
			"clockOut": &graphql.Field{
				Type: shiftType,
				Args: clockArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					req, err := clockRequest(p)
					if err != nil {
						return nil, err
					}
					shift, err := deps.Shifts.ClockOut(p.Context, req)
					if err != nil {
						return nil, toGQLError(p.Context, err)
					}
					return shift, nil
				},
			},
			"updatePerimeter": &graphql.Field{
				Type: perimeterType,
				Args: graphql.FieldConfigArgument{
					"lat":           &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":           &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"radius_meters": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					principal, err := principalArg(p)
					if err != nil {
						return nil, err
					}
					perimeter, err := deps.Perimeters.Update(p.Context, principal, principal.OrganizationID, usecases.PerimeterUpdate{
						Center:       domain.Coordinate{Lat: p.Args["lat"].(float64), Lon: p.Args["lon"].(float64)},
						RadiusMeters: p.Args["radius_meters"].(float64),
					})
					if err != nil {
						return nil, toGQLError(p.Context, err)
					}
					return perimeter, nil
				},
			},
			"ingestLocation": &graphql.Field{
				Type: graphql.NewList(geofenceEventType),
				Args: graphql.FieldConfigArgument{
					"lat":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":       &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"timestamp": &graphql.ArgumentConfig{Type: graphql.DateTime},
					"accuracy":  &graphql.ArgumentConfig{Type: graphql.Float},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					principal, err := principalArg(p)
					if err != nil {
						return nil, err
					}
					sample := domain.LocationSample{
						WorkerID:  principal.UserID,
						Location:  domain.Coordinate{Lat: p.Args["lat"].(float64), Lon: p.Args["lon"].(float64)},
						Timestamp: time.Now().UTC(),
					}
					if ts, ok := p.Args["timestamp"].(time.Time); ok {
						sample.Timestamp = ts
					}
					if acc, ok := p.Args["accuracy"].(float64); ok {
						sample.AccuracyMeters = &acc
					}
					events, err := deps.Tracker.Ingest(p.Context, sample)
					if err != nil {
						return nil, toGQLError(p.Context, err)
					}
					if events == nil {
						events = []domain.GeofenceEvent{}
					}
					return events, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

// GraphQLHandler executes GraphQL requests against the schema.
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
		if err := c.BodyParser(&req); err != nil || req.Query == "" {
			return errBadRequest(c, "invalid GraphQL request body")
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), RequestTimeout)
		defer cancel()

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        ctx,
		})

		return c.JSON(result)
	}
}
