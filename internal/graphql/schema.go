package graphql

import (
	"context"
	"errors"

	gql "github.com/graphql-go/graphql"

	"shrike/internal/database"
	"shrike/internal/domain"
	"shrike/internal/resolve"
)

// This message is part of the public API surface; clients match on it.
var errDetailsNotFound = errors.New("Details for given IP address cannot be found")

// Enqueuer runs blocklist resolution for a batch of addresses.
type Enqueuer interface {
	Enqueue(ctx context.Context, addresses []string) []resolve.AddressReport
}

func NewSchema(store *database.Handler, enqueuer Enqueuer) (gql.Schema, error) {
	responseCodeType := gql.NewObject(gql.ObjectConfig{
		Name: "ResponseCode",
		Fields: gql.Fields{
			"id":           &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"responseCode": &gql.Field{Type: gql.NewNonNull(gql.String)},
			"createdAt":    &gql.Field{Type: gql.DateTime},
		},
	})

	ipDetailsType := gql.NewObject(gql.ObjectConfig{
		Name: "IpDetails",
		Fields: gql.Fields{
			"id":        &gql.Field{Type: gql.NewNonNull(gql.Int)},
			"ipAddress": &gql.Field{Type: gql.NewNonNull(gql.String)},
			"country":   &gql.Field{Type: gql.String},
			"asnOrg":    &gql.Field{Type: gql.String},
			"createdAt": &gql.Field{Type: gql.DateTime},
			"updatedAt": &gql.Field{Type: gql.DateTime},
		},
	})

	// The two types reference each other, so the link fields are attached
	// after both objects exist.
	ipDetailsType.AddFieldConfig("responseCodes", &gql.Field{
		Type: gql.NewNonNull(gql.NewList(gql.NewNonNull(responseCodeType))),
	})
	responseCodeType.AddFieldConfig("ipDetails", &gql.Field{
		Type: gql.NewNonNull(gql.NewList(gql.NewNonNull(ipDetailsType))),
	})

	queryType := gql.NewObject(gql.ObjectConfig{
		Name: "Query",
		Fields: gql.Fields{
			"getIpDetails": &gql.Field{
				Type: ipDetailsType,
				Args: gql.FieldConfigArgument{
					"ipAddress": &gql.ArgumentConfig{Type: gql.NewNonNull(gql.String)},
				},
				Resolve: func(p gql.ResolveParams) (interface{}, error) {
					if _, err := UserIDFromContext(p.Context); err != nil {
						return nil, err
					}

					address, _ := p.Args["ipAddress"].(string)
					details, err := store.FindIPDetails(p.Context, address)
					if err != nil {
						if errors.Is(err, database.ErrIPDetailsNotFound) {
							return nil, errDetailsNotFound
						}
						return nil, err
					}
					return buildIPDetails(details), nil
				},
			},
			"responseCode": &gql.Field{
				Type: gql.NewList(gql.NewNonNull(responseCodeType)),
				Resolve: func(p gql.ResolveParams) (interface{}, error) {
					if _, err := UserIDFromContext(p.Context); err != nil {
						return nil, err
					}

					codes, err := store.ListResponseCodes(p.Context)
					if err != nil {
						return nil, err
					}

					entries := make([]map[string]interface{}, 0, len(codes))
					for _, code := range codes {
						entries = append(entries, buildResponseCodeWithLinks(code))
					}
					return entries, nil
				},
			},
		},
	})

	enqueueType := gql.NewObject(gql.ObjectConfig{
		Name: "Enqueue",
		Fields: gql.Fields{
			"ipAddresses": &gql.Field{Type: gql.NewList(gql.String)},
		},
	})

	mutationType := gql.NewObject(gql.ObjectConfig{
		Name: "Mutation",
		Fields: gql.Fields{
			"enqueue": &gql.Field{
				Type: enqueueType,
				Args: gql.FieldConfigArgument{
					"ipAddresses": &gql.ArgumentConfig{
						Type: gql.NewNonNull(gql.NewList(gql.NewNonNull(gql.String))),
					},
				},
				Resolve: func(p gql.ResolveParams) (interface{}, error) {
					if _, err := UserIDFromContext(p.Context); err != nil {
						return nil, err
					}

					rawList, _ := p.Args["ipAddresses"].([]interface{})
					addresses := make([]string, 0, len(rawList))
					for _, raw := range rawList {
						if s, ok := raw.(string); ok {
							addresses = append(addresses, s)
						}
					}

					enqueuer.Enqueue(p.Context, addresses)

					return map[string]interface{}{"ipAddresses": addresses}, nil
				},
			},
		},
	})

	return gql.NewSchema(gql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

func buildIPDetails(details domain.IPDetails) map[string]interface{} {
	codes := make([]map[string]interface{}, 0, len(details.ResponseCodes))
	for _, code := range details.ResponseCodes {
		codes = append(codes, buildResponseCode(code))
	}

	return map[string]interface{}{
		"id":            int(details.ID),
		"ipAddress":     details.IPAddress,
		"country":       details.Country,
		"asnOrg":        details.ASNOrg,
		"createdAt":     details.CreatedAt,
		"updatedAt":     details.UpdatedAt,
		"responseCodes": codes,
	}
}

func buildResponseCode(code domain.ResponseCode) map[string]interface{} {
	return map[string]interface{}{
		"id":           int(code.ID),
		"responseCode": code.Code,
		"createdAt":    code.CreatedAt,
	}
}

func buildResponseCodeWithLinks(code domain.ResponseCode) map[string]interface{} {
	entry := buildResponseCode(code)

	links := make([]map[string]interface{}, 0, len(code.IPDetails))
	for _, details := range code.IPDetails {
		links = append(links, buildIPDetails(details))
	}
	entry["ipDetails"] = links

	return entry
}
