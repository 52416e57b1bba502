package server

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	gqlhandler "github.com/graphql-go/handler"

	"shrike/internal/auth"
	gqlschema "shrike/internal/graphql"
)

func (a *API) getGraphQLHandler() (http.Handler, error) {
	a.graphQLOnce.Do(func() {
		schema, err := gqlschema.NewSchema(a.store, a.enqueuer)
		if err != nil {
			a.graphQLErr = err
			return
		}

		base := gqlhandler.New(&gqlhandler.Config{
			Schema:   &schema,
			Pretty:   true,
			GraphiQL: false,
		})

		a.graphQLHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			header := r.Header.Get("Authorization")

			if token := extractBearerToken(header); token != "" {
				if claims, err := auth.ValidateJWT(token); err == nil {
					if rawID, ok := claims["user_id"].(float64); ok && rawID > 0 {
						ctx = gqlschema.WithUserID(ctx, uint(rawID))
					}
				} else {
					log.Debug("GraphQL token rejected", "error", err)
				}
			} else if user, err := auth.AuthenticateBasic(ctx, a.store, header); err == nil {
				ctx = gqlschema.WithUserID(ctx, user.ID)
			} else {
				// Resolvers answer with the exact failure message.
				ctx = gqlschema.WithAuthError(ctx, err)
			}

			base.ContextHandler(ctx, w, r)
		})
	})

	return a.graphQLHandler, a.graphQLErr
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if len(header) < len(prefix) {
		return ""
	}
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
