package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"reflect"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 4 << 20

type bodyBytesKey struct{}

// captureBody buffers the request body so handlers can tell an absent body
// from an empty JSON object. Bodies above limit are rejected with 413.
func captureBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
			if err != nil {
				respondStatusError(w, newAPIError(http.StatusRequestEntityTooLarge, "", "request body too large", nil))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(data))
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), bodyBytesKey{}, data)))
		})
	}
}

func bodyBytes(ctx context.Context) []byte {
	data, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return data
}

func normalizeLimit(in int) int {
	switch {
	case in <= 0:
		return 50
	case in > 200:
		return 200
	}
	return in
}

func registerDocs(r chi.Router, basePath string) {
	page := swaggerHTML(basePath)
	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, page)
	})
}

// registerOpenAPI serves the document with error responses and security
// schemes filled in. It is built on first request, after every route exists.
func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var once sync.Once
	var spec []byte
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, _ *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			decorateOpenAPI(oas, basePath)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func operations(item *huma.PathItem) []*huma.Operation {
	var ops []*huma.Operation
	for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
		if op != nil {
			ops = append(ops, op)
		}
	}
	return ops
}

func decorateOpenAPI(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{Type: "http", Scheme: "bearer", BearerFormat: "JWT"}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{Type: "apiKey", In: "header", Name: "X-Api-Key"}
	security := []map[string][]string{{"bearerAuth": {}}, {"apiKeyAuth": {}}}
	oas.Security = security

	public := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	var errSchema *huma.Schema
	if oas.Components.Schemas != nil {
		errSchema = oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
	}
	errResponse := &huma.Response{
		Description: "Error",
		Content:     map[string]*huma.MediaType{"application/json": {Schema: errSchema}},
	}
	for route, item := range oas.Paths {
		for _, op := range operations(item) {
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = errResponse
			if public[route] {
				op.Security = []map[string][]string{}
			} else {
				op.Security = security
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", basePath, "openapi.json")
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <title>certline API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => SwaggerUIBundle({ url: '%s', dom_id: '#swagger-ui' });
    </script>
    <p style="padding: 1rem; font-family: sans-serif;">
      Send Authorization: Bearer &lt;token&gt; or X-Api-Key with every request except /health.
    </p>
  </body>
</html>`, specURL)
}
