// Package swagger serves Swagger UI and an OpenAPI document adjusted to the
// running service: its version, size limits and whether a bearer token is
// required.
package swagger

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"

	"broker/pkg/logger"
)

// BasePath префикс всех маршрутов документации
const BasePath = "/docs"

// Options описывает запущенный сервис
type Options struct {
	Title        string // пусто - info.title документа
	Version      string // пусто - info.version документа
	MaxNodes     int    // maxItems векторов и матриц, 0 без ограничения
	MaxBatchSize int    // maxItems SolveBatchRequest.problems, 0 без ограничения
	AuthRequired bool   // false убирает глобальное требование bearer
}

// Docs готовые к отдаче документ и страница Swagger UI
type Docs struct {
	spec []byte
	etag string
	page []byte
}

// New применяет opts к OpenAPI документу base
func New(base []byte, opts Options) (*Docs, error) {
	var doc map[string]any
	if err := json.Unmarshal(base, &doc); err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}

	info := object(doc, "info")
	if opts.Title != "" {
		info["title"] = opts.Title
	}
	if opts.Version != "" {
		info["version"] = opts.Version
	}

	schemas := object(object(doc, "components"), "schemas")
	if opts.MaxNodes > 0 {
		limitArray(object(schemas, "Vector"), opts.MaxNodes)
		matrix := object(schemas, "Matrix")
		limitArray(matrix, opts.MaxNodes)
		limitArray(object(matrix, "items"), opts.MaxNodes)
	}
	if opts.MaxBatchSize > 0 {
		problems := object(object(object(schemas, "SolveBatchRequest"), "properties"), "problems")
		limitArray(problems, opts.MaxBatchSize)
		problems["minItems"] = 1
	}
	if !opts.AuthRequired {
		delete(doc, "security")
	}

	spec, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode openapi document: %w", err)
	}

	var page bytes.Buffer
	err = uiTemplate.Execute(&page, struct {
		Title   any
		SpecURL string
	}{
		Title:   info["title"],
		SpecURL: BasePath + "/openapi.json",
	})
	if err != nil {
		return nil, fmt.Errorf("render swagger ui: %w", err)
	}

	return &Docs{
		spec: spec,
		etag: fmt.Sprintf(`"%x"`, sha256.Sum256(spec)),
		page: page.Bytes(),
	}, nil
}

// Spec возвращает итоговый документ
func (d *Docs) Spec() []byte {
	return d.spec
}

// Register регистрирует GET /docs/, /docs/openapi.json и редирект с /docs
func (d *Docs) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+BasePath+"/{$}", d.serveUI)
	mux.HandleFunc("GET "+BasePath+"/openapi.json", d.serveSpec)
	mux.Handle("GET "+BasePath, http.RedirectHandler(BasePath+"/", http.StatusMovedPermanently))
}

func (d *Docs) serveUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write(d.page); err != nil {
		logger.FromContext(r.Context()).Debug("Failed to write swagger page", "error", err)
	}
}

func (d *Docs) serveSpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("ETag", d.etag)
	if r.Header.Get("If-None-Match") == d.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	if _, err := w.Write(d.spec); err != nil {
		logger.FromContext(r.Context()).Debug("Failed to write openapi document", "error", err)
	}
}

// object возвращает вложенный объект, создавая его при отсутствии
func object(parent map[string]any, key string) map[string]any {
	if m, ok := parent[key].(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	parent[key] = m
	return m
}

func limitArray(schema map[string]any, n int) {
	schema["maxItems"] = n
}

var uiTemplate = template.Must(template.New("swagger-ui").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
    <style>body { margin: 0; } .swagger-ui .topbar { display: none; }</style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: "{{.SpecURL}}",
                dom_id: "#swagger-ui",
                deepLinking: true,
                docExpansion: "list",
                validatorUrl: null
            });
        };
    </script>
</body>
</html>`))
