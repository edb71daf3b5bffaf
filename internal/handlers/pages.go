// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package handlers

import (
	"bytes"
	"embed"
	"html/template"

	"github.com/labstack/echo/v4"
)

//go:embed pages/page.html
var pageFS embed.FS

var pageTemplate = template.Must(template.ParseFS(pageFS, "pages/page.html"))

// page is the data for the shared single-card layout. Callback pages
// carry the message in both languages; Lang only selects the document
// language attribute.
type page struct {
	Lang     string
	Title    string
	Messages []string
}

// renderPage renders the shared page layout with the given status code.
func renderPage(c echo.Context, statusCode int, p page) error {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, p); err != nil {
		return err
	}
	return c.HTML(statusCode, buf.String())
}
