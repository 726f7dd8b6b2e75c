// Package web embeds the HTML templates and static assets.
package web

import "embed"

// TemplatesFS holds the page templates and HTMX partials.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds the stylesheet and client script.
//
//go:embed static/*
var StaticFS embed.FS
