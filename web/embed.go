// Package web holds the page templates and the browser script compiled into the binary.
package web

import "embed"

// Templates holds partials and pages, parsed once by view.NewEngine.
//
//go:embed templates/partials/*.html templates/pages/*.html
var Templates embed.FS

// Static holds the list script served under /static.
//
//go:embed static/js/*.js
var Static embed.FS
