// Package web carries the embedded page templates and static assets served
// by the DipTrack web process.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"mime"
)

//go:embed templates/**/*.html
var Templates embed.FS

//go:embed static/**/*
var Static embed.FS

// TemplatePatterns lists the glob patterns parsed into the page engine.
// Layouts come first so pages can override their blocks.
var TemplatePatterns = []string{
	"templates/layouts/*.html",
	"templates/partials/*.html",
	"templates/pages/*.html",
}

func init() {
	ensureMimeType(".css", "text/css; charset=utf-8")
	ensureMimeType(".js", "text/javascript; charset=utf-8")
}

// StaticFS returns the asset tree rooted at static/, as served under /static/.
func StaticFS() (fs.FS, error) {
	return fs.Sub(Static, "static")
}

// ensureMimeType registers typ for ext on hosts whose mime tables lack it, so
// the assets pass the nosniff header.
func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		slog.Default().Warn("register mime type", slog.String("ext", ext), slog.Any("error", err))
	}
}
