// Package web embeds the single-page progress UI served at /.
package web

import (
	"embed"
	"io/fs"
)

//go:embed static/*
var content embed.FS

// GetWebFS returns the embedded UI filesystem rooted at static/
func GetWebFS() fs.FS {
	webFS, _ := fs.Sub(content, "static")
	return webFS
}
