package web

import (
	"io/fs"
	"mime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticFSRootedAtAssets(t *testing.T) {
	assets, err := StaticFS()
	require.NoError(t, err)
	_, err = fs.Stat(assets, "css/app.css")
	assert.NoError(t, err)
	_, err = fs.Stat(assets, "js/app.js")
	assert.NoError(t, err)
}

func TestTemplatePatternsMatchFiles(t *testing.T) {
	for _, pattern := range TemplatePatterns {
		matches, err := fs.Glob(Templates, pattern)
		require.NoError(t, err)
		assert.NotEmpty(t, matches, pattern)
	}
}

func TestAssetMimeTypesRegistered(t *testing.T) {
	assert.Contains(t, mime.TypeByExtension(".css"), "text/css")
	assert.NotEmpty(t, mime.TypeByExtension(".js"))
}
