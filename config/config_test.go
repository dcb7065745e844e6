package config

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	src := `
autoescape_suffixes:
  - .html
  - .xml
max_chain_depth: 10
max_macro_depth: 5
log_level: debug
`
	f, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []string{".html", ".xml"}, f.AutoescapeSuffixes)
	assert.Equal(t, 10, f.MaxChainDepth)
	assert.Equal(t, 5, f.MaxMacroDepth)

	opts := f.ToOptions()
	assert.Equal(t, []string{".html", ".xml"}, opts.AutoescapeSuffixes)
	assert.Equal(t, 10, opts.MaxChainDepth)

	logger := f.Logger()
	assert.True(t, logger.Enabled(context.Background(), -4)) // slog.LevelDebug
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader("bogus_field: 1\n"))
	assert.Error(t, err)
}

func TestParseDefaultsLogLevel(t *testing.T) {
	f, err := Parse(strings.NewReader("max_chain_depth: 1\n"))
	require.NoError(t, err)
	logger := f.Logger()
	assert.False(t, logger.Enabled(context.Background(), -4)) // debug disabled by default
	assert.True(t, logger.Enabled(context.Background(), 0))   // info enabled by default
}
