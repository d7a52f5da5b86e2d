package ui

import (
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetFormat(t *testing.T) {
	t.Cleanup(InitLogger)

	require.NoError(t, SetFormat(FormatJSON))
	require.NoError(t, SetFormat(FormatText))
	require.NoError(t, SetFormat(""))
	assert.Error(t, SetFormat("xml"))
}

func TestSetDebug(t *testing.T) {
	t.Cleanup(InitLogger)

	SetDebug(true)
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	SetDebug(false)
	assert.Equal(t, log.InfoLevel, log.GetLevel())
}

func TestRenderMarkdown(t *testing.T) {
	out, err := RenderMarkdown("# Title\n\nSome `code`.", 80)
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
}

func TestFormatHelpers(t *testing.T) {
	assert.Contains(t, FormatHit("a.pdf", 3), "a.pdf")
	assert.Contains(t, FormatHit("a.pdf", 3), "p.3")
	assert.Contains(t, FormatScore(0.12345), "0.1235")
	assert.Contains(t, Field("Name", "docs"), "docs")
	assert.Contains(t, HorizontalRule(3), "───")
}
