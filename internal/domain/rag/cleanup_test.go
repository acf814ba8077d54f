package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanLLMOutput_ConvertsSemanticHTMLToMarkdown(t *testing.T) {
	in := "<p>Hello <strong>world</strong>, this is <em>great</em>.</p><h2>Heading</h2><li>one</li><li>two</li>"
	out := CleanLLMOutput(in)
	assert.Contains(t, out, "**world**")
	assert.Contains(t, out, "*great*")
	assert.Contains(t, out, "### Heading")
	assert.Contains(t, out, "- one")
	assert.Contains(t, out, "- two")
	assert.NotContains(t, out, "<")
}

func TestCleanLLMOutput_PreservesFollowupBlocks(t *testing.T) {
	in := "Some answer text.<followup>What about X?</followup>"
	out := CleanLLMOutput(in)
	assert.Contains(t, out, "Some answer text.")
	assert.Contains(t, out, "<followup>What about X?</followup>")
}

func TestCleanLLMOutput_StripsResidualTagsAndCollapsesWhitespace(t *testing.T) {
	in := "line one\n\n\n\nline two   \n<div><span>noise</span></div>"
	out := CleanLLMOutput(in)
	assert.NotContains(t, out, "\n\n\n")
	assert.NotContains(t, out, "<div>")
	assert.Contains(t, out, "noise")
}

func TestTrimIncompleteTrailingTag_ChopsUnclosedTag(t *testing.T) {
	assert.Equal(t, "hello ", TrimIncompleteTrailingTag("hello <stro"))
	assert.Equal(t, "hello <b>world</b>", TrimIncompleteTrailingTag("hello <b>world</b>"))
}

func TestTrimIncompleteTrailingTag_LeavesMathLessThanAlone(t *testing.T) {
	assert.Equal(t, "x < 5 and y", TrimIncompleteTrailingTag("x < 5 and y"))
}

func TestShouldEmitContent_FlushesEveryThirdTokenOrOnPunctuation(t *testing.T) {
	assert.True(t, ShouldEmitContent(0, "foo"))
	assert.True(t, ShouldEmitContent(3, "foo"))
	assert.False(t, ShouldEmitContent(1, "foo"))
	assert.True(t, ShouldEmitContent(1, "end."))
	assert.True(t, ShouldEmitContent(2, "line\n"))
	assert.False(t, ShouldEmitContent(1, ""))
}
