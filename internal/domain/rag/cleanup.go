package rag

import (
	"regexp"
	"strings"
)

// Regex cleanup pipeline for LLM output that occasionally contains HTML
// despite system-prompt instructions to use only Markdown. This runs
// incrementally on partial streams, so it must tolerate a truncated
// trailing tag rather than assuming well-formed HTML.
var (
	followupRe = regexp.MustCompile(`(?is)<followup>.*?</followup>`)
	strongRe   = regexp.MustCompile(`(?is)<strong[^>]*>(.*?)</strong>`)
	bRe        = regexp.MustCompile(`(?is)<b[^>]*>(.*?)</b>`)
	emRe       = regexp.MustCompile(`(?is)<em[^>]*>(.*?)</em>`)
	iRe        = regexp.MustCompile(`(?is)<i[^>]*>(.*?)</i>`)
	liRe       = regexp.MustCompile(`(?is)<li[^>]*>(.*?)</li>`)
	pRe        = regexp.MustCompile(`(?is)<p[^>]*>(.*?)</p>`)
	listWrapRe = regexp.MustCompile(`(?i)</?(ul|ol)[^>]*>`)
	blockTagRe = regexp.MustCompile(`(?i)</?(div|span|br|table|tr|td|th|thead|tbody|blockquote|hr)[\s/]*>`)
	anyTagRe   = regexp.MustCompile(`(?i)</?[a-z][a-z0-9]*[^>]*>`)

	trailingSpaceNewlineRe = regexp.MustCompile(`[ \t]+\n`)
	tripleNewlineRe        = regexp.MustCompile(`\n{3,}`)
	blankBulletRe          = regexp.MustCompile(`(\n- )\n+(- )`)
)

var headingRes = buildHeadingRes()

func buildHeadingRes() [6]*regexp.Regexp {
	var res [6]*regexp.Regexp
	for level := 1; level <= 6; level++ {
		res[level-1] = regexp.MustCompile(`(?is)<h` + itoaLevel(level) + `[^>]*>(.*?)</h` + itoaLevel(level) + `>`)
	}
	return res
}

func itoaLevel(n int) string {
	return string(rune('0' + n))
}

// CleanLLMOutput converts HTML in LLM output to clean Markdown, matching
// the reference cleanup pipeline step for step:
//  1. stash <followup> blocks
//  2. convert semantic HTML to Markdown equivalents
//  3. strip remaining block tags
//  4. strip any residual tag
//  5. normalize whitespace
//  6. reappend followup blocks
func CleanLLMOutput(text string) string {
	followups := followupRe.FindAllString(text, -1)
	text = followupRe.ReplaceAllString(text, "")

	text = strongRe.ReplaceAllString(text, "**$1**")
	text = bRe.ReplaceAllString(text, "**$1**")
	text = emRe.ReplaceAllString(text, "*$1*")
	text = iRe.ReplaceAllString(text, "*$1*")
	for level := 1; level <= 6; level++ {
		hashCount := level + 1
		if hashCount > 4 {
			hashCount = 4
		}
		hashes := strings.Repeat("#", hashCount)
		text = headingRes[level-1].ReplaceAllString(text, "\n"+hashes+" $1\n")
	}
	text = liRe.ReplaceAllString(text, "\n- $1")
	text = pRe.ReplaceAllString(text, "$1\n\n")

	text = listWrapRe.ReplaceAllString(text, "\n")
	text = blockTagRe.ReplaceAllString(text, "\n")

	text = anyTagRe.ReplaceAllString(text, "")

	text = trailingSpaceNewlineRe.ReplaceAllString(text, "\n")
	text = tripleNewlineRe.ReplaceAllString(text, "\n\n")
	text = blankBulletRe.ReplaceAllString(text, "$1$2")

	text = strings.TrimSpace(text)
	if len(followups) > 0 {
		text += "\n" + strings.Join(followups, "\n")
	}
	return text
}

// TrimIncompleteTrailingTag chops off an incomplete HTML tag at the end of
// a partial stream buffer (but not mathematical "<" inside prose), so a
// half-formed tag isn't stripped of its literal content mid-stream.
func TrimIncompleteTrailingTag(raw string) string {
	lastLt := strings.LastIndex(raw, "<")
	if lastLt == -1 {
		return raw
	}
	tail := raw[lastLt:]
	if strings.Contains(tail, ">") {
		return raw
	}
	if len(tail) > 1 && (isAlpha(tail[1]) || tail[1] == '/') {
		return raw[:lastLt]
	}
	return raw
}

func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// ShouldEmitContent decides whether the orchestrator should flush a
// cumulative content event: every 3 tokens, or whenever a token ends with
// sentence-ending punctuation or a newline.
func ShouldEmitContent(tokenIndex int, token string) bool {
	if tokenIndex%3 == 0 {
		return true
	}
	if token == "" {
		return false
	}
	last := token[len(token)-1]
	return last == '\n' || last == '.' || last == '!' || last == '?'
}
