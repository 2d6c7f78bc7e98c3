// Package extract splits a raw model response into its reasoning text and
// the generated component source.
//
// Extraction is a plain left-to-right scan over the response. Tag pairs are
// matched literally: the first open tag followed by a close tag forms a
// pair, an open tag without a close is treated as plain text, and nothing
// is ever synthesized from a partial block.
package extract

import "strings"

// Default tag names used by the generator prompt.
const (
	DefaultReasoningTag = "thinking"
	DefaultArtifactTag  = "component"
)

// Tags names the reasoning and artifact tags recognised by a Parser.
type Tags struct {
	Reasoning string
	Artifact  string
}

// DefaultTags returns the tag names the bundled prompt instructs the model to use.
func DefaultTags() Tags {
	return Tags{Reasoning: DefaultReasoningTag, Artifact: DefaultArtifactTag}
}

// Result is the outcome of parsing one response.
type Result struct {
	// Reasoning is the response with every reasoning block removed, trimmed.
	Reasoning string
	// Artifact is the trimmed content of the first artifact block, or "".
	Artifact string
}

// HasArtifact reports whether the response carried a component.
func (r Result) HasArtifact() bool {
	return r.Artifact != ""
}

// Parser extracts reasoning and artifact text. The zero value uses DefaultTags.
type Parser struct {
	tags Tags
}

// NewParser creates a parser for the given tags. Empty names fall back to the defaults.
func NewParser(tags Tags) *Parser {
	if tags.Reasoning == "" {
		tags.Reasoning = DefaultReasoningTag
	}
	if tags.Artifact == "" {
		tags.Artifact = DefaultArtifactTag
	}
	return &Parser{tags: tags}
}

// Parse parses raw with the default tags.
func Parse(raw string) Result {
	return NewParser(DefaultTags()).Parse(raw)
}

// Parse splits raw into reasoning and artifact text. The artifact is always
// located in the original input, never in the reasoning-stripped text.
func (p *Parser) Parse(raw string) Result {
	tags := p.tags
	if tags.Reasoning == "" || tags.Artifact == "" {
		tags = NewParser(tags).tags
	}

	artifact, _ := FirstBlock(raw, tags.Artifact)
	return Result{
		Reasoning: strings.TrimSpace(StripBlocks(raw, tags.Reasoning)),
		Artifact:  strings.TrimSpace(artifact),
	}
}

// StripBlocks removes every <tag>...</tag> block from s. Each open tag is
// closed by the nearest following close tag. An open tag with no close tag
// after it is left in place along with the text that follows. Removal is
// repeated until no block remains, so blocks spliced together by an earlier
// removal are stripped too and the result is stable under a second call.
func StripBlocks(s, tag string) string {
	open, closing := delimiters(tag)
	for {
		next := stripOnce(s, open, closing)
		if next == s {
			return s
		}
		s = next
	}
}

func stripOnce(s, open, closing string) string {
	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, open)
		if start < 0 {
			break
		}
		end := strings.Index(rest[start+len(open):], closing)
		if end < 0 {
			break
		}
		b.WriteString(rest[:start])
		rest = rest[start+len(open)+end+len(closing):]
	}
	b.WriteString(rest)
	return b.String()
}

// FirstBlock returns the text between the first open tag in s and the first
// close tag after it. A nested open tag is part of the returned text.
func FirstBlock(s, tag string) (string, bool) {
	open, closing := delimiters(tag)

	start := strings.Index(s, open)
	if start < 0 {
		return "", false
	}
	end := strings.Index(s[start+len(open):], closing)
	if end < 0 {
		return "", false
	}
	end += start + len(open)
	return s[start+len(open) : end], true
}

func delimiters(tag string) (string, string) {
	return "<" + tag + ">", "</" + tag + ">"
}
