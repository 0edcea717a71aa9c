package openai

import (
	"fmt"
	"slices"
	"strings"

	"github.com/poiesic/kbase/core"
)

// maxPassageChars bounds each passage in the prompt.
const maxPassageChars = 4000

// formatPassages renders passages as a numbered list, one block per passage.
func formatPassages(passages []core.Passage) string {
	var b strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&b, "[%d] (%s)\n%s\n\n", i+1, p.Filename, truncate(scrubString(p.Content), maxPassageChars))
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatGraph renders entities and relationships as an indented outline.
// Returns an empty string for a nil or empty graph.
func formatGraph(graph *core.GraphContext) string {
	if graph == nil || graph.Empty() {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nEntity graph:\n")
	for _, e := range graph.Entities {
		fmt.Fprintf(&b, "- %s (%s)", e.Name, e.Type)
		if len(e.Attributes) > 0 {
			b.WriteString(" ")
			b.WriteString(formatAttributes(e.Attributes))
		}
		b.WriteString("\n")
	}
	for _, r := range graph.Relationships {
		fmt.Fprintf(&b, "- %s %s %s\n", r.SourceName, r.Type, r.TargetName)
	}
	return b.String()
}

func formatAttributes(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + attrs[k]
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// scrubString collapses runs of whitespace and trims the result.
func scrubString(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
