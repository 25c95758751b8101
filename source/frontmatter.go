package source

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const fence = "---"

// SplitFrontmatter separates a leading YAML frontmatter block from the body.
// Text without frontmatter, or with a block that does not parse, is returned
// whole as the body with a nil map.
func SplitFrontmatter(text string) (map[string]any, string) {
	if !strings.HasPrefix(text, fence+"\n") && !strings.HasPrefix(text, fence+"\r\n") {
		return nil, text
	}
	fm, body, err := extractFrontmatter(text)
	if err != nil {
		return nil, text
	}
	return fm, body
}

func extractFrontmatter(text string) (map[string]any, string, error) {
	start := len(fence)
	if len(text) > start && text[start] == '\r' {
		start++
	}
	if len(text) > start && text[start] == '\n' {
		start++
	}

	end := strings.Index(text[start:], "\n"+fence)
	if end == -1 {
		return nil, text, fmt.Errorf("no closing frontmatter delimiter")
	}
	block := text[start : start+end]

	bodyStart := start + end + 1 + len(fence)
	for bodyStart < len(text) && (text[bodyStart] == '\n' || text[bodyStart] == '\r') {
		bodyStart++
	}

	var fm map[string]any
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return nil, text, fmt.Errorf("parse YAML frontmatter: %w", err)
	}
	return fm, text[bodyStart:], nil
}

func stringField(fm map[string]any, key string) string {
	v, ok := fm[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}
