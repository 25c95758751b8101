package source

import (
	"bytes"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"golang.org/x/net/html"
)

var blankRunRe = regexp.MustCompile(`\n{4,}`)

// stripped never carries document structure.
var stripped = map[string]bool{
	"nav": true, "script": true, "style": true, "noscript": true,
	"iframe": true, "form": true, "button": true,
}

// HTMLConverter turns rendered documents back into markdown so they can be
// validated like their sources.
type HTMLConverter struct {
	conv *md.Converter
}

// NewHTMLConverter creates a converter with GitHub flavored extensions
// (tables, task lists, strikethrough).
func NewHTMLConverter() *HTMLConverter {
	conv := md.NewConverter("", true, nil)
	conv.Use(plugin.GitHubFlavored())
	return &HTMLConverter{conv: conv}
}

// Convert returns the page title and the markdown body of an HTML document.
// The <main> or <article> element is used when present, otherwise <body>.
func (c *HTMLConverter) Convert(data []byte) (title, markdown string, err error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", "", err
	}

	title = findTitle(root)
	content := root
	for _, tag := range []string{"main", "article", "body"} {
		if n := findElement(root, tag); n != nil {
			content = n
			break
		}
	}
	removeStripped(content)

	var buf bytes.Buffer
	if err := html.Render(&buf, content); err != nil {
		return "", "", err
	}
	markdown, err = c.conv.ConvertString(buf.String())
	if err != nil {
		return "", "", err
	}
	return title, tidy(markdown), nil
}

func findTitle(n *html.Node) string {
	t := findElement(n, "title")
	if t == nil || t.FirstChild == nil {
		return ""
	}
	return strings.TrimSpace(t.FirstChild.Data)
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func removeStripped(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && stripped[c.Data] {
			n.RemoveChild(c)
		} else {
			removeStripped(c)
		}
		c = next
	}
}

func tidy(markdown string) string {
	markdown = blankRunRe.ReplaceAllString(markdown, "\n\n\n")
	lines := strings.Split(markdown, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n")) + "\n"
}

func isHTML(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".html") || strings.HasSuffix(lower, ".htm")
}
