package builtin

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/smilemakc/flowcore/internal/node"
)

// HTMLCleanTool extracts readable content from HTML, stripping scripts,
// ads, and boilerplate down to the main article body. Registered under
// tool name "html_clean"; non-HTML input passes through unchanged.
// Grounded on pkg/executor/builtin/html_clean.go's HTMLCleanExecutor,
// adapted from the Tool-kind executor.BaseExecutor shape onto the C5 Tool
// contract's Execute(ctx, args) (map[string]interface{}, error).
type HTMLCleanTool struct{}

func NewHTMLCleanTool() *HTMLCleanTool { return &HTMLCleanTool{} }

func (HTMLCleanTool) Name() string        { return "html_clean" }
func (HTMLCleanTool) Description() string { return "extracts readable article content from HTML" }

func (HTMLCleanTool) InputSchema() node.Schema {
	return node.Schema{"content": "string", "output_format": "string", "max_length": "number"}
}

func (HTMLCleanTool) OutputSchema() node.Schema {
	return node.Schema{
		"text_content": "string",
		"html_content": "string",
		"title":        "string",
		"word_count":   "number",
		"is_html":      "boolean",
	}
}

func (t HTMLCleanTool) Execute(_ context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	content, _ := args["content"].(string)
	if content == "" {
		return nil, fmt.Errorf("html_clean: content is required")
	}
	outputFormat, _ := args["output_format"].(string)
	if outputFormat == "" {
		outputFormat = "both"
	}
	maxLength := 0
	if v, ok := args["max_length"].(float64); ok {
		maxLength = int(v)
	}

	if !t.isHTML(content) {
		return t.result(content, "", "", false, true), nil
	}

	parsedURL, _ := url.Parse("http://localhost")
	preprocessed, err := t.preprocess(content)
	if err != nil {
		return nil, fmt.Errorf("html_clean: preprocess: %w", err)
	}

	article, err := readability.FromReader(strings.NewReader(preprocessed), parsedURL)
	if err != nil {
		return t.fallback(preprocessed, outputFormat, maxLength), nil
	}

	text := t.cleanWhitespace(article.TextContent)
	html := t.cleanWhitespace(article.Content)
	if maxLength > 0 {
		text = t.truncate(text, maxLength)
		html = t.truncate(html, maxLength)
	}

	var outText, outHTML string
	switch outputFormat {
	case "text":
		outText = text
	case "html":
		outHTML = html
	default:
		outText, outHTML = text, html
	}

	out := t.result(outText, outHTML, article.Title, true, false)
	return out, nil
}

func (t HTMLCleanTool) result(text, html, title string, isHTML, passthrough bool) map[string]interface{} {
	return map[string]interface{}{
		"text_content": text,
		"html_content": html,
		"title":        title,
		"word_count":   len(strings.Fields(text)),
		"is_html":      isHTML,
		"passthrough":  passthrough,
	}
}

var htmlTagRegex = regexp.MustCompile(`<[a-zA-Z][a-zA-Z0-9]*(\s[^>]*)?>`)

func (t HTMLCleanTool) isHTML(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return false
	}
	return htmlTagRegex.MatchString(trimmed)
}

// preprocess strips scripts, styles, and common ad/tracking boilerplate
// before handing the document to the readability algorithm.
func (t HTMLCleanTool) preprocess(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, iframe, frame, frameset, object, embed, applet, form").Remove()
	doc.Find("[hidden], [aria-hidden='true']").Remove()
	for _, pattern := range []string{
		"[class*='ad-']", "[class*='advertisement']", "[class*='cookie']",
		"[class*='consent']", "[class*='popup']", "[class*='newsletter']",
		"[class*='related']", "[class*='comment']",
	} {
		doc.Find(pattern).Remove()
	}
	return doc.Html()
}

func (t HTMLCleanTool) fallback(html, outputFormat string, maxLength int) map[string]interface{} {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return t.result(html, "", "", false, true)
	}
	main := doc.Find("main, article, .content, #content").First()
	if main.Length() == 0 {
		main = doc.Find("body")
	}
	text := t.cleanWhitespace(main.Text())
	htmlContent, _ := main.Html()
	htmlContent = t.cleanWhitespace(htmlContent)
	if maxLength > 0 {
		text = t.truncate(text, maxLength)
		htmlContent = t.truncate(htmlContent, maxLength)
	}
	var outText, outHTML string
	switch outputFormat {
	case "text":
		outText = text
	case "html":
		outHTML = htmlContent
	default:
		outText, outHTML = text, htmlContent
	}
	return t.result(outText, outHTML, doc.Find("title").First().Text(), true, false)
}

var (
	spaceRegex   = regexp.MustCompile(`[ \t]+`)
	newlineRegex = regexp.MustCompile(`\n\s*\n+`)
)

func (t HTMLCleanTool) cleanWhitespace(text string) string {
	text = spaceRegex.ReplaceAllString(text, " ")
	text = newlineRegex.ReplaceAllString(text, "\n\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func (t HTMLCleanTool) truncate(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	truncated := text[:maxLen]
	if last := strings.LastIndex(truncated, " "); last > maxLen/2 {
		truncated = truncated[:last]
	}
	return strings.TrimSpace(truncated) + "..."
}
