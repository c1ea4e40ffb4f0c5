package builtin

import (
	"context"
	"strings"
	"testing"
)

func TestHTMLCleanTool_Execute(t *testing.T) {
	tool := NewHTMLCleanTool()
	ctx := context.Background()

	tests := []struct {
		name        string
		args        map[string]interface{}
		wantTextLen int
		wantTitle   bool
		wantErr     bool
	}{
		{
			name: "basic article extraction",
			args: map[string]interface{}{
				"content": `<!DOCTYPE html>
<html>
<head><title>Test Article</title><script>alert('evil');</script></head>
<body>
<nav>Navigation menu</nav>
<main><article>
<h1>Main Article Title</h1>
<p>This is the main content of the article. It has enough text to be recognized as the primary content by the readability algorithm. The article discusses important topics that are relevant to the reader.</p>
<p>Additional paragraph with more content to ensure the readability algorithm has enough material to work with.</p>
</article></main>
<footer>Footer content</footer>
</body></html>`,
			},
			wantTextLen: 50,
			wantTitle:   true,
		},
		{
			name: "text only output",
			args: map[string]interface{}{
				"content":       `<html><body><p>Simple text content for testing.</p></body></html>`,
				"output_format": "text",
			},
			wantTextLen: 5,
		},
		{
			name:    "empty content errors",
			args:    map[string]interface{}{"content": ""},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tool.Execute(ctx, tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Execute() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute() unexpected error: %v", err)
			}
			text, _ := out["text_content"].(string)
			if len(text) < tt.wantTextLen {
				t.Errorf("text_content length = %d, want >= %d", len(text), tt.wantTextLen)
			}
			title, _ := out["title"].(string)
			if tt.wantTitle && title == "" {
				t.Errorf("expected non-empty title")
			}
			if strings.Contains(text, "alert(") || strings.Contains(text, "<script") {
				t.Errorf("text_content retained script content: %q", text)
			}
		})
	}
}

func TestHTMLCleanTool_Passthrough(t *testing.T) {
	tool := NewHTMLCleanTool()
	ctx := context.Background()

	tests := []struct {
		name            string
		content         string
		wantPassthrough bool
	}{
		{"plain text", "This is just plain text without any HTML tags.", true},
		{"json", `{"key": "value"}`, true},
		{"html", `<html><body><p>Processed content.</p></body></html>`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tool.Execute(ctx, map[string]interface{}{"content": tt.content})
			if err != nil {
				t.Fatalf("Execute() error: %v", err)
			}
			passthrough, _ := out["passthrough"].(bool)
			if passthrough != tt.wantPassthrough {
				t.Errorf("passthrough = %v, want %v", passthrough, tt.wantPassthrough)
			}
			if tt.wantPassthrough {
				text, _ := out["text_content"].(string)
				if text != tt.content {
					t.Errorf("text_content = %q, want original %q", text, tt.content)
				}
			}
		})
	}
}

func TestHTMLCleanTool_MaxLength(t *testing.T) {
	tool := NewHTMLCleanTool()
	ctx := context.Background()

	long := `<html><body><p>` + strings.Repeat("word ", 400) + `</p></body></html>`
	out, err := tool.Execute(ctx, map[string]interface{}{
		"content":       long,
		"max_length":    float64(100),
		"output_format": "text",
	})
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	text, _ := out["text_content"].(string)
	if len(text) > 110 {
		t.Errorf("text_content length = %d, want <= 110", len(text))
	}
}

func TestHTMLCleanTool_Interface(t *testing.T) {
	var _ Tool = NewHTMLCleanTool()
}
