package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPages(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
		want []string
	}{
		{
			name: "nil response",
			resp: nil,
			want: nil,
		},
		{
			name: "elements grouped and ordered by page",
			resp: &Response{Elements: []Element{
				{Page: 2, Content: Content{HTML: "<p>two-a</p>"}},
				{Page: 1, Content: Content{HTML: "<h1>one</h1>"}},
				{Page: 2, Content: Content{HTML: "<p>two-b</p>"}},
				{Page: 5, Content: Content{HTML: "<p>five</p>"}},
			}},
			want: []string{"<h1>one</h1>", "<p>two-a</p>\n<p>two-b</p>", "<p>five</p>"},
		},
		{
			name: "missing page number means page one",
			resp: &Response{Elements: []Element{
				{Page: 2, Content: Content{HTML: "b"}},
				{Content: Content{HTML: "a"}},
			}},
			want: []string{"a", "b"},
		},
		{
			name: "empty elements are dropped",
			resp: &Response{Elements: []Element{
				{Page: 1, Content: Content{}},
				{Page: 2, Content: Content{HTML: "kept"}},
			}},
			want: []string{"kept"},
		},
		{
			name: "element falls back to markdown then text",
			resp: &Response{Elements: []Element{
				{Page: 1, Content: Content{Markdown: "# md"}},
				{Page: 1, Content: Content{Text: "plain"}},
			}},
			want: []string{"# md\nplain"},
		},
		{
			name: "elements with no content at all",
			resp: &Response{
				Elements: []Element{{Page: 1}},
				Content:  Content{HTML: "ignored because elements exist"},
			},
			want: []string{},
		},
		{
			name: "document html fallback",
			resp: &Response{Content: Content{HTML: "<p>all</p>", Text: "all"}},
			want: []string{"<p>all</p>"},
		},
		{
			name: "document text fallback",
			resp: &Response{Content: Content{Text: "just text"}},
			want: []string{"just text"},
		},
		{
			name: "nothing extracted",
			resp: &Response{},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.resp.Pages()
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
