// Package parser turns uploaded documents into per-page text through a
// document parsing service.
package parser

import (
	"context"
	"sort"
	"strings"
)

// Client parses a document.
type Client interface {
	Parse(ctx context.Context, filename string, content []byte) (*Response, error)
}

// Content is the rendered form of a document or element.
type Content struct {
	HTML     string `json:"html"`
	Markdown string `json:"markdown"`
	Text     string `json:"text"`
}

// Element is one layout element found by the parser.
type Element struct {
	ID       int     `json:"id"`
	Category string  `json:"category"`
	Page     int     `json:"page"`
	Content  Content `json:"content"`
}

// Response is the parser output.
type Response struct {
	API      string    `json:"api"`
	Model    string    `json:"model"`
	Content  Content   `json:"content"`
	Elements []Element `json:"elements"`
}

// rendered picks the richest representation of an element.
func (c Content) rendered() string {
	switch {
	case c.HTML != "":
		return c.HTML
	case c.Markdown != "":
		return c.Markdown
	default:
		return c.Text
	}
}

// Pages groups element content by page number, pages in ascending order and
// elements of one page joined by newlines. Without elements the whole
// document becomes a single page. An empty result means nothing usable was
// extracted.
func (r *Response) Pages() []string {
	if r == nil {
		return nil
	}

	if len(r.Elements) > 0 {
		byPage := make(map[int][]string)
		for _, el := range r.Elements {
			text := el.Content.rendered()
			if text == "" {
				continue
			}
			page := el.Page
			if page == 0 {
				page = 1
			}
			byPage[page] = append(byPage[page], text)
		}

		numbers := make([]int, 0, len(byPage))
		for n := range byPage {
			numbers = append(numbers, n)
		}
		sort.Ints(numbers)

		pages := make([]string, 0, len(numbers))
		for _, n := range numbers {
			pages = append(pages, strings.Join(byPage[n], "\n"))
		}
		return pages
	}

	text := r.Content.HTML
	if text == "" {
		text = r.Content.Text
	}
	if text == "" {
		return nil
	}
	return []string{text}
}
