package markup_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tavle/markup"
)

func TestDocumentRendering(t *testing.T) {
	tests := []struct {
		name     string
		build    func(d *markup.Document)
		expected string
	}{
		{
			name:     "empty document",
			build:    func(d *markup.Document) {},
			expected: "",
		},
		{
			name: "plain paragraph",
			build: func(d *markup.Document) {
				d.WriteText("Hello world")
			},
			expected: "<p>Hello world</p>",
		},
		{
			name: "bold run",
			build: func(d *markup.Document) {
				d.WriteText("plain ")
				d.Apply(markup.Bold, "")
				d.WriteText("loud")
			},
			expected: "<p>plain <strong>loud</strong></p>",
		},
		{
			name: "bold toggles off",
			build: func(d *markup.Document) {
				d.Apply(markup.Bold, "")
				d.WriteText("loud")
				d.Apply(markup.Bold, "")
				d.WriteText(" quiet")
			},
			expected: "<p><strong>loud</strong> quiet</p>",
		},
		{
			name: "nested inline styles",
			build: func(d *markup.Document) {
				d.Apply(markup.Bold, "")
				d.Apply(markup.Italic, "")
				d.Apply(markup.Underline, "")
				d.WriteText("styled")
			},
			expected: "<p><strong><em><u>styled</u></em></strong></p>",
		},
		{
			name: "newline starts a new paragraph",
			build: func(d *markup.Document) {
				d.WriteText("one\ntwo")
			},
			expected: "<p>one</p><p>two</p>",
		},
		{
			name: "centered paragraph",
			build: func(d *markup.Document) {
				d.WriteText("middle")
				d.Apply(markup.JustifyCenter, "")
			},
			expected: `<p style="text-align: center">middle</p>`,
		},
		{
			name: "unordered list with items",
			build: func(d *markup.Document) {
				d.Apply(markup.UnorderedList, "")
				d.WriteText("first\nsecond")
			},
			expected: "<ul><li>first</li><li>second</li></ul>",
		},
		{
			name: "ordered list",
			build: func(d *markup.Document) {
				d.Apply(markup.OrderedList, "")
				d.WriteText("first")
			},
			expected: "<ol><li>first</li></ol>",
		},
		{
			name: "toggling a list closes it",
			build: func(d *markup.Document) {
				d.Apply(markup.UnorderedList, "")
				d.WriteText("item")
				d.Apply(markup.UnorderedList, "")
				d.WriteText("after")
			},
			expected: "<ul><li>item</li></ul><p>after</p>",
		},
		{
			name: "inline image",
			build: func(d *markup.Document) {
				d.WriteText("look:")
				d.Apply(markup.InsertImage, "https://example.com/cat.png")
			},
			expected: `<p>look:</p><img src="https://example.com/cat.png">`,
		},
		{
			name: "image with empty url is a no-op",
			build: func(d *markup.Document) {
				d.WriteText("text")
				d.Apply(markup.InsertImage, "  ")
			},
			expected: "<p>text</p>",
		},
		{
			name: "unknown command is a no-op",
			build: func(d *markup.Document) {
				d.WriteText("text")
				d.Apply(markup.Command("fontSize"), "7")
			},
			expected: "<p>text</p>",
		},
		{
			name: "text after image starts a new paragraph",
			build: func(d *markup.Document) {
				d.Apply(markup.InsertImage, "https://example.com/a.png")
				d.WriteText("caption")
			},
			expected: `<img src="https://example.com/a.png"><p>caption</p>`,
		},
		{
			name: "text content is escaped",
			build: func(d *markup.Document) {
				d.WriteText("<script>alert(1)</script>")
			},
			expected: "<p>&lt;script&gt;alert(1)&lt;/script&gt;</p>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := markup.NewDocument()
			tt.build(d)
			assert.Equal(t, tt.expected, d.Snapshot())
		})
	}
}

func TestIsEffectivelyEmpty(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
		expected bool
	}{
		{
			name:     "empty string",
			fragment: "",
			expected: true,
		},
		{
			name:     "whitespace only",
			fragment: "   \n\t",
			expected: true,
		},
		{
			name:     "lone line break sentinel",
			fragment: "<br>",
			expected: true,
		},
		{
			name:     "self-closed line break sentinel",
			fragment: "<br/>",
			expected: true,
		},
		{
			name:     "actual content",
			fragment: "<p>hi</p>",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, markup.IsEffectivelyEmpty(tt.fragment))
		})
	}
}

func TestDocumentClear(t *testing.T) {
	d := markup.NewDocument()
	d.Apply(markup.Bold, "")
	d.WriteText("content")
	assert.False(t, d.IsEffectivelyEmpty())

	d.Clear()
	assert.True(t, d.IsEffectivelyEmpty())
	assert.Equal(t, "", d.Snapshot())

	// Inline style state is reset too
	d.WriteText("fresh")
	assert.Equal(t, "<p>fresh</p>", d.Snapshot())
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "script is stripped",
			input:    "<script>alert(1)</script><p>ok</p>",
			expected: "<p>ok</p>",
		},
		{
			name:     "event handlers are stripped",
			input:    `<p onclick="steal()">ok</p>`,
			expected: "<p>ok</p>",
		},
		{
			name:     "javascript image source is dropped",
			input:    `<img src="javascript:alert(1)"><p>ok</p>`,
			expected: "<p>ok</p>",
		},
		{
			name:     "https image source survives",
			input:    `<img src="https://example.com/a.png">`,
			expected: `<img src="https://example.com/a.png">`,
		},
		{
			// Blob stores without a public base URL resolve to
			// server-relative paths
			name:     "relative image source survives",
			input:    `<img src="/media/posts/user-1/1_cat.png">`,
			expected: `<img src="/media/posts/user-1/1_cat.png">`,
		},
		{
			name:     "non-http image scheme is dropped",
			input:    `<img src="ftp://example.com/a.png"><p>ok</p>`,
			expected: "<p>ok</p>",
		},
		{
			name:     "allowed formatting survives",
			input:    "<p><strong>a</strong><em>b</em><u>c</u></p><ul><li>d</li></ul>",
			expected: "<p><strong>a</strong><em>b</em><u>c</u></p><ul><li>d</li></ul>",
		},
		{
			name:     "disallowed style values are dropped",
			input:    `<p style="position: fixed">x</p>`,
			expected: "<p>x</p>",
		},
		{
			name:     "text-align style survives",
			input:    `<p style="text-align: right">x</p>`,
			expected: `<p style="text-align: right">x</p>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, markup.Sanitize(tt.input))
		})
	}
}
