package markup

import (
	"html"
	"strings"
)

// Command is one of the fixed style commands the editor toolbar can apply.
// The names follow the browser editing command vocabulary.
type Command string

const (
	Bold          Command = "bold"
	Italic        Command = "italic"
	Underline     Command = "underline"
	UnorderedList Command = "insertUnorderedList"
	OrderedList   Command = "insertOrderedList"
	JustifyLeft   Command = "justifyLeft"
	JustifyCenter Command = "justifyCenter"
	JustifyRight  Command = "justifyRight"
	InsertImage   Command = "insertImage"
)

type inlineStyle struct {
	bold      bool
	italic    bool
	underline bool
}

type run struct {
	text  string
	style inlineStyle
}

type blockKind int

const (
	blockParagraph blockKind = iota
	blockUnordered
	blockOrdered
	blockImage
)

type block struct {
	kind  blockKind
	align string  // "", "left", "center", "right"
	runs  []run   // paragraph content
	items [][]run // list content
	url   string  // image source
}

// Document is an owned rich-text model. It is the single source of truth for
// the draft content; the rendered snapshot is never read back from a view.
// Text is appended under the current inline style, block commands operate on
// the trailing block. Every mutation synchronously re-renders the cached
// snapshot so a submit validator never sees stale content.
type Document struct {
	blocks   []block
	current  inlineStyle
	snapshot string
}

func NewDocument() *Document {
	return &Document{}
}

// Apply dispatches a style command against the document. Unknown commands
// are silently ignored, they can only come from broken toolbar wiring.
func (d *Document) Apply(cmd Command, value string) {
	switch cmd {
	case Bold:
		d.current.bold = !d.current.bold
	case Italic:
		d.current.italic = !d.current.italic
	case Underline:
		d.current.underline = !d.current.underline
	case UnorderedList:
		d.toggleList(blockUnordered)
	case OrderedList:
		d.toggleList(blockOrdered)
	case JustifyLeft:
		d.setAlign("left")
	case JustifyCenter:
		d.setAlign("center")
	case JustifyRight:
		d.setAlign("right")
	case InsertImage:
		if strings.TrimSpace(value) == "" {
			return
		}
		d.blocks = append(d.blocks, block{kind: blockImage, url: value})
	default:
		return
	}
	d.render()
}

// WriteText appends text to the document under the current inline style.
// Newlines start a new paragraph, or a new item when a list is open.
func (d *Document) WriteText(text string) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if i > 0 {
			d.breakLine()
		}
		if line == "" {
			continue
		}
		b := d.writableBlock()
		r := run{text: line, style: d.current}
		if b.kind == blockParagraph {
			b.runs = append(b.runs, r)
		} else {
			last := len(b.items) - 1
			b.items[last] = append(b.items[last], r)
		}
	}
	d.render()
}

// Snapshot returns the current sanitized markup fragment.
func (d *Document) Snapshot() string {
	return d.snapshot
}

// Clear resets the document to empty, including inline style state.
func (d *Document) Clear() {
	d.blocks = nil
	d.current = inlineStyle{}
	d.snapshot = ""
}

// IsEffectivelyEmpty reports whether the snapshot trims to nothing or to the
// lone line-break a touched-but-empty editor produces. Used as the
// submit-blocking predicate.
func (d *Document) IsEffectivelyEmpty() bool {
	return IsEffectivelyEmpty(d.snapshot)
}

// IsEffectivelyEmpty reports whether a markup fragment is visually empty: it
// trims to nothing or to a lone line-break sentinel.
func IsEffectivelyEmpty(fragment string) bool {
	s := strings.TrimSpace(fragment)
	return s == "" || s == "<br>" || s == "<br/>"
}

func (d *Document) toggleList(kind blockKind) {
	if len(d.blocks) > 0 {
		last := &d.blocks[len(d.blocks)-1]
		if last.kind == kind {
			// Toggling an open list closes it; the next text starts a
			// fresh paragraph.
			d.blocks = append(d.blocks, block{kind: blockParagraph})
			return
		}
	}
	d.blocks = append(d.blocks, block{kind: kind, items: [][]run{{}}})
}

func (d *Document) setAlign(align string) {
	if len(d.blocks) == 0 {
		d.blocks = append(d.blocks, block{kind: blockParagraph})
	}
	d.blocks[len(d.blocks)-1].align = align
}

// writableBlock returns the trailing block text can be appended to,
// creating a paragraph when there is none.
func (d *Document) writableBlock() *block {
	if len(d.blocks) == 0 || d.blocks[len(d.blocks)-1].kind == blockImage {
		d.blocks = append(d.blocks, block{kind: blockParagraph})
	}
	return &d.blocks[len(d.blocks)-1]
}

func (d *Document) breakLine() {
	b := d.writableBlock()
	if b.kind == blockParagraph {
		d.blocks = append(d.blocks, block{kind: blockParagraph})
	} else {
		b.items = append(b.items, []run{})
	}
}

func (d *Document) render() {
	var sb strings.Builder
	for _, b := range d.blocks {
		switch b.kind {
		case blockParagraph:
			renderParagraph(&sb, b)
		case blockUnordered:
			renderList(&sb, "ul", b)
		case blockOrdered:
			renderList(&sb, "ol", b)
		case blockImage:
			sb.WriteString(`<img src="` + html.EscapeString(b.url) + `">`)
		}
	}
	d.snapshot = Sanitize(sb.String())
}

func renderParagraph(sb *strings.Builder, b block) {
	if len(b.runs) == 0 {
		// A touched but empty paragraph renders as a bare line break, the
		// same sentinel browser editors leave behind.
		sb.WriteString("<br>")
		return
	}
	sb.WriteString("<p")
	writeAlign(sb, b.align)
	sb.WriteString(">")
	renderRuns(sb, b.runs)
	sb.WriteString("</p>")
}

func renderList(sb *strings.Builder, tag string, b block) {
	sb.WriteString("<" + tag)
	writeAlign(sb, b.align)
	sb.WriteString(">")
	for _, item := range b.items {
		sb.WriteString("<li>")
		renderRuns(sb, item)
		sb.WriteString("</li>")
	}
	sb.WriteString("</" + tag + ">")
}

func renderRuns(sb *strings.Builder, runs []run) {
	for _, r := range runs {
		open, shut := "", ""
		if r.style.bold {
			open += "<strong>"
			shut = "</strong>" + shut
		}
		if r.style.italic {
			open += "<em>"
			shut = "</em>" + shut
		}
		if r.style.underline {
			open += "<u>"
			shut = "</u>" + shut
		}
		sb.WriteString(open + html.EscapeString(r.text) + shut)
	}
}

func writeAlign(sb *strings.Builder, align string) {
	if align != "" {
		sb.WriteString(` style="text-align: ` + align + `"`)
	}
}
