// Package document lays report sections out onto fixed-size pages and
// renders the result as PDF.
//
// Composition is a pure function of section data and resolved attachments:
// it produces a ComposedDocument of draw operations without touching the
// network or the PDF backend's output stream.
package document

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jwalitptl/clinic-reports/internal/model"
	"github.com/jwalitptl/clinic-reports/internal/report/section"
	"github.com/jwalitptl/clinic-reports/pkg/logger"
)

// ErrComposer marks an unrecoverable layout or rendering failure.
var ErrComposer = errors.New("document composition failed")

// Placeholder lines drawn in place of attachments.
const (
	PlaceholderProfileImage = "[Profile image not available]"
	PlaceholderImage        = "[Image not available]"
	PlaceholderAppendedPDF  = "[PDF attachment appended at the end of this report]"
	PlaceholderAttachment   = "[Attachment not available]"
	placeholderUnsupported  = "[Unsupported attachment type: %s]"

	maxMIMEInPlaceholder = 64
)

// Composer lays out sections. A Composer is safe for concurrent use; every
// call gets its own cursor and typesetter.
type Composer struct {
	log           *logger.Logger
	newTypesetter func() Typesetter
}

func NewComposer(log *logger.Logger) *Composer {
	if log == nil {
		log = logger.Nop()
	}
	return &Composer{log: log, newTypesetter: NewTypesetter}
}

// Compose lays out the title block and every section in order. resolved
// must be aligned with section.Attachments(sections); missing outcomes are
// treated as unavailable.
func (c *Composer) Compose(title string, generatedAt time.Time, sections []section.Section, resolved []model.ResolvedAttachment) (doc *ComposedDocument, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("%w: %v", ErrComposer, r)
		}
	}()

	l := &layout{
		ts:       c.newTypesetter(),
		log:      c.log,
		resolved: resolved,
		cursor:   Cursor{Y: TopMargin, PageHeight: PageHeight, TopMargin: TopMargin},
		doc:      &ComposedDocument{Title: title},
	}
	l.newPage()
	l.titleBlock(title, generatedAt)
	for _, s := range sections {
		l.section(s)
	}
	return l.doc, nil
}

// block is an atomic unit of content: it is never split across pages.
type block struct {
	height float64
	draw   func(y float64)
}

type layout struct {
	ts       Typesetter
	log      *logger.Logger
	resolved []model.ResolvedAttachment
	next     int
	images   int

	cursor Cursor
	fresh  bool
	doc    *ComposedDocument
}

func (l *layout) newPage() {
	l.doc.Pages = append(l.doc.Pages, Page{})
	l.cursor.Y = l.cursor.TopMargin
	l.fresh = true
}

// ensure starts a new page when h does not fit below the cursor. A fresh
// page is never broken again.
func (l *layout) ensure(h float64) {
	if !l.cursor.Fits(h) && !l.fresh {
		l.newPage()
	}
}

func (l *layout) add(op Op) {
	page := &l.doc.Pages[len(l.doc.Pages)-1]
	page.Ops = append(page.Ops, op)
	l.fresh = false
}

func (l *layout) place(b block) {
	l.ensure(b.height)
	b.draw(l.cursor.Y)
	l.cursor.Y += b.height
}

func (l *layout) text(x, y, w, h float64, s string, f Font, c Color) {
	l.add(TextOp{X: x, Y: y, W: w, H: h, Text: l.ts.Encode(s), Font: f, Color: c, Align: "L"})
}

func (l *layout) titleBlock(title string, generatedAt time.Time) {
	y := l.cursor.Y
	l.text(LeftMargin, y, ContentWidth, 10, title, fontTitle, colorPrimary)
	l.text(LeftMargin, y+10, ContentWidth, 6, "Generated on "+generatedAt.Format("January 2, 2006"), fontSubtitle, colorTextMuted)
	l.add(LineOp{X1: LeftMargin, X2: LeftMargin + ContentWidth, Y: y + 18, Color: colorRule})
	l.cursor.Y = y + 22
}

// section draws the header band together with the first block of the first
// entry so a band never sits alone at the bottom of a page.
func (l *layout) section(s section.Section) {
	entries := make([][]block, len(s.Entries))
	for i, e := range s.Entries {
		entries[i] = l.entryBlocks(e)
	}

	lead := 0.0
	if len(entries) > 0 && len(entries[0]) > 0 {
		lead = entries[0][0].height
	}
	l.ensure(BandHeight + EntryGap + lead)

	y := l.cursor.Y
	l.add(RectOp{X: LeftMargin, Y: y, W: ContentWidth, H: BandHeight, Fill: colorPrimary})
	l.text(LeftMargin+3, y, ContentWidth-6, BandHeight, s.Title, fontBand, colorBandText)
	l.cursor.Y += BandHeight + EntryGap

	for i, blocks := range entries {
		if i > 0 {
			l.cursor.Y += EntryGap
		}
		for _, b := range blocks {
			l.place(b)
		}
	}
	l.cursor.Y += SectionGap
}

func (l *layout) entryBlocks(e section.Entry) []block {
	var blocks []block
	if e.Heading != "" {
		heading := e.Heading
		blocks = append(blocks, block{height: LineHeight + 1, draw: func(y float64) {
			l.text(LeftMargin, y, ContentWidth, LineHeight, heading, fontHeading, colorTextDark)
		}})
	}

	var lab *section.Attachment
	if e.Attachment != nil {
		switch e.Attachment.Kind {
		case model.AttachmentProfileImage:
			blocks = append(blocks, l.profileImage(l.take()))
		default:
			lab = e.Attachment
		}
	}

	for _, f := range e.Fields {
		blocks = append(blocks, l.fieldBlocks(f)...)
	}

	if lab != nil {
		blocks = append(blocks, l.labAttachment(l.take()))
	}
	return blocks
}

func (l *layout) take() model.ResolvedAttachment {
	if l.next >= len(l.resolved) {
		l.next++
		return model.Unavailable()
	}
	r := l.resolved[l.next]
	l.next++
	return r
}

// fieldBlocks lays out a label/value row. Values wrap within the value
// column; long free text that does not fit on one line is set as a
// paragraph under its label across the full content width. Rows taller
// than a page are split line by line.
func (l *layout) fieldBlocks(f section.Field) []block {
	measure := func(s string) float64 { return l.ts.Width(fontValue, s) }
	value := l.ts.Encode(f.Value)
	label := l.ts.Encode(f.Label + ":")

	lines := wrap(measure, value, valueWidth)
	if f.Long && len(lines) > 1 {
		width := LeftMargin + ContentWidth - labelX
		lines = wrap(measure, value, width)
		return l.lineBlocks(label, labelX, width, lines)
	}

	if float64(len(lines))*LineHeight <= l.cursor.Usable() {
		return []block{{height: float64(len(lines)) * LineHeight, draw: func(y float64) {
			l.add(TextOp{X: labelX, Y: y, W: valueX - labelX, H: LineHeight, Text: label, Font: fontLabel, Color: colorTextDark, Align: "L"})
			for i, line := range lines {
				l.add(TextOp{X: valueX, Y: y + float64(i)*LineHeight, W: valueWidth, H: LineHeight, Text: line, Font: fontValue, Color: colorTextDark, Align: "L"})
			}
		}}}
	}

	blocks := make([]block, 0, len(lines))
	for i, line := range lines {
		blocks = append(blocks, block{height: LineHeight, draw: func(y float64) {
			if i == 0 {
				l.add(TextOp{X: labelX, Y: y, W: valueX - labelX, H: LineHeight, Text: label, Font: fontLabel, Color: colorTextDark, Align: "L"})
			}
			l.add(TextOp{X: valueX, Y: y, W: valueWidth, H: LineHeight, Text: line, Font: fontValue, Color: colorTextDark, Align: "L"})
		}})
	}
	return blocks
}

// lineBlocks sets a label line followed by a paragraph. The label and first
// line stay together.
func (l *layout) lineBlocks(label string, x, width float64, lines []string) []block {
	drawLabel := func(y float64) {
		l.add(TextOp{X: labelX, Y: y, W: width, H: LineHeight, Text: label, Font: fontLabel, Color: colorTextDark, Align: "L"})
	}
	drawLine := func(y float64, line string) {
		l.add(TextOp{X: x, Y: y, W: width, H: LineHeight, Text: line, Font: fontValue, Color: colorTextDark, Align: "L"})
	}

	total := float64(len(lines)+1) * LineHeight
	if total <= l.cursor.Usable() {
		return []block{{height: total, draw: func(y float64) {
			drawLabel(y)
			for i, line := range lines {
				drawLine(y+float64(i+1)*LineHeight, line)
			}
		}}}
	}

	blocks := []block{{height: 2 * LineHeight, draw: func(y float64) {
		drawLabel(y)
		drawLine(y+LineHeight, lines[0])
	}}}
	for _, line := range lines[1:] {
		blocks = append(blocks, block{height: LineHeight, draw: func(y float64) { drawLine(y, line) }})
	}
	return blocks
}

func (l *layout) placeholder(msg string) block {
	l.doc.Placeholders++
	return block{height: LineHeight + EntryGap, draw: func(y float64) {
		l.text(labelX, y, LeftMargin+ContentWidth-labelX, LineHeight, msg, fontPlaceholder, colorTextMuted)
	}}
}

func (l *layout) profileImage(res model.ResolvedAttachment) block {
	if res.Classification == model.ClassificationImage {
		if b, ok := l.image(res.Bytes, ProfileImageSize, ProfileImageSize); ok {
			return b
		}
	}
	return l.placeholder(PlaceholderProfileImage)
}

func (l *layout) labAttachment(res model.ResolvedAttachment) block {
	switch res.Classification {
	case model.ClassificationImage:
		if b, ok := l.image(res.Bytes, LabImageWidth, LabImageHeight); ok {
			return b
		}
		return l.placeholder(PlaceholderImage)
	case model.ClassificationEmbeddablePDF:
		l.doc.Extras = append(l.doc.Extras, res.Bytes)
		l.doc.ExtraSources = append(l.doc.ExtraSources, l.next-1)
		l.log.Debug("queued pdf attachment for appending", "position", len(l.doc.Extras))
		return block{height: LineHeight + EntryGap, draw: func(y float64) {
			l.text(labelX, y, LeftMargin+ContentWidth-labelX, LineHeight, PlaceholderAppendedPDF, fontPlaceholder, colorTextMuted)
		}}
	case model.ClassificationUnsupported:
		mime := res.MIMEType
		if len(mime) > maxMIMEInPlaceholder {
			mime = mime[:maxMIMEInPlaceholder]
		}
		return l.placeholder(fmt.Sprintf(placeholderUnsupported, mime))
	case model.ClassificationUnavailable:
		return l.placeholder(PlaceholderAttachment)
	default:
		return l.placeholder(PlaceholderAttachment)
	}
}

// image fits the picture into a fixed box, preserving aspect ratio. The
// full box height is reserved regardless of the scaled size.
func (l *layout) image(data []byte, boxW, boxH float64) (block, bool) {
	info, ok := l.ts.Image(data)
	if !ok {
		return block{}, false
	}
	scale := math.Min(boxW/float64(info.Width), boxH/float64(info.Height))
	w, h := float64(info.Width)*scale, float64(info.Height)*scale

	l.images++
	name := fmt.Sprintf("img%d", l.images)
	return block{height: boxH + EntryGap, draw: func(y float64) {
		l.add(ImageOp{X: labelX, Y: y, W: w, H: h, Name: name, Type: info.Type, Data: data})
	}}, true
}
