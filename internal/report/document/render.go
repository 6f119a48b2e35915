package document

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
)

// RenderOptions carries document metadata. CreatedAt is written as both
// creation and modification date so identical input renders identical bytes.
type RenderOptions struct {
	Author    string
	Creator   string
	CreatedAt time.Time
}

// Render serializes a composed document with fpdf and stamps "Page n of N"
// footers below the content limit.
func Render(doc *ComposedDocument, opts RenderOptions) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: render: %v", ErrComposer, r)
		}
	}()

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(LeftMargin, TopMargin, PageWidth-LeftMargin-ContentWidth)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(opts.CreatedAt)
	pdf.SetModificationDate(opts.CreatedAt)
	pdf.SetTitle(doc.Title, true)
	if opts.Author != "" {
		pdf.SetAuthor(opts.Author, true)
	}
	if opts.Creator != "" {
		pdf.SetCreator(opts.Creator, true)
	}

	pages := doc.Pages
	if len(pages) == 0 {
		pages = []Page{{}}
	}

	for i, page := range pages {
		pdf.AddPage()
		for _, op := range page.Ops {
			drawOp(pdf, op)
		}
		footer(pdf, i+1, len(pages))
	}

	if pdf.Err() {
		return nil, fmt.Errorf("%w: %v", ErrComposer, pdf.Error())
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: output: %v", ErrComposer, err)
	}
	return buf.Bytes(), nil
}

func drawOp(pdf *fpdf.Fpdf, op Op) {
	switch o := op.(type) {
	case TextOp:
		pdf.SetFont(o.Font.Family, o.Font.Style, o.Font.Size)
		pdf.SetTextColor(o.Color[0], o.Color[1], o.Color[2])
		pdf.SetXY(o.X, o.Y)
		pdf.CellFormat(o.W, o.H, o.Text, "", 0, o.Align, false, 0, "")
	case RectOp:
		pdf.SetFillColor(o.Fill[0], o.Fill[1], o.Fill[2])
		pdf.Rect(o.X, o.Y, o.W, o.H, "F")
	case LineOp:
		pdf.SetDrawColor(o.Color[0], o.Color[1], o.Color[2])
		pdf.SetLineWidth(0.3)
		pdf.Line(o.X1, o.Y, o.X2, o.Y)
	case ImageOp:
		opt := fpdf.ImageOptions{ImageType: o.Type}
		pdf.RegisterImageOptionsReader(o.Name, opt, bytes.NewReader(o.Data))
		pdf.ImageOptions(o.Name, o.X, o.Y, o.W, o.H, false, opt, 0, "")
	default:
		panic(fmt.Sprintf("unknown draw op %T", op))
	}
}

func footer(pdf *fpdf.Fpdf, n, total int) {
	pdf.SetFont(fontFooter.Family, fontFooter.Style, fontFooter.Size)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.SetXY(LeftMargin, footerY)
	pdf.CellFormat(ContentWidth, 5, fmt.Sprintf("Page %d of %d", n, total), "", 0, "C", false, 0, "")
}
