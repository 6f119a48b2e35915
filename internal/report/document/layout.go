package document

// A4 portrait geometry in millimetres.
const (
	PageWidth    = 210.0
	PageHeight   = 277.0 // content limit: 297 minus a 20mm bottom margin
	TopMargin    = 20.0
	LeftMargin   = 15.0
	ContentWidth = 180.0

	BandHeight = 9.0
	LineHeight = 5.0
	SectionGap = 6.0
	EntryGap   = 2.0

	ProfileImageSize = 35.0
	LabImageWidth    = 90.0
	LabImageHeight   = 65.0

	labelX     = 18.0
	valueX     = 70.0
	valueWidth = LeftMargin + ContentWidth - valueX

	footerY = 285.0
)

// Color is an RGB triple.
type Color [3]int

var (
	colorPrimary   = Color{30, 58, 95}
	colorBandText  = Color{255, 255, 255}
	colorTextDark  = Color{44, 62, 80}
	colorTextMuted = Color{127, 140, 141}
	colorRule      = Color{220, 220, 220}
)

// Font selects one of the core PDF fonts.
type Font struct {
	Family string
	Style  string
	Size   float64
}

var (
	fontTitle       = Font{"Helvetica", "B", 18}
	fontSubtitle    = Font{"Helvetica", "", 10}
	fontBand        = Font{"Helvetica", "B", 12}
	fontHeading     = Font{"Helvetica", "B", 11}
	fontLabel       = Font{"Helvetica", "B", 10}
	fontValue       = Font{"Helvetica", "", 10}
	fontPlaceholder = Font{"Helvetica", "I", 10}
	fontFooter      = Font{"Helvetica", "", 8}
)

// Cursor is the vertical write position on the current page.
type Cursor struct {
	Y          float64
	PageHeight float64
	TopMargin  float64
}

// Fits reports whether a block of height h can be drawn at the cursor.
func (c Cursor) Fits(h float64) bool {
	return c.Y+h <= c.PageHeight
}

// Usable is the tallest block a fresh page can hold.
func (c Cursor) Usable() float64 {
	return c.PageHeight - c.TopMargin
}
