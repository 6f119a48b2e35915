package document

// Op is a single draw operation. Coordinates are absolute millimetres from
// the top-left corner of the page.
type Op interface {
	// Extent returns the vertical span the operation covers.
	Extent() (top, bottom float64)
}

// TextOp draws one line of text. Text is already encoded for the core fonts.
type TextOp struct {
	X, Y, W, H float64
	Text       string
	Font       Font
	Color      Color
	Align      string
}

func (o TextOp) Extent() (float64, float64) { return o.Y, o.Y + o.H }

// RectOp draws a filled rectangle.
type RectOp struct {
	X, Y, W, H float64
	Fill       Color
}

func (o RectOp) Extent() (float64, float64) { return o.Y, o.Y + o.H }

// LineOp draws a horizontal rule.
type LineOp struct {
	X1, X2, Y float64
	Color     Color
}

func (o LineOp) Extent() (float64, float64) { return o.Y, o.Y }

// ImageOp draws a validated raster image. Type is an fpdf image type.
type ImageOp struct {
	X, Y, W, H float64
	Name       string
	Type       string
	Data       []byte
}

func (o ImageOp) Extent() (float64, float64) { return o.Y, o.Y + o.H }

// Page is an ordered list of draw operations.
type Page struct {
	Ops []Op
}

// ComposedDocument is the laid-out primary document plus the sub-documents
// queued for appending, in enqueue order. ExtraSources[i] is the index of
// Extras[i] in the resolved attachments passed to Compose.
type ComposedDocument struct {
	Title        string
	Pages        []Page
	Extras       [][]byte
	ExtraSources []int
	Placeholders int
}
