package document

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/go-pdf/fpdf"
)

// ImageInfo describes an image that the PDF backend accepts.
type ImageInfo struct {
	Type   string
	Width  int
	Height int
}

// Typesetter provides text encoding, text metrics and image validation.
// Implementations are not safe for concurrent use.
type Typesetter interface {
	Encode(s string) string
	Width(f Font, s string) float64
	Image(data []byte) (ImageInfo, bool)
}

var imageTypes = map[string]string{
	"png":  "PNG",
	"jpeg": "JPG",
	"gif":  "GIF",
}

type fpdfTypesetter struct {
	pdf    *fpdf.Fpdf
	encode func(string) string
	font   Font
}

// NewTypesetter returns a Typesetter backed by fpdf core font metrics.
func NewTypesetter() Typesetter {
	pdf := fpdf.New("P", "mm", "A4", "")
	encode := pdf.UnicodeTranslatorFromDescriptor("")
	if encode == nil {
		encode = func(s string) string { return s }
	}
	return &fpdfTypesetter{pdf: pdf, encode: encode}
}

func (t *fpdfTypesetter) Encode(s string) string {
	return t.encode(s)
}

func (t *fpdfTypesetter) Width(f Font, s string) float64 {
	if f != t.font {
		t.pdf.SetFont(f.Family, f.Style, f.Size)
		t.font = f
	}
	return t.pdf.GetStringWidth(s)
}

// Image accepts PNG, JPEG and GIF data that fpdf can also parse; anything
// else (including interlaced or 16-bit PNGs) is rejected.
func (t *fpdfTypesetter) Image(data []byte) (ImageInfo, bool) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return ImageInfo{}, false
	}
	typ, ok := imageTypes[format]
	if !ok {
		return ImageInfo{}, false
	}

	probe := fpdf.New("P", "mm", "A4", "")
	probe.RegisterImageOptionsReader("probe", fpdf.ImageOptions{ImageType: typ}, bytes.NewReader(data))
	if probe.Err() {
		return ImageInfo{}, false
	}
	return ImageInfo{Type: typ, Width: cfg.Width, Height: cfg.Height}, true
}

// wrap breaks encoded text into lines no wider than max. Explicit newlines
// start new lines and words wider than max are split by character.
func wrap(width func(string) float64, text string, max float64) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		line := ""
		for _, word := range strings.Fields(para) {
			for width(word) > max {
				if line != "" {
					lines = append(lines, line)
					line = ""
				}
				n := fitPrefix(width, word, max)
				lines = append(lines, word[:n])
				word = word[n:]
			}
			if word == "" {
				continue
			}
			if line == "" {
				line = word
				continue
			}
			if candidate := line + " " + word; width(candidate) <= max {
				line = candidate
				continue
			}
			lines = append(lines, line)
			line = word
		}
		lines = append(lines, line)
	}

	for len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// fitPrefix returns the longest byte prefix of s that fits, at least one.
// Encoded text is single-byte so any prefix is a valid string.
func fitPrefix(width func(string) float64, s string, max float64) int {
	n := 1
	for n < len(s) && width(s[:n+1]) <= max {
		n++
	}
	return n
}
