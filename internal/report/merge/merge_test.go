package merge

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-reports/pkg/metrics"
)

func makePDF(t *testing.T, label string, pages int) []byte {
	t.Helper()
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", 12)
	for i := 1; i <= pages; i++ {
		pdf.AddPage()
		pdf.Text(20, 20, fmt.Sprintf("%s page %d", label, i))
	}
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func TestMerge_NoExtrasReturnsPrimaryUntouched(t *testing.T) {
	primary := makePDF(t, "primary", 1)

	res, err := NewPDFMerger(nil, nil).Merge(context.Background(), primary, nil)
	require.NoError(t, err)
	assert.Equal(t, primary, res.Data)
	assert.Zero(t, res.Appended)
}

// makeSizedPDF builds a document whose pages are widthMM wide, so each
// source can be told apart after merging.
func makeSizedPDF(t *testing.T, widthMM float64, pages int) []byte {
	t.Helper()
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: widthMM, Ht: 150},
	})
	pdf.SetFont("Helvetica", "", 12)
	for i := 1; i <= pages; i++ {
		pdf.AddPage()
		pdf.Text(10, 20, fmt.Sprintf("page %d", i))
	}
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func pageWidthsMM(t *testing.T, data []byte) []int {
	t.Helper()
	dims, err := api.PageDims(bytes.NewReader(data), configuration())
	require.NoError(t, err)
	widths := make([]int, len(dims))
	for i, d := range dims {
		widths[i] = int(math.Round(d.Width * 25.4 / 72))
	}
	return widths
}

func TestMerge_AppendsPagesInOrder(t *testing.T) {
	primary := makeSizedPDF(t, 100, 2)
	extras := [][]byte{makeSizedPDF(t, 110, 1), makeSizedPDF(t, 120, 3), makeSizedPDF(t, 130, 2)}

	res, err := NewPDFMerger(nil, nil).Merge(context.Background(), primary, extras)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Appended)
	assert.Zero(t, res.Dropped)
	assert.Empty(t, res.DroppedExtras)

	assert.Equal(t, []int{100, 100, 110, 120, 120, 120, 130, 130}, pageWidthsMM(t, res.Data))
}

func TestMerge_SkipsUnreadableExtras(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg, "test")

	primary := makePDF(t, "primary", 1)
	extras := [][]byte{
		[]byte("%PDF-1.4 this is not really a pdf"),
		makePDF(t, "b", 2),
		nil,
	}

	res, err := NewPDFMerger(nil, m).Merge(context.Background(), primary, extras)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Appended)
	assert.Equal(t, 2, res.Dropped)
	assert.Equal(t, []int{0, 2}, res.DroppedExtras)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.SubDocumentsDropped))

	n, err := PageCount(res.Data)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMerge_AllExtrasUnreadable(t *testing.T) {
	primary := makePDF(t, "primary", 1)

	res, err := NewPDFMerger(nil, nil).Merge(context.Background(), primary, [][]byte{[]byte("garbage")})
	require.NoError(t, err)
	assert.Equal(t, primary, res.Data)
	assert.Equal(t, 1, res.Dropped)
}

func TestMerge_InvalidPrimaryIsAnError(t *testing.T) {
	_, err := NewPDFMerger(nil, nil).Merge(context.Background(), []byte("nope"), [][]byte{makePDF(t, "a", 1)})
	assert.Error(t, err)
}

func TestMerge_EmptyInputsReturnPromptly(t *testing.T) {
	primary := makePDF(t, "primary", 1)
	done := make(chan struct{})

	go func() {
		defer close(done)

		res, err := NewPDFMerger(nil, nil).Merge(context.Background(), primary, [][]byte{nil, {}, []byte("   ")})
		if assert.NoError(t, err) {
			assert.Equal(t, primary, res.Data)
			assert.Equal(t, []int{0, 1, 2}, res.DroppedExtras)
		}

		_, err = NewPDFMerger(nil, nil).Merge(context.Background(), nil, nil)
		assert.ErrorIs(t, err, ErrNotPDF)
		_, err = NewPDFMerger(nil, nil).Merge(context.Background(), []byte{}, [][]byte{primary})
		assert.ErrorIs(t, err, ErrNotPDF)

		_, err = PageCount(nil)
		assert.ErrorIs(t, err, ErrNotPDF)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("merge did not return for empty input")
	}
}
