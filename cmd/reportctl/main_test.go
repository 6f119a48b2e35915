package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-reports/internal/report/merge"
)

func TestRender_CSVToStdout(t *testing.T) {
	in := `{"subject": {"first_name": "Jane", "last_name": "Doe"}, "exportOptions": {"basicInfo": true}}`
	var stdout bytes.Buffer

	out, err := render(context.Background(), renderOptions{
		kind:   "patient",
		in:     "-",
		out:    "-",
		format: "csv",
	}, strings.NewReader(in), &stdout)
	require.NoError(t, err)

	assert.Equal(t, "Patient_Report_Jane_Doe.csv", out.Filename)
	assert.True(t, strings.HasPrefix(stdout.String(), "Category,Field,Value\n"))
}

func TestRender_PDFWithLocalStore(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "lab-files", "p1"), 0o755))

	lab := fpdf.New("P", "mm", "A4", "")
	lab.SetFont("Helvetica", "", 12)
	lab.AddPage()
	lab.Text(20, 20, "CBC")
	var buf bytes.Buffer
	require.NoError(t, lab.Output(&buf))
	require.NoError(t, os.WriteFile(filepath.Join(root, "lab-files", "p1", "cbc.pdf"), buf.Bytes(), 0o644))

	reqFile := filepath.Join(t.TempDir(), "req.json")
	require.NoError(t, os.WriteFile(reqFile, []byte(`{
		"subject": {"first_name": "Jane"},
		"exportOptions": {"labRecords": true},
		"labRecords": [{"test_name": "CBC", "file_url": "lab-files/p1/cbc.pdf"}]
	}`), 0o600))
	outFile := filepath.Join(t.TempDir(), "report.pdf")

	out, err := render(context.Background(), renderOptions{
		kind:      "patient",
		in:        reqFile,
		out:       outFile,
		storeRoot: root,
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Appended)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	n, err := merge.PageCount(data)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRender_Errors(t *testing.T) {
	_, err := render(context.Background(), renderOptions{kind: "invoice", in: "-", out: "-"}, strings.NewReader("{}"), nil)
	assert.Error(t, err)

	_, err = render(context.Background(), renderOptions{kind: "patient", in: "-", out: "-"}, strings.NewReader("not json"), nil)
	assert.ErrorContains(t, err, "decode request")

	_, err = render(context.Background(), renderOptions{kind: "patient", in: "-", out: "-"}, strings.NewReader(`{"exportOptions": {}}`), nil)
	assert.ErrorContains(t, err, "subject is required")

	_, err = render(context.Background(), renderOptions{kind: "patient", in: "-", out: "-", format: "xlsx"},
		strings.NewReader(`{"subject": {}, "exportOptions": {}}`), nil)
	assert.ErrorContains(t, err, "exportFormat must be one of")
}

func TestRenderCmd_RequiresFlags(t *testing.T) {
	cmd := renderCmd()
	cmd.SetArgs([]string{"--kind", "patient"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}
