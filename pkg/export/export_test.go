package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCSVKeepsHeaderOrder(t *testing.T) {
	out, err := Render(FormatCSV, Dataset{
		Headers: []string{"student", "balance"},
		Rows: []map[string]string{
			{"balance": "5000.00", "student": "Asha"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "student,balance\nAsha,5000.00\n", string(out))
}

func TestRenderPDFProducesDocument(t *testing.T) {
	out, err := Render(FormatPDF, Dataset{
		Title:   "Pending fees",
		Headers: []string{"student", "balance"},
		Rows:    []map[string]string{{"student": "Asha", "balance": "5000.00"}},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	receipt, err := RenderDocumentPDF(Document{
		Heading: "Fee Receipt",
		Fields:  []Field{{Label: "Amount", Value: "1500.00"}},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(receipt, []byte("%PDF")))
}

func TestRenderRejectsUnknownFormat(t *testing.T) {
	_, err := Render("xlsx", Dataset{Headers: []string{"a"}})
	assert.Error(t, err)

	_, err = RenderCSV(Dataset{})
	assert.Error(t, err)

	_, err = RenderDocumentPDF(Document{Heading: "empty"})
	assert.Error(t, err)
}
