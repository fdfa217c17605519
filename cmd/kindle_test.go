//go:build !integration

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindleIngestCmd_Metadata(t *testing.T) {
	assert.Equal(t, "ingest <export.json>", kindleIngestCmd.Use)
	assert.NotEmpty(t, kindleIngestCmd.Short)
}

func TestParseKindleExport(t *testing.T) {
	export := []byte(`[
		{"asin": "B00A1B2C3D", "title": "The Peripheral", "authors": ["William Gibson:"], "purchaseDate": "2020-03-02"},
		{"asin": "B0EXAMPLE1", "title": "Team of Teams", "authors": ["Stanley McChrystal:Tantum Collins:"]},
		{"title": "No ASIN Here", "authors": ["Nobody:"]}
	]`)

	books, err := parseKindleExport(export)
	require.NoError(t, err)
	require.Len(t, books, 2)

	gibson := books["B00A1B2C3D"]
	assert.Equal(t, "The Peripheral", gibson.Title)
	assert.Equal(t, []string{"William Gibson"}, gibson.Authors)
	assert.Equal(t, "2020-03-02", gibson.PurchaseDate)
	assert.Equal(t, "B00A1B2C3D", gibson.KindleASIN)

	team := books["B0EXAMPLE1"]
	assert.Equal(t, []string{"Stanley McChrystal", "Tantum Collins"}, team.Authors)
	assert.Empty(t, team.PurchaseDate)
}

func TestParseKindleExport_NoAuthors(t *testing.T) {
	books, err := parseKindleExport([]byte(`[{"asin": "B000000000", "title": "Anonymous Work", "authors": []}]`))
	require.NoError(t, err)
	assert.Nil(t, books["B000000000"].Authors)
}

func TestParseKindleExport_NotAList(t *testing.T) {
	_, err := parseKindleExport([]byte(`{"asin": "B000000000"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse kindle export")
}
