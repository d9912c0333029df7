package dataset

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeXLSXFixture builds a minimal two-sheet workbook: "Orders" with a
// header plus two data rows (mixing shared and inline values, with a gap
// cell), and "Empty" with nothing in it. Relationship targets use a leading
// slash on purpose.
func writeXLSXFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orders.xlsx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)

	files := map[string]string{
		"xl/workbook.xml": `<?xml version="1.0"?>
<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
  <sheets>
    <sheet name="Orders" sheetId="1" r:id="rId1"/>
    <sheet name="Empty" sheetId="2" r:id="rId2"/>
  </sheets>
</workbook>`,
		"xl/_rels/workbook.xml.rels": `<?xml version="1.0"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="/xl/worksheets/sheet1.xml"/>
  <Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet2.xml"/>
</Relationships>`,
		"xl/sharedStrings.xml": `<?xml version="1.0"?>
<sst xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" count="4" uniqueCount="4">
  <si><t>region</t></si>
  <si><t>amount</t></si>
  <si><t>north</t></si>
  <si><t>south</t></si>
</sst>`,
		"xl/worksheets/sheet1.xml": `<?xml version="1.0"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
  <sheetData>
    <row r="1">
      <c r="A1" t="s"><v>0</v></c>
      <c r="B1" t="s"><v>1</v></c>
      <c r="C1" t="inlineStr"><is><t>note</t></is></c>
    </row>
    <row r="2">
      <c r="A2" t="s"><v>2</v></c>
      <c r="B2"><v>120.5</v></c>
      <c r="C2" t="inlineStr"><is><t>first</t></is></c>
    </row>
    <row r="3">
      <c r="A3" t="s"><v>3</v></c>
      <c r="C3" t="inlineStr"><is><t>gap in B</t></is></c>
    </row>
  </sheetData>
</worksheet>`,
		"xl/worksheets/sheet2.xml": `<?xml version="1.0"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
  <sheetData/>
</worksheet>`,
	}
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestLoadXLSX(t *testing.T) {
	path := writeXLSXFixture(t)

	d, err := LoadXLSX(path, "orders", DefaultLoadOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "amount", "note"}, d.Header)
	require.Len(t, d.Rows, 2)
	assert.Equal(t, []string{"north", "120.5", "first"}, d.Rows[0])
	// Skipped cell comes back empty, keeping row width stable.
	assert.Equal(t, []string{"south", "", "gap in B"}, d.Rows[1])
}

func TestLoadXLSXBySheetName(t *testing.T) {
	path := writeXLSXFixture(t)

	opt := DefaultLoadOptions()
	opt.SheetName = "orders" // case-insensitive
	d, err := LoadXLSX(path, "x", opt)
	require.NoError(t, err)
	assert.Len(t, d.Rows, 2)

	opt.SheetName = "Missing"
	_, err = LoadXLSX(path, "x", opt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Orders, Empty")
}

func TestLoadXLSXEmptySheet(t *testing.T) {
	path := writeXLSXFixture(t)
	opt := DefaultLoadOptions()
	opt.SheetIndex = 2
	_, err := LoadXLSX(path, "x", opt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty sheet")
}

func TestLoadXLSXMaxRows(t *testing.T) {
	path := writeXLSXFixture(t)
	opt := DefaultLoadOptions()
	opt.MaxRows = 1
	d, err := LoadXLSX(path, "orders", opt)
	require.NoError(t, err)
	assert.Len(t, d.Rows, 1)
}

func TestColumnIndex(t *testing.T) {
	assert.Equal(t, 0, columnIndex("A1"))
	assert.Equal(t, 1, columnIndex("B12"))
	assert.Equal(t, 25, columnIndex("Z3"))
	assert.Equal(t, 26, columnIndex("AA1"))
	assert.Equal(t, 27, columnIndex("AB100"))
}

func TestSheetPathNormalization(t *testing.T) {
	cases := map[string]string{
		"/xl/worksheets/sheet1.xml": "xl/worksheets/sheet1.xml",
		"xl/worksheets/sheet1.xml":  "xl/worksheets/sheet1.xml",
		"worksheets/sheet2.xml":     "xl/worksheets/sheet2.xml",
		"":                          "",
	}
	for in, want := range cases {
		assert.Equal(t, want, sheetPath(in), in)
	}
}
