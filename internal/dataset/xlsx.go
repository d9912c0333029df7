package dataset

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LoadXLSX reads one sheet of a .xlsx workbook into a Dataset. The first row
// is treated as the header. Only the minimal OOXML subset is handled: the
// workbook sheet list, its relationships, shared strings, and sheet rows.
func LoadXLSX(path, name string, opt LoadOptions) (*Dataset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read xlsx: %w", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}

	sheets := parseWorkbookSheets(zipEntry(zr, "xl/workbook.xml"))
	rels := parseSheetRels(zipEntry(zr, "xl/_rels/workbook.xml.rels"))
	shared := parseSharedStrings(zipEntry(zr, "xl/sharedStrings.xml"))

	target := ""
	if opt.SheetName != "" {
		for _, s := range sheets {
			if strings.EqualFold(s.name, opt.SheetName) {
				target = sheetPath(rels[s.rid])
				break
			}
		}
		if target == "" {
			names := make([]string, len(sheets))
			for i, s := range sheets {
				names[i] = s.name
			}
			return nil, fmt.Errorf("sheet %q not found in %s (available: %s)",
				opt.SheetName, filepath.Base(path), strings.Join(names, ", "))
		}
	} else {
		idx := opt.SheetIndex
		if idx <= 0 {
			idx = 1
		}
		for _, s := range sheets {
			if s.id == idx {
				target = sheetPath(rels[s.rid])
				break
			}
		}
		if target == "" {
			target = fmt.Sprintf("xl/worksheets/sheet%d.xml", idx)
		}
	}

	rr := newXLSXRowReader(zipEntry(zr, target), shared)
	header, ok := rr.next()
	if !ok || len(header) == 0 {
		return nil, fmt.Errorf("empty sheet in %s", filepath.Base(path))
	}
	maxRows := opt.MaxRows
	if maxRows <= 0 {
		maxRows = int(^uint(0) >> 1)
	}
	var rows [][]string
	for len(rows) < maxRows {
		row, ok := rr.next()
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	d := New(name, header, rows)
	d.Source = path
	return d, nil
}

type xlsxSheet struct {
	name string
	id   int
	rid  string
}

func parseWorkbookSheets(data []byte) []xlsxSheet {
	var sheets []xlsxSheet
	if len(data) == 0 {
		return sheets
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return sheets
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "sheet" {
			continue
		}
		var s xlsxSheet
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "name":
				s.name = a.Value
			case "sheetId":
				s.id = atoiPrefix(a.Value)
			case "id": // r: namespace
				s.rid = a.Value
			}
		}
		sheets = append(sheets, s)
	}
}

func parseSheetRels(data []byte) map[string]string {
	out := map[string]string{}
	if len(data) == 0 {
		return out
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "Relationship" {
			continue
		}
		var id, tgt string
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "Id":
				id = a.Value
			case "Target":
				tgt = a.Value
			}
		}
		if id != "" && tgt != "" {
			out[id] = tgt
		}
	}
}

func parseSharedStrings(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var out []string
	var buf strings.Builder
	inT := false
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "si":
				buf.Reset()
			case "t":
				inT = true
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "t":
				inT = false
			case "si":
				out = append(out, buf.String())
			}
		case xml.CharData:
			if inT {
				buf.Write(se)
			}
		}
	}
}

func zipEntry(zr *zip.Reader, name string) []byte {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil
		}
		b, _ := io.ReadAll(rc)
		rc.Close()
		return b
	}
	return nil
}

// xlsxRowReader iterates <row> elements, resolving shared-string cells.
type xlsxRowReader struct {
	dec    *xml.Decoder
	shared []string
}

func newXLSXRowReader(data []byte, shared []string) *xlsxRowReader {
	return &xlsxRowReader{dec: xml.NewDecoder(bytes.NewReader(data)), shared: shared}
}

func (r *xlsxRowReader) next() ([]string, bool) {
	var row []string
	inRow := false
	width := 0
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return nil, false
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "row":
				inRow = true
				row = nil
				width = 0
			case "c":
				if !inRow {
					continue
				}
				var ref, typ string
				for _, a := range se.Attr {
					switch a.Name.Local {
					case "r":
						ref = a.Value
					case "t":
						typ = a.Value
					}
				}
				col := columnIndex(ref)
				if col+1 > width {
					width = col + 1
				}
				val := r.cellValue(typ)
				if len(row) <= col {
					tmp := make([]string, col+1)
					copy(tmp, row)
					row = tmp
				}
				row[col] = val
			}
		case xml.EndElement:
			if se.Name.Local == "row" {
				if len(row) < width {
					tmp := make([]string, width)
					copy(tmp, row)
					row = tmp
				}
				return row, true
			}
		}
	}
}

// cellValue consumes tokens until </c>, capturing <v> or inline <is><t> text.
func (r *xlsxRowReader) cellValue(typ string) string {
	var val string
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return val
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "v" || se.Name.Local == "t" {
				var sb strings.Builder
				for {
					tk, er := r.dec.Token()
					if er != nil {
						break
					}
					if ed, ok := tk.(xml.EndElement); ok && (ed.Name.Local == "v" || ed.Name.Local == "t") {
						break
					}
					if ch, ok := tk.(xml.CharData); ok {
						sb.Write(ch)
					}
				}
				val = sb.String()
			}
		case xml.EndElement:
			if se.Name.Local == "c" {
				if typ == "s" {
					idx := atoiPrefix(val)
					if idx >= 0 && idx < len(r.shared) {
						return r.shared[idx]
					}
					return ""
				}
				return val
			}
		}
	}
}

// columnIndex converts an A1-style reference to a 0-based column index.
func columnIndex(ref string) int {
	i := 0
	for i < len(ref) {
		c := ref[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
			i++
			continue
		}
		break
	}
	idx := 0
	for _, c := range strings.ToUpper(ref[:i]) {
		idx = idx*26 + int(c-'A'+1)
	}
	return idx - 1
}

func atoiPrefix(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// sheetPath normalizes a relationship target to its ZIP entry path.
func sheetPath(rel string) string {
	if rel == "" {
		return ""
	}
	rel = strings.TrimPrefix(rel, "/")
	if strings.HasPrefix(rel, "xl/") {
		return rel
	}
	return "xl/" + rel
}
