package dataset

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

const defaultSampleRows = 3

// SchemaSummary is the prompt-facing snapshot of a dataset: column names,
// inferred kinds, basic statistics, and a few sample rows. It deliberately
// carries no more raw data than the samples.
type SchemaSummary struct {
	Name        string
	Description string
	Rows        int
	Columns     []ColumnSummary
	Samples     [][]string
}

// ColumnSummary captures the inferred kind and statistics for one column.
type ColumnSummary struct {
	Name    string
	Kind    Kind
	NonNull int
	Missing int
	Unique  int
	// Numeric stats
	Min  float64
	Max  float64
	Mean float64
	Std  float64
	// Categorical top values
	TopValues []CategoryCount
	// Text examples
	ExampleTexts []string
}

type CategoryCount struct {
	Value string
	Count int
}

// summarize infers per-column kinds by majority vote over parsed values and
// accumulates numeric stats with Welford's method in a single pass.
func summarize(name string, header []string, rows [][]string, sampleRows int) SchemaSummary {
	ncol := len(header)
	type colAcc struct {
		name   string
		nonNil int
		miss   int
		n      int
		mean   float64
		m2     float64
		min    float64
		max    float64
		numCnt int
		dtCnt  int
		txtCnt int
		cats   map[string]int
		exText []string
	}
	cols := make([]*colAcc, ncol)
	for i := range header {
		cols[i] = &colAcc{
			name: strings.TrimSpace(header[i]),
			min:  math.Inf(1),
			max:  math.Inf(-1),
			cats: make(map[string]int),
		}
	}
	if sampleRows <= 0 {
		sampleRows = defaultSampleRows
	}

	out := SchemaSummary{Name: name, Rows: len(rows)}
	for _, row := range rows {
		if len(out.Samples) < sampleRows {
			cp := make([]string, ncol)
			copy(cp, row)
			out.Samples = append(out.Samples, cp)
		}
		for j := 0; j < ncol && j < len(row); j++ {
			v := strings.TrimSpace(row[j])
			c := cols[j]
			if v == "" {
				c.miss++
				continue
			}
			c.nonNil++
			if x, ok := parseNumeric(v); ok {
				c.numCnt++
				c.n++
				if x < c.min {
					c.min = x
				}
				if x > c.max {
					c.max = x
				}
				delta := x - c.mean
				c.mean += delta / float64(c.n)
				c.m2 += delta * (x - c.mean)
				continue
			}
			if parseTimeMaybe(v) {
				c.dtCnt++
				continue
			}
			c.txtCnt++
			if len(c.cats) <= 10000 && len(v) <= 64 {
				c.cats[v]++
			}
			if len(c.exText) < 3 {
				c.exText = append(c.exText, v)
			}
		}
	}

	out.Columns = make([]ColumnSummary, 0, ncol)
	for _, c := range cols {
		s := ColumnSummary{Name: c.name, NonNull: c.nonNil, Missing: c.miss}
		kind := KindUnknown
		switch {
		case c.numCnt >= c.dtCnt && c.numCnt >= c.txtCnt && c.numCnt > 0:
			kind = KindNumeric
			s.Min = c.min
			s.Max = c.max
			s.Mean = c.mean
			if c.n > 1 {
				s.Std = math.Sqrt(c.m2 / float64(c.n-1))
			}
		case c.dtCnt >= c.txtCnt && c.dtCnt > 0:
			kind = KindDatetime
		case len(c.cats) > 0:
			kind = KindCategorical
			tops := make([]CategoryCount, 0, len(c.cats))
			for k, v := range c.cats {
				tops = append(tops, CategoryCount{Value: k, Count: v})
			}
			sort.Slice(tops, func(i, j int) bool {
				if tops[i].Count == tops[j].Count {
					return tops[i].Value < tops[j].Value
				}
				return tops[i].Count > tops[j].Count
			})
			if len(tops) > 8 {
				tops = tops[:8]
			}
			s.TopValues = tops
			s.Unique = len(c.cats)
		case c.txtCnt > 0:
			kind = KindText
			s.ExampleTexts = c.exText
		}
		s.Kind = kind
		out.Columns = append(out.Columns, s)
	}
	return out
}

// Markdown renders the summary as the prompt block describing one dataset.
func (s SchemaSummary) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dataset: %s\n", safeName(s.Name))
	if s.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", safeVal(s.Description))
	}
	fmt.Fprintf(&b, "Rows: %d\nColumns: %d\n", s.Rows, len(s.Columns))
	for _, c := range s.Columns {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		fmt.Fprintf(&b, "- %s: %s (non-null %d, missing %.1f%%)", safeName(c.Name), c.Kind, c.NonNull, missPct)
		switch c.Kind {
		case KindNumeric:
			fmt.Fprintf(&b, " min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std)
		case KindCategorical:
			if len(c.TopValues) > 0 {
				b.WriteString(" top: ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					fmt.Fprintf(&b, "%s(%d)", safeVal(kv.Value), kv.Count)
				}
				if c.Unique > len(c.TopValues) {
					fmt.Fprintf(&b, "; unique=%d", c.Unique)
				}
			}
		case KindText:
			if len(c.ExampleTexts) > 0 {
				b.WriteString(" e.g. ")
				for i, ex := range c.ExampleTexts {
					if i > 0 {
						b.WriteString(" | ")
					}
					b.WriteString(safeVal(ex))
				}
			}
		}
		b.WriteString("\n")
	}
	if len(s.Samples) > 0 {
		b.WriteString("Sample rows:\n| ")
		for i, c := range s.Columns {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeName(c.Name))
		}
		b.WriteString(" |\n| ")
		for i := range s.Columns {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString("---")
		}
		b.WriteString(" |\n")
		for _, row := range s.Samples {
			b.WriteString("| ")
			for i := range s.Columns {
				if i > 0 {
					b.WriteString(" | ")
				}
				val := ""
				if i < len(row) {
					val = row[i]
				}
				if len(val) > 80 {
					val = val[:77] + "..."
				}
				b.WriteString(safeVal(val))
			}
			b.WriteString(" |\n")
		}
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/")
}

func parseNumeric(s string) (float64, bool) {
	raw := strings.TrimSpace(strings.ReplaceAll(s, "%", ""))
	raw = strings.ReplaceAll(raw, " ", " ")
	raw = strings.TrimSpace(raw)
	// Strip common thousands separators, keeping the final '.' as decimal.
	if strings.Count(raw, ",") > 0 && strings.Contains(raw, ".") {
		raw = strings.ReplaceAll(raw, ",", "")
	} else if strings.Count(raw, ",") == 1 && !strings.Contains(raw, ".") {
		raw = strings.ReplaceAll(raw, ",", ".")
	} else {
		raw = strings.ReplaceAll(raw, ",", "")
	}
	raw = strings.ReplaceAll(raw, " ", "")
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseTimeMaybe(s string) bool {
	layouts := []string{
		time.RFC3339, "2006-01-02", "2006/01/02", "02/01/2006", "01/02/2006",
		"2006-01-02 15:04", "2006-01-02 15:04:05",
	}
	for _, l := range layouts {
		if _, err := time.Parse(l, s); err == nil {
			return true
		}
	}
	return false
}
