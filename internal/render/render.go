// Package render decides whether an agent answer is a table or free text.
package render

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"
)

type Kind string

const (
	KindTable Kind = "table"
	KindText  Kind = "text"
)

// Result is either a table (Columns and Rows) or the verbatim Text.
type Result struct {
	Kind    Kind
	Columns []string
	Rows    [][]string
	Text    string
}

func (r Result) Tabular() bool { return r.Kind == KindTable }

// Strategy tries to read text as a table.
type Strategy func(text string) (Result, bool)

// Strategies are tried in order; the first match wins.
var Strategies = []Strategy{JSONRecords, DelimitedText}

// Classify never fails: anything no strategy accepts is returned as free text.
func Classify(text string) Result {
	body := stripFence(text)
	for _, s := range Strategies {
		if r, ok := s(body); ok {
			return r
		}
	}
	return Result{Kind: KindText, Text: text}
}

// stripFence removes a single surrounding markdown code fence, if any.
func stripFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") || len(t) < 6 {
		return text
	}
	t = strings.TrimSuffix(t[3:], "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 && !strings.ContainsAny(t[:nl], ",[{") {
		t = t[nl+1:] // language tag
	}
	return strings.TrimSpace(t)
}

// JSONRecords accepts a JSON array. Objects become rows keyed by the union
// of their fields in first-seen order; scalars land in a "value" column.
func JSONRecords(text string) (Result, bool) {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "[") {
		return Result{}, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(t), &items); err != nil {
		return Result{}, false
	}

	var (
		cols  []string
		index = map[string]int{}
		recs  []map[string]string
	)
	for _, raw := range items {
		keys, vals, ok := objectFields(raw)
		if !ok {
			keys, vals = []string{"value"}, map[string]string{"value": cell(raw)}
		}
		for _, k := range keys {
			if _, seen := index[k]; !seen {
				index[k] = len(cols)
				cols = append(cols, k)
			}
		}
		recs = append(recs, vals)
	}

	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		row := make([]string, len(cols))
		for k, v := range rec {
			row[index[k]] = v
		}
		rows = append(rows, row)
	}
	return Result{Kind: KindTable, Columns: cols, Rows: rows}, true
}

// objectFields reads a JSON object keeping key order.
func objectFields(raw json.RawMessage) ([]string, map[string]string, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil, nil, false
	}
	var keys []string
	vals := map[string]string{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, false
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, false
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, nil, false
		}
		if _, dup := vals[key]; !dup {
			keys = append(keys, key)
		}
		vals[key] = cell(v)
	}
	return keys, vals, true
}

func cell(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	t := strings.TrimSpace(string(raw))
	if t == "null" {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err == nil {
		return buf.String()
	}
	return t
}

// DelimitedText accepts comma-separated text with a header of at least two
// columns, at least one data row, and the same width on every line.
func DelimitedText(text string) (Result, bool) {
	t := strings.TrimSpace(text)
	if t == "" {
		return Result{}, false
	}
	r := csv.NewReader(strings.NewReader(t))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil || len(header) < 2 {
		return Result{}, false
	}
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, false
		}
		rows = append(rows, rec)
	}
	if len(rows) == 0 {
		return Result{}, false
	}
	return Result{Kind: KindTable, Columns: header, Rows: rows}, true
}
