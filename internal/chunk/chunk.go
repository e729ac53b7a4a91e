// Package chunk splits a dataset into character-bounded CSV payloads and
// wraps them in the envelope the remote agent expects.
package chunk

import (
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nubank/csvchat-backend/internal/dataset"
)

const (
	// DefaultMaxChars leaves room under the transport ceiling for the envelope.
	DefaultMaxChars = 20000
	// DefaultOverhead is reserved per chunk for the envelope text.
	DefaultOverhead = 300
	// HardCap is the largest envelope the uploader will transmit.
	HardCap = 23500
)

var ErrInvalidBudget = errors.New("chunk: max chars must be greater than overhead and overhead must be >= 0")

// Chunk is a header line followed by a contiguous run of rows.
type Chunk struct {
	Index  int // 0-based position in the plan
	Header string
	Rows   []string
	Text   string
	// Oversized is set when a single row did not fit the budget on its own.
	// Such a chunk is still emitted so no row is ever dropped or split.
	Oversized bool
}

// Len returns the chunk size in characters.
func (c Chunk) Len() int { return utf8.RuneCountInString(c.Text) }

// RowText returns the rows without the repeated header.
func (c Chunk) RowText() string { return strings.Join(c.Rows, "") }

// Plan partitions ds into ordered chunks each bounded by maxChars-overhead
// characters including the header. A dataset without rows yields no chunks.
// The same input always produces the same boundaries.
func Plan(ds *dataset.Dataset, maxChars, overhead int) ([]Chunk, error) {
	if overhead < 0 || maxChars <= overhead {
		return nil, ErrInvalidBudget
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	header := renderLine(ds.Columns)
	headerLen := utf8.RuneCountInString(header)
	budget := maxChars - overhead

	var (
		chunks  []Chunk
		pending []string
		running int
	)
	flush := func() {
		rows := make([]string, len(pending))
		copy(rows, pending)
		c := Chunk{
			Index:  len(chunks),
			Header: header,
			Rows:   rows,
			Text:   header + strings.Join(rows, ""),
		}
		c.Oversized = len(rows) == 1 && headerLen+running > budget
		chunks = append(chunks, c)
		pending = pending[:0]
		running = 0
	}

	for _, row := range ds.Rows {
		line := renderLine(row)
		n := utf8.RuneCountInString(line)
		if running+n+headerLen > budget && len(pending) > 0 {
			flush()
		}
		pending = append(pending, line)
		running += n
	}
	if len(pending) > 0 {
		flush()
	}
	return chunks, nil
}

// renderLine writes one CSV record terminated by "\n". Only values holding a
// comma, quote, line break or leading space are quoted.
func renderLine(values []string) string {
	var b strings.Builder
	w := csv.NewWriter(&b)
	_ = w.Write(values) // strings.Builder never fails
	w.Flush()
	return b.String()
}

// Wrap builds the outbound message for chunk c of a plan with total chunks.
func Wrap(c Chunk, total int) string {
	return WrapAt(c, c.Index+1, total)
}

// WrapAt is Wrap with an explicit 1-based position i.
func WrapAt(c Chunk, i, total int) string {
	return fmt.Sprintf("CSV DATA CHUNK %d/%d:\n\n%s\n\nAcknowledge receipt of this chunk. This is part %d of %d total chunks.",
		i, total, c.Text, i, total)
}

// Summary describes a plan for progress and reporting.
type Summary struct {
	Count     int
	MinChars  int
	MaxChars  int
	Oversized []int // 1-based
}

func Summarize(chunks []Chunk) Summary {
	s := Summary{Count: len(chunks)}
	for i, c := range chunks {
		n := c.Len()
		if i == 0 || n < s.MinChars {
			s.MinChars = n
		}
		if n > s.MaxChars {
			s.MaxChars = n
		}
		if c.Oversized {
			s.Oversized = append(s.Oversized, c.Index+1)
		}
	}
	return s
}
