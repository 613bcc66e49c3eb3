package upload

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/skretail/console/pkg/dataset"
)

const DefaultChunkSize = 100

// Batch is a run of consecutive CSV rows keyed by the header row. Sequence
// starts at 1.
type Batch struct {
	Sequence int
	Rows     []*dataset.Record
}

// Batcher reads a CSV file one batch at a time. Nothing past the current
// batch is read until Next is called again.
type Batcher struct {
	reader *csv.Reader
	size   int
	header []string
	seq    int
	done   bool
}

func NewBatcher(r io.Reader, size int) *Batcher {
	if size <= 0 {
		size = DefaultChunkSize
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false
	return &Batcher{reader: cr, size: size}
}

// Header returns the parsed header row, once the first batch was read.
func (b *Batcher) Header() []string {
	return append([]string(nil), b.header...)
}

// Next returns the next batch, or io.EOF once the file is exhausted. The last
// batch may be shorter than the chunk size.
func (b *Batcher) Next() (*Batch, error) {
	if b.done {
		return nil, io.EOF
	}
	if b.header == nil {
		if err := b.readHeader(); err != nil {
			b.done = true
			return nil, err
		}
	}

	rows := make([]*dataset.Record, 0, b.size)
	for len(rows) < b.size {
		fields, err := b.reader.Read()
		if err == io.EOF {
			b.done = true
			break
		}
		if err != nil {
			b.done = true
			return nil, errors.Wrap(err, "failed to parse csv")
		}
		if blank(fields) {
			continue
		}
		rows = append(rows, b.row(fields))
	}

	if len(rows) == 0 {
		return nil, io.EOF
	}
	b.seq++
	return &Batch{Sequence: b.seq, Rows: rows}, nil
}

func (b *Batcher) readHeader() error {
	fields, err := b.reader.Read()
	if err == io.EOF {
		return io.EOF
	}
	if err != nil {
		return errors.Wrap(err, "failed to parse csv header")
	}
	header := make([]string, len(fields))
	for i, f := range fields {
		if i == 0 {
			f = strings.TrimPrefix(f, "\ufeff")
		}
		header[i] = strings.TrimSpace(f)
	}
	b.header = uniqueHeader(header)
	return nil
}

// uniqueHeader renames repeated column names to name_1, name_2 and so on,
// skipping suffixes another column already uses, so no cell is overwritten.
func uniqueHeader(names []string) []string {
	taken := make(map[string]bool, len(names))
	for _, n := range names {
		taken[n] = true
	}
	seen := make(map[string]bool, len(names))
	out := make([]string, len(names))
	for i, n := range names {
		name := n
		if seen[n] {
			for k := 1; ; k++ {
				name = fmt.Sprintf("%s_%d", n, k)
				if !taken[name] {
					break
				}
			}
			taken[name] = true
		}
		seen[n] = true
		out[i] = name
	}
	return out
}

// row pads short rows with "" and drops cells past the header.
func (b *Batcher) row(fields []string) *dataset.Record {
	r := dataset.NewRecord()
	for i, name := range b.header {
		value := ""
		if i < len(fields) {
			value = fields[i]
		}
		r.Set(name, value)
	}
	return r
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
