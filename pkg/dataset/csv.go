package dataset

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// HeaderSet collects field names in first-seen order without duplicates.
type HeaderSet struct {
	names []string
	seen  map[string]struct{}
}

func (h *HeaderSet) Add(names ...string) {
	if h.seen == nil {
		h.seen = map[string]struct{}{}
	}
	for _, n := range names {
		if _, ok := h.seen[n]; ok {
			continue
		}
		h.seen[n] = struct{}{}
		h.names = append(h.names, n)
	}
}

func (h *HeaderSet) Names() []string {
	return append([]string(nil), h.names...)
}

func (h *HeaderSet) Len() int {
	return len(h.names)
}

// WriteCSV writes header and one line per record. Every field is quoted and
// inner quotes are doubled, and missing keys become empty cells so every line
// has len(header) columns.
func WriteCSV(w io.Writer, header []string, records []*Record) error {
	bw := bufio.NewWriter(w)
	if err := writeLine(bw, header); err != nil {
		return err
	}
	cells := make([]string, len(header))
	for _, r := range records {
		for i, h := range header {
			cells[i] = r.String(h)
		}
		if err := writeLine(bw, cells); err != nil {
			return err
		}
	}
	return errors.WithStack(bw.Flush())
}

func writeLine(w *bufio.Writer, cells []string) error {
	for i, c := range cells {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return errors.WithStack(err)
			}
		}
		if _, err := w.WriteString(`"` + strings.ReplaceAll(c, `"`, `""`) + `"`); err != nil {
			return errors.WithStack(err)
		}
	}
	_, err := w.WriteString("\n")
	return errors.WithStack(err)
}
