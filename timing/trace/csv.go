package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

var csvHeader = []string{"ID", "Cycle", "Kind", "Where", "PC", "Instr", "Detail"}

// CSVWriter writes records as CSV rows.
type CSVWriter struct {
	out *csv.Writer

	buffered   int
	bufferSize int
}

// NewCSVWriter creates a writer that writes to w.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{
		out:        csv.NewWriter(w),
		bufferSize: 1000,
	}
}

// Init writes the header row.
func (w *CSVWriter) Init() error {
	return w.out.Write(csvHeader)
}

// Write writes a record.
func (w *CSVWriter) Write(r Record) error {
	err := w.out.Write([]string{
		r.ID,
		strconv.FormatUint(r.Cycle, 10),
		string(r.Kind),
		r.Where,
		fmt.Sprintf("0x%x", r.PC),
		fmt.Sprintf("0x%08x", r.Instr),
		r.Detail,
	})
	if err != nil {
		return err
	}

	w.buffered++
	if w.buffered >= w.bufferSize {
		return w.Flush()
	}

	return nil
}

// Flush writes the buffered rows out.
func (w *CSVWriter) Flush() error {
	w.buffered = 0
	w.out.Flush()

	return w.out.Error()
}
