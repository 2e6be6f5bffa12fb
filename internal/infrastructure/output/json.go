package output

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"vsltap/internal/domain"
)

// JSONSink writes one record per line, compact or indented.
type JSONSink struct {
	w      io.Writer
	pretty bool
}

func NewJSONSink(w io.Writer, pretty bool) *JSONSink {
	return &JSONSink{w: w, pretty: pretty}
}

func (s *JSONSink) Write(rec domain.OutputRecord) error {
	var (
		data []byte
		err  error
	)
	if s.pretty {
		data, err = json.MarshalIndent(rec, "", "  ")
	} else {
		data, err = json.Marshal(rec)
	}
	if err != nil {
		return errors.Wrap(err, "serializing record to JSON")
	}
	data = append(data, '\n')
	if _, err := s.w.Write(data); err != nil {
		return errors.Wrap(err, "writing record")
	}
	return nil
}
