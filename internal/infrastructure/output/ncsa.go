package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"

	"vsltap/internal/domain"
)

// NCSASink prefixes each JSON record with an NCSA-style line so existing
// access log tooling can consume the stream without parsing JSON:
//
//	192.168.1.115 client_request - [25/Aug/2016:11:56:55 +0000] "GET http://example.net/ HTTP/1.1" 503 1366 {...}
type NCSASink struct {
	w io.Writer
}

func NewNCSASink(w io.Writer) *NCSASink {
	return &NCSASink{w: w}
}

func (s *NCSASink) Write(rec domain.OutputRecord) error {
	var b strings.Builder

	ts := time.Unix(int64(rec.Timestamp()), 0).UTC()
	fmt.Fprintf(&b, "%s %s - [%s]", rec.RemoteIP(), rec.TypeName(),
		ts.Format("02/Jan/2006:15:04:05 +0000"))

	if method, url, protocol, ok := rec.RequestLine(); ok {
		b.WriteString(` "`)
		b.WriteString(ncsaEscape(method))
		b.WriteByte(' ')
		b.WriteString(ncsaEscape(url))
		b.WriteByte(' ')
		b.WriteString(ncsaEscape(protocol))
		b.WriteByte('"')
	} else {
		b.WriteString(" -")
	}

	if status, ok := rec.ResponseStatus(); ok {
		fmt.Fprintf(&b, " %d", status)
	} else {
		b.WriteString(" -")
	}
	if sent, ok := rec.ResponseBytes(); ok {
		fmt.Fprintf(&b, " %d ", sent)
	} else {
		b.WriteString(" - ")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "serializing record to JSON")
	}
	b.Write(data)
	b.WriteByte('\n')

	if _, err := io.WriteString(s.w, b.String()); err != nil {
		return errors.Wrap(err, "writing record")
	}
	return nil
}

func ncsaEscape(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
