// Package output implements the serialization back-ends consuming the flat
// output values produced by the pipeline core.
package output

import (
	"github.com/pkg/errors"
)

// Format selects the serialization back-end.
type Format string

const (
	// FormatJSON writes one compact JSON object per line.
	FormatJSON Format = "json"
	// FormatJSONPretty writes indented JSON objects.
	FormatJSONPretty Format = "json-pretty"
	// FormatNCSA prefixes each JSON object with an NCSA-style request line.
	FormatNCSA Format = "ncsa-json"
)

// ParseFormat maps a format name to its Format.
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case FormatJSON, FormatJSONPretty, FormatNCSA:
		return Format(name), nil
	}
	return "", errors.Errorf("unknown output format %q", name)
}
