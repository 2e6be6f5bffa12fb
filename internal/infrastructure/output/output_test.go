package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vsltap/internal/domain"
)

func sampleRecord() domain.OutputRecord {
	end := 1471899055.3
	return domain.OutputRecord{ClientAccess: &domain.OutClientAccess{
		RecordType:     "client_request",
		VXID:           2,
		RemoteAddress:  domain.OutAddress{IP: "192.168.1.115", Port: 40078},
		StartTimestamp: 1471899015.123,
		EndTimestamp:   &end,
		Handling:       "hit",
		Request: &domain.OutRequest{
			Protocol: "HTTP/1.1",
			Method:   "GET",
			URL:      "/index.html",
		},
		Response: &domain.OutResponse{
			Status:   503,
			Reason:   "Service Unavailable",
			Protocol: "HTTP/1.1",
		},
		SentTotalBytes: 1366,
	}}
}

func TestJSONSinkWritesOneLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONSink(&buf, false)
	require.NoError(t, sink.Write(sampleRecord()))

	line := buf.String()
	assert.Equal(t, 1, strings.Count(line, "\n"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	assert.Equal(t, "client_request", decoded["record_type"])
	assert.Equal(t, float64(2), decoded["vxid"])
}

func TestJSONSinkPretty(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONSink(&buf, true)
	require.NoError(t, sink.Write(sampleRecord()))
	assert.True(t, strings.HasPrefix(buf.String(), "{\n"))
}

func TestNCSASinkPrefix(t *testing.T) {
	var buf bytes.Buffer
	sink := NewNCSASink(&buf)
	require.NoError(t, sink.Write(sampleRecord()))

	line := buf.String()
	assert.True(t, strings.HasPrefix(line,
		`192.168.1.115 client_request - [22/Aug/2016:20:50:15 +0000] "GET /index.html HTTP/1.1" 503 1366 {`),
		"unexpected prefix: %s", line)
	assert.True(t, strings.HasSuffix(line, "}\n"))
}

func TestNCSASinkMissingRequest(t *testing.T) {
	rec := sampleRecord()
	rec.ClientAccess.Request = nil
	rec.ClientAccess.Response = nil

	var buf bytes.Buffer
	sink := NewNCSASink(&buf)
	require.NoError(t, sink.Write(rec))
	assert.Contains(t, buf.String(), "] - -")
}

func TestParseFormat(t *testing.T) {
	for _, name := range []string{"json", "json-pretty", "ncsa-json"} {
		f, err := ParseFormat(name)
		require.NoError(t, err)
		assert.Equal(t, Format(name), f)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestHeaderIndexMarshalPreservesOrder(t *testing.T) {
	ix := domain.NewHeaderIndex()
	ix.Add("Host", "example.com")
	ix.Add("Accept", "text/html")
	ix.Add("Accept", "application/json")

	data, err := json.Marshal(ix)
	require.NoError(t, err)
	assert.Equal(t, `{"Host":["example.com"],"Accept":["text/html","application/json"]}`, string(data))
}
