package domain

import (
	"bytes"
	"encoding/json"
)

// Flat output model. One value per root client transaction, shaped for
// downstream access-log processing. Field names are part of the output
// contract and must stay stable.

// OutAddress is an IP and port pair in output form.
type OutAddress struct {
	IP   string `json:"ip"`
	Port uint16 `json:"port"`
}

// HeaderIndex is an insertion-ordered mapping of normalized header name to
// the ordered list of values seen for it.
type HeaderIndex struct {
	names  []string
	values map[string][]string
}

func NewHeaderIndex() *HeaderIndex {
	return &HeaderIndex{values: make(map[string][]string)}
}

// Add appends value under name, moving name to the end of the iteration
// order as the original indexer did.
func (ix *HeaderIndex) Add(name, value string) {
	if vals, ok := ix.values[name]; ok {
		for i, n := range ix.names {
			if n == name {
				ix.names = append(ix.names[:i], ix.names[i+1:]...)
				break
			}
		}
		ix.values[name] = append(vals, value)
	} else {
		ix.values[name] = []string{value}
	}
	ix.names = append(ix.names, name)
}

func (ix *HeaderIndex) Len() int { return len(ix.names) }

// Get returns the values recorded under name.
func (ix *HeaderIndex) Get(name string) []string { return ix.values[name] }

// Names returns header names in index order.
func (ix *HeaderIndex) Names() []string { return ix.names }

func (ix *HeaderIndex) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range ix.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(ix.values[name])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// VarsIndex is an insertion-ordered mapping of log variable name to its last
// written value.
type VarsIndex struct {
	names  []string
	values map[string]string
}

func NewVarsIndex() *VarsIndex {
	return &VarsIndex{values: make(map[string]string)}
}

func (ix *VarsIndex) Set(name, value string) {
	if _, ok := ix.values[name]; !ok {
		ix.names = append(ix.names, name)
	}
	ix.values[name] = value
}

func (ix *VarsIndex) Len() int { return len(ix.names) }

func (ix *VarsIndex) Get(name string) (string, bool) {
	v, ok := ix.values[name]
	return v, ok
}

func (ix *VarsIndex) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range ix.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(ix.values[name])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// OutHeaders is either the raw ordered name/value list or the normalized
// index, depending on configuration.
type OutHeaders struct {
	Raw   []HeaderPair
	Index *HeaderIndex
}

func (h OutHeaders) MarshalJSON() ([]byte, error) {
	if h.Index != nil {
		return json.Marshal(h.Index)
	}
	pairs := make([][2]string, len(h.Raw))
	for i, p := range h.Raw {
		pairs[i] = [2]string{p.Name, p.Value}
	}
	return json.Marshal(pairs)
}

// OutRequest is a flattened HTTP request.
type OutRequest struct {
	Protocol string     `json:"protocol"`
	Method   string     `json:"method"`
	URL      string     `json:"url"`
	Headers  OutHeaders `json:"headers"`
}

// OutResponse is a flattened HTTP response.
type OutResponse struct {
	Status   int        `json:"status"`
	Reason   string     `json:"reason"`
	Protocol string     `json:"protocol"`
	Headers  OutHeaders `json:"headers"`
}

// OutCompression is a flattened compression summary.
type OutCompression struct {
	Operation string `json:"operation"`
	BytesIn   uint64 `json:"bytes_in"`
	BytesOut  uint64 `json:"bytes_out"`
}

// OutBackendConnection is a flattened origin connection.
type OutBackendConnection struct {
	FD            int         `json:"fd"`
	Name          string      `json:"name"`
	RemoteAddress *OutAddress `json:"remote_address"`
	LocalAddress  OutAddress  `json:"local_address"`
}

// OutCacheObject is a flattened stored object summary.
type OutCacheObject struct {
	StorageType     string       `json:"storage_type"`
	StorageName     string       `json:"storage_name"`
	TTLDuration     *float64     `json:"ttl_duration"`
	GraceDuration   *float64     `json:"grace_duration"`
	KeepDuration    *float64     `json:"keep_duration"`
	SinceTimestamp  float64      `json:"since_timestamp"`
	OriginTimestamp float64      `json:"origin_timestamp"`
	FetchMode       string       `json:"fetch_mode"`
	FetchStreamed   bool         `json:"fetch_streamed"`
	Response        *OutResponse `json:"response"`
}

// OutLog is the classified log block of a record.
type OutLog struct {
	RawLog        []string   `json:"raw_log,omitempty"`
	Vars          *VarsIndex `json:"vars,omitempty"`
	Messages      []string   `json:"messages,omitempty"`
	ACLMatched    []string   `json:"acl_matched,omitempty"`
	ACLNotMatched []string   `json:"acl_not_matched,omitempty"`
}

// OutSessionInfo is the session context embedded in a flattened record.
type OutSessionInfo struct {
	VXID          uint32      `json:"vxid"`
	OpenTimestamp float64     `json:"open_timestamp"`
	LocalAddress  *OutAddress `json:"local_address,omitempty"`
	RemoteAddress OutAddress  `json:"remote_address"`
	Proxy         *OutProxy   `json:"proxy,omitempty"`
}

// OutProxy is PROXY protocol info in output form.
type OutProxy struct {
	Version       string     `json:"version"`
	ClientAddress OutAddress `json:"client_address"`
	ServerAddress OutAddress `json:"server_address"`
}

// OutBackendAccess is the embedded backend fetch of a client record. It is
// also emitted standalone, with RecordType set, when a backend record has to
// be flushed partial with no client transaction to attach to.
type OutBackendAccess struct {
	RecordType        string                `json:"record_type,omitempty"`
	VXID              uint32                `json:"vxid"`
	StartTimestamp    *float64              `json:"start_timestamp"`
	EndTimestamp      *float64              `json:"end_timestamp"`
	Handling          string                `json:"handling"`
	Request           *OutRequest           `json:"request"`
	Response          *OutResponse          `json:"response"`
	SendDuration      float64               `json:"send_duration"`
	WaitDuration      *float64              `json:"wait_duration"`
	TTFBDuration      *float64              `json:"ttfb_duration"`
	FetchDuration     *float64              `json:"fetch_duration"`
	SentHeaderBytes   *uint64               `json:"sent_header_bytes"`
	SentBodyBytes     *uint64               `json:"sent_body_bytes"`
	SentTotalBytes    *uint64               `json:"sent_total_bytes"`
	RecvHeaderBytes   *uint64               `json:"recv_header_bytes"`
	RecvBodyBytes     *uint64               `json:"recv_body_bytes"`
	RecvTotalBytes    *uint64               `json:"recv_total_bytes"`
	Retry             int                   `json:"retry"`
	BackendConnection *OutBackendConnection `json:"backend_connection"`
	CacheObject       *OutCacheObject       `json:"cache_object"`
	Compression       *OutCompression       `json:"compression"`
	Log               OutLog                `json:"log"`
	Partial           bool                  `json:"partial,omitempty"`
}

// OutClientAccess is the flat per-transaction output value.
type OutClientAccess struct {
	RecordType       string            `json:"record_type"`
	VXID             uint32            `json:"vxid"`
	Session          *OutSessionInfo   `json:"session,omitempty"`
	SessionTimestamp *float64          `json:"session_timestamp"`
	RemoteAddress    OutAddress        `json:"remote_address"`
	StartTimestamp   float64           `json:"start_timestamp"`
	EndTimestamp     *float64          `json:"end_timestamp"`
	Handling         string            `json:"handling"`
	Request          *OutRequest       `json:"request"`
	Response         *OutResponse      `json:"response"`
	BackendAccess    *OutBackendAccess `json:"backend_access"`
	ProcessDuration  *float64          `json:"process_duration"`
	FetchDuration    *float64          `json:"fetch_duration"`
	TTFBDuration     float64           `json:"ttfb_duration"`
	ServeDuration    float64           `json:"serve_duration"`
	RecvHeaderBytes  uint64            `json:"recv_header_bytes"`
	RecvBodyBytes    uint64            `json:"recv_body_bytes"`
	RecvTotalBytes   uint64            `json:"recv_total_bytes"`
	SentHeaderBytes  uint64            `json:"sent_header_bytes"`
	SentBodyBytes    uint64            `json:"sent_body_bytes"`
	SentTotalBytes   uint64            `json:"sent_total_bytes"`
	EsiCount         int               `json:"esi_count"`
	Compression      *OutCompression   `json:"compression"`
	RestartCount     int               `json:"restart_count"`
	RestartLog       *OutLog           `json:"restart_log,omitempty"`
	Log              OutLog            `json:"log"`
	Partial          bool              `json:"partial,omitempty"`
}

// OutPipeSession is the flat output value of a piped transaction.
type OutPipeSession struct {
	RecordType        string                `json:"record_type"`
	VXID              uint32                `json:"vxid"`
	Session           *OutSessionInfo       `json:"session,omitempty"`
	SessionTimestamp  *float64              `json:"session_timestamp"`
	RemoteAddress     OutAddress            `json:"remote_address"`
	StartTimestamp    float64               `json:"start_timestamp"`
	EndTimestamp      *float64              `json:"end_timestamp"`
	Handling          string                `json:"handling"`
	Request           *OutRequest           `json:"request"`
	BackendRequest    *OutRequest           `json:"backend_request"`
	ProcessDuration   *float64              `json:"process_duration"`
	TTFBDuration      *float64              `json:"ttfb_duration"`
	RecvTotalBytes    uint64                `json:"recv_total_bytes"`
	SentTotalBytes    uint64                `json:"sent_total_bytes"`
	BackendConnection *OutBackendConnection `json:"backend_connection"`
	Log               OutLog                `json:"log"`
	Partial           bool                  `json:"partial,omitempty"`
}

// OutputRecord is what the flattener hands to a serializer: exactly one of
// the variants is set.
type OutputRecord struct {
	ClientAccess  *OutClientAccess
	PipeSession   *OutPipeSession
	BackendAccess *OutBackendAccess
}

func (r OutputRecord) MarshalJSON() ([]byte, error) {
	switch {
	case r.PipeSession != nil:
		return json.Marshal(r.PipeSession)
	case r.BackendAccess != nil:
		return json.Marshal(r.BackendAccess)
	}
	return json.Marshal(r.ClientAccess)
}

// Accessors used by the NCSA serializer prefix.

func (r OutputRecord) RemoteIP() string {
	switch {
	case r.PipeSession != nil:
		return r.PipeSession.RemoteAddress.IP
	case r.BackendAccess != nil:
		if r.BackendAccess.BackendConnection != nil && r.BackendAccess.BackendConnection.RemoteAddress != nil {
			return r.BackendAccess.BackendConnection.RemoteAddress.IP
		}
		return "-"
	}
	return r.ClientAccess.RemoteAddress.IP
}

func (r OutputRecord) TypeName() string {
	switch {
	case r.PipeSession != nil:
		return r.PipeSession.RecordType
	case r.BackendAccess != nil:
		return r.BackendAccess.RecordType
	}
	return r.ClientAccess.RecordType
}

func (r OutputRecord) Timestamp() float64 {
	switch {
	case r.PipeSession != nil:
		return r.PipeSession.StartTimestamp
	case r.BackendAccess != nil:
		if r.BackendAccess.StartTimestamp != nil {
			return *r.BackendAccess.StartTimestamp
		}
		return 0
	}
	return r.ClientAccess.StartTimestamp
}

func (r OutputRecord) RequestLine() (method, url, protocol string, ok bool) {
	var req *OutRequest
	switch {
	case r.PipeSession != nil:
		req = r.PipeSession.Request
	case r.BackendAccess != nil:
		req = r.BackendAccess.Request
	default:
		req = r.ClientAccess.Request
	}
	if req == nil {
		return "", "", "", false
	}
	return req.Method, req.URL, req.Protocol, true
}

func (r OutputRecord) ResponseStatus() (int, bool) {
	switch {
	case r.PipeSession != nil:
		return 0, false
	case r.BackendAccess != nil:
		if r.BackendAccess.Response == nil {
			return 0, false
		}
		return r.BackendAccess.Response.Status, true
	}
	if r.ClientAccess.Response == nil {
		return 0, false
	}
	return r.ClientAccess.Response.Status, true
}

func (r OutputRecord) ResponseBytes() (uint64, bool) {
	switch {
	case r.PipeSession != nil:
		return r.PipeSession.SentTotalBytes, true
	case r.BackendAccess != nil:
		if r.BackendAccess.RecvTotalBytes != nil {
			return *r.BackendAccess.RecvTotalBytes, true
		}
		return 0, false
	}
	return r.ClientAccess.SentTotalBytes, true
}
