package domain

// Addr is a materialized IP and port pair owned by a record.
type Addr struct {
	IP   string
	Port uint16
}

// Handling is the verdict VCL reached for a transaction.
type Handling string

const (
	HandlingHit     Handling = "hit"
	HandlingMiss    Handling = "miss"
	HandlingPass    Handling = "pass"
	HandlingHitPass Handling = "hit_for_pass"
	HandlingHitMiss Handling = "hit_for_miss"
	HandlingSynth   Handling = "synth"
	HandlingPipe    Handling = "pipe"
)

// Backend side handling labels used in flattened output.
const (
	BackendHandlingFetch   = "fetch"
	BackendHandlingFail    = "fail"
	BackendHandlingRetry   = "retry"
	BackendHandlingAbandon = "abandon"
)

// LogKind classifies a captured log line.
type LogKind int

const (
	LogVCL LogKind = iota
	LogVCLError
	LogDebug
	LogError
	LogFetchError
	LogWarning
	LogACL
)

// LogEntry is one captured log line or ACL evaluation, in record order.
type LogEntry struct {
	Kind    LogKind
	Message string
	// ACL entries only.
	ACLMatched bool
	ACLName    string
	ACLAddr    string
}

// HTTPRequest is a materialized request line plus ordered headers. Duplicate
// header names are preserved in insertion order.
type HTTPRequest struct {
	Protocol string
	Method   string
	URL      string
	Headers  []HeaderPair
}

// HTTPResponse is a materialized status line plus ordered headers.
type HTTPResponse struct {
	Protocol string
	Status   int
	Reason   string
	Headers  []HeaderPair
}

// HeaderPair preserves the original header name and value bytes as strings.
type HeaderPair struct {
	Name  string
	Value string
}

// Compression is the result of a Gzip operation on a transaction body.
type Compression struct {
	Operation string
	BytesIn   uint64
	BytesOut  uint64
}

// BackendConnection identifies the origin connection used for a fetch.
type BackendConnection struct {
	FD     int
	Name   string
	Remote *Addr
	Local  Addr
}

// CacheObject describes the stored object created by a backend fetch.
type CacheObject struct {
	StorageType   string
	StorageName   string
	TTL           *float64
	Grace         *float64
	Keep          *float64
	Since         float64
	Origin        float64
	FetchMode     string
	FetchStreamed bool
	Response      *HTTPResponse
}

// SessionInfo is the session context copied onto root client records when a
// tree is flattened.
type SessionInfo struct {
	VXID   uint32
	Open   float64
	Local  *Addr
	Remote Addr
	Proxy  *ProxyDetail
}

// ProxyDetail is the materialized PROXY protocol info of a session.
type ProxyDetail struct {
	Version string
	Client  Addr
	Server  Addr
}

// ClientKind discriminates the shape a client transaction ended up in.
type ClientKind int

const (
	ClientFull ClientKind = iota
	ClientRestartedEarly
	ClientRestartedLate
	ClientPiped
)

// BackendKind discriminates the shape a backend transaction ended up in.
type BackendKind int

const (
	BackendFull BackendKind = iota
	// BackendFailed got a synthetic response after the fetch failed.
	BackendFailed
	// BackendAborted never made a backend request.
	BackendAborted
	// BackendAbandoned got a response Varnish did not use: abandon or retry.
	BackendAbandoned
	BackendPiped
)

// RecordLink points at a child record by vxid until the child closes and the
// pointer can be resolved in the correlation store.
type RecordLink[T any] struct {
	VXID   uint32
	Reason string
	Record *T
}

// Resolved reports whether the child record has been attached.
func (l *RecordLink[T]) Resolved() bool { return l != nil && l.Record != nil }

// ClientAccessRecord is one closed client transaction. Optional parts are nil
// when the transaction shape does not produce them.
type ClientAccessRecord struct {
	Kind   ClientKind
	Root   bool
	VXID   uint32
	Parent uint32
	Reason string
	Remote Addr

	Session *SessionInfo

	Request  *HTTPRequest
	Response *HTTPResponse

	EsiRecords    []*RecordLink[ClientAccessRecord]
	BackendRecord *RecordLink[BackendAccessRecord]
	RestartRecord *RecordLink[ClientAccessRecord]

	Start float64
	End   *float64

	// Durations in seconds; nil when the shape has none.
	Process *float64
	Fetch   *float64
	TTFB    *float64
	Serve   *float64

	Accounting     *Accounting
	PipeAccounting *PipeAccounting

	Handling    Handling
	Compression *Compression
	Log         []LogEntry

	// PipeToPass marks a piped transaction the cache converted to pass
	// mid-flow (HTTP/2 to HTTP/1.1 translation).
	PipeToPass bool

	// Partial marks a record emitted before normal completion: eviction,
	// expiry or stream EOF.
	Partial bool
}

// BackendAccessRecord is one closed backend transaction.
type BackendAccessRecord struct {
	Kind   BackendKind
	VXID   uint32
	Parent uint32
	Reason string

	Request  *HTTPRequest
	Response *HTTPResponse

	BackendConnection *BackendConnection
	CacheObject       *CacheObject
	RetryRecord       *RecordLink[BackendAccessRecord]

	Start *float64
	End   *float64

	Send  *float64
	Wait  *float64
	TTFB  *float64
	Took  *float64
	Synth *float64

	Accounting  *Accounting
	Compression *Compression
	Log         []LogEntry

	Partial bool
}

// SessionRecord is one closed session, the root of a correlation tree.
type SessionRecord struct {
	VXID        uint32
	Open        float64
	Local       *Addr
	Remote      Addr
	Proxy       *ProxyDetail
	ClientLinks []*RecordLink[ClientAccessRecord]
	Duration    float64
	CloseReason string

	Partial bool
}

// Record is the closed output of the record state machine: exactly one of
// the three fields is set.
type Record struct {
	Client  *ClientAccessRecord
	Backend *BackendAccessRecord
	Session *SessionRecord
}
