package usecase

import (
	"fmt"

	"github.com/rs/zerolog"

	"vsltap/internal/domain"
)

// Builder accumulates the frames of a single vxid into a closed record.
//
// Timestamps drive the derived durations. Client records:
//
//	process - Start to Req
//	fetch   - Req to Fetch
//	ttfb    - Start to Process
//	serve   - Start to Resp
//
// Backend records:
//
//	send  - Start to Bereq
//	wait  - Bereq to Beresp
//	ttfb  - Start to Beresp
//	fetch - Start to BerespBody
//
// ESI subrequests have no Req timestamp, so process stays unset for them.
type Builder struct {
	vxid uint32

	kind        recordKind
	clientKind  domain.ClientKind
	backendKind domain.BackendKind
	parent      uint32
	reason      string

	reqStart  *float64
	pipeStart *float64

	request     httpMessageBuilder
	response    httpMessageBuilder
	cacheObject httpMessageBuilder

	objStorage *objStorage
	objTTL     *objTTL

	backendConnection *domain.BackendConnection
	compression       *domain.Compression
	fetchMode         string
	fetchStreamed     bool
	fetchBodySeen     bool

	reqProcess *float64
	respFetch  *float64
	respTTFB   *float64
	reqTook    *float64
	respEnd    *float64

	accounting     *domain.Accounting
	pipeAccounting *domain.PipeAccounting

	clientAddr *domain.Addr

	sessOpen        *float64
	sessRemote      *domain.Addr
	sessLocal       *domain.Addr
	sessProxy       *domain.ProxyDetail
	sessDuration    float64
	sessCloseReason string
	sessEndSeen     bool

	clientLinks []*domain.RecordLink[domain.ClientAccessRecord]
	backendLink *domain.RecordLink[domain.BackendAccessRecord]
	retryLink   *domain.RecordLink[domain.BackendAccessRecord]
	restartLink *domain.RecordLink[domain.ClientAccessRecord]

	handling   domain.Handling
	pipeToPass bool
	// late is set once client processing moved past the backend fetch
	// (DELIVER or SYNTH), which decides the restart flavor.
	late bool

	log []domain.LogEntry

	logger zerolog.Logger
}

type recordKind int

const (
	kindUndefined recordKind = iota
	kindClient
	kindBackend
	kindSession
)

type objStorage struct {
	stype string
	name  string
}

type objTTL struct {
	ttl    *float64
	grace  *float64
	keep   *float64
	since  float64
	origin *float64
}

// httpMessageBuilder accumulates request or response lines plus headers.
// Once complete it no longer accepts mutations; the cache re-logs headers in
// later phases and only the first complete snapshot is the one wanted.
type httpMessageBuilder struct {
	protocol string
	method   string
	url      string
	status   int
	hasLine  bool
	reason   string
	headers  []domain.HeaderPair
	complete bool
}

func (b *httpMessageBuilder) setHeader(name, value string) {
	if b.complete {
		return
	}
	b.headers = append(b.headers, domain.HeaderPair{Name: name, Value: value})
}

func (b *httpMessageBuilder) unsetHeader(name, value string) {
	if b.complete {
		return
	}
	kept := b.headers[:0]
	for _, h := range b.headers {
		if h.Name != name || h.Value != value {
			kept = append(kept, h)
		}
	}
	b.headers = kept
}

func (b *httpMessageBuilder) buildRequest() *domain.HTTPRequest {
	if b.method == "" && b.url == "" && b.protocol == "" && len(b.headers) == 0 {
		return nil
	}
	return &domain.HTTPRequest{
		Protocol: b.protocol,
		Method:   b.method,
		URL:      b.url,
		Headers:  b.headers,
	}
}

func (b *httpMessageBuilder) buildResponse() *domain.HTTPResponse {
	if !b.hasLine && len(b.headers) == 0 {
		return nil
	}
	return &domain.HTTPResponse{
		Protocol: b.protocol,
		Status:   b.status,
		Reason:   b.reason,
		Headers:  b.headers,
	}
}

func NewBuilder(vxid uint32, logger zerolog.Logger) *Builder {
	return &Builder{
		vxid:   vxid,
		logger: logger.With().Uint32("vxid", vxid).Logger(),
	}
}

// buildError aborts the builder: the vxid gets a tombstone.
type buildError struct {
	msg string
}

func (e buildError) Error() string { return e.msg }

// Apply feeds one parsed message. It returns true when the record closed.
func (b *Builder) Apply(msg domain.Message) (bool, error) {
	if b.kind == kindUndefined {
		if _, ok := msg.(domain.Begin); !ok {
			return false, buildError{msg: "frame before Begin; Begin record missed or lost"}
		}
	}

	switch m := msg.(type) {
	case domain.Begin:
		return false, b.applyBegin(m)

	case domain.End:
		if b.kind == kindSession {
			// The cache may emit End on a session vxid before SessClose;
			// the session stays open until SessClose.
			if b.sessEndSeen {
				b.logger.Warn().Msg("duplicate End on session record")
			}
			b.sessEndSeen = true
			return false, nil
		}
		return true, nil

	case domain.SessClose:
		if b.kind != kindSession {
			b.logger.Debug().Msg("ignoring SessClose on non-session record")
			return false, nil
		}
		b.sessCloseReason = string(m.Reason)
		b.sessDuration = m.Duration
		return true, nil

	case domain.SessOpen:
		remote := materializeAddr(m.Remote)
		b.sessOpen = &m.Time
		b.sessRemote = &remote
		if m.Local != nil {
			local := materializeAddr(*m.Local)
			b.sessLocal = &local
		}

	case domain.ProxyInfo:
		b.sessProxy = &domain.ProxyDetail{
			Version: string(m.Version),
			Client:  materializeAddr(m.Client),
			Server:  materializeAddr(m.Server),
		}

	case domain.ReqStart:
		addr := materializeAddr(m.Addr)
		b.clientAddr = &addr
		// A restarted request logs ReqStart again; the request builder
		// starts over with it.
		b.request = httpMessageBuilder{}

	case domain.Timestamp:
		b.applyTimestamp(m)

	case domain.Link:
		b.applyLink(m)

	case domain.HTTPText:
		b.applyHTTPText(m)

	case domain.HTTPStatus:
		switch m.Tag {
		case domain.TagRespStatus, domain.TagBerespStatus:
			if !b.response.complete {
				b.response.status = m.Status
				b.response.hasLine = true
			}
		case domain.TagObjStatus:
			b.cacheObject.status = m.Status
			b.cacheObject.hasLine = true
		default:
			b.logger.Debug().Stringer("tag", m.Tag).Msg("ignoring out-of-place status line")
		}

	case domain.Header:
		b.applyHeader(m)

	case domain.VCLCall:
		b.applyVCLCall(string(m.Phase))

	case domain.VCLReturn:
		b.applyVCLReturn(string(m.Verdict))

	case domain.Hit:
		b.handling = domain.HandlingHit
	case domain.HitPass:
		b.handling = domain.HandlingHitPass
	case domain.HitMiss:
		b.handling = domain.HandlingHitMiss

	case domain.ACLCheck:
		b.log = append(b.log, domain.LogEntry{
			Kind:       domain.LogACL,
			ACLMatched: m.Matched,
			ACLName:    string(m.Name),
			ACLAddr:    string(m.Addr),
		})

	case domain.LogLine:
		b.applyLogLine(m)

	case domain.Storage:
		b.objStorage = &objStorage{stype: string(m.Type), name: string(m.Name)}

	case domain.TTL:
		origin := m.Origin
		if origin == nil && b.objTTL != nil {
			origin = b.objTTL.origin
		}
		b.objTTL = &objTTL{
			ttl:    m.TTL,
			grace:  m.Grace,
			keep:   m.Keep,
			since:  m.Since,
			origin: origin,
		}

	case domain.Accounting:
		acct := m
		b.accounting = &acct

	case domain.PipeAccounting:
		acct := m
		b.pipeAccounting = &acct

	case domain.BackendOpen:
		conn := &domain.BackendConnection{
			FD:    m.FD,
			Name:  string(m.Name),
			Local: materializeAddr(m.Local),
		}
		if m.Remote != nil {
			remote := materializeAddr(*m.Remote)
			conn.Remote = &remote
		}
		b.backendConnection = conn

	case domain.Gzip:
		b.compression = &domain.Compression{
			Operation: m.Operation,
			BytesIn:   m.BytesIn,
			BytesOut:  m.BytesOut,
		}

	case domain.FetchBody:
		b.fetchMode = string(m.ModeName)
		b.fetchStreamed = m.Streamed
		b.fetchBodySeen = true

	case domain.Unparsed:
		if m.Tag == domain.TagGzip {
			// The cache logs a plain text reason when compression failed.
			b.log = append(b.log, domain.LogEntry{Kind: domain.LogError, Message: string(m.Data)})
		} else {
			b.logger.Debug().Stringer("tag", m.Tag).Msg("unparseable payload")
		}

	case domain.Ignored:
		// Tags with no bearing on the record.
	}

	return false, nil
}

func (b *Builder) applyBegin(m domain.Begin) error {
	if b.kind != kindUndefined {
		b.logger.Warn().Msg("Begin while already building; restarting build")
		*b = Builder{vxid: b.vxid, logger: b.logger}
	}
	switch string(m.Kind) {
	case "sess":
		b.kind = kindSession
	case "req":
		b.kind = kindClient
	case "bereq":
		b.kind = kindBackend
	default:
		return buildError{msg: fmt.Sprintf("unsupported transaction type %q", m.Kind)}
	}
	b.parent = m.Parent
	b.reason = string(m.Reason)
	return nil
}

func (b *Builder) applyTimestamp(m domain.Timestamp) {
	abs := m.Abs
	sinceStart := m.SinceStart
	sinceLast := m.SinceLast

	switch string(m.Event) {
	case "Start":
		b.reqStart = &abs
	case "Req", "ReqBody":
		b.reqProcess = &sinceStart
	case "Bereq":
		b.pipeStart = &abs
		b.reqProcess = &sinceStart
	case "Beresp":
		b.respTTFB = &sinceStart
		b.respFetch = &sinceLast
	case "Fetch":
		b.respFetch = &sinceLast
	case "Pipe", "Process":
		b.respTTFB = &sinceStart
	case "Resp", "BerespBody", "Retry", "PipeSess":
		b.reqTook = &sinceStart
		b.respEnd = &abs
	case "Error":
		b.reqTook = &sinceStart
		b.respEnd = &abs
		// Timings up to the error point are not meaningful.
		b.respTTFB = nil
		b.respFetch = nil
	case "Restart":
		b.respEnd = &abs
	default:
		b.logger.Debug().Str("event", string(m.Event)).Msg("ignoring unmatched timestamp event")
	}
}

func (b *Builder) applyLink(m domain.Link) {
	kind := string(m.Kind)
	reason := string(m.Reason)
	switch {
	case kind == "req" && reason == "restart":
		if b.restartLink != nil {
			b.logger.Warn().Uint32("old", b.restartLink.VXID).Uint32("new", m.Child).
				Msg("replacing restart link")
		}
		b.restartLink = &domain.RecordLink[domain.ClientAccessRecord]{VXID: m.Child, Reason: reason}
	case kind == "req":
		b.clientLinks = append(b.clientLinks,
			&domain.RecordLink[domain.ClientAccessRecord]{VXID: m.Child, Reason: reason})
	case kind == "bereq" && reason == "retry":
		if b.retryLink != nil {
			b.logger.Warn().Uint32("old", b.retryLink.VXID).Uint32("new", m.Child).
				Msg("replacing retry link")
		}
		b.retryLink = &domain.RecordLink[domain.BackendAccessRecord]{VXID: m.Child, Reason: reason}
	case kind == "bereq":
		if b.backendLink != nil {
			b.logger.Warn().Uint32("old", b.backendLink.VXID).Uint32("new", m.Child).
				Msg("replacing backend link")
		}
		b.backendLink = &domain.RecordLink[domain.BackendAccessRecord]{VXID: m.Child, Reason: reason}
	default:
		b.logger.Warn().Str("kind", kind).Msg("ignoring unmatched link kind")
	}
}

func (b *Builder) applyHTTPText(m domain.HTTPText) {
	value := string(m.Value)
	switch m.Tag {
	case domain.TagReqProtocol, domain.TagBereqProtocol:
		if !b.request.complete {
			b.request.protocol = value
		}
	case domain.TagReqMethod, domain.TagBereqMethod:
		if !b.request.complete {
			b.request.method = value
		}
	case domain.TagReqURL, domain.TagBereqURL:
		if !b.request.complete {
			b.request.url = value
		}
	case domain.TagRespProtocol, domain.TagBerespProtocol:
		if !b.response.complete {
			b.response.protocol = value
			b.response.hasLine = true
		}
	case domain.TagRespReason, domain.TagBerespReason:
		if !b.response.complete {
			b.response.reason = value
			b.response.hasLine = true
		}
	case domain.TagObjProtocol:
		b.cacheObject.protocol = value
		b.cacheObject.hasLine = true
	case domain.TagObjReason:
		b.cacheObject.reason = value
		b.cacheObject.hasLine = true
	case domain.TagRespMethod, domain.TagBerespMethod, domain.TagObjMethod,
		domain.TagRespURL, domain.TagBerespURL, domain.TagObjURL,
		domain.TagReqReason, domain.TagBereqReason:
		b.logger.Debug().Stringer("tag", m.Tag).Msg("ignoring out-of-place HTTP line")
	}
}

func (b *Builder) applyHeader(m domain.Header) {
	if len(m.Value) == 0 {
		b.logger.Debug().Stringer("tag", m.Tag).Msg("skipping empty header")
		return
	}
	name := string(m.Name)
	value := string(m.Value)
	switch m.Tag {
	case domain.TagReqHeader, domain.TagBereqHeader:
		b.request.setHeader(name, value)
	case domain.TagReqUnset, domain.TagBereqUnset:
		b.request.unsetHeader(name, value)
	case domain.TagRespHeader, domain.TagBerespHeader:
		b.response.setHeader(name, value)
	case domain.TagRespUnset, domain.TagBerespUnset:
		b.response.unsetHeader(name, value)
	case domain.TagObjHeader:
		b.cacheObject.setHeader(name, value)
	case domain.TagObjUnset:
		b.cacheObject.unsetHeader(name, value)
	}
}

func (b *Builder) applyVCLCall(phase string) {
	switch phase {
	case "RECV":
		b.request.complete = true
	case "MISS":
		b.handling = domain.HandlingMiss
	case "PASS":
		switch b.handling {
		case "":
			b.handling = domain.HandlingPass
		case domain.HandlingPipe:
			// Pipe converted to pass mid-flow, e.g. HTTP/2 to HTTP/1.1
			// translation; record keeps its pipe session annotation.
			b.handling = domain.HandlingPass
			b.pipeToPass = true
		}
	case "SYNTH":
		b.handling = domain.HandlingSynth
		b.late = true
	case "BACKEND_RESPONSE":
		b.request.complete = true
		b.response.complete = true
	case "BACKEND_ERROR":
		if b.kind == kindBackend && b.backendKind == domain.BackendFull {
			b.request.complete = true
			b.backendKind = domain.BackendFailed
		} else {
			b.logger.Warn().Msg("BACKEND_ERROR call on unexpected record state")
		}
	case "DELIVER":
		b.late = true
	case "BACKEND_FETCH", "HASH", "HIT", "PIPE":
		// Phase entry alone decides nothing.
	default:
		b.logger.Debug().Str("phase", phase).Msg("ignoring unknown VCL call phase")
	}
}

func (b *Builder) applyVCLReturn(verdict string) {
	switch verdict {
	case "restart":
		if b.kind == kindClient && b.clientKind == domain.ClientFull {
			if b.late {
				b.clientKind = domain.ClientRestartedLate
			} else {
				b.clientKind = domain.ClientRestartedEarly
			}
		} else {
			b.logger.Warn().Msg("restart return on unexpected record state")
		}
	case "abandon":
		if b.kind != kindBackend || b.backendKind != domain.BackendFull {
			b.logger.Warn().Msg("abandon return on unexpected record state")
			return
		}
		if !b.request.complete {
			// Abandoned before the backend request was issued.
			b.request.complete = true
			b.backendKind = domain.BackendAborted
		} else {
			b.backendKind = domain.BackendAbandoned
		}
	case "retry":
		if b.kind == kindBackend && b.backendKind == domain.BackendFull {
			b.backendKind = domain.BackendAbandoned
		} else {
			b.logger.Warn().Msg("retry return on unexpected record state")
		}
	case "pipe":
		switch {
		case b.kind == kindClient && b.clientKind == domain.ClientFull:
			b.clientKind = domain.ClientPiped
			b.handling = domain.HandlingPipe
		case b.kind == kindBackend && b.backendKind == domain.BackendFull:
			b.request.complete = true
			b.backendKind = domain.BackendPiped
		default:
			b.logger.Warn().Msg("pipe return on unexpected record state")
		}
	case "pass":
		if b.handling == domain.HandlingPipe {
			b.handling = domain.HandlingPass
			b.pipeToPass = true
		}
	case "synth":
		// The synthetic response replaces whatever was built so far.
		b.response = httpMessageBuilder{}
	case "deliver", "fetch", "hash", "lookup":
		// No state change.
	default:
		b.logger.Debug().Str("verdict", verdict).Msg("ignoring unknown VCL return verdict")
	}
}

func (b *Builder) applyLogLine(m domain.LogLine) {
	value := string(m.Value)
	switch m.Tag {
	case domain.TagVCLLog:
		b.log = append(b.log, domain.LogEntry{Kind: domain.LogVCL, Message: value})
	case domain.TagVCLError:
		b.log = append(b.log, domain.LogEntry{Kind: domain.LogVCLError, Message: value})
	case domain.TagDebug:
		b.log = append(b.log, domain.LogEntry{Kind: domain.LogDebug, Message: value})
	case domain.TagError:
		b.log = append(b.log, domain.LogEntry{Kind: domain.LogError, Message: value})
	case domain.TagFetchError:
		b.log = append(b.log, domain.LogEntry{Kind: domain.LogFetchError, Message: value})
	case domain.TagBogoHeader:
		b.log = append(b.log, domain.LogEntry{Kind: domain.LogWarning,
			Message: "Bogus HTTP header received: " + value})
	case domain.TagLostHeader:
		b.log = append(b.log, domain.LogEntry{Kind: domain.LogWarning,
			Message: "Header operation failed on resource exhaustion or configured limits; header was: " + value})
	case domain.TagHttpGarbage:
		b.log = append(b.log, domain.LogEntry{Kind: domain.LogWarning,
			Message: "Unparseable HTTP request: " + value})
	case domain.TagProxyGarbage:
		b.log = append(b.log, domain.LogEntry{Kind: domain.LogWarning,
			Message: "Unparseable PROXY header: " + value})
	}
}

// Build assembles the closed record. Missing details degrade to zero values;
// only a record that never saw Begin fails.
func (b *Builder) Build() (domain.Record, error) {
	switch b.kind {
	case kindUndefined:
		return domain.Record{}, buildError{msg: "record type unknown; Begin record missed or lost"}
	case kindSession:
		return domain.Record{Session: b.buildSession()}, nil
	case kindClient:
		return domain.Record{Client: b.buildClient()}, nil
	default:
		return domain.Record{Backend: b.buildBackend()}, nil
	}
}

// BuildPartial assembles whatever state the builder holds for a record that
// is being flushed before completion (eviction, expiry or stream EOF).
func (b *Builder) BuildPartial() (domain.Record, bool) {
	rec, err := b.Build()
	if err != nil {
		return domain.Record{}, false
	}
	switch {
	case rec.Client != nil:
		rec.Client.Partial = true
	case rec.Backend != nil:
		rec.Backend.Partial = true
	case rec.Session != nil:
		rec.Session.Partial = true
	}
	return rec, true
}

func (b *Builder) buildSession() *domain.SessionRecord {
	rec := &domain.SessionRecord{
		VXID:        b.vxid,
		Local:       b.sessLocal,
		Proxy:       b.sessProxy,
		ClientLinks: b.clientLinks,
		Duration:    b.sessDuration,
		CloseReason: b.sessCloseReason,
	}
	if b.sessOpen != nil {
		rec.Open = *b.sessOpen
	} else {
		b.logger.Debug().Msg("session record without SessOpen timestamp")
	}
	if b.sessRemote != nil {
		rec.Remote = *b.sessRemote
	}
	return rec
}

func (b *Builder) buildClient() *domain.ClientAccessRecord {
	// The response is completed by End for full and late-restarted records.
	rec := &domain.ClientAccessRecord{
		Kind:          b.clientKind,
		Root:          b.reason == "rxreq",
		VXID:          b.vxid,
		Parent:        b.parent,
		Reason:        b.reason,
		EsiRecords:    b.clientLinks,
		BackendRecord: b.backendLink,
		RestartRecord: b.restartLink,
		End:           b.respEnd,
		Process:       b.reqProcess,
		Handling:      b.handling,
		Compression:   b.compression,
		Log:           b.log,
		PipeToPass:    b.pipeToPass,
	}
	if b.clientAddr != nil {
		rec.Remote = *b.clientAddr
	}
	if b.reqStart != nil {
		rec.Start = *b.reqStart
	} else {
		b.logger.Debug().Msg("client record without Start timestamp")
	}
	if rec.Handling == "" {
		rec.Handling = domain.HandlingSynth
		b.logger.Debug().Msg("client record without handling verdict; assuming synth")
	}
	rec.Request = b.request.buildRequest()

	switch b.clientKind {
	case domain.ClientFull, domain.ClientRestartedLate:
		rec.Response = b.response.buildResponse()
		rec.Fetch = b.respFetch
		rec.TTFB = b.respTTFB
		rec.Serve = b.reqTook
		rec.Accounting = b.accounting
	case domain.ClientRestartedEarly:
		// No response and no accounting before the restart.
	case domain.ClientPiped:
		rec.TTFB = b.respTTFB
		rec.PipeAccounting = b.pipeAccounting
		if b.pipeToPass {
			// Converted sessions do get a response served.
			rec.Response = b.response.buildResponse()
			rec.Accounting = b.accounting
		}
	}
	return rec
}

func (b *Builder) buildBackend() *domain.BackendAccessRecord {
	rec := &domain.BackendAccessRecord{
		Kind:        b.backendKind,
		VXID:        b.vxid,
		Parent:      b.parent,
		Reason:      b.reason,
		RetryRecord: b.retryLink,
		End:         b.respEnd,
		Compression: b.compression,
		Log:         b.log,
	}
	rec.Request = b.request.buildRequest()

	if b.backendKind == domain.BackendPiped {
		// Piped backend requests log no Start timestamp.
		rec.Start = b.pipeStart
	} else {
		rec.Start = b.reqStart
	}

	switch b.backendKind {
	case domain.BackendFull:
		rec.Response = b.response.buildResponse()
		rec.BackendConnection = b.backendConnection
		rec.CacheObject = b.buildCacheObject()
		rec.Send = b.reqProcess
		rec.Wait = b.respFetch
		rec.TTFB = b.respTTFB
		rec.Took = b.reqTook
		rec.Accounting = b.accounting
	case domain.BackendFailed:
		rec.Response = b.response.buildResponse()
		rec.Synth = b.reqTook
		rec.Accounting = b.accounting
	case domain.BackendAborted:
		// Nothing beyond the request.
	case domain.BackendAbandoned:
		rec.Response = b.response.buildResponse()
		rec.BackendConnection = b.backendConnection
		rec.Send = b.reqProcess
		rec.Wait = b.respFetch
		rec.TTFB = b.respTTFB
		rec.Took = b.reqTook
	case domain.BackendPiped:
		rec.BackendConnection = b.backendConnection
	}
	return rec
}

func (b *Builder) buildCacheObject() *domain.CacheObject {
	if b.objStorage == nil && b.objTTL == nil && !b.fetchBodySeen {
		return nil
	}
	obj := &domain.CacheObject{Response: b.cacheObject.buildResponse()}
	if b.objStorage != nil {
		obj.StorageType = b.objStorage.stype
		obj.StorageName = b.objStorage.name
	}
	if b.objTTL != nil {
		obj.TTL = b.objTTL.ttl
		obj.Grace = b.objTTL.grace
		obj.Keep = b.objTTL.keep
		obj.Since = b.objTTL.since
		if b.objTTL.origin != nil {
			obj.Origin = *b.objTTL.origin
		} else {
			obj.Origin = b.objTTL.since
		}
	}
	if b.fetchBodySeen {
		obj.FetchMode = b.fetchMode
		obj.FetchStreamed = b.fetchStreamed
	} else if b.reason == "bgfetch" {
		// Background fetches never log Fetch_Body as the client is gone.
		obj.FetchMode = "bgfetch"
	}
	return obj
}

func materializeAddr(a domain.Address) domain.Addr {
	return domain.Addr{IP: string(a.IP), Port: a.Port}
}
