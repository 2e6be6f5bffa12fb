package usecase

import (
	"strings"

	"github.com/rs/zerolog"

	"vsltap/internal/domain"
	"vsltap/pkg/shared/redact"
)

// FlattenOptions select how much post-processing the flattener applies.
type FlattenOptions struct {
	// KeepRawHeaders emits the original name/value pairs instead of the
	// normalized index, whether or not indexing is on.
	KeepRawHeaders bool
	// KeepRawLog includes the unclassified log lines.
	KeepRawLog bool
	// NoHeaderIndexing skips building the normalized-name header index.
	NoHeaderIndexing bool
	// NoLogProcessing skips classification of log lines into vars, ACL
	// results and messages.
	NoLogProcessing bool
	// MaskSensitiveHeaders replaces credential-bearing header values.
	MaskSensitiveHeaders bool
}

// Flattener turns completed session trees into flat output values, one per
// root client transaction, with ESI subrequests following their root in
// Begin order.
type Flattener struct {
	opts   FlattenOptions
	logger zerolog.Logger
}

func NewFlattener(opts FlattenOptions, logger zerolog.Logger) *Flattener {
	return &Flattener{opts: opts, logger: logger}
}

// Flatten converts one tree into its output records.
func (f *Flattener) Flatten(tree Tree) []domain.OutputRecord {
	switch {
	case tree.PartialClient != nil:
		return f.flattenClientTree(tree.PartialClient, nil)
	case tree.PartialBackend != nil:
		out := f.flattenBackend(tree.PartialBackend, 0)
		if out == nil {
			return nil
		}
		out.RecordType = "backend_access"
		return []domain.OutputRecord{{BackendAccess: out}}
	case tree.Session != nil:
		var out []domain.OutputRecord
		info := sessionInfo(tree.Session)
		for _, root := range tree.Roots {
			out = append(out, f.flattenClientTree(root, info)...)
		}
		return out
	}
	return nil
}

// flattenClientTree emits the record itself followed by its resolved ESI
// subrequests in Begin order.
func (f *Flattener) flattenClientTree(rec *domain.ClientAccessRecord, session *domain.SessionInfo) []domain.OutputRecord {
	if session == nil {
		session = rec.Session
	}
	recordType := "client_request"
	if rec.Reason == "esi" {
		recordType = "esi_subrequest"
	}

	out := []domain.OutputRecord{}
	if flat := f.flattenClient(rec, recordType, session); flat != nil {
		out = append(out, *flat)
	}

	final, _ := followRestarts(rec, 0)
	for _, link := range final.EsiRecords {
		if link.Record == nil {
			f.logger.Warn().Uint32("vxid", rec.VXID).Uint32("child", link.VXID).
				Msg("unresolved ESI link in flattened tree")
			continue
		}
		out = append(out, f.flattenClientTree(link.Record, session)...)
	}
	return out
}

// followRestarts walks the restart chain down to the record that actually
// served the response, counting hops.
func followRestarts(rec *domain.ClientAccessRecord, count int) (*domain.ClientAccessRecord, int) {
	switch rec.Kind {
	case domain.ClientRestartedEarly, domain.ClientRestartedLate:
		if rec.RestartRecord != nil && rec.RestartRecord.Record != nil {
			return followRestarts(rec.RestartRecord.Record, count+1)
		}
	}
	return rec, count
}

func (f *Flattener) flattenClient(rec *domain.ClientAccessRecord, recordType string, session *domain.SessionInfo) *domain.OutputRecord {
	final, restartCount := followRestarts(rec, 0)

	if final.Kind == domain.ClientPiped {
		return f.flattenPipeSession(rec, final, session)
	}

	var restartLog []domain.LogEntry
	if restartCount > 0 {
		restartLog = rec.Log
	}

	// A late restart may have issued its own backend fetch; it is used when
	// the final record has none.
	backendLink := final.BackendRecord
	if backendLink == nil && rec.Kind == domain.ClientRestartedLate {
		backendLink = rec.BackendRecord
	}
	var backendOut *domain.OutBackendAccess
	if backendLink != nil {
		if backendLink.Record != nil {
			backendOut = f.flattenBackend(backendLink.Record, 0)
		} else {
			f.logger.Warn().Uint32("vxid", rec.VXID).Uint32("child", backendLink.VXID).
				Msg("unresolved backend link in flattened tree")
		}
	}

	out := &domain.OutClientAccess{
		RecordType:     recordType,
		VXID:           rec.VXID,
		RemoteAddress:  outAddr(rec.Remote),
		StartTimestamp: final.Start,
		EndTimestamp:   final.End,
		Handling:       string(final.Handling),
		Request:        f.outRequest(requestOf(rec, final)),
		Response:       f.outResponse(final.Response),
		BackendAccess:  backendOut,
		TTFBDuration:   f.duration(final.TTFB, rec.VXID, "ttfb"),
		ServeDuration:  f.duration(final.Serve, rec.VXID, "serve"),
		ProcessDuration: firstDuration(rec.Process, final.Process),
		FetchDuration:   final.Fetch,
		EsiCount:        len(final.EsiRecords),
		Compression:     outCompression(final.Compression),
		RestartCount:    restartCount,
		Log:             f.outLog(final.Log),
		Partial:         rec.Partial || final.Partial,
	}
	if session != nil {
		out.Session = outSessionInfo(session)
		open := session.Open
		out.SessionTimestamp = &open
	}
	if restartLog != nil {
		l := f.outLog(restartLog)
		out.RestartLog = &l
	}
	if acct := final.Accounting; acct != nil {
		out.RecvHeaderBytes = acct.RecvHeader
		out.RecvBodyBytes = acct.RecvBody
		out.RecvTotalBytes = acct.RecvTotal
		out.SentHeaderBytes = acct.SentHeader
		out.SentBodyBytes = acct.SentBody
		out.SentTotalBytes = acct.SentTotal
	} else if final.PipeAccounting != nil {
		out.RecvTotalBytes = final.PipeAccounting.RecvTotal
		out.SentTotalBytes = final.PipeAccounting.SentTotal
	}
	return &domain.OutputRecord{ClientAccess: out}
}

func (f *Flattener) flattenPipeSession(rec, final *domain.ClientAccessRecord, session *domain.SessionInfo) *domain.OutputRecord {
	out := &domain.OutPipeSession{
		RecordType:      "pipe_session",
		VXID:            rec.VXID,
		RemoteAddress:   outAddr(rec.Remote),
		StartTimestamp:  final.Start,
		EndTimestamp:    final.End,
		Handling:        string(final.Handling),
		Request:         f.outRequest(requestOf(rec, final)),
		ProcessDuration: firstDuration(rec.Process, final.Process),
		TTFBDuration:    final.TTFB,
		Log:             f.outLog(final.Log),
		Partial:         rec.Partial || final.Partial,
	}
	if session != nil {
		out.Session = outSessionInfo(session)
		open := session.Open
		out.SessionTimestamp = &open
	}
	if final.PipeAccounting != nil {
		out.RecvTotalBytes = final.PipeAccounting.RecvTotal
		out.SentTotalBytes = final.PipeAccounting.SentTotal
	} else if final.Accounting != nil {
		// A pipe converted to pass accounts like a regular request.
		out.RecvTotalBytes = final.Accounting.RecvTotal
		out.SentTotalBytes = final.Accounting.SentTotal
	}
	if final.BackendRecord != nil && final.BackendRecord.Record != nil {
		backend := final.BackendRecord.Record
		if backend.Kind == domain.BackendPiped {
			out.BackendRequest = f.outRequest(backend.Request)
			out.BackendConnection = outBackendConnection(backend.BackendConnection)
		} else {
			f.logger.Warn().Uint32("vxid", rec.VXID).Uint32("child", backend.VXID).
				Msg("piped client record linked to non-piped backend record")
		}
	} else if final.BackendRecord != nil {
		f.logger.Warn().Uint32("vxid", rec.VXID).Uint32("child", final.BackendRecord.VXID).
			Msg("unresolved backend link in pipe session")
	}
	return &domain.OutputRecord{PipeSession: out}
}

// flattenBackend follows the retry chain to the attempt that terminated it
// and emits that one, carrying the retry count.
func (f *Flattener) flattenBackend(rec *domain.BackendAccessRecord, retry int) *domain.OutBackendAccess {
	if (rec.Kind == domain.BackendFailed || rec.Kind == domain.BackendAbandoned) &&
		rec.RetryRecord != nil {
		if rec.RetryRecord.Record != nil {
			return f.flattenBackend(rec.RetryRecord.Record, retry+1)
		}
		f.logger.Warn().Uint32("vxid", rec.VXID).Uint32("child", rec.RetryRecord.VXID).
			Msg("unresolved retry link in flattened tree")
	}

	var handling string
	switch rec.Kind {
	case domain.BackendFull:
		handling = domain.BackendHandlingFetch
	case domain.BackendFailed:
		handling = domain.BackendHandlingFail
	case domain.BackendAbandoned:
		handling = domain.BackendHandlingAbandon
	case domain.BackendAborted, domain.BackendPiped:
		if rec.Partial {
			handling = domain.BackendHandlingAbandon
		} else {
			// Aborted and piped attempts carry nothing worth a backend
			// access entry of their own.
			return nil
		}
	}

	out := &domain.OutBackendAccess{
		VXID:           rec.VXID,
		StartTimestamp: rec.Start,
		EndTimestamp:   rec.End,
		Handling:       handling,
		Request:        f.outRequest(rec.Request),
		Response:       f.outResponse(rec.Response),
		Retry:          retry,
		WaitDuration:   rec.Wait,
		TTFBDuration:   rec.TTFB,
		FetchDuration:  rec.Took,
		Compression:    outCompression(rec.Compression),
		BackendConnection: outBackendConnection(rec.BackendConnection),
		CacheObject:       f.outCacheObject(rec.CacheObject),
		Log:               f.outLog(rec.Log),
		Partial:           rec.Partial,
	}
	switch rec.Kind {
	case domain.BackendFailed:
		out.SendDuration = f.duration(rec.Synth, rec.VXID, "synth")
	default:
		out.SendDuration = f.duration(rec.Send, rec.VXID, "send")
	}
	if acct := rec.Accounting; acct != nil {
		out.SentHeaderBytes = &acct.SentHeader
		out.SentBodyBytes = &acct.SentBody
		out.SentTotalBytes = &acct.SentTotal
		out.RecvHeaderBytes = &acct.RecvHeader
		out.RecvBodyBytes = &acct.RecvBody
		out.RecvTotalBytes = &acct.RecvTotal
	}
	return out
}

// requestOf picks the request the client actually sent: a restarted record
// keeps the original request, the final record has the served response.
func requestOf(rec, final *domain.ClientAccessRecord) *domain.HTTPRequest {
	if rec.Request != nil {
		return rec.Request
	}
	return final.Request
}

func (f *Flattener) outRequest(req *domain.HTTPRequest) *domain.OutRequest {
	if req == nil {
		return nil
	}
	return &domain.OutRequest{
		Protocol: req.Protocol,
		Method:   req.Method,
		URL:      req.URL,
		Headers:  f.outHeaders(req.Headers),
	}
}

func (f *Flattener) outResponse(resp *domain.HTTPResponse) *domain.OutResponse {
	if resp == nil {
		return nil
	}
	return &domain.OutResponse{
		Status:   resp.Status,
		Reason:   resp.Reason,
		Protocol: resp.Protocol,
		Headers:  f.outHeaders(resp.Headers),
	}
}

func (f *Flattener) outCacheObject(obj *domain.CacheObject) *domain.OutCacheObject {
	if obj == nil {
		return nil
	}
	return &domain.OutCacheObject{
		StorageType:     obj.StorageType,
		StorageName:     obj.StorageName,
		TTLDuration:     obj.TTL,
		GraceDuration:   obj.Grace,
		KeepDuration:    obj.Keep,
		SinceTimestamp:  obj.Since,
		OriginTimestamp: obj.Origin,
		FetchMode:       obj.FetchMode,
		FetchStreamed:   obj.FetchStreamed,
		Response:        f.outResponse(obj.Response),
	}
}

func (f *Flattener) outHeaders(pairs []domain.HeaderPair) domain.OutHeaders {
	out := domain.OutHeaders{}
	if f.opts.MaskSensitiveHeaders {
		masked := make([]domain.HeaderPair, len(pairs))
		for i, p := range pairs {
			masked[i] = domain.HeaderPair{Name: p.Name, Value: redact.HeaderValue(p.Name, p.Value)}
		}
		pairs = masked
	}
	if f.opts.NoHeaderIndexing || f.opts.KeepRawHeaders {
		out.Raw = pairs
		return out
	}
	out.Index = makeHeaderIndex(pairs)
	return out
}

// makeHeaderIndex normalizes header names to the canonical Title-Case form
// and groups values per name, keeping first-seen value order.
func makeHeaderIndex(pairs []domain.HeaderPair) *domain.HeaderIndex {
	ix := domain.NewHeaderIndex()
	for _, p := range pairs {
		ix.Add(normalizeHeaderName(p.Name), p.Value)
	}
	return ix
}

func normalizeHeaderName(name string) string {
	parts := strings.Split(name, "-")
	for i, part := range parts {
		parts[i] = titleCase(part)
	}
	return strings.Join(parts, "-")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func (f *Flattener) outLog(entries []domain.LogEntry) domain.OutLog {
	out := domain.OutLog{}
	if f.opts.NoLogProcessing || f.opts.KeepRawLog {
		out.RawLog = rawLogLines(entries)
	}
	if f.opts.NoLogProcessing {
		return out
	}

	vars := domain.NewVarsIndex()
	messages := []string{}
	aclMatched := []string{}
	aclNotMatched := []string{}

	for _, e := range entries {
		switch e.Kind {
		case domain.LogVCL:
			// std.log lines of the form "name: value" become variables as
			// long as the name carries no spaces.
			if name, value, found := strings.Cut(e.Message, ": "); found && !strings.Contains(name, " ") {
				vars.Set(name, value)
				continue
			}
			messages = append(messages, e.Message)
		case domain.LogACL:
			if e.ACLMatched {
				aclMatched = append(aclMatched, e.ACLName)
			} else {
				aclNotMatched = append(aclNotMatched, e.ACLName)
			}
		default:
			messages = append(messages, e.Message)
		}
	}

	out.Vars = vars
	out.Messages = messages
	out.ACLMatched = aclMatched
	out.ACLNotMatched = aclNotMatched
	return out
}

func rawLogLines(entries []domain.LogEntry) []string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		switch e.Kind {
		case domain.LogVCL:
			lines = append(lines, "vcl: "+e.Message)
		case domain.LogVCLError:
			lines = append(lines, "vcl_error: "+e.Message)
		case domain.LogDebug:
			lines = append(lines, "debug: "+e.Message)
		case domain.LogError:
			lines = append(lines, "error: "+e.Message)
		case domain.LogFetchError:
			lines = append(lines, "fetch_error: "+e.Message)
		case domain.LogWarning:
			lines = append(lines, "warning: "+e.Message)
		case domain.LogACL:
			if e.ACLMatched {
				lines = append(lines, "acl_match: "+e.ACLName)
			} else {
				lines = append(lines, "acl_no_match: "+e.ACLName)
			}
		}
	}
	return lines
}

// duration unwraps an optional timing; a missing timestamp degrades to zero.
func (f *Flattener) duration(d *float64, vxid uint32, name string) float64 {
	if d == nil {
		f.logger.Debug().Uint32("vxid", vxid).Str("duration", name).
			Msg("missing timestamp for duration; defaulting to zero")
		return 0
	}
	return *d
}

func firstDuration(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}

func outAddr(a domain.Addr) domain.OutAddress {
	return domain.OutAddress{IP: a.IP, Port: a.Port}
}

func outCompression(c *domain.Compression) *domain.OutCompression {
	if c == nil {
		return nil
	}
	return &domain.OutCompression{Operation: c.Operation, BytesIn: c.BytesIn, BytesOut: c.BytesOut}
}

func outBackendConnection(c *domain.BackendConnection) *domain.OutBackendConnection {
	if c == nil {
		return nil
	}
	out := &domain.OutBackendConnection{
		FD:           c.FD,
		Name:         c.Name,
		LocalAddress: outAddr(c.Local),
	}
	if c.Remote != nil {
		addr := outAddr(*c.Remote)
		out.RemoteAddress = &addr
	}
	return out
}

func outSessionInfo(s *domain.SessionInfo) *domain.OutSessionInfo {
	out := &domain.OutSessionInfo{
		VXID:          s.VXID,
		OpenTimestamp: s.Open,
		RemoteAddress: outAddr(s.Remote),
	}
	if s.Local != nil {
		addr := outAddr(*s.Local)
		out.LocalAddress = &addr
	}
	if s.Proxy != nil {
		out.Proxy = &domain.OutProxy{
			Version:       s.Proxy.Version,
			ClientAddress: outAddr(s.Proxy.Client),
			ServerAddress: outAddr(s.Proxy.Server),
		}
	}
	return out
}
