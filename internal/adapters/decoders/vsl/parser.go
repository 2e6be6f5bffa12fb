package vsl

import (
	"bytes"
	"strconv"

	"vsltap/internal/domain"
)

// Payload parsers for the tag catalog. Total over all tags: anything that
// fails to parse degrades to domain.Unparsed carrying the original bytes.
// Returned slices are sub-slices of the payload and share its lifetime.

// Parse decodes one frame payload into its typed message.
func Parse(tag domain.Tag, data []byte) domain.Message {
	switch tag {
	case domain.TagBegin:
		return parseBegin(tag, data)
	case domain.TagEnd:
		return domain.End{}
	case domain.TagTimestamp:
		return parseTimestamp(tag, data)
	case domain.TagLink:
		return parseLink(tag, data)
	case domain.TagSessOpen:
		return parseSessOpen(tag, data)
	case domain.TagSessClose:
		return parseSessClose(tag, data)
	case domain.TagProxy:
		return parseProxy(tag, data)
	case domain.TagReqAcct:
		return parseAcct(tag, data, false)
	case domain.TagBereqAcct:
		return parseAcct(tag, data, true)
	case domain.TagPipeAcct:
		return parsePipeAcct(tag, data)

	case domain.TagReqMethod, domain.TagReqURL, domain.TagReqProtocol, domain.TagReqReason,
		domain.TagRespMethod, domain.TagRespURL, domain.TagRespProtocol, domain.TagRespReason,
		domain.TagBereqMethod, domain.TagBereqURL, domain.TagBereqProtocol, domain.TagBereqReason,
		domain.TagBerespMethod, domain.TagBerespURL, domain.TagBerespProtocol, domain.TagBerespReason,
		domain.TagObjMethod, domain.TagObjURL, domain.TagObjProtocol, domain.TagObjReason:
		if len(data) == 0 {
			return domain.Unparsed{Tag: tag, Data: data}
		}
		return domain.HTTPText{Tag: tag, Value: data}

	case domain.TagReqStatus, domain.TagRespStatus, domain.TagBereqStatus,
		domain.TagBerespStatus, domain.TagObjStatus:
		status, ok := atoi(bytes.TrimSpace(data))
		if !ok {
			return domain.Unparsed{Tag: tag, Data: data}
		}
		return domain.HTTPStatus{Tag: tag, Status: status}

	case domain.TagReqHeader, domain.TagReqUnset,
		domain.TagRespHeader, domain.TagRespUnset,
		domain.TagBereqHeader, domain.TagBereqUnset,
		domain.TagBerespHeader, domain.TagBerespUnset,
		domain.TagObjHeader, domain.TagObjUnset:
		return parseHeader(tag, data)

	case domain.TagVCLCall:
		tok, _ := nextToken(data)
		if len(tok) == 0 {
			return domain.Unparsed{Tag: tag, Data: data}
		}
		return domain.VCLCall{Phase: tok}
	case domain.TagVCLReturn:
		tok, _ := nextToken(data)
		if len(tok) == 0 {
			return domain.Unparsed{Tag: tag, Data: data}
		}
		return domain.VCLReturn{Verdict: tok}
	case domain.TagVCLAcl:
		return parseACL(tag, data)

	case domain.TagVCLLog, domain.TagDebug, domain.TagError, domain.TagFetchError,
		domain.TagVCLError, domain.TagBogoHeader, domain.TagLostHeader,
		domain.TagHttpGarbage, domain.TagProxyGarbage:
		if len(data) == 0 {
			return domain.Unparsed{Tag: tag, Data: data}
		}
		return domain.LogLine{Tag: tag, Value: data}

	case domain.TagStorage:
		return parseStorage(tag, data)
	case domain.TagTTL:
		return parseTTL(tag, data)
	case domain.TagFetchBody:
		return parseFetchBody(tag, data)
	case domain.TagGzip:
		return parseGzip(tag, data)

	case domain.TagHit:
		id, ok := firstUint32(data)
		if !ok {
			return domain.Unparsed{Tag: tag, Data: data}
		}
		return domain.Hit{Object: id}
	case domain.TagHitPass:
		id, ok := firstUint32(data)
		if !ok {
			return domain.Unparsed{Tag: tag, Data: data}
		}
		return domain.HitPass{Object: id}
	case domain.TagHitMiss:
		return parseHitMiss(tag, data)

	case domain.TagReqStart:
		addr, rest, ok := parseAddr(data)
		if !ok || len(rest) != 0 {
			return domain.Unparsed{Tag: tag, Data: data}
		}
		return domain.ReqStart{Addr: addr}
	case domain.TagBackendOpen:
		return parseBackendOpen(tag, data)

	case domain.TagCLI, domain.TagBackendStart, domain.TagBackendReuse,
		domain.TagBackendClose, domain.TagBackend, domain.TagBackendHealth,
		domain.TagLength, domain.TagHash, domain.TagVCLTrace,
		domain.TagReqLost, domain.TagRespLost, domain.TagBereqLost,
		domain.TagBerespLost, domain.TagObjLost, domain.TagExpBan,
		domain.TagExpKill, domain.TagWorkThread, domain.TagESIXmlError,
		domain.TagVfpAcct, domain.TagWitness, domain.TagVSL,
		domain.TagBogus, domain.TagReserved, domain.TagBatch:
		return domain.Ignored{Tag: tag}
	}
	return domain.Unparsed{Tag: tag, Data: data}
}

func parseBegin(tag domain.Tag, data []byte) domain.Message {
	kind, rest := nextToken(data)
	parent, rest, ok := nextUint32(rest)
	reason, rest := nextToken(rest)
	if len(kind) == 0 || !ok || len(reason) == 0 || len(rest) != 0 {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	return domain.Begin{Kind: kind, Parent: parent, Reason: reason}
}

func parseTimestamp(tag domain.Tag, data []byte) domain.Message {
	colon := bytes.Index(data, []byte(": "))
	if colon <= 0 {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	event := data[:colon]
	rest := data[colon+2:]
	abs, rest, ok1 := nextFloat(rest)
	sinceStart, rest, ok2 := nextFloat(rest)
	sinceLast, rest, ok3 := nextFloat(rest)
	if !ok1 || !ok2 || !ok3 || len(rest) != 0 {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	return domain.Timestamp{Event: event, Abs: abs, SinceStart: sinceStart, SinceLast: sinceLast}
}

func parseLink(tag domain.Tag, data []byte) domain.Message {
	kind, rest := nextToken(data)
	child, rest, ok := nextUint32(rest)
	reason, rest := nextToken(rest)
	if len(kind) == 0 || !ok || len(reason) == 0 || len(rest) != 0 {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	return domain.Link{Kind: kind, Child: child, Reason: reason}
}

func parseSessOpen(tag domain.Tag, data []byte) domain.Message {
	remote, rest, ok := parseAddr(data)
	if !ok {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	listen, rest := nextToken(rest)
	if len(listen) == 0 {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	// Local address is "- -" when address logging is off.
	var local *domain.Address
	localIP, afterIP := nextToken(rest)
	localPort, afterPort := nextToken(afterIP)
	if string(localIP) == "-" && string(localPort) == "-" {
		rest = afterPort
	} else if addr, r, ok := parseAddr(rest); ok {
		local = &addr
		rest = r
	} else {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	ts, rest, ok := nextFloat(rest)
	if !ok {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	fd, rest, ok := nextInt(rest)
	if !ok || len(rest) != 0 {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	return domain.SessOpen{Remote: remote, Listen: listen, Local: local, Time: ts, FD: fd}
}

func parseSessClose(tag domain.Tag, data []byte) domain.Message {
	reason, rest := nextToken(data)
	dur, rest, ok := nextFloat(rest)
	if len(reason) == 0 || !ok || len(rest) != 0 {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	return domain.SessClose{Reason: reason, Duration: dur}
}

func parseProxy(tag domain.Tag, data []byte) domain.Message {
	version, rest := nextToken(data)
	client, rest, ok1 := parseAddr(rest)
	server, rest, ok2 := parseAddr(rest)
	if len(version) == 0 || !ok1 || !ok2 || len(rest) != 0 {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	return domain.ProxyInfo{Version: version, Client: client, Server: server}
}

// parseAcct decodes the six byte counters. ReqAcct logs received bytes
// first, BereqAcct logs transmitted bytes first; both normalize to the
// receive-first Accounting layout.
func parseAcct(tag domain.Tag, data []byte, sentFirst bool) domain.Message {
	var n [6]uint64
	rest := data
	var ok bool
	for i := range n {
		n[i], rest, ok = nextUint64(rest)
		if !ok {
			return domain.Unparsed{Tag: tag, Data: data}
		}
	}
	if len(rest) != 0 {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	if sentFirst {
		return domain.Accounting{
			SentHeader: n[0], SentBody: n[1], SentTotal: n[2],
			RecvHeader: n[3], RecvBody: n[4], RecvTotal: n[5],
		}
	}
	return domain.Accounting{
		RecvHeader: n[0], RecvBody: n[1], RecvTotal: n[2],
		SentHeader: n[3], SentBody: n[4], SentTotal: n[5],
	}
}

// parsePipeAcct folds client request header bytes into the received total,
// matching how piped sessions account traffic.
func parsePipeAcct(tag domain.Tag, data []byte) domain.Message {
	var n [4]uint64
	rest := data
	var ok bool
	for i := range n {
		n[i], rest, ok = nextUint64(rest)
		if !ok {
			return domain.Unparsed{Tag: tag, Data: data}
		}
	}
	if len(rest) != 0 {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	return domain.PipeAccounting{RecvTotal: n[0] + n[2], SentTotal: n[3]}
}

func parseHeader(tag domain.Tag, data []byte) domain.Message {
	colon := bytes.IndexByte(data, ':')
	if colon <= 0 {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	name := data[:colon]
	value := data[colon+1:]
	if len(value) > 0 && value[0] == ' ' {
		value = value[1:]
	}
	return domain.Header{Tag: tag, Name: name, Value: value}
}

func parseACL(tag domain.Tag, data []byte) domain.Message {
	result, rest := nextToken(data)
	var matched bool
	switch string(result) {
	case "MATCH":
		matched = true
	case "NO_MATCH":
		matched = false
	default:
		return domain.Unparsed{Tag: tag, Data: data}
	}
	name, rest := nextToken(rest)
	if len(name) == 0 {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	var addr []byte
	if len(rest) > 0 {
		addr = rest
	}
	return domain.ACLCheck{Matched: matched, Name: name, Addr: addr}
}

func parseStorage(tag domain.Tag, data []byte) domain.Message {
	stype, rest := nextToken(data)
	name, rest := nextToken(rest)
	if len(stype) == 0 || len(name) == 0 || len(rest) != 0 {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	return domain.Storage{Type: stype, Name: name}
}

func parseTTL(tag domain.Tag, data []byte) domain.Message {
	source, rest := nextToken(data)
	if len(source) == 0 {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	ttl, rest, ok1 := nextFloat(rest)
	grace, rest, ok2 := nextFloat(rest)
	keep, rest, ok3 := nextFloat(rest)
	since, rest, ok4 := nextFloat(rest)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	msg := domain.TTL{
		Source: source,
		TTL:    optDuration(ttl),
		Grace:  optDuration(grace),
		Keep:   optDuration(keep),
		Since:  since,
	}
	// RFC records carry four extra fields: origin, Date, Expires, Max-Age.
	if len(rest) > 0 {
		origin, r, ok := nextFloat(rest)
		_, r, ok2 := nextFloat(r)
		_, r, ok3 := nextFloat(r)
		_, r, ok4 := nextFloat(r)
		if !ok || !ok2 || !ok3 || !ok4 || len(r) != 0 {
			return domain.Unparsed{Tag: tag, Data: data}
		}
		msg.Origin = &origin
	}
	return msg
}

func parseFetchBody(tag domain.Tag, data []byte) domain.Message {
	mode, rest, ok := nextInt(data)
	if !ok {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	name, rest := nextToken(rest)
	stream, rest := nextToken(rest)
	if len(name) == 0 || len(rest) != 0 {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	switch string(stream) {
	case "stream":
		return domain.FetchBody{Mode: mode, ModeName: name, Streamed: true}
	case "-":
		return domain.FetchBody{Mode: mode, ModeName: name, Streamed: false}
	}
	return domain.Unparsed{Tag: tag, Data: data}
}

func parseGzip(tag domain.Tag, data []byte) domain.Message {
	op, rest := nextToken(data)
	var operation string
	switch string(op) {
	case "G":
		operation = domain.CompressionGzip
	case "U":
		operation = domain.CompressionGunzip
	case "u":
		operation = domain.CompressionGunzipTest
	default:
		// The cache logs a plain text reason when it could not operate.
		return domain.Unparsed{Tag: tag, Data: data}
	}
	dir, rest := nextToken(rest)
	esi, rest := nextToken(rest)
	if (string(dir) != "F" && string(dir) != "D") ||
		(string(esi) != "E" && string(esi) != "-") {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	bytesIn, rest, ok1 := nextUint64(rest)
	bytesOut, rest, ok2 := nextUint64(rest)
	_, rest, ok3 := nextUint64(rest)
	_, rest, ok4 := nextUint64(rest)
	_, rest, ok5 := nextUint64(rest)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || len(rest) != 0 {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	return domain.Gzip{Operation: operation, BytesIn: bytesIn, BytesOut: bytesOut}
}

func parseHitMiss(tag domain.Tag, data []byte) domain.Message {
	id, rest, ok := nextUint32(data)
	ttl, rest, ok2 := nextFloat(rest)
	if !ok || !ok2 || len(rest) != 0 {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	return domain.HitMiss{Object: id, TTL: ttl}
}

func parseBackendOpen(tag domain.Tag, data []byte) domain.Message {
	fd, rest, ok := nextInt(data)
	if !ok {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	name, rest := nextToken(rest)
	if len(name) == 0 {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	// Unconnected sockets log "<none> <none>" in place of the remote address.
	var remote *domain.Address
	tok1, afterTok1 := nextToken(rest)
	if string(tok1) == "<none>" {
		tok2, afterTok2 := nextToken(afterTok1)
		if string(tok2) != "<none>" {
			return domain.Unparsed{Tag: tag, Data: data}
		}
		rest = afterTok2
	} else if addr, r, ok := parseAddr(rest); ok {
		remote = &addr
		rest = r
	} else {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	local, rest, ok := parseAddr(rest)
	if !ok || len(rest) != 0 {
		return domain.Unparsed{Tag: tag, Data: data}
	}
	return domain.BackendOpen{FD: fd, Name: name, Remote: remote, Local: local}
}

// Field scanners. All operate on sub-slices without copying.

func nextToken(data []byte) (tok, rest []byte) {
	for len(data) > 0 && data[0] == ' ' {
		data = data[1:]
	}
	i := bytes.IndexByte(data, ' ')
	if i < 0 {
		return data, nil
	}
	return data[:i], data[i+1:]
}

func nextUint64(data []byte) (uint64, []byte, bool) {
	tok, rest := nextToken(data)
	if len(tok) == 0 {
		return 0, rest, false
	}
	var n uint64
	for _, c := range tok {
		if c < '0' || c > '9' {
			return 0, rest, false
		}
		n = n*10 + uint64(c-'0')
	}
	return n, rest, true
}

func nextUint32(data []byte) (uint32, []byte, bool) {
	n, rest, ok := nextUint64(data)
	if !ok || n > 0xffffffff {
		return 0, rest, false
	}
	return uint32(n), rest, ok
}

func nextInt(data []byte) (int, []byte, bool) {
	tok, rest := nextToken(data)
	n, ok := atoi(tok)
	return n, rest, ok
}

func nextFloat(data []byte) (float64, []byte, bool) {
	tok, rest := nextToken(data)
	if len(tok) == 0 {
		return 0, rest, false
	}
	f, err := strconv.ParseFloat(string(tok), 64)
	if err != nil {
		return 0, rest, false
	}
	return f, rest, true
}

func parseAddr(data []byte) (domain.Address, []byte, bool) {
	ip, rest := nextToken(data)
	port, rest, ok := nextUint64(rest)
	if len(ip) == 0 || !ok || port > 0xffff {
		return domain.Address{}, rest, false
	}
	return domain.Address{IP: ip, Port: uint16(port)}, rest, true
}

func firstUint32(data []byte) (uint32, bool) {
	n, _, ok := nextUint32(data)
	return n, ok
}

func atoi(tok []byte) (int, bool) {
	if len(tok) == 0 {
		return 0, false
	}
	neg := false
	if tok[0] == '-' {
		neg = true
		tok = tok[1:]
		if len(tok) == 0 {
			return 0, false
		}
	}
	n := 0
	for _, c := range tok {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n, true
}

func optDuration(d float64) *float64 {
	if d < 0 {
		return nil
	}
	return &d
}
