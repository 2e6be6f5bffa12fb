package usecase

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vsltap/internal/adapters/decoders/vsl"
	"vsltap/internal/adapters/storage/memory"
	"vsltap/internal/domain"
)

const (
	clientMarker  = 1 << 30
	backendMarker = 1 << 31
)

// streamBuilder assembles a synthetic binary VSL stream.
type streamBuilder struct {
	buf []byte
}

func (s *streamBuilder) rec(tag domain.Tag, ident uint32, payload string) *streamBuilder {
	data := append([]byte(payload), 0)
	word1 := uint32(tag)<<24 | uint32(len(data))&0x00ffffff
	s.buf = binary.LittleEndian.AppendUint32(s.buf, word1)
	s.buf = binary.LittleEndian.AppendUint32(s.buf, ident)
	s.buf = append(s.buf, data...)
	for pad := (4 - len(data)%4) % 4; pad > 0; pad-- {
		s.buf = append(s.buf, 0)
	}
	return s
}

type collectSink struct {
	records []domain.OutputRecord
}

func (c *collectSink) Write(rec domain.OutputRecord) error {
	c.records = append(c.records, rec)
	return nil
}

func newTestEngine(stream []byte, store memory.Config) (*Engine, *collectSink) {
	sink := &collectSink{}
	engine := NewEngine(
		vsl.NewReader(bytes.NewReader(stream)),
		vsl.Parse,
		sink,
		Options{Store: store},
		zerolog.Nop(),
	)
	return engine, sink
}

// minimalClient writes a synthetic full client transaction.
func minimalClient(s *streamBuilder, vxid, parent uint32, reason string) {
	id := clientMarker | vxid
	s.rec(domain.TagBegin, id, "req "+uitoa(parent)+" "+reason)
	s.rec(domain.TagTimestamp, id, "Start: 1470403414.647192 0.000000 0.000000")
	s.rec(domain.TagTimestamp, id, "Req: 1470403414.647192 0.000000 0.000000")
	s.rec(domain.TagReqStart, id, "127.0.0.1 39792")
	s.rec(domain.TagReqMethod, id, "GET")
	s.rec(domain.TagReqURL, id, "/")
	s.rec(domain.TagReqProtocol, id, "HTTP/1.1")
	s.rec(domain.TagReqHeader, id, "Host: example.com")
	s.rec(domain.TagReqHeader, id, "accept: text/html")
	s.rec(domain.TagReqHeader, id, "Accept: application/json")
	s.rec(domain.TagVCLCall, id, "RECV")
	s.rec(domain.TagVCLCall, id, "HASH")
	s.rec(domain.TagVCLReturn, id, "lookup")
	s.rec(domain.TagVCLCall, id, "SYNTH")
	s.rec(domain.TagTimestamp, id, "Process: 1470403414.647272 0.000081 0.000081")
	s.rec(domain.TagVCLReturn, id, "deliver")
	s.rec(domain.TagRespProtocol, id, "HTTP/1.1")
	s.rec(domain.TagRespStatus, id, "200")
	s.rec(domain.TagRespReason, id, "OK")
	s.rec(domain.TagRespHeader, id, "Connection: keep-alive")
	s.rec(domain.TagTimestamp, id, "Resp: 1470403414.647359 0.000167 0.000086")
	s.rec(domain.TagReqAcct, id, "148 0 148 185 25 210")
	s.rec(domain.TagEnd, id, "")
}

func minimalSession(s *streamBuilder, vxid uint32, links ...uint32) {
	id := clientMarker | vxid
	s.rec(domain.TagBegin, id, "sess 0 HTTP/1")
	s.rec(domain.TagSessOpen, id, "192.168.1.115 40078 a0 127.0.0.1 1221 1470304807.389646 20")
	for _, child := range links {
		s.rec(domain.TagLink, id, "req "+uitoa(child)+" rxreq")
	}
	s.rec(domain.TagSessClose, id, "REM_CLOSE 3.228")
	s.rec(domain.TagEnd, id, "")
}

func uitoa(n uint32) string {
	if n == 0 {
		return "0"
	}
	var b [10]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[i:])
}

func TestEngineMinimalHappyPath(t *testing.T) {
	s := &streamBuilder{}
	minimalClient(s, 2, 1, "rxreq")
	minimalSession(s, 1, 2)

	engine, sink := newTestEngine(s.buf, memory.DefaultConfig())
	require.NoError(t, engine.Run())

	require.Len(t, sink.records, 1)
	rec := sink.records[0].ClientAccess
	require.NotNil(t, rec)

	assert.Equal(t, "client_request", rec.RecordType)
	assert.Equal(t, uint32(2), rec.VXID)
	assert.Equal(t, "synth", rec.Handling)
	assert.False(t, rec.Partial)
	require.NotNil(t, rec.Response)
	assert.Equal(t, 200, rec.Response.Status)

	require.NotNil(t, rec.Session)
	assert.Equal(t, uint32(1), rec.Session.VXID)
	assert.Equal(t, "192.168.1.115", rec.Session.RemoteAddress.IP)
	require.NotNil(t, rec.SessionTimestamp)
	assert.Equal(t, 1470304807.389646, *rec.SessionTimestamp)

	assert.Equal(t, uint64(148), rec.RecvHeaderBytes)
	assert.Equal(t, uint64(210), rec.SentTotalBytes)

	stats := engine.Stats()
	assert.Equal(t, uint64(2), stats.RecordsOpened)
	assert.Equal(t, uint64(2), stats.RecordsEmitted)
	assert.Equal(t, uint64(0), stats.RecordsEvicted)
	assert.Equal(t, 0, engine.InStore())
}

func TestEngineHeaderIndexNormalizesAndPreservesOrder(t *testing.T) {
	s := &streamBuilder{}
	minimalClient(s, 2, 1, "rxreq")
	minimalSession(s, 1, 2)

	engine, sink := newTestEngine(s.buf, memory.DefaultConfig())
	require.NoError(t, engine.Run())

	require.Len(t, sink.records, 1)
	ix := sink.records[0].ClientAccess.Request.Headers.Index
	require.NotNil(t, ix)
	// "accept" and "Accept" normalize to the same name; the duplicate keeps
	// value order and moves the name to the end of the index.
	assert.Equal(t, []string{"Host", "Accept"}, ix.Names())
	assert.Equal(t, []string{"text/html", "application/json"}, ix.Get("Accept"))
}

func TestEngineBackendFetch(t *testing.T) {
	s := &streamBuilder{}
	cid := uint32(clientMarker | 2)
	bid := uint32(backendMarker | 3)

	s.rec(domain.TagBegin, cid, "req 1 rxreq")
	s.rec(domain.TagTimestamp, cid, "Start: 1470403414.653332 0.000000 0.000000")
	s.rec(domain.TagReqStart, cid, "127.0.0.1 39794")
	s.rec(domain.TagReqMethod, cid, "GET")
	s.rec(domain.TagReqURL, cid, "/")
	s.rec(domain.TagReqProtocol, cid, "HTTP/1.1")
	s.rec(domain.TagVCLCall, cid, "RECV")
	s.rec(domain.TagVCLCall, cid, "MISS")
	s.rec(domain.TagVCLReturn, cid, "fetch")
	s.rec(domain.TagLink, cid, "bereq 3 fetch")

	s.rec(domain.TagBegin, bid, "bereq 2 fetch")
	s.rec(domain.TagTimestamp, bid, "Start: 1470403414.653455 0.000000 0.000000")
	s.rec(domain.TagBereqMethod, bid, "GET")
	s.rec(domain.TagBereqURL, bid, "/")
	s.rec(domain.TagBereqProtocol, bid, "HTTP/1.1")
	s.rec(domain.TagVCLReturn, bid, "fetch")
	s.rec(domain.TagBackendOpen, bid, "19 boot.default 127.0.0.1 42001 127.0.0.1 37606")
	s.rec(domain.TagTimestamp, bid, "Bereq: 1470403414.653592 0.000137 0.000137")
	s.rec(domain.TagBerespProtocol, bid, "HTTP/1.1")
	s.rec(domain.TagBerespStatus, bid, "200")
	s.rec(domain.TagBerespReason, bid, "OK")
	s.rec(domain.TagTimestamp, bid, "Beresp: 1470403414.658717 0.005262 0.005124")
	s.rec(domain.TagVCLCall, bid, "BACKEND_RESPONSE")
	s.rec(domain.TagStorage, bid, "malloc s0")
	s.rec(domain.TagTTL, bid, "RFC 120 10 0 1471339883 1471339880 1471339880 0 120")
	s.rec(domain.TagFetchBody, bid, "3 length stream")
	s.rec(domain.TagTimestamp, bid, "BerespBody: 1470403414.658833 0.005378 0.000116")
	s.rec(domain.TagBereqAcct, bid, "504 0 504 351 9 360")
	s.rec(domain.TagEnd, bid, "")

	s.rec(domain.TagTimestamp, cid, "Fetch: 1470403414.658863 0.005531 0.005531")
	s.rec(domain.TagRespProtocol, cid, "HTTP/1.1")
	s.rec(domain.TagRespStatus, cid, "200")
	s.rec(domain.TagRespReason, cid, "OK")
	s.rec(domain.TagVCLCall, cid, "DELIVER")
	s.rec(domain.TagVCLReturn, cid, "deliver")
	s.rec(domain.TagTimestamp, cid, "Process: 1470403414.658956 0.005624 0.000093")
	s.rec(domain.TagTimestamp, cid, "Resp: 1470403414.658984 0.005652 0.000028")
	s.rec(domain.TagReqAcct, cid, "90 0 90 369 9 378")
	s.rec(domain.TagEnd, cid, "")

	minimalSession(s, 1, 2)

	engine, sink := newTestEngine(s.buf, memory.DefaultConfig())
	require.NoError(t, engine.Run())

	require.Len(t, sink.records, 1)
	rec := sink.records[0].ClientAccess
	require.NotNil(t, rec)
	assert.Equal(t, "miss", rec.Handling)

	be := rec.BackendAccess
	require.NotNil(t, be)
	assert.Equal(t, uint32(3), be.VXID)
	assert.Equal(t, "fetch", be.Handling)
	assert.Equal(t, 0, be.Retry)
	require.NotNil(t, be.Response)
	assert.Equal(t, 200, be.Response.Status)
	require.NotNil(t, be.BackendConnection)
	assert.Equal(t, "boot.default", be.BackendConnection.Name)
	require.NotNil(t, be.CacheObject)
	assert.Equal(t, "malloc", be.CacheObject.StorageType)

	stats := engine.Stats()
	assert.Equal(t, uint64(3), stats.RecordsOpened)
	assert.Equal(t, uint64(3), stats.RecordsEmitted)
}

func TestEngineEsiSubrequest(t *testing.T) {
	s := &streamBuilder{}
	cid := uint32(clientMarker | 2)
	eid := uint32(clientMarker | 4)

	// The ESI child closes before its parent, as the cache emits them.
	s.rec(domain.TagBegin, eid, "req 2 esi")
	s.rec(domain.TagTimestamp, eid, "Start: 1470403414.647192 0.000000 0.000000")
	s.rec(domain.TagReqURL, eid, "/fragment")
	s.rec(domain.TagReqMethod, eid, "GET")
	s.rec(domain.TagReqProtocol, eid, "HTTP/1.1")
	s.rec(domain.TagVCLCall, eid, "RECV")
	s.rec(domain.TagVCLCall, eid, "SYNTH")
	s.rec(domain.TagRespProtocol, eid, "HTTP/1.1")
	s.rec(domain.TagRespStatus, eid, "200")
	s.rec(domain.TagRespReason, eid, "OK")
	s.rec(domain.TagTimestamp, eid, "Process: 1470403414.647272 0.000081 0.000081")
	s.rec(domain.TagTimestamp, eid, "Resp: 1470403414.647359 0.000167 0.000086")
	s.rec(domain.TagReqAcct, eid, "0 0 0 85 12 97")
	s.rec(domain.TagEnd, eid, "")

	s.rec(domain.TagBegin, cid, "req 1 rxreq")
	s.rec(domain.TagTimestamp, cid, "Start: 1470403414.647192 0.000000 0.000000")
	s.rec(domain.TagReqStart, cid, "127.0.0.1 39792")
	s.rec(domain.TagReqMethod, cid, "GET")
	s.rec(domain.TagReqURL, cid, "/page")
	s.rec(domain.TagReqProtocol, cid, "HTTP/1.1")
	s.rec(domain.TagVCLCall, cid, "RECV")
	s.rec(domain.TagVCLCall, cid, "SYNTH")
	s.rec(domain.TagLink, cid, "req 4 esi")
	s.rec(domain.TagRespProtocol, cid, "HTTP/1.1")
	s.rec(domain.TagRespStatus, cid, "200")
	s.rec(domain.TagRespReason, cid, "OK")
	s.rec(domain.TagTimestamp, cid, "Process: 1470403414.647272 0.000081 0.000081")
	s.rec(domain.TagTimestamp, cid, "Resp: 1470403414.647359 0.000167 0.000086")
	s.rec(domain.TagReqAcct, cid, "148 0 148 185 25 210")
	s.rec(domain.TagEnd, cid, "")

	minimalSession(s, 1, 2)

	engine, sink := newTestEngine(s.buf, memory.DefaultConfig())
	require.NoError(t, engine.Run())

	require.Len(t, sink.records, 2)

	root := sink.records[0].ClientAccess
	require.NotNil(t, root)
	assert.Equal(t, "client_request", root.RecordType)
	assert.Equal(t, 1, root.EsiCount)

	esi := sink.records[1].ClientAccess
	require.NotNil(t, esi)
	assert.Equal(t, "esi_subrequest", esi.RecordType)
	assert.Equal(t, uint32(4), esi.VXID)
	assert.Equal(t, "/fragment", esi.Request.URL)
	// Session info is inherited from the root.
	require.NotNil(t, esi.Session)
	assert.Equal(t, uint32(1), esi.Session.VXID)
}

func TestEnginePipeToPass(t *testing.T) {
	s := &streamBuilder{}
	cid := uint32(clientMarker | 2)

	s.rec(domain.TagBegin, cid, "req 1 rxreq")
	s.rec(domain.TagTimestamp, cid, "Start: 1470403414.647192 0.000000 0.000000")
	s.rec(domain.TagReqStart, cid, "127.0.0.1 39792")
	s.rec(domain.TagReqMethod, cid, "GET")
	s.rec(domain.TagReqURL, cid, "/stream")
	s.rec(domain.TagReqProtocol, cid, "HTTP/2.0")
	s.rec(domain.TagVCLCall, cid, "RECV")
	s.rec(domain.TagVCLReturn, cid, "pipe")
	s.rec(domain.TagVCLCall, cid, "PASS")
	s.rec(domain.TagTimestamp, cid, "Pipe: 1470403414.647272 0.000080 0.000080")
	s.rec(domain.TagPipeAcct, cid, "268 761 0 480")
	s.rec(domain.TagEnd, cid, "")

	minimalSession(s, 1, 2)

	engine, sink := newTestEngine(s.buf, memory.DefaultConfig())
	require.NoError(t, engine.Run())

	require.Len(t, sink.records, 1)
	rec := sink.records[0].PipeSession
	require.NotNil(t, rec)
	assert.Equal(t, "pipe_session", rec.RecordType)
	assert.Equal(t, "pass", rec.Handling)
	assert.Equal(t, uint64(268), rec.RecvTotalBytes)
	assert.Equal(t, uint64(480), rec.SentTotalBytes)
}

func TestEngineSpuriousEndBeforeSessClose(t *testing.T) {
	s := &streamBuilder{}
	minimalClient(s, 2, 1, "rxreq")

	sid := uint32(clientMarker | 1)
	s.rec(domain.TagBegin, sid, "sess 0 HTTP/1")
	s.rec(domain.TagSessOpen, sid, "192.168.1.115 40078 a0 127.0.0.1 1221 1470304807.389646 20")
	s.rec(domain.TagLink, sid, "req 2 rxreq")
	// The cache sometimes emits End before SessClose.
	s.rec(domain.TagEnd, sid, "")
	s.rec(domain.TagSessClose, sid, "REM_CLOSE 3.228")

	engine, sink := newTestEngine(s.buf, memory.DefaultConfig())
	require.NoError(t, engine.Run())

	require.Len(t, sink.records, 1)
	rec := sink.records[0].ClientAccess
	require.NotNil(t, rec)
	assert.False(t, rec.Partial)
	require.NotNil(t, rec.Session)
	assert.Equal(t, uint32(1), rec.Session.VXID)
}

func TestEngineRestartChain(t *testing.T) {
	s := &streamBuilder{}
	first := uint32(clientMarker | 32770)

	s.rec(domain.TagBegin, first, "req 32769 rxreq")
	s.rec(domain.TagTimestamp, first, "Start: 1470304882.576464 0.000000 0.000000")
	s.rec(domain.TagReqStart, first, "127.0.0.1 34560")
	s.rec(domain.TagReqMethod, first, "GET")
	s.rec(domain.TagReqURL, first, "/original")
	s.rec(domain.TagReqProtocol, first, "HTTP/1.1")
	s.rec(domain.TagVCLCall, first, "RECV")
	s.rec(domain.TagVCLReturn, first, "restart")
	s.rec(domain.TagLink, first, "req 32771 restart")
	s.rec(domain.TagTimestamp, first, "Restart: 1470304882.576600 0.000136 0.000136")
	s.rec(domain.TagEnd, first, "")

	minimalClient(s, 32771, 32770, "restart")
	minimalSession(s, 32769, 32770)

	engine, sink := newTestEngine(s.buf, memory.DefaultConfig())
	require.NoError(t, engine.Run())

	require.Len(t, sink.records, 1)
	rec := sink.records[0].ClientAccess
	require.NotNil(t, rec)
	assert.Equal(t, uint32(32770), rec.VXID)
	assert.Equal(t, 1, rec.RestartCount)
	// The served response comes from the record that finished the request.
	require.NotNil(t, rec.Response)
	assert.Equal(t, 200, rec.Response.Status)
	assert.Equal(t, "/original", rec.Request.URL)
}

func TestEngineEvictionEmitsPartials(t *testing.T) {
	s := &streamBuilder{}
	for i := uint32(0); i < 20; i++ {
		bid := backendMarker | (100 + i)
		s.rec(domain.TagBegin, bid, "bereq 99 fetch")
		s.rec(domain.TagBereqMethod, bid, "GET")
		s.rec(domain.TagBereqURL, bid, "/slow")
		s.rec(domain.TagBereqProtocol, bid, "HTTP/1.1")
	}

	cfg := memory.Config{MaxSlots: 8, EvictFactor: 0.01, MaxEpochDiff: 100000}

	// Drive the correlation layer directly so store bounds are observable
	// before the EOF flush.
	var stats Stats
	state := NewSessionState(cfg, &stats, zerolog.Nop())
	var partials int
	rd := vsl.NewReader(bytes.NewReader(s.buf))
	for {
		frame, err := rd.Next()
		if err != nil {
			break
		}
		for _, tree := range state.Apply(frame, vsl.Parse(frame.Tag, frame.Data)) {
			if tree.PartialBackend != nil {
				require.True(t, tree.PartialBackend.Partial)
				partials++
			}
		}
		assert.LessOrEqual(t, state.InStore(), 8)
	}

	assert.GreaterOrEqual(t, partials, 12)
	assert.Equal(t, uint64(20), stats.RecordsOpened)
	assert.Equal(t, uint64(partials), stats.RecordsEvicted)
	// Nothing vanished: store + emitted + evicted covers everything opened.
	assert.Equal(t, stats.RecordsOpened,
		uint64(state.InStore())+stats.RecordsEmitted+stats.RecordsEvicted)
}

func TestEngineAccountingInvariant(t *testing.T) {
	s := &streamBuilder{}
	minimalClient(s, 2, 1, "rxreq")
	minimalSession(s, 1, 2)
	// A client that never closes is flushed partial at EOF.
	open := uint32(clientMarker | 7)
	s.rec(domain.TagBegin, open, "req 6 rxreq")
	s.rec(domain.TagReqURL, open, "/never-finished")

	engine, sink := newTestEngine(s.buf, memory.DefaultConfig())
	require.NoError(t, engine.Run())

	stats := engine.Stats()
	assert.Equal(t, uint64(3), stats.RecordsOpened)
	assert.Equal(t, stats.RecordsOpened,
		uint64(engine.InStore())+stats.RecordsEmitted+stats.RecordsEvicted)

	// The unfinished record was emitted partial, not dropped.
	var partial *domain.OutClientAccess
	for _, rec := range sink.records {
		if rec.ClientAccess != nil && rec.ClientAccess.Partial {
			partial = rec.ClientAccess
		}
	}
	require.NotNil(t, partial)
	assert.Equal(t, uint32(7), partial.VXID)
}

func TestEngineBackgroundFetchAfterSessClose(t *testing.T) {
	s := &streamBuilder{}
	cid := uint32(clientMarker | 4)
	bid := uint32(backendMarker | 5)

	s.rec(domain.TagBegin, cid, "req 3 rxreq")
	s.rec(domain.TagTimestamp, cid, "Start: 1470304835.029331 0.000000 0.000000")
	s.rec(domain.TagReqStart, cid, "127.0.0.1 59686")
	s.rec(domain.TagReqMethod, cid, "GET")
	s.rec(domain.TagReqURL, cid, "/stale")
	s.rec(domain.TagReqProtocol, cid, "HTTP/1.1")
	s.rec(domain.TagVCLCall, cid, "RECV")
	s.rec(domain.TagVCLCall, cid, "HIT")
	s.rec(domain.TagHit, cid, "32770")
	s.rec(domain.TagLink, cid, "bereq 5 bgfetch")
	s.rec(domain.TagRespProtocol, cid, "HTTP/1.1")
	s.rec(domain.TagRespStatus, cid, "200")
	s.rec(domain.TagRespReason, cid, "OK")
	s.rec(domain.TagTimestamp, cid, "Process: 1470304835.029407 0.000076 0.000076")
	s.rec(domain.TagTimestamp, cid, "Resp: 1470304835.029489 0.000158 0.000082")
	s.rec(domain.TagReqAcct, cid, "90 0 90 369 9 378")
	s.rec(domain.TagEnd, cid, "")

	minimalSession(s, 3, 4)

	// Grace: the background fetch outlives the session.
	s.rec(domain.TagBegin, bid, "bereq 4 bgfetch")
	s.rec(domain.TagTimestamp, bid, "Start: 1470304835.029470 0.000000 0.000000")
	s.rec(domain.TagBereqMethod, bid, "GET")
	s.rec(domain.TagBereqURL, bid, "/stale")
	s.rec(domain.TagBereqProtocol, bid, "HTTP/1.1")
	s.rec(domain.TagVCLReturn, bid, "fetch")
	s.rec(domain.TagBerespProtocol, bid, "HTTP/1.1")
	s.rec(domain.TagBerespStatus, bid, "200")
	s.rec(domain.TagBerespReason, bid, "OK")
	s.rec(domain.TagVCLCall, bid, "BACKEND_RESPONSE")
	s.rec(domain.TagStorage, bid, "malloc s0")
	s.rec(domain.TagTimestamp, bid, "BerespBody: 1470304835.040000 0.010530 0.010000")
	s.rec(domain.TagBereqAcct, bid, "504 0 504 351 9 360")
	s.rec(domain.TagEnd, bid, "")

	engine, sink := newTestEngine(s.buf, memory.DefaultConfig())
	require.NoError(t, engine.Run())

	// Emission waited for the background fetch to close.
	require.Len(t, sink.records, 1)
	rec := sink.records[0].ClientAccess
	require.NotNil(t, rec)
	assert.Equal(t, "hit", rec.Handling)
	require.NotNil(t, rec.BackendAccess)
	assert.Equal(t, uint32(5), rec.BackendAccess.VXID)
	require.NotNil(t, rec.BackendAccess.CacheObject)
	assert.Equal(t, "bgfetch", rec.BackendAccess.CacheObject.FetchMode)
	assert.False(t, rec.Partial)
	assert.Equal(t, 0, engine.InStore())
}

func TestEngineIdempotentOutput(t *testing.T) {
	s := &streamBuilder{}
	minimalClient(s, 2, 1, "rxreq")
	minimalSession(s, 1, 2)
	minimalClient(s, 5, 4, "rxreq")
	minimalSession(s, 4, 5)

	run := func() []domain.OutputRecord {
		engine, sink := newTestEngine(s.buf, memory.DefaultConfig())
		require.NoError(t, engine.Run())
		return sink.records
	}

	first := run()
	second := run()
	require.Equal(t, len(first), len(second))
	for i := range first {
		a, err := first[i].MarshalJSON()
		require.NoError(t, err)
		b, err := second[i].MarshalJSON()
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b))
	}
}
