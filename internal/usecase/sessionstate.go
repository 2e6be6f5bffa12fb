package usecase

import (
	"github.com/rs/zerolog"

	"vsltap/internal/adapters/storage/memory"
	"vsltap/internal/domain"
)

// Tree is one completed correlation unit handed to the flattener: a closed
// session with every root client record resolved, or a salvaged partial
// record with no session context.
type Tree struct {
	Session *domain.SessionRecord
	Roots   []*domain.ClientAccessRecord

	// Salvaged partial with no tree; exactly one of the fields is set when
	// Session is nil.
	PartialClient  *domain.ClientAccessRecord
	PartialBackend *domain.BackendAccessRecord
}

// SessionState links closed records into session trees and decides when a
// tree is complete. A session is complete when SessClose has arrived and
// every descendant client and backend record has closed.
//
// Closed records wait in bounded stores until their tree completes:
//
//	roots    - root client records (rxreq), keyed by vxid
//	clients  - ESI subrequests and restarted requests
//	backends - backend fetches, including retry chains
//	sessions - closed sessions waiting for descendants
//
// Every store insert can push out expired or evicted entries. Client and
// backend records dropped this way are collected on the pending list and
// emitted as partial trees so that downstream tooling still sees them; a
// dropped session is counted as evicted and logged, not emitted.
type SessionState struct {
	records  *RecordState
	roots    *memory.Store[*domain.ClientAccessRecord]
	clients  *memory.Store[*domain.ClientAccessRecord]
	backends *memory.Store[*domain.BackendAccessRecord]
	sessions *memory.Store[*domain.SessionRecord]

	pending []Tree

	stats  *Stats
	logger zerolog.Logger
}

func NewSessionState(cfg memory.Config, stats *Stats, logger zerolog.Logger) *SessionState {
	return &SessionState{
		records:  NewRecordState(cfg, stats, logger),
		roots:    memory.NewStore[*domain.ClientAccessRecord]("roots", cfg, logger),
		clients:  memory.NewStore[*domain.ClientAccessRecord]("clients", cfg, logger),
		backends: memory.NewStore[*domain.BackendAccessRecord]("backends", cfg, logger),
		sessions: memory.NewStore[*domain.SessionRecord]("sessions", cfg, logger),
		stats:    stats,
		logger:   logger,
	}
}

// Apply feeds one frame through the record state machine and correlation.
// Partial trees come first, then completed trees in completion order.
func (ss *SessionState) Apply(frame domain.Frame, msg domain.Message) []Tree {
	closed, flushed := ss.records.Apply(frame, msg)
	for i := range flushed {
		ss.pending = append(ss.pending, ss.partialTrees(flushed[i])...)
	}

	var completed []Tree
	if closed != nil {
		switch {
		case closed.Client != nil:
			completed = ss.applyClient(closed.Client)
		case closed.Backend != nil:
			completed = ss.applyBackend(closed.Backend)
		case closed.Session != nil:
			completed = ss.applySession(closed.Session)
		}
	}

	out := ss.pending
	ss.pending = nil
	return append(out, completed...)
}

func (ss *SessionState) applyClient(rec *domain.ClientAccessRecord) []Tree {
	if rec.Root {
		ss.resolveClient(rec)
		ss.insertRoot(rec)
		return ss.tryCompleteSession(rec.Parent)
	}

	ss.insertClient(rec)

	root := ss.findRootFromClient(rec)
	if root == nil {
		return nil
	}
	ss.resolveClient(root)
	return ss.tryCompleteSession(root.Parent)
}

func (ss *SessionState) applyBackend(rec *domain.BackendAccessRecord) []Tree {
	ss.insertBackend(rec)

	root := ss.findRootFromBackend(rec)
	if root == nil {
		return nil
	}
	ss.resolveClient(root)
	return ss.tryCompleteSession(root.Parent)
}

func (ss *SessionState) applySession(rec *domain.SessionRecord) []Tree {
	for _, e := range ss.sessions.Insert(rec.VXID, rec) {
		ss.stats.RecordsEvicted++
		ss.logger.Warn().Uint32("vxid", e.VXID).Msg("dropping session that never completed")
	}
	return ss.tryCompleteSession(rec.VXID)
}

// tryCompleteSession emits the session tree rooted at vxid if the session
// has closed and every linked root client record is resolved.
func (ss *SessionState) tryCompleteSession(vxid uint32) []Tree {
	sess, ok := ss.sessions.Get(vxid)
	if !ok {
		return nil
	}

	roots := make([]*domain.ClientAccessRecord, 0, len(sess.ClientLinks))
	for _, link := range sess.ClientLinks {
		root, ok := ss.roots.Get(link.VXID)
		if !ok {
			return nil
		}
		if !ss.resolveClient(root) {
			return nil
		}
		roots = append(roots, root)
	}

	ss.sessions.Remove(vxid)
	info := sessionInfo(sess)
	for _, root := range roots {
		ss.roots.Remove(root.VXID)
		attachSession(root, info)
	}
	return []Tree{{Session: sess, Roots: roots}}
}

// resolveClient attaches every closed descendant of rec, pulling them out of
// the waiting stores. Children that resolve stay attached even when the
// record as a whole is not finished; unresolved links simply stay by-vxid.
func (ss *SessionState) resolveClient(rec *domain.ClientAccessRecord) bool {
	resolved := true
	for _, link := range rec.EsiRecords {
		if !ss.resolveClientLink(link) {
			resolved = false
		}
	}
	if rec.BackendRecord != nil && !ss.resolveBackendLink(rec.BackendRecord) {
		resolved = false
	}
	if rec.RestartRecord != nil && !ss.resolveClientLink(rec.RestartRecord) {
		resolved = false
	}
	return resolved
}

func (ss *SessionState) resolveClientLink(link *domain.RecordLink[domain.ClientAccessRecord]) bool {
	if link.Record != nil {
		return true
	}
	child, ok := ss.clients.Remove(link.VXID)
	if !ok {
		return false
	}
	if ss.resolveClient(child) {
		link.Record = child
		return true
	}
	ss.insertClient(child)
	return false
}

func (ss *SessionState) resolveBackend(rec *domain.BackendAccessRecord) bool {
	if rec.RetryRecord == nil {
		return true
	}
	return ss.resolveBackendLink(rec.RetryRecord)
}

func (ss *SessionState) resolveBackendLink(link *domain.RecordLink[domain.BackendAccessRecord]) bool {
	if link.Record != nil {
		return true
	}
	child, ok := ss.backends.Remove(link.VXID)
	if !ok {
		return false
	}
	if ss.resolveBackend(child) {
		link.Record = child
		return true
	}
	ss.insertBackend(child)
	return false
}

// Store inserts. Dropped entries land on the pending list as partials.

func (ss *SessionState) insertRoot(rec *domain.ClientAccessRecord) {
	ss.stashClients(ss.roots.Insert(rec.VXID, rec))
}

func (ss *SessionState) insertClient(rec *domain.ClientAccessRecord) {
	ss.stashClients(ss.clients.Insert(rec.VXID, rec))
}

func (ss *SessionState) insertBackend(rec *domain.BackendAccessRecord) {
	ss.stashBackends(ss.backends.Insert(rec.VXID, rec))
}

func (ss *SessionState) stashClients(dropped []memory.Entry[*domain.ClientAccessRecord]) {
	for _, e := range dropped {
		e.Value.Partial = true
		ss.stats.RecordsEvicted++
		ss.pending = append(ss.pending, Tree{PartialClient: e.Value})
	}
}

func (ss *SessionState) stashBackends(dropped []memory.Entry[*domain.BackendAccessRecord]) {
	for _, e := range dropped {
		e.Value.Partial = true
		ss.stats.RecordsEvicted++
		ss.pending = append(ss.pending, Tree{PartialBackend: e.Value})
	}
}

// findRootFromClient walks parent vxids up to the root client record the
// given record descends from. Waiting stores only hold closed records, so a
// nil result means some ancestor is still open.
func (ss *SessionState) findRootFromClient(rec *domain.ClientAccessRecord) *domain.ClientAccessRecord {
	seen := map[uint32]bool{rec.VXID: true}
	parent := rec.Parent
	for {
		if seen[parent] {
			ss.logger.Warn().Uint32("vxid", rec.VXID).Msg("parent cycle detected; orphaning record")
			return nil
		}
		seen[parent] = true
		if root, ok := ss.roots.Get(parent); ok {
			return root
		}
		next, ok := ss.clients.Get(parent)
		if !ok {
			return nil
		}
		parent = next.Parent
	}
}

func (ss *SessionState) findRootFromBackend(rec *domain.BackendAccessRecord) *domain.ClientAccessRecord {
	seen := map[uint32]bool{rec.VXID: true}
	parent := rec.Parent
	for {
		if seen[parent] {
			ss.logger.Warn().Uint32("vxid", rec.VXID).Msg("parent cycle detected; orphaning record")
			return nil
		}
		seen[parent] = true
		if root, ok := ss.roots.Get(parent); ok {
			return root
		}
		if next, ok := ss.clients.Get(parent); ok {
			parent = next.Parent
			continue
		}
		next, ok := ss.backends.Get(parent)
		if !ok {
			return nil
		}
		parent = next.Parent
	}
}

// Flush drains every store, returning all remaining records as partial
// trees. Called once at stream EOF.
func (ss *SessionState) Flush() []Tree {
	out := ss.pending
	ss.pending = nil
	for _, rec := range ss.records.Flush() {
		out = append(out, ss.partialTrees(rec)...)
	}
	for _, e := range ss.roots.Drain() {
		e.Value.Partial = true
		ss.stats.RecordsEvicted++
		out = append(out, Tree{PartialClient: e.Value})
	}
	for _, e := range ss.clients.Drain() {
		e.Value.Partial = true
		ss.stats.RecordsEvicted++
		out = append(out, Tree{PartialClient: e.Value})
	}
	for _, e := range ss.backends.Drain() {
		e.Value.Partial = true
		ss.stats.RecordsEvicted++
		out = append(out, Tree{PartialBackend: e.Value})
	}
	for _, e := range ss.sessions.Drain() {
		ss.stats.RecordsEvicted++
		ss.logger.Debug().Uint32("vxid", e.VXID).Msg("session flushed before completion")
	}
	return out
}

func (ss *SessionState) partialTrees(rec domain.Record) []Tree {
	switch {
	case rec.Client != nil:
		rec.Client.Partial = true
		return []Tree{{PartialClient: rec.Client}}
	case rec.Backend != nil:
		rec.Backend.Partial = true
		return []Tree{{PartialBackend: rec.Backend}}
	case rec.Session != nil:
		// A dangling session alone carries nothing worth a log line
		// downstream; its clients are salvaged separately.
		return nil
	}
	return nil
}

// InStore reports how many records currently wait in the correlation layer,
// including records still building.
func (ss *SessionState) InStore() int {
	return ss.records.BuildingCount() + ss.roots.Len() + ss.clients.Len() +
		ss.backends.Len() + ss.sessions.Len()
}

func sessionInfo(s *domain.SessionRecord) *domain.SessionInfo {
	return &domain.SessionInfo{
		VXID:   s.VXID,
		Open:   s.Open,
		Local:  s.Local,
		Remote: s.Remote,
		Proxy:  s.Proxy,
	}
}

func attachSession(root *domain.ClientAccessRecord, info *domain.SessionInfo) {
	root.Session = info
	// A root that never logged ReqStart still gets a usable remote address
	// from its session; PROXY info wins over the socket address.
	if root.Remote.IP == "" {
		if info.Proxy != nil {
			root.Remote = info.Proxy.Client
		} else {
			root.Remote = info.Remote
		}
	}
}
