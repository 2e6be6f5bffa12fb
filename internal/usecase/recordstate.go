package usecase

import (
	"github.com/rs/zerolog"

	"vsltap/internal/adapters/storage/memory"
	"vsltap/internal/domain"
)

// Stats counts pipeline events. The invariant the store policies maintain:
// for any input prefix, records in store + emitted + evicted equals opened.
type Stats struct {
	FramesDecoded  uint64
	RecordsOpened  uint64
	RecordsEmitted uint64
	RecordsEvicted uint64
	ParseDegraded  uint64
	StateWarnings  uint64
}

// recordSlot is either a live builder or a tombstone left behind by a closed
// or failed record. Tombstones absorb late frames for the vxid until the
// store expires them.
type recordSlot struct {
	builder *Builder
	// tombstone reason; set once the builder is gone.
	inscription string
	// a session closed by SessClose still gets its trailing End.
	absorbEnd bool
}

// RecordState maintains the table of records under construction keyed by
// vxid and closes them on End (or SessClose for sessions).
type RecordState struct {
	slots  *memory.Store[*recordSlot]
	stats  *Stats
	logger zerolog.Logger
}

func NewRecordState(cfg memory.Config, stats *Stats, logger zerolog.Logger) *RecordState {
	return &RecordState{
		slots:  memory.NewStore[*recordSlot]("records", cfg, logger),
		stats:  stats,
		logger: logger,
	}
}

// Apply feeds one frame's message to the builder of its vxid. It returns the
// closed record when the frame completed one, and any records flushed in
// partial state by store capacity or age bounds.
func (rs *RecordState) Apply(frame domain.Frame, msg domain.Message) (*domain.Record, []domain.Record) {
	// Records with neither marker are cache internals (CLI ping etc).
	if !frame.IsClient() && !frame.IsBackend() {
		rs.logger.Debug().Uint32("vxid", frame.VXID).Stringer("tag", frame.Tag).
			Msg("skipping non-transaction record")
		return nil, nil
	}

	if _, ok := msg.(domain.Unparsed); ok {
		rs.stats.ParseDegraded++
	}

	slot, ok := rs.slots.Get(frame.VXID)
	if !ok {
		var partials []domain.Record
		slot = &recordSlot{}
		if _, isBegin := msg.(domain.Begin); isBegin {
			slot.builder = NewBuilder(frame.VXID, rs.logger)
			rs.stats.RecordsOpened++
		} else {
			// Begin was missed or lost; nothing useful can be built.
			slot.inscription = "frame before Begin"
			rs.stats.StateWarnings++
			rs.logger.Debug().Uint32("vxid", frame.VXID).Stringer("tag", frame.Tag).
				Msg("frame for vxid without Begin")
		}
		partials = rs.salvage(rs.slots.Insert(frame.VXID, slot))
		if slot.builder == nil {
			return nil, partials
		}
		rec, more := rs.advance(frame.VXID, slot, msg)
		return rec, append(partials, more...)
	}

	if slot.builder == nil {
		if _, isEnd := msg.(domain.End); isEnd && slot.absorbEnd {
			slot.absorbEnd = false
			return nil, nil
		}
		rs.stats.StateWarnings++
		rs.logger.Debug().Uint32("vxid", frame.VXID).Stringer("tag", frame.Tag).
			Str("inscription", slot.inscription).Msg("frame for closed vxid")
		return nil, nil
	}

	return rs.advance(frame.VXID, slot, msg)
}

func (rs *RecordState) advance(vxid uint32, slot *recordSlot, msg domain.Message) (*domain.Record, []domain.Record) {
	done, err := slot.builder.Apply(msg)
	if err != nil {
		rs.stats.StateWarnings++
		rs.logger.Warn().Uint32("vxid", vxid).Err(err).Msg("record build failed")
		// Whatever was accumulated is flushed rather than lost.
		var partials []domain.Record
		if rec, ok := slot.builder.BuildPartial(); ok {
			partials = append(partials, rec)
		}
		rs.stats.RecordsEvicted++
		slot.inscription = err.Error()
		slot.builder = nil
		return nil, partials
	}
	if !done {
		return nil, nil
	}

	rec, err := slot.builder.Build()
	_, isSession := msg.(domain.SessClose)
	slot.inscription = "record closed"
	slot.absorbEnd = isSession
	slot.builder = nil
	if err != nil {
		rs.stats.StateWarnings++
		rs.logger.Warn().Uint32("vxid", vxid).Err(err).Msg("record finalize failed")
		return nil, nil
	}
	return &rec, nil
}

// salvage turns builders dropped by the store into partial records.
// Tombstones dropping out need no action.
func (rs *RecordState) salvage(dropped []memory.Entry[*recordSlot]) []domain.Record {
	var partials []domain.Record
	for _, e := range dropped {
		if e.Value.builder == nil {
			continue
		}
		if rec, ok := e.Value.builder.BuildPartial(); ok {
			partials = append(partials, rec)
			rs.stats.RecordsEvicted++
		}
	}
	return partials
}

// BuildingCount reports how many records are still accumulating frames.
func (rs *RecordState) BuildingCount() int {
	n := 0
	for _, slot := range rs.slots.Values() {
		if slot.builder != nil {
			n++
		}
	}
	return n
}

// Flush closes the table, returning every record still building in partial
// state. Called when the stream ends.
func (rs *RecordState) Flush() []domain.Record {
	var partials []domain.Record
	for _, e := range rs.slots.Drain() {
		if e.Value.builder == nil {
			continue
		}
		if rec, ok := e.Value.builder.BuildPartial(); ok {
			partials = append(partials, rec)
			rs.stats.RecordsEvicted++
		}
	}
	return partials
}
