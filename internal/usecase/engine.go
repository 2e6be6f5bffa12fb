package usecase

import (
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"vsltap/internal/adapters/storage/memory"
	"vsltap/internal/domain"
)

// FrameSource yields deframed records in stream order. Next returns io.EOF
// on a clean end of stream; any other error is fatal.
type FrameSource interface {
	Next() (domain.Frame, error)
}

// MessageParser decodes one payload; it must be total over the tag catalog.
type MessageParser func(tag domain.Tag, data []byte) domain.Message

// OutputSink consumes flattened records. A slow sink slows the pipeline;
// there is no buffering between flattening and the sink.
type OutputSink interface {
	Write(rec domain.OutputRecord) error
}

// Options configure the pipeline core.
type Options struct {
	Store   memory.Config
	Flatten FlattenOptions
}

// Engine runs the whole pipeline on a single goroutine: deframe, parse,
// apply to the state machine, correlate, flatten, emit. The only blocking
// point is the read from the byte source inside the frame source.
type Engine struct {
	source    FrameSource
	parse     MessageParser
	state     *SessionState
	flattener *Flattener
	sink      OutputSink

	stats  Stats
	logger zerolog.Logger
}

func NewEngine(source FrameSource, parse MessageParser, sink OutputSink, opts Options, logger zerolog.Logger) *Engine {
	e := &Engine{
		source: source,
		parse:  parse,
		sink:   sink,
		logger: logger,
	}
	e.state = NewSessionState(opts.Store, &e.stats, logger)
	e.flattener = NewFlattener(opts.Flatten, logger)
	return e
}

// Run drains the source until EOF or a fatal error. On either, everything
// still held in the stores is flushed downstream as partial records.
func (e *Engine) Run() error {
	for {
		frame, err := e.source.Next()
		if err == io.EOF {
			e.logger.Info().Msg("reached end of stream")
			return e.flush()
		}
		if err != nil {
			if flushErr := e.flush(); flushErr != nil {
				e.logger.Error().Err(flushErr).Msg("flush after stream failure failed")
			}
			return errors.Wrap(err, "reading VSL stream")
		}
		e.stats.FramesDecoded++

		msg := e.parse(frame.Tag, frame.Data)
		if err := e.emit(e.state.Apply(frame, msg)); err != nil {
			return err
		}
	}
}

func (e *Engine) emit(trees []Tree) error {
	for _, tree := range trees {
		if tree.Session != nil {
			e.stats.RecordsEmitted += uint64(countTreeRecords(tree))
		}
		for _, rec := range e.flattener.Flatten(tree) {
			if err := e.sink.Write(rec); err != nil {
				return errors.Wrap(err, "writing output record")
			}
		}
	}
	return nil
}

func (e *Engine) flush() error {
	return e.emit(e.state.Flush())
}

// Stats returns a snapshot of the pipeline counters.
func (e *Engine) Stats() Stats { return e.stats }

// InStore reports how many records are currently held across the stores.
func (e *Engine) InStore() int { return e.state.InStore() }

// countTreeRecords counts the session plus every resolved descendant.
func countTreeRecords(tree Tree) int {
	n := 1
	for _, root := range tree.Roots {
		n += countClientRecords(root)
	}
	return n
}

func countClientRecords(rec *domain.ClientAccessRecord) int {
	n := 1
	for _, link := range rec.EsiRecords {
		if link.Record != nil {
			n += countClientRecords(link.Record)
		}
	}
	if rec.BackendRecord != nil && rec.BackendRecord.Record != nil {
		n += countBackendRecords(rec.BackendRecord.Record)
	}
	if rec.RestartRecord != nil && rec.RestartRecord.Record != nil {
		n += countClientRecords(rec.RestartRecord.Record)
	}
	return n
}

func countBackendRecords(rec *domain.BackendAccessRecord) int {
	n := 1
	if rec.RetryRecord != nil && rec.RetryRecord.Record != nil {
		n += countBackendRecords(rec.RetryRecord.Record)
	}
	return n
}
