package vsl

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"vsltap/internal/domain"
)

// Wire framing of the Varnish v4/v5 binary log stream. Each record is an
// 8-byte little-endian header followed by the payload padded to 4-byte
// alignment:
//
//	word 1: (tag & 0xff) << 24 | payload length (lower 24 bits)
//	word 2: (marker & 0x03) << 30 | vxid (lower 30 bits)
//
// Payloads are NUL-terminated on the wire; the terminator is stripped from
// the slice handed upward. Host byte order of every supported producer is
// little-endian, so the reader hard-codes it.

// DefaultBufferSize must exceed the largest VSL record the cache can emit.
const DefaultBufferSize = 262144

const (
	headerSize = 8
	lenMask    = 0x00ffffff
	tagShift   = 24
)

var streamSignature = []byte{'V', 'S', 'L', 0}

var (
	// ErrBufferTooSmall reports a declared payload larger than the stream
	// buffer capacity. Fatal to the stream.
	ErrBufferTooSmall = errors.New("vsl: record larger than stream buffer")
	// ErrUnexpectedEOF reports a record truncated by end of stream. Fatal.
	ErrUnexpectedEOF = errors.New("vsl: truncated record at end of stream")
)

// Reader deframes VSL records from a byte source using a single fixed-size
// contiguous buffer. Frames borrow payload slices directly from the buffer;
// a slice is valid until the next call to Next.
type Reader struct {
	src      io.Reader
	buf      []byte
	r, w     int
	signedOn bool
}

func NewReader(src io.Reader) *Reader {
	return NewReaderSize(src, DefaultBufferSize)
}

func NewReaderSize(src io.Reader, size int) *Reader {
	if size < headerSize {
		size = headerSize
	}
	return &Reader{src: src, buf: make([]byte, size)}
}

// Next returns the next frame. It returns io.EOF when the source ends on a
// frame boundary and ErrUnexpectedEOF when it ends inside a record.
func (rd *Reader) Next() (domain.Frame, error) {
	if !rd.signedOn {
		if err := rd.skipSignature(); err != nil {
			return domain.Frame{}, err
		}
		rd.signedOn = true
	}

	if err := rd.fill(headerSize); err != nil {
		if err == io.EOF && rd.w == rd.r {
			return domain.Frame{}, io.EOF
		}
		if err == io.EOF {
			return domain.Frame{}, ErrUnexpectedEOF
		}
		return domain.Frame{}, err
	}

	word1 := binary.LittleEndian.Uint32(rd.buf[rd.r:])
	ident := binary.LittleEndian.Uint32(rd.buf[rd.r+4:])
	tag := domain.Tag(word1 >> tagShift)
	payloadLen := int(word1 & lenMask)
	total := headerSize + pad4(payloadLen)

	if total > len(rd.buf) {
		return domain.Frame{}, errors.Wrapf(ErrBufferTooSmall,
			"payload of %d bytes, buffer of %d", payloadLen, len(rd.buf))
	}
	if err := rd.fill(total); err != nil {
		if err == io.EOF {
			return domain.Frame{}, ErrUnexpectedEOF
		}
		return domain.Frame{}, err
	}

	payload := rd.buf[rd.r+headerSize : rd.r+headerSize+payloadLen]
	if n := len(payload); n > 0 && payload[n-1] == 0 {
		payload = payload[:n-1]
	}
	rd.r += total

	return domain.NewFrame(tag, ident, payload), nil
}

// skipSignature consumes the optional "VSL\0" stream marker emitted at the
// head of a binary dump.
func (rd *Reader) skipSignature() error {
	err := rd.fill(len(streamSignature))
	if err != nil && err != io.EOF {
		return err
	}
	have := rd.buf[rd.r:rd.w]
	if len(have) >= len(streamSignature) &&
		string(have[:len(streamSignature)]) == string(streamSignature) {
		rd.r += len(streamSignature)
	}
	return nil
}

// fill makes at least n bytes available at the read offset, compacting the
// buffer when the record straddles the end. Returns io.EOF when the source
// is exhausted before n bytes are available.
func (rd *Reader) fill(n int) error {
	if rd.w-rd.r >= n {
		return nil
	}
	if rd.r+n > len(rd.buf) {
		copy(rd.buf, rd.buf[rd.r:rd.w])
		rd.w -= rd.r
		rd.r = 0
	}
	for rd.w-rd.r < n {
		read, err := rd.src.Read(rd.buf[rd.w:])
		rd.w += read
		if err == io.EOF {
			if rd.w-rd.r >= n {
				return nil
			}
			return io.EOF
		}
		if err != nil {
			return errors.Wrap(err, "vsl: reading stream")
		}
	}
	return nil
}

func pad4(n int) int {
	return (n + 3) &^ 3
}
