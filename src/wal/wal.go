// Package wal reads the framed log file recovery replays. Each frame is
// `lsn u64 | len u32 | record bytes`, big-endian, with strictly increasing
// LSNs.
package wal

import (
	"encoding/binary"
	"io"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"

	"github.com/Blackdeer1524/PageDB/src/pkg/common"
)

const (
	frameHeader = 8 + 4
	maxRecord   = 1 << 20
)

var (
	ErrNotFound  = errors.New("no log record with such lsn")
	ErrCorrupted = errors.New("log frame is corrupted")
)

func EncodeFrame(lsn common.LSN, data []byte) []byte {
	buf := make([]byte, frameHeader, frameHeader+len(data))
	binary.BigEndian.PutUint64(buf, uint64(lsn))
	binary.BigEndian.PutUint32(buf[8:], uint32(len(data)))
	return append(buf, data...)
}

type Writer struct {
	w    io.Writer
	last common.LSN
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Append(lsn common.LSN, data []byte) error {
	if lsn <= w.last {
		return errors.Errorf("lsn %v is not after %v", lsn, w.last)
	}
	if len(data) > maxRecord {
		return errors.Errorf("record of %d bytes", len(data))
	}

	if _, err := w.w.Write(EncodeFrame(lsn, data)); err != nil {
		return errors.Wrap(err, "write frame")
	}
	w.last = lsn
	return nil
}

type entry struct {
	lsn    common.LSN
	offset int64
	size   uint32
}

// Reader indexes a log file on open. A frame cut short at the end of the
// file is a write torn by the crash and is ignored.
type Reader struct {
	f       afero.File
	entries []entry
	byLSN   map[common.LSN]int
	pos     int
	torn    bool
}

func Open(fs afero.Fs, path string) (*Reader, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open log %s", path)
	}

	r := &Reader{
		f:     f,
		byLSN: map[common.LSN]int{},
	}
	if err := r.index(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) index() error {
	var (
		offset int64
		hdr    [frameHeader]byte
		last   common.LSN
	)
	for {
		n, err := r.f.ReadAt(hdr[:], offset)
		if n == 0 && errors.Is(err, io.EOF) {
			return nil
		}
		if n < frameHeader {
			if errors.Is(err, io.EOF) {
				r.torn = true
				return nil
			}
			return errors.Wrapf(err, "read frame at %d", offset)
		}

		lsn := common.LSN(binary.BigEndian.Uint64(hdr[:]))
		size := binary.BigEndian.Uint32(hdr[8:])
		if lsn <= last || size > maxRecord {
			return errors.Wrapf(ErrCorrupted, "frame at %d: lsn %d after %d, %d bytes", offset, lsn, last, size)
		}

		info, err := r.f.Stat()
		if err != nil {
			return errors.Wrap(err, "stat log")
		}
		if offset+frameHeader+int64(size) > info.Size() {
			r.torn = true
			return nil
		}

		r.byLSN[lsn] = len(r.entries)
		r.entries = append(r.entries, entry{lsn: lsn, offset: offset + frameHeader, size: size})

		last = lsn
		offset += frameHeader + int64(size)
	}
}

func (r *Reader) read(e entry) ([]byte, error) {
	buf := make([]byte, e.size)
	if _, err := r.f.ReadAt(buf, e.offset); err != nil && !(errors.Is(err, io.EOF) && e.size == 0) {
		return nil, errors.Wrapf(err, "read record %v", e.lsn)
	}
	return buf, nil
}

// Next returns records in log order and io.EOF after the last one.
func (r *Reader) Next() (common.LSN, []byte, error) {
	if r.pos >= len(r.entries) {
		return common.NilLSN, nil, io.EOF
	}

	e := r.entries[r.pos]
	data, err := r.read(e)
	if err != nil {
		return common.NilLSN, nil, err
	}
	r.pos++
	return e.lsn, data, nil
}

func (r *Reader) ReadAt(lsn common.LSN) ([]byte, error) {
	i, ok := r.byLSN[lsn]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%v", lsn)
	}
	return r.read(r.entries[i])
}

func (r *Reader) Rewind() {
	r.pos = 0
}

func (r *Reader) Len() int {
	return len(r.entries)
}

func (r *Reader) Last() common.LSN {
	if len(r.entries) == 0 {
		return common.NilLSN
	}
	return r.entries[len(r.entries)-1].lsn
}

// Torn reports whether the file ended in a partial frame.
func (r *Reader) Torn() bool {
	return r.torn
}

func (r *Reader) Close() error {
	return r.f.Close()
}
