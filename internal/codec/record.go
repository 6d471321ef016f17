package codec

import (
	"bytes"
	"fmt"
	"io"

	"mote/internal/errkind"
)

// Tag identifies a record's form type inside the framed stream (§4.1,
// §6). STRH is the distinguished string-intern table tag that always
// precedes a form's first real record.
type Tag int32

const (
	TagSTRH Tag = iota
	TagSettings
	TagTaskScheduler
	TagExecutionHandler
	TagOracle
	TagGenerator
	TagGrammar
	TagExclusionTree
	TagSession
	TagSessionData
	TagGeneration
	TagDeltaController
	TagInput
	TagDerivationTree
	TagCallback
)

var tagNames = map[Tag]string{
	TagSTRH: "STRH", TagSettings: "Settings", TagTaskScheduler: "TaskScheduler",
	TagExecutionHandler: "ExecutionHandler", TagOracle: "Oracle", TagGenerator: "Generator",
	TagGrammar: "Grammar", TagExclusionTree: "ExclusionTree", TagSession: "Session",
	TagSessionData: "SessionData", TagGeneration: "Generation", TagDeltaController: "DeltaController",
	TagInput: "Input", TagDerivationTree: "DerivationTree", TagCallback: "Callback",
}

func (t Tag) String() string {
	if s, ok := tagNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Tag(%d)", int32(t))
}

// recordHeaderSize is the fixed [size:u64][type:i32][version:i32] prefix
// every record carries before its payload (§4.1).
const recordHeaderSize = 8 + 4 + 4

// WriteRecord frames payload as one record: [size][type][version][payload].
// size covers type+version+payload, matching the save file layout in §6
// (size does not include itself).
func WriteRecord(w *Writer, tag Tag, version int32, payload []byte) {
	w.WriteU64(uint64(4 + 4 + len(payload)))
	w.WriteI32(int32(tag))
	w.WriteI32(version)
	w.write(payload)
}

// EncodeRecord builds a record's bytes in memory via a fn that writes the
// payload into a *Writer; used by forms whose WriteData needs to compute
// its own size before framing.
func EncodeRecord(tag Tag, version int32, fn func(*Writer)) []byte {
	var buf bytes.Buffer
	pw := NewWriter(&buf)
	fn(pw)
	var out bytes.Buffer
	ow := NewWriter(&out)
	WriteRecord(ow, tag, version, buf.Bytes())
	return out.Bytes()
}

// RecordHeader is a parsed record prefix, with the payload left unread.
type RecordHeader struct {
	Tag     Tag
	Version int32
	Size    uint64 // bytes covered by Size field (type+version+payload)
}

// PayloadLen returns how many payload bytes follow the header.
func (h RecordHeader) PayloadLen() uint64 { return h.Size - 4 - 4 }

// ReadRecordHeader reads the next record's framing without consuming its
// payload. Callers must consume exactly PayloadLen() bytes afterward (a
// LimitReader bounded to that length is the idiomatic way — see
// ReadRecordPayload).
func ReadRecordHeader(r *Reader) (RecordHeader, error) {
	size := r.ReadU64()
	tag := Tag(r.ReadI32())
	version := r.ReadI32()
	if r.Err() != nil {
		return RecordHeader{}, r.Err()
	}
	if size < 8 {
		return RecordHeader{}, fmt.Errorf("%w: record size %d too small", errkind.ErrSerializationError, size)
	}
	return RecordHeader{Tag: tag, Version: version, Size: size}, nil
}

// ReadRecordPayload reads exactly n bytes as the record's payload body.
func ReadRecordPayload(r *Reader, n uint64) []byte {
	if n > maxReasonableLen {
		r.err = fmt.Errorf("%w: payload length %d implausible", errkind.ErrSerializationError, n)
		return nil
	}
	return r.read(int(n))
}

// CopyPayload discards n bytes of payload, used when a record's type is
// unrecognized but we choose to skip rather than abort (the save loader
// instead aborts per §4.2, but tools inspecting partial files may skip).
func CopyPayload(r io.Reader, n uint64) error {
	_, err := io.CopyN(io.Discard, r, int64(n))
	return err
}
