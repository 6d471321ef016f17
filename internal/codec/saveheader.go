package codec

import (
	"fmt"
	"time"

	"mote/internal/errkind"
)

// SaveHeader is the fixed, uncompressed prefix of a save file (§6):
//
//	[version:i32][guid1:u64][guid2:u64]
//	[next_id:u64][global_tasks:u8][global_exec:u8][runtime_ns:i64]
type SaveHeader struct {
	Version       int32
	Guid1, Guid2  uint64
	NextID        uint64
	GlobalTasks   bool // whether TaskScheduler is a cross-session global
	GlobalExec    bool // whether ExecutionHandler is a cross-session global
	Runtime       time.Duration
}

func (h SaveHeader) Write(w *Writer) {
	w.WriteI32(h.Version)
	w.WriteU64(h.Guid1)
	w.WriteU64(h.Guid2)
	w.WriteU64(h.NextID)
	w.WriteBool(h.GlobalTasks)
	w.WriteBool(h.GlobalExec)
	w.WriteI64(int64(h.Runtime))
}

// ReadSaveHeader decodes and version-checks the header. guidWant, when
// non-zero, must match the file's guid pair (ErrWrongGuid, §7); pass
// (0,0) to skip that check (e.g. a first load with no prior guid).
func ReadSaveHeader(r *Reader, guidWant [2]uint64) (SaveHeader, error) {
	h := SaveHeader{
		Version: r.ReadI32(),
		Guid1:   r.ReadU64(),
		Guid2:   r.ReadU64(),
		NextID:  r.ReadU64(),
	}
	h.GlobalTasks = r.ReadBool()
	h.GlobalExec = r.ReadBool()
	h.Runtime = time.Duration(r.ReadI64())
	if r.Err() != nil {
		return h, r.Err()
	}
	if h.Version < errkind.MinSupportedVersion {
		return h, &errkind.VersionError{Component: "save header", Found: h.Version, MinWant: errkind.MinSupportedVersion}
	}
	if guidWant != [2]uint64{0, 0} && (h.Guid1 != guidWant[0] || h.Guid2 != guidWant[1]) {
		return h, fmt.Errorf("%w: file guid %d:%d, expected %d:%d", errkind.ErrWrongGuid, h.Guid1, h.Guid2, guidWant[0], guidWant[1])
	}
	return h, nil
}

// PendingCallbackRegionSize is the fixed, 256-byte-padded slot that
// follows the compression header and may hold one serialized pending
// callback (§4.2/§6): `[has_pending_cb:u8]` plus up to 255 payload bytes,
// zero-padded when empty or shorter.
const PendingCallbackRegionSize = 256

// WritePendingCallback writes the has-flag byte followed by a
// zero-padded 255-byte region containing payload. A payload longer than
// 255 bytes is silently truncated to its first 255 bytes; no error is
// reported.
func WritePendingCallback(w *Writer, payload []byte) {
	const slot = PendingCallbackRegionSize - 1
	w.WriteBool(len(payload) > 0)
	buf := make([]byte, slot)
	copy(buf, payload)
	w.write(buf)
}

// ReadPendingCallback reads the has-flag and the fixed-size region,
// returning the whole 255-byte region, zero padding included, only when
// has==true (an empty region still reads slot bytes off the stream).
func ReadPendingCallback(r *Reader) (has bool, payload []byte) {
	has = r.ReadBool()
	const slot = PendingCallbackRegionSize - 1
	raw := r.read(slot)
	if !has {
		return false, nil
	}
	return true, raw
}
