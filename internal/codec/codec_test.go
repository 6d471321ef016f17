package codec

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPrimitivesRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteU8(7)
	w.WriteBool(true)
	w.WriteI32(-42)
	w.WriteU64(1 << 40)
	w.WriteDouble(3.14159)
	w.WriteDuration(5 * time.Second)
	w.WriteString("hello fuzz")
	w.WriteStringSeq([]string{"a", "b", "c"})
	require.NoError(t, w.Err())

	r := NewReader(&buf)
	require.Equal(t, uint8(7), r.ReadU8())
	require.True(t, r.ReadBool())
	require.Equal(t, int32(-42), r.ReadI32())
	require.Equal(t, uint64(1<<40), r.ReadU64())
	require.InDelta(t, 3.14159, r.ReadDouble(), 1e-12)
	require.Equal(t, 5*time.Second, r.ReadDuration())
	require.Equal(t, "hello fuzz", r.ReadString())
	require.Equal(t, []string{"a", "b", "c"}, r.ReadStringSeq())
	require.NoError(t, r.Err())
}

func TestRecordFraming(t *testing.T) {
	payload := EncodeRecord(TagInput, 2, func(w *Writer) {
		w.WriteU64(99)
		w.WriteString("token")
	})

	r := NewReader(bytes.NewReader(payload))
	hdr, err := ReadRecordHeader(r)
	require.NoError(t, err)
	require.Equal(t, TagInput, hdr.Tag)
	require.Equal(t, int32(2), hdr.Version)

	body := ReadRecordPayload(r, hdr.PayloadLen())
	br := NewReader(bytes.NewReader(body))
	require.Equal(t, uint64(99), br.ReadU64())
	require.Equal(t, "token", br.ReadString())
}

func TestInternTableRoundTrip(t *testing.T) {
	tbl := NewInternTable()
	seq := []string{"A", "B", "X", "A", "B"}
	ids := tbl.InternSeq(seq)

	raw := tbl.WriteSTRH()
	r := NewReader(bytes.NewReader(raw))
	hdr, err := ReadRecordHeader(r)
	require.NoError(t, err)
	require.Equal(t, TagSTRH, hdr.Tag)

	body := ReadRecordPayload(r, hdr.PayloadLen())
	decoded, err := ReadSTRH(body)
	require.NoError(t, err)

	resolved, ok := decoded.ResolveSeq(ids)
	require.True(t, ok)
	require.Equal(t, seq, resolved)
}

func TestCompressionBypassAtLevelMinusOne(t *testing.T) {
	var buf bytes.Buffer
	wc, err := NewCompressWriter(&buf, CompressionHeader{Level: -1})
	require.NoError(t, err)
	_, err = wc.Write([]byte("passthrough"))
	require.NoError(t, err)
	require.NoError(t, wc.Close())
	require.Equal(t, "passthrough", buf.String())
}

func TestSaveHeaderRejectsOldVersion(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	SaveHeader{Version: 1, Guid1: 1, Guid2: 2, NextID: 10}.Write(w)

	r := NewReader(&buf)
	_, err := ReadSaveHeader(r, [2]uint64{0, 0})
	require.Error(t, err)
}
