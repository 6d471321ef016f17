package codec

import (
	"bufio"
	"io"
	"runtime"

	"github.com/ulikunitz/xz/lzma"
)

// CompressionHeader is the `[compression_level:i32][compression_extreme:u8]`
// section of the save file layout (§6), persisted ahead of the
// (possibly-compressed) body so a reader can reconstruct the same
// decoder regardless of what produced the file.
type CompressionHeader struct {
	Level   int32 // -1..9; -1 bypasses compression entirely (§4.1)
	Extreme bool
	// Threads is accepted for multi-threaded compression (0 resolves to
	// runtime.GOMAXPROCS(0)), but NewCompressWriter always produces a
	// single-threaded stream; the value changes nothing in the output.
	Threads int
}

func (h CompressionHeader) Write(w *Writer) {
	w.WriteI32(h.Level)
	w.WriteBool(h.Extreme)
}

func ReadCompressionHeader(r *Reader) CompressionHeader {
	return CompressionHeader{Level: r.ReadI32(), Extreme: r.ReadBool()}
}

// presetDictCap maps a 7z-style preset level (0..9) plus the "extreme"
// flag onto an LZMA dictionary capacity, mirroring the preset table used
// by common LZMA front-ends. ulikunitz/xz/lzma has no built-in preset
// table, only a raw DictCap knob, so this function is the adapter's own
// translation layer.
func presetDictCap(level int32, extreme bool) int {
	base := []int{
		1 << 16, 1 << 20, 1 << 21, 1 << 22, 1 << 22,
		1 << 23, 1 << 23, 1 << 24, 1 << 25, 1 << 26,
	}
	idx := int(level)
	if idx < 0 {
		idx = 0
	}
	if idx > 9 {
		idx = 9
	}
	cap := base[idx]
	if extreme && cap < 1<<26 {
		cap *= 2
	}
	return cap
}

// NewCompressWriter wraps w with an LZMA stream per hdr, or returns w
// unchanged when hdr.Level == -1 (bypass, per §4.1). The stream is always
// compressed single-threaded through a fixed 2 MiB bufio.Writer;
// hdr.Threads is not used.
func NewCompressWriter(w io.Writer, hdr CompressionHeader) (io.WriteCloser, error) {
	if hdr.Level == -1 {
		return nopCloser{w}, nil
	}
	threads := hdr.Threads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	_ = threads // ulikunitz/xz/lzma compresses single-stream and has no
	// multi-threaded encoder entry point, so threads goes unused.
	cfg := lzma.WriterConfig{DictCap: presetDictCap(hdr.Level, hdr.Extreme)}
	bw := bufio.NewWriterSize(w, 1<<21) // 2 MiB, per §4.1's streaming decode buffer
	lw, err := cfg.NewWriter(bw)
	if err != nil {
		return nil, err
	}
	return &flushingWriteCloser{lw: lw, bw: bw}, nil
}

type flushingWriteCloser struct {
	lw *lzma.Writer
	bw *bufio.Writer
}

func (f *flushingWriteCloser) Write(p []byte) (int, error) { return f.lw.Write(p) }

func (f *flushingWriteCloser) Close() error {
	if err := f.lw.Close(); err != nil {
		return err
	}
	return f.bw.Flush()
}

// NewDecompressReader wraps r with an LZMA decoder per hdr, or returns r
// unchanged when hdr.Level == -1. Decoding is always single-threaded and
// streaming through a fixed internal buffer, matching §4.1.
func NewDecompressReader(r io.Reader, hdr CompressionHeader) (io.Reader, error) {
	if hdr.Level == -1 {
		return r, nil
	}
	cfg := lzma.ReaderConfig{DictCap: presetDictCap(hdr.Level, hdr.Extreme)}
	br := bufio.NewReaderSize(r, 1<<21)
	return cfg.NewReader(br)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
