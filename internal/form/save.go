package form

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"mote/internal/codec"
	"mote/pkg/logger"
)

// Freezable is implemented by TaskScheduler and ExecutionHandler; Save
// freezes both before writing so the object graph is quiescent (§4.2).
type Freezable interface {
	Freeze()
	Thaw()
}

// SaveOptions configures a single save invocation.
type SaveOptions struct {
	Guid1, Guid2  uint64
	GlobalTasks   bool
	GlobalExec    bool
	Runtime       time.Duration
	Compression   codec.CompressionHeader
	PendingCB     []byte // optional serialized pending callback
}

// Save writes the full registry to path per the §6 layout:
//
//	header -> compression header -> pending callback slot -> string
//	intern table record -> one record per live form.
//
// Steps: freeze task scheduler and execution handler, write, thaw on
// both success and failure (§4.2).
func Save(r *Registry, path string, freezables []Freezable, opts SaveOptions) (err error) {
	for _, f := range freezables {
		f.Freeze()
	}
	defer func() {
		for _, f := range freezables {
			f.Thaw()
		}
	}()

	forms := r.Snapshot()

	tmpPath := path + ".tmp"
	out, ferr := os.Create(tmpPath)
	if ferr != nil {
		return fmt.Errorf("create save file: %w", ferr)
	}
	defer out.Close()

	hw := codec.NewWriter(out)
	codec.SaveHeader{
		Version:     int32(currentSaveVersion),
		Guid1:       opts.Guid1,
		Guid2:       opts.Guid2,
		NextID:      r.NextID(),
		GlobalTasks: opts.GlobalTasks,
		GlobalExec:  opts.GlobalExec,
		Runtime:     opts.Runtime,
	}.Write(hw)
	opts.Compression.Write(hw)
	if err := hw.Err(); err != nil {
		return fmt.Errorf("write save header: %w", err)
	}

	compressed, cerr := codec.NewCompressWriter(out, opts.Compression)
	if cerr != nil {
		return fmt.Errorf("open compression stream: %w", cerr)
	}

	bodyW := codec.NewWriter(compressed)
	codec.WritePendingCallback(bodyW, opts.PendingCB)

	intern := codec.NewInternTable()
	formRecords := make([][]byte, 0, len(forms))
	for _, f := range forms {
		sf, ok := f.(Serializable)
		if !ok {
			continue
		}
		rec, rerr := encodeForm(sf, intern)
		if rerr != nil {
			return fmt.Errorf("encode form id=%d: %w", f.ID(), rerr)
		}
		formRecords = append(formRecords, rec)
	}

	bodyW.WriteU64(uint64(len(formRecords) + 1)) // +1 for the string table
	bodyW.WriteRaw(intern.WriteSTRH())
	for _, rec := range formRecords {
		bodyW.WriteRaw(rec)
	}
	if err := bodyW.Err(); err != nil {
		return fmt.Errorf("write form records: %w", err)
	}
	if err := compressed.Close(); err != nil {
		return fmt.Errorf("close compression stream: %w", err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("sync save file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close save file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename save file into place: %w", err)
	}

	for _, f := range forms {
		f.MarkClean()
	}

	logger.Info().Str("path", path).Int("forms", len(formRecords)).Msg("session saved")
	return nil
}

// currentSaveVersion is this build's emitted save version (§4.1: writers
// always emit the current version).
const currentSaveVersion = 2

func encodeForm(f Serializable, intern *codec.InternTable) ([]byte, error) {
	var buf bytes.Buffer
	pw := codec.NewWriter(&buf)
	pw.WriteU64(f.ID())
	pw.WriteU32(uint32(f.Flags()))
	f.WriteData(pw)
	if err := pw.Err(); err != nil {
		return nil, err
	}
	_ = intern // no form writes through the intern table (WriteData is
	// not handed it), so the STRH table the caller emits up front is
	// always empty.
	var out bytes.Buffer
	ow := codec.NewWriter(&out)
	codec.WriteRecord(ow, f.Tag(), f.Version(), buf.Bytes())
	return out.Bytes(), nil
}
