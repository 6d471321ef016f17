package form

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"mote/internal/codec"
	"mote/internal/domain"
	"mote/internal/errkind"
	"mote/internal/resolve"
	"mote/pkg/logger"
)

// LoadResult bundles everything Load reconstructs that a caller (package
// session) needs to wire up a resumed run.
type LoadResult struct {
	Registry *Registry
	Header   codec.SaveHeader
	Intern   *codec.InternTable
	PendingCallback []byte
}

// Load reconstructs a registry from path using factories to allocate the
// correct concrete type per record tag (§4.2). guidWant, when non-zero,
// must match the file (ErrWrongGuid).
//
// Phase A: header + compression header + optional pending callback.
// Phase B: stream records, allocate forms, call ReadData.
// Phase C: InitializeEarly on every form (arbitrary order).
// Phase D: InitializeLate on every form.
// Phase E: drain the resolver's task and late-task queues.
func Load(path string, guidWant [2]uint64, factories FactoryTable) (*LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open save file: %v", errkind.ErrIoError, err)
	}
	defer f.Close()

	hr := codec.NewReader(f)
	header, err := codec.ReadSaveHeader(hr, guidWant)
	if err != nil {
		return nil, err
	}
	compHdr := codec.ReadCompressionHeader(hr)
	if hr.Err() != nil {
		return nil, fmt.Errorf("%w: read compression header: %v", errkind.ErrSerializationError, hr.Err())
	}

	body, err := codec.NewDecompressReader(f, compHdr)
	if err != nil {
		return nil, fmt.Errorf("%w: open decompression stream: %v", errkind.ErrSerializationError, err)
	}
	br := codec.NewReader(body)

	has, pending := codec.ReadPendingCallback(br)
	if br.Err() != nil {
		return nil, fmt.Errorf("%w: read pending callback: %v", errkind.ErrSerializationError, br.Err())
	}
	if !has {
		pending = nil
	}

	recordCount := br.ReadU64()
	if br.Err() != nil {
		return nil, fmt.Errorf("%w: read record count: %v", errkind.ErrSerializationError, br.Err())
	}

	registry := NewRegistry()
	registry.SetNextID(header.NextID)
	resolver := resolve.New(registry.LookupAny)

	var intern *codec.InternTable
	serializables := make([]Serializable, 0, recordCount)

	for i := uint64(0); i < recordCount; i++ {
		rhdr, err := codec.ReadRecordHeader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d header: %v", errkind.ErrSerializationError, i, err)
		}
		payload := codec.ReadRecordPayload(br, rhdr.PayloadLen())
		if br.Err() != nil {
			return nil, fmt.Errorf("%w: record %d payload: %v", errkind.ErrSerializationError, i, br.Err())
		}

		if rhdr.Tag == codec.TagSTRH {
			tbl, err := codec.ReadSTRH(payload)
			if err != nil {
				return nil, fmt.Errorf("%w: string table: %v", errkind.ErrSerializationError, err)
			}
			intern = tbl
			continue
		}

		factory, ok := factories[rhdr.Tag]
		if !ok {
			return nil, fmt.Errorf("%w: tag %s", errkind.ErrUnsupportedRecord, rhdr.Tag)
		}

		pr := codec.NewReader(bytes.NewReader(payload))
		id := pr.ReadU64()
		flags := domain.Flags(pr.ReadU32())

		inst := factory()
		inst.RestoreHeader(id, flags)
		inst.ReadData(pr, rhdr.Version)
		if pr.Err() != nil {
			if isEOFLike(pr.Err()) {
				logger.Warn().Str("type", rhdr.Tag.String()).Msg("record payload shorter than framed size; form discarded")
				continue
			}
			return nil, fmt.Errorf("%w: decode %s: %v", errkind.ErrSerializationError, rhdr.Tag, pr.Err())
		}
		registry.Insert(inst)
		serializables = append(serializables, inst)
	}

	if intern == nil {
		intern = codec.NewInternTable()
	}

	// Phase C: early init.
	for _, s := range serializables {
		resolver.SetCurrent(fmt.Sprintf("%s#%d", s.Type(), s.ID()))
		if err := s.InitializeEarly(resolver); err != nil {
			return nil, fmt.Errorf("initialize-early %s#%d: %w", s.Type(), s.ID(), err)
		}
	}
	// Phase D: late init.
	for _, s := range serializables {
		resolver.SetCurrent(fmt.Sprintf("%s#%d", s.Type(), s.ID()))
		if err := s.InitializeLate(resolver); err != nil {
			return nil, fmt.Errorf("initialize-late %s#%d: %w", s.Type(), s.ID(), err)
		}
	}
	// Phase E: drain resolver queues.
	if err := resolver.Drain(); err != nil {
		return nil, fmt.Errorf("resolver drain: %w", err)
	}

	return &LoadResult{Registry: registry, Header: header, Intern: intern, PendingCallback: pending}, nil
}

func isEOFLike(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}
