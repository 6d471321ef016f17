package generation

import (
	"mote/internal/codec"
	"mote/internal/resolve"
	"mote/internal/stableset"
)

const sessionDataVersion = 2

func (sd *SessionData) Tag() codec.Tag { return codec.TagSessionData }
func (sd *SessionData) Version() int32 { return sessionDataVersion }

func writeRefSet(w *codec.Writer, s *stableset.Set[ScoredRef]) {
	items := s.Items()
	w.WriteU64(uint64(len(items)))
	for _, r := range items {
		w.WriteU64(r.InputID)
		w.WriteDouble(r.Primary)
		w.WriteDouble(r.Secondary)
		w.WriteI64(int64(r.Length))
	}
}

func readRefSet(r *codec.Reader, s *stableset.Set[ScoredRef]) {
	n := r.ReadU64()
	for i := uint64(0); i < n; i++ {
		ref := ScoredRef{
			InputID:   r.ReadU64(),
			Primary:   r.ReadDouble(),
			Secondary: r.ReadDouble(),
			Length:    int(r.ReadI64()),
		}
		s.Insert(ref)
	}
}

func (sd *SessionData) WriteData(w *codec.Writer) {
	sd.mu.Lock()
	defer sd.mu.Unlock()

	w.WriteI64(int64(sd.topK))
	w.WriteI64(sd.TotalTests)

	writeRefSet(w, sd.Positives)
	writeRefSet(w, sd.Negatives)
	writeRefSet(w, sd.Unfinished)

	w.WriteI64(int64(sd.window.filled))
	w.WriteI64(int64(sd.window.idx))
	w.WriteI64(int64(sd.window.failures))
	for _, v := range sd.window.buf {
		w.WriteBool(v)
	}
}

func (sd *SessionData) ReadData(r *codec.Reader, version int32) {
	sd.mu.Lock()
	defer sd.mu.Unlock()

	sd.topK = int(r.ReadI64())
	if sd.topK <= 0 {
		sd.topK = DefaultTopK
	}
	sd.TotalTests = r.ReadI64()

	sd.Positives = stableset.New(sd.topK, primaryDescRef)
	sd.Negatives = stableset.New(sd.topK, primaryDescRef)
	sd.Unfinished = stableset.New(sd.topK, primaryDescRef)
	readRefSet(r, sd.Positives)
	readRefSet(r, sd.Negatives)
	readRefSet(r, sd.Unfinished)

	sd.window.filled = int(r.ReadI64())
	sd.window.idx = int(r.ReadI64())
	sd.window.failures = int(r.ReadI64())
	for i := 0; i < windowSize; i++ {
		sd.window.buf[i] = r.ReadBool()
	}
}

// InitializeEarly/InitializeLate: every index entry is a bare
// (id, score) snapshot, never a live reference, so neither phase has
// anything to resolve (§4.2 Phase C/D).
func (sd *SessionData) InitializeEarly(res *resolve.Resolver) error { return nil }
func (sd *SessionData) InitializeLate(res *resolve.Resolver) error  { return nil }
