package codec

// InternTable compresses repeated tokens inside Input sequences by
// mapping short integer ids to UTF-8 strings (§4.1). It is written once,
// as the first record in a form stream, under tag STRH.
type InternTable struct {
	byID  map[uint64]string
	byStr map[string]uint64
	next  uint64
}

func NewInternTable() *InternTable {
	return &InternTable{byID: make(map[uint64]string), byStr: make(map[string]uint64)}
}

// Intern returns the id for s, allocating a new one if s hasn't been seen.
func (t *InternTable) Intern(s string) uint64 {
	if id, ok := t.byStr[s]; ok {
		return id
	}
	id := t.next
	t.next++
	t.byStr[s] = id
	t.byID[id] = s
	return id
}

// Lookup resolves an id back to its string, or "" + false if unknown.
func (t *InternTable) Lookup(id uint64) (string, bool) {
	s, ok := t.byID[id]
	return s, ok
}

// InternSeq interns every token of seq, returning their ids in order.
func (t *InternTable) InternSeq(seq []string) []uint64 {
	ids := make([]uint64, len(seq))
	for i, s := range seq {
		ids[i] = t.Intern(s)
	}
	return ids
}

// ResolveSeq maps a sequence of ids back to strings; any id missing from
// the table yields "" (a corrupt-file situation the caller should treat
// as a decode error upstream).
func (t *InternTable) ResolveSeq(ids []uint64) ([]string, bool) {
	out := make([]string, len(ids))
	ok := true
	for i, id := range ids {
		s, found := t.Lookup(id)
		if !found {
			ok = false
		}
		out[i] = s
	}
	return out, ok
}

// WriteSTRH encodes the table as the STRH record: [entries:u64]{[id:u64][string]}.
func (t *InternTable) WriteSTRH() []byte {
	return EncodeRecord(TagSTRH, 1, func(w *Writer) {
		w.WriteU64(uint64(len(t.byID)))
		for id, s := range t.byID {
			w.WriteU64(id)
			w.WriteString(s)
		}
	})
}

// ReadSTRH decodes a previously-written table from a raw payload (the
// bytes following the record header, already sized to PayloadLen).
func ReadSTRH(payload []byte) (*InternTable, error) {
	r := NewReader(byteReader(payload))
	n := r.ReadU64()
	t := NewInternTable()
	for i := uint64(0); i < n && r.Err() == nil; i++ {
		id := r.ReadU64()
		s := r.ReadString()
		t.byID[id] = s
		t.byStr[s] = id
		if id >= t.next {
			t.next = id + 1
		}
	}
	if r.Err() != nil {
		return nil, r.Err()
	}
	return t, nil
}
