package delta

import "mote/internal/domain"

// PartitionStandard divides [0,length) into level roughly-equal parts,
// the last absorbing any remainder (§4.8 Standard mode step 1).
func PartitionStandard(length, level int) []domain.SplitRange {
	if level <= 0 {
		level = 1
	}
	if level > length {
		level = length
	}
	if length == 0 || level == 0 {
		return nil
	}

	base := length / level
	parts := make([]domain.SplitRange, 0, level)
	pos := 0
	for i := 0; i < level; i++ {
		l := base
		if i == level-1 {
			l = length - pos
		}
		parts = append(parts, domain.SplitRange{Begin: pos, Length: l})
		pos += l
	}
	return parts
}

// ScoreRanges divides [skip,len(primary)) into maximal runs over which
// primary does not change (§4.8 ScoreProgress mode: "contiguous ranges
// within which the per-position primary score does not change").
func ScoreRanges(primary []float64, skip int) []domain.SplitRange {
	if skip < 0 {
		skip = 0
	}
	n := len(primary)
	var ranges []domain.SplitRange
	for i := skip; i < n; {
		start := i
		v := primary[i]
		for i < n && primary[i] == v {
			i++
		}
		ranges = append(ranges, domain.SplitRange{Begin: start, Length: i - start})
	}
	return ranges
}

// PartitionScoreProgress groups ranges (already contiguous and ordered,
// per ScoreRanges) into level parts of roughly length/level tokens each,
// never splitting a single score range across two parts (§4.8: "remove
// subsets of size length/level drawn only from these ranges").
func PartitionScoreProgress(ranges []domain.SplitRange, level int) []domain.SplitRange {
	if level <= 0 || len(ranges) == 0 {
		return nil
	}
	total := 0
	for _, r := range ranges {
		total += r.Length
	}
	target := total / level
	if target == 0 {
		target = 1
	}

	var parts []domain.SplitRange
	var cur domain.SplitRange
	curLen := 0
	open := false
	for i, r := range ranges {
		if !open {
			cur = domain.SplitRange{Begin: r.Begin}
			open = true
		}
		cur.Length += r.Length
		curLen += r.Length

		remainingParts := level - len(parts) - 1
		isLast := i == len(ranges)-1
		if isLast || (curLen >= target && remainingParts > 0) {
			parts = append(parts, cur)
			open = false
			curLen = 0
		}
	}
	return parts
}

// ApplySplit materializes the sequence a ParentSplit describes: the
// concatenation of the kept ranges, or (Complement) everything outside
// them (§4.8 derivation extraction's sibling operation on raw tokens,
// used to build the candidate token sequence checked against the
// exclusion tree before a derivation tree is ever requested).
func ApplySplit(seq []string, split domain.ParentSplit) []string {
	if !split.Complement {
		var out []string
		for _, r := range split.Ranges {
			out = append(out, seq[r.Begin:r.Begin+r.Length]...)
		}
		return out
	}

	excluded := make([]bool, len(seq))
	for _, r := range split.Ranges {
		end := r.Begin + r.Length
		if end > len(excluded) {
			end = len(excluded)
		}
		for i := r.Begin; i < end; i++ {
			excluded[i] = true
		}
	}
	out := make([]string, 0, len(seq))
	for i, tok := range seq {
		if !excluded[i] {
			out = append(out, tok)
		}
	}
	return out
}
