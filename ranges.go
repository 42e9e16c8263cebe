package recur

// nextInRange returns val if values contains it. Otherwise it returns the
// smallest value greater than val or, when there is none, the smallest value
// plus offset. The offset lets callers tell a wrap into the next containing
// unit from a move within the current one.
//
// values must not be empty.
func nextInRange(val int, values []int, offset int) int {
	lo, next, found := values[0], 0, false
	for _, v := range values {
		if v == val {
			return val
		}
		lo = min(lo, v)
		if v > val && (!found || v < next) {
			next, found = v, true
		}
	}
	if found {
		return next
	}
	return lo + offset
}

// prevInRange is the mirror of nextInRange: the largest value less than val,
// or the largest value minus offset.
func prevInRange(val int, values []int, offset int) int {
	hi, prev, found := values[0], 0, false
	for _, v := range values {
		if v == val {
			return val
		}
		hi = max(hi, v)
		if v < val && (!found || v > prev) {
			prev, found = v, true
		}
	}
	if found {
		return prev
	}
	return hi - offset
}
