package codec

import (
	"bytes"
	"fmt"
)

// MergeUnderMask returns a copy of a in which every byte where mask is set
// is taken from b: out[i] = (^mask[i] & a[i]) | (mask[i] & b[i]). The three
// buffers must have equal length; a mismatch is a caller bug and panics.
func MergeUnderMask(a, b, mask []byte) []byte {
	if len(a) != len(b) || len(a) != len(mask) {
		panic(fmt.Sprintf("codec: merge under mask: lengths %d/%d/%d differ", len(a), len(b), len(mask)))
	}
	out := make([]byte, len(a))
	for i := range a {
		out[i] = (^mask[i] & a[i]) | (mask[i] & b[i])
	}
	return out
}

// ApplyReplacementPatterns merges each side's pattern with the other side's
// original bytes. An empty pattern leaves that side untouched.
func ApplyReplacementPatterns(left, right CallData) ([]byte, []byte) {
	l := append([]byte(nil), left.Data...)
	r := append([]byte(nil), right.Data...)
	if len(left.Pattern) > 0 {
		l = MergeUnderMask(left.Data, right.Data, left.Pattern)
	}
	if len(right.Pattern) > 0 {
		r = MergeUnderMask(right.Data, left.Data, right.Pattern)
	}
	return l, r
}

// Compatible reports whether two calls describe the same transfer once
// their wildcards are filled from each other. Buffers of different length
// never match.
func Compatible(left, right CallData) bool {
	if len(left.Data) != len(right.Data) {
		return false
	}
	if len(left.Pattern) > 0 && len(left.Pattern) != len(left.Data) {
		return false
	}
	if len(right.Pattern) > 0 && len(right.Pattern) != len(right.Data) {
		return false
	}
	l, r := ApplyReplacementPatterns(left, right)
	return bytes.Equal(l, r)
}
