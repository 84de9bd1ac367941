package match

import "regexp"

// grepMatcher is the per-site scan state: a compiled byte-level pattern, the
// site's byte-offset window, and a running count of bytes seen. It is fed
// newline-delimited chunks and reports (hit, done) after each one; done
// means the window is exhausted and the site can never match this file.
type grepMatcher struct {
	re       *regexp.Regexp
	min, max int64 // byte-offset window; -1 means unbounded
	seen     int64
}

func newMatcher(re *regexp.Regexp, min, max int64) *grepMatcher {
	return &grepMatcher{re: re, min: min, max: max}
}

// feed consumes one chunk. Bytes below min are skipped (slicing the chunk
// at the inset when the window starts mid-chunk); the search never looks
// past max. With no bounds the matcher stays undecided until end of file.
func (m *grepMatcher) feed(chunk []byte) (hit, done bool) {
	start := m.seen
	m.seen += int64(len(chunk))

	if m.max >= 0 && start > m.max {
		return false, true
	}
	if m.min >= 0 {
		if m.seen <= m.min {
			// Entirely below the window.
			return false, false
		}
		if start < m.min {
			chunk = chunk[m.min-start:]
			start = m.min
		}
	}
	if m.max >= 0 {
		if start > m.max {
			// min lies beyond max: the window is empty.
			return false, true
		}
		if end := m.max + 1 - start; end < int64(len(chunk)) {
			chunk = chunk[:end]
		}
	}
	return m.re.Match(chunk), false
}
