// Package match is the content-matching runtime: a memoized stat cache and
// a streaming multi-pattern grep engine.
//
// The grep engine exists to keep file I/O down when many grep conditions
// test the same file. Every grep site with a constant pattern joins a
// single "coalesced" scan per file, so the file is read once no matter how
// many sites reference it. A scan that answers its caller early is parked
// in a resumable-read table while other sites still want further bytes; the
// next check for the same path resumes the same reader without revisiting
// consumed bytes.
//
// Matching is performed on newline-delimited chunks, so a pattern that
// straddles a newline in a binary file will not match.
package match

import (
	"bufio"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"regexp"

	"github.com/plumbkit/plumb/internal/lang"
)

// scan is one in-flight coalesced read: the open reader plus the live
// matcher per still-undecided constant-pattern site.
type scan struct {
	rc   io.ReadCloser
	br   *bufio.Reader
	live map[int]*grepMatcher
}

// Engine owns the per-session matching state. It is built around one
// compiled program's grep sites and is discarded with the program — the
// site registry is never process-global.
type Engine struct {
	sites   []*lang.GrepSite
	consts  []*regexp.Regexp // compiled constant patterns, indexed like sites
	results []map[string]bool
	reads   map[string]*scan
	stats   map[string]statResult

	// OpenFile opens a path for scanning. Overridable so tests can count
	// opens and serve synthetic content.
	OpenFile func(name string) (io.ReadCloser, error)
}

// NewEngine compiles the constant grep patterns and prepares the caches.
// An invalid constant pattern is reported now rather than at first check.
func NewEngine(sites []*lang.GrepSite) (*Engine, error) {
	e := &Engine{
		sites:    sites,
		consts:   make([]*regexp.Regexp, len(sites)),
		results:  make([]map[string]bool, len(sites)),
		reads:    map[string]*scan{},
		stats:    map[string]statResult{},
		OpenFile: func(name string) (io.ReadCloser, error) { return os.Open(name) },
	}
	for i, s := range sites {
		e.results[i] = map[string]bool{}
		if s.IsConst {
			re, err := regexp.Compile(s.Const)
			if err != nil {
				return nil, err
			}
			e.consts[i] = re
		}
	}
	return e, nil
}

// Cached reports the stored result for a (site, path), if any. Results are
// written at most once and are final for the session.
func (e *Engine) Cached(site int, path string) (bool, bool) {
	v, ok := e.results[site][path]
	return v, ok
}

func (e *Engine) set(site int, path string, v bool) {
	if _, ok := e.results[site][path]; !ok {
		e.results[site][path] = v
	}
}

// openScan starts a coalesced read over path. The live set holds a matcher
// for every constant-pattern site that has no result for this path yet —
// sites are registered at parse time, so a site first consulted mid-stream
// is already being tracked here.
func (e *Engine) openScan(path string) (*scan, error) {
	rc, err := e.OpenFile(path)
	if err != nil {
		return nil, err
	}
	sc := &scan{rc: rc, br: bufio.NewReader(rc), live: map[int]*grepMatcher{}}
	for i, s := range e.sites {
		if !s.IsConst {
			continue
		}
		if _, done := e.results[i][path]; done {
			continue
		}
		sc.live[i] = newMatcher(e.consts[i], s.Min, s.Max)
	}
	return sc, nil
}

func (e *Engine) closeScan(path string, sc *scan) {
	sc.rc.Close()
	delete(e.reads, path)
}

// GrepCheck answers one grep site's question about one path, driving the
// coalesced scan as a side effect. pattern is the site's pattern as
// evaluated by the caller; for constant sites it matches the compiled one.
func (e *Engine) GrepCheck(site int, path, pattern string) (bool, error) {
	if v, ok := e.results[site][path]; ok {
		return v, nil
	}

	s := e.sites[site]
	var private *grepMatcher
	if !s.IsConst {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, err
		}
		private = newMatcher(re, s.Min, s.Max)
	}

	sc := e.reads[path]
	if sc == nil {
		var err error
		sc, err = e.openScan(path)
		if err != nil {
			// Unreadable target: the site misses rather than failing
			// the routable.
			slog.Debug("grep open failed", "path", path, "error", err)
			e.set(site, path, false)
			return false, nil
		}
	}

	for {
		line, readErr := sc.br.ReadBytes('\n')
		if len(line) > 0 {
			if private != nil {
				hit, done := private.feed(line)
				if hit {
					e.set(site, path, true)
				} else if done {
					e.set(site, path, false)
				}
				if hit || done {
					private = nil
				}
			}
			for id, m := range sc.live {
				hit, done := m.feed(line)
				if hit {
					e.set(id, path, true)
					delete(sc.live, id)
				} else if done {
					e.set(id, path, false)
					delete(sc.live, id)
				}
			}
		}

		if v, ok := e.results[site][path]; ok {
			// This call's answer is known. Park the reader if other
			// sites still want bytes, otherwise we're finished with
			// the file.
			if len(sc.live) > 0 {
				e.reads[path] = sc
			} else {
				e.closeScan(path, sc)
			}
			return v, nil
		}

		if readErr != nil {
			break
		}
	}

	// End of file (or read error): everything still undecided is a miss.
	for id := range sc.live {
		e.set(id, path, false)
	}
	if private != nil {
		e.set(site, path, false)
	}
	e.closeScan(path, sc)
	return e.results[site][path], nil
}

// Close releases any reader still parked mid-stream. Sites that never got
// an answer for their in-flight path are recorded as misses.
func (e *Engine) Close() {
	for path, sc := range e.reads {
		for id := range sc.live {
			e.set(id, path, false)
		}
		sc.rc.Close()
	}
	e.reads = map[string]*scan{}
}

type statResult struct {
	info fs.FileInfo
	ok   bool
}

// Stat stats a path through the session cache. Failures are memoized too —
// a path that couldn't be statted once isn't retried.
func (e *Engine) Stat(path string) (fs.FileInfo, bool) {
	if r, ok := e.stats[path]; ok {
		return r.info, r.ok
	}
	info, err := os.Stat(path)
	r := statResult{info: info, ok: err == nil}
	e.stats[path] = r
	return r.info, r.ok
}

// FileTypeMatches reports whether a stat mode corresponds to one of the
// rule language's filetype words. door, port and whiteout never match:
// fs.FileMode has no bits for them.
func FileTypeMatches(info fs.FileInfo, filetype string) bool {
	m := info.Mode()
	switch filetype {
	case "dir":
		return m.IsDir()
	case "file":
		return m.IsRegular()
	case "chardev":
		return m&fs.ModeCharDevice != 0
	case "blockdev":
		return m&fs.ModeDevice != 0 && m&fs.ModeCharDevice == 0
	case "fifo":
		return m&fs.ModeNamedPipe != 0
	case "sock":
		return m&fs.ModeSocket != 0
	}
	return false
}
