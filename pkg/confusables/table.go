// Package confusables loads the UTS#39 confusables mapping and exposes a
// longest-match code-point skeletonizer. The compiled table is a
// process-wide immutable singleton, initialized lazily on first use and
// shared by every concurrent request.
package confusables

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// Table is an immutable, longest-match code-point substitution map parsed
// from a confusables.txt file.
type Table struct {
	version   string
	mapping   map[string][]rune // hyphen-joined src code points -> dst sequence
	maxSrcLen int               // longest source run, in code points
}

// Version returns the "# Version: x.y.z" header recorded in the source file.
func (t *Table) Version() string { return t.version }

var (
	once      sync.Once
	singleton *Table
	loadErr   error
	loadPath  string
)

// Load parses path once per process and caches the result. Subsequent calls
// with any path return the cached singleton; the confusables table is
// read-only after first load.
func Load(path string) (*Table, error) {
	once.Do(func() {
		f, err := os.Open(path)
		if err != nil {
			loadErr = fmt.Errorf("confusables: asset_missing: %w", err)
			return
		}
		defer f.Close()
		singleton, loadErr = Parse(f)
		if loadErr == nil {
			loadPath = path
		}
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return singleton, nil
}

// LoadedFrom returns the path used for the first successful Load call, or
// empty if Load has not yet succeeded.
func LoadedFrom() string { return loadPath }

// resetForTest clears the process-wide singleton. Test-only.
func resetForTest() {
	once = sync.Once{}
	singleton = nil
	loadErr = nil
	loadPath = ""
}

// Parse reads UTS#39 confusables.txt format from r.
func Parse(r io.Reader) (*Table, error) {
	t := &Table{mapping: make(map[string][]rune)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			if strings.HasPrefix(trimmed, "# Version:") {
				t.version = strings.TrimSpace(strings.TrimPrefix(trimmed, "# Version:"))
			}
			continue
		}

		// Strip trailing comment.
		data := trimmed
		if idx := strings.Index(data, "#"); idx >= 0 {
			data = strings.TrimSpace(data[:idx])
		}
		if data == "" {
			continue
		}

		fields := strings.Split(data, ";")
		if len(fields) < 2 {
			continue
		}
		src, err := parseCodePoints(fields[0])
		if err != nil {
			continue
		}
		dst, err := parseCodePoints(fields[1])
		if err != nil {
			continue
		}
		if len(src) == 0 {
			continue
		}

		key := keyFor(src)
		t.mapping[key] = dst
		if len(src) > t.maxSrcLen {
			t.maxSrcLen = len(src)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("confusables: scan failed: %w", err)
	}
	if t.maxSrcLen == 0 {
		t.maxSrcLen = 1
	}
	return t, nil
}

func parseCodePoints(field string) ([]rune, error) {
	parts := strings.Fields(strings.TrimSpace(field))
	out := make([]rune, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseInt(p, 16, 32)
		if err != nil {
			return nil, err
		}
		out = append(out, rune(v))
	}
	return out, nil
}

func keyFor(cps []rune) string {
	var sb strings.Builder
	for i, cp := range cps {
		if i > 0 {
			sb.WriteByte('-')
		}
		sb.WriteString(strconv.FormatInt(int64(cp), 16))
	}
	return sb.String()
}

// Skeletonize applies NFKC normalization followed by longest-match
// substitution from the table, scanning left to right with a window up to
// maxSrcLen code points. Non-matching code points pass through unchanged.
// Skeleton-of-skeleton is a fixed point: running Skeletonize twice returns
// the same string as running it once.
func (t *Table) Skeletonize(text string) string {
	normalized := norm.NFKC.String(text)
	runes := []rune(normalized)
	var out strings.Builder

	for i := 0; i < len(runes); {
		matched := false
		maxWindow := t.maxSrcLen
		if maxWindow > len(runes)-i {
			maxWindow = len(runes) - i
		}
		for w := maxWindow; w >= 1; w-- {
			key := keyFor(runes[i : i+w])
			if dst, ok := t.mapping[key]; ok {
				out.WriteString(string(dst))
				i += w
				matched = true
				break
			}
		}
		if !matched {
			out.WriteRune(runes[i])
			i++
		}
	}
	return out.String()
}
