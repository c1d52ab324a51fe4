package caps

import (
	"fmt"
	"regexp"
	"strconv"
	"sync"
)

// integer mirrors C's %i conversion: optional sign, then hex (0x), octal
// (leading 0) or decimal digits.
const integer = `([+-]?(?:0[xX][0-9a-fA-F]+|[0-9]+))`

// PatternSources is the textual pattern table for capability strings.
// Key names and the (int)/(fourcc) type tokens are part of the wire contract
// with upstream producers.
type PatternSources struct {
	RGB    string
	YUV    string
	BPP    string
	Width  string
	Height string
	Red    string
	Blue   string
	Format string
}

// DefaultPatterns is the pattern table used by every parser in the process.
var DefaultPatterns = PatternSources{
	RGB:    `^` + regexp.QuoteMeta(FamilyRGB),
	YUV:    `^` + regexp.QuoteMeta(FamilyYUV),
	BPP:    `bpp=\(int\)\s*` + integer,
	Width:  `width=\(int\)\s*` + integer,
	Height: `height=\(int\)\s*` + integer,
	Red:    `red_mask=\(int\)\s*` + integer,
	Blue:   `blue_mask=\(int\)\s*` + integer,
	Format: `format=\(fourcc\)\s*([^,;\s]+)`,
}

type patternTable struct {
	rgb    *regexp.Regexp
	yuv    *regexp.Regexp
	bpp    *regexp.Regexp
	width  *regexp.Regexp
	height *regexp.Regexp
	red    *regexp.Regexp
	blue   *regexp.Regexp
	format *regexp.Regexp
}

var (
	defaultTableOnce sync.Once
	defaultTable     *patternTable
	defaultTableErr  error
)

// sharedTable returns the process-wide table, compiling it on first use.
// The table is read-only after compilation and safe for concurrent use.
func sharedTable() (*patternTable, error) {
	defaultTableOnce.Do(func() {
		defaultTable, defaultTableErr = compileTable(DefaultPatterns)
	})
	return defaultTable, defaultTableErr
}

func compileTable(src PatternSources) (*patternTable, error) {
	t := &patternTable{}
	entries := []struct {
		name string
		expr string
		dst  **regexp.Regexp
	}{
		{"rgb", src.RGB, &t.rgb},
		{"yuv", src.YUV, &t.yuv},
		{"bpp", src.BPP, &t.bpp},
		{"width", src.Width, &t.width},
		{"height", src.Height, &t.height},
		{"red_mask", src.Red, &t.red},
		{"blue_mask", src.Blue, &t.blue},
		{"format", src.Format, &t.format},
	}

	for _, e := range entries {
		re, err := regexp.Compile(e.expr)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", e.name, err)
		}
		*e.dst = re
	}
	return t, nil
}

// lastInt returns the integer captured by the last match of re in s.
// A later occurrence of a key overrides an earlier one.
func lastInt(re *regexp.Regexp, s string) (int64, bool) {
	matches := re.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return 0, false
	}
	raw := matches[len(matches)-1][1]
	v, err := strconv.ParseInt(raw, 0, 64)
	if err != nil {
		// %i stops at the first invalid digit; "08" reads as 0
		return 0, true
	}
	return v, true
}

func lastString(re *regexp.Regexp, s string) (string, bool) {
	matches := re.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return "", false
	}
	return matches[len(matches)-1][1], true
}
