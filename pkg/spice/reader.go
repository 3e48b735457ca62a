package spice

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/spice2ibis/pkg/ibis"
)

// The result readers translate simulator listings into canonical point
// streams. They are deliberately tolerant: a data banner opens the block,
// header lines are skipped until the first row whose leading token parses
// as a number, and anything non-numeric afterwards is ignored.

// scanDCBlock collects two-column (V, I) rows after the first banner.
func scanDCBlock(r io.Reader, marker string) ([]VIPoint, error) {
	return scanDCBlockN(r, marker, 1)
}

// scanDCBlockN skips to the nth banner occurrence first; Eldo repeats the
// banner before the data proper.
func scanDCBlockN(r io.Reader, marker string, nth int) ([]VIPoint, error) {
	var out []VIPoint
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	seen := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if seen < nth {
			if strings.Contains(strings.ToLower(line), strings.ToLower(marker)) {
				seen++
			}
			continue
		}
		v, i, ok := twoFloats(line)
		if !ok {
			continue
		}
		out = append(out, VIPoint{V: v, I: i})
	}
	if err := sc.Err(); err != nil {
		return nil, ibis.Wrap(ibis.ParseError, err)
	}
	if seen < nth {
		return nil, ibis.Errorf(ibis.ParseError, "data banner %q not found", marker)
	}
	if len(out) == 0 {
		return nil, ibis.Errorf(ibis.ParseError, "no DC rows after banner %q", marker)
	}
	return out, nil
}

func scanTranBlock(r io.Reader, marker string) ([]TranPoint, error) {
	return scanTranBlockN(r, marker, 1)
}

func scanTranBlockN(r io.Reader, marker string, nth int) ([]TranPoint, error) {
	var out []TranPoint
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	seen := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if seen < nth {
			if strings.Contains(strings.ToLower(line), strings.ToLower(marker)) {
				seen++
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		t, err1 := strconv.ParseFloat(fields[0], 64)
		v, err2 := strconv.ParseFloat(fields[1], 64)
		if err1 != nil || err2 != nil || t < 0 {
			continue
		}
		p := TranPoint{T: t, V: v}
		if len(fields) > 2 {
			if i, err := strconv.ParseFloat(fields[2], 64); err == nil {
				p.I = i
			}
		}
		out = append(out, p)
	}
	if err := sc.Err(); err != nil {
		return nil, ibis.Wrap(ibis.ParseError, err)
	}
	if seen < nth {
		return nil, ibis.Errorf(ibis.ParseError, "data banner %q not found", marker)
	}
	if len(out) == 0 {
		return nil, ibis.Errorf(ibis.ParseError, "no transient rows after banner %q", marker)
	}
	return out, nil
}

func twoFloats(line string) (a, b float64, ok bool) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return 0, 0, false
	}
	a, err1 := strconv.ParseFloat(fields[0], 64)
	b, err2 := strconv.ParseFloat(fields[1], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return a, b, true
}
