package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/spice2ibis/pkg/ibis"
)

// SI multiplier suffixes accepted after a number. The match is
// case-sensitive where it matters: m is milli, M is mega.
var siSuffix = map[byte]float64{
	'f': 1e-15,
	'p': 1e-12,
	'n': 1e-9,
	'u': 1e-6,
	'm': 1e-3,
	'k': 1e3,
	'K': 1e3,
	'M': 1e6,
	'G': 1e9,
}

// ParseValue converts one numeric token to a float. Accepted forms:
// plain/scientific notation (3.3, 1e-9), an SI suffix (3n, 0.2nH, 2pF —
// trailing unit letters are ignored), and the reserved tokens NA and NC,
// which yield the unset sentinel.
func ParseValue(tok string) (float64, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return ibis.NA(), fmt.Errorf("empty numeric token")
	}
	switch strings.ToUpper(tok) {
	case "NA", "NC":
		return ibis.NA(), nil
	}

	// Longest leading prefix that parses as a float.
	end := 0
	for i := 1; i <= len(tok); i++ {
		if _, err := strconv.ParseFloat(tok[:i], 64); err == nil {
			end = i
		}
	}
	if end == 0 {
		return 0, fmt.Errorf("invalid numeric token %q", tok)
	}
	base, err := strconv.ParseFloat(tok[:end], 64)
	if err != nil {
		return 0, err
	}

	rest := tok[end:]
	if rest == "" {
		return base, nil
	}
	if mult, ok := siSuffix[rest[0]]; ok {
		return base * mult, nil
	}
	// No multiplier: the remainder must be a bare unit (V, H, F, Ohm, s).
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return 0, fmt.Errorf("invalid numeric token %q", tok)
		}
	}
	return base, nil
}

// ParseTriple reads up to three corner values from whitespace-separated
// fields; missing fields stay unset.
func ParseTriple(fields []string) (ibis.TypMinMax, error) {
	out := ibis.EmptyTMM()
	for i, c := range ibis.Corners {
		if i >= len(fields) {
			break
		}
		v, err := ParseValue(fields[i])
		if err != nil {
			return out, err
		}
		out.Set(c, v)
	}
	return out, nil
}

// FormatValue renders a float for configuration output; NA for unset.
func FormatValue(v float64) string {
	if ibis.IsNA(v) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// FormatTriple renders a corner triple as three space-separated tokens.
func FormatTriple(t ibis.TypMinMax) string {
	return fmt.Sprintf("%s %s %s", FormatValue(t.Typ), FormatValue(t.Min), FormatValue(t.Max))
}
