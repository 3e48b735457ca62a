package ibis

import (
	"testing"
)

func TestTypMinMaxPickFallsBackToTyp(t *testing.T) {
	tmm := TypOnly(3.3)
	if got := tmm.Pick(Min); got != 3.3 {
		t.Errorf("Pick(Min) = %v, want typ fallback 3.3", got)
	}
	if got := tmm.Pick(Max); got != 3.3 {
		t.Errorf("Pick(Max) = %v, want typ fallback 3.3", got)
	}

	tmm = NewTMM(3.3, 3.0, 3.6)
	if got := tmm.Pick(Min); got != 3.0 {
		t.Errorf("Pick(Min) = %v, want 3.0", got)
	}
	if got := tmm.Pick(Max); got != 3.6 {
		t.Errorf("Pick(Max) = %v, want 3.6", got)
	}
}

func TestTypMinMaxInherit(t *testing.T) {
	dst := TypMinMax{Typ: 1.8, Min: NA(), Max: NA()}
	dst.Inherit(NewTMM(3.3, 3.0, 3.6))
	if dst.Typ != 1.8 {
		t.Errorf("set corner overwritten: typ = %v", dst.Typ)
	}
	if dst.Min != 3.0 || dst.Max != 3.6 {
		t.Errorf("unset corners not inherited: min=%v max=%v", dst.Min, dst.Max)
	}
}

func TestReservedKindOf(t *testing.T) {
	cases := map[string]ReservedKind{
		"POWER":   ReservedPower,
		"power":   ReservedPower,
		"Gnd":     ReservedGND,
		"NC":      ReservedNC,
		"dummy":   ReservedDummy,
		"NoModel": ReservedNoModel,
		"driver":  ReservedNone,
		"":        ReservedNone,
	}
	for name, want := range cases {
		if got := ReservedKindOf(name); got != want {
			t.Errorf("ReservedKindOf(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestWavePointCountByVersion(t *testing.T) {
	doc := NewDocument()
	if got := doc.WavePointCount(); got != WavePoints {
		t.Errorf("3.2 points = %d, want %d", got, WavePoints)
	}
	doc.IbisVersion = "4.0"
	if got := doc.WavePointCount(); got != WavePointsWide {
		t.Errorf("4.0 points = %d, want %d", got, WavePointsWide)
	}
	doc.IbisVersion = "5.1"
	if got := doc.WavePointCount(); got != WavePointsWide {
		t.Errorf("5.1 points = %d, want %d", got, WavePointsWide)
	}
}

func TestFilePrefixDistinct(t *testing.T) {
	seen := map[string]bool{}
	for curve := range filePrefix {
		for _, c := range Corners {
			p := FilePrefix(curve, c)
			if p == "" {
				t.Fatalf("empty prefix for %v/%v", curve, c)
			}
			key := p
			if seen[key] {
				t.Errorf("prefix %q reused (curve %v corner %v)", p, curve, c)
			}
			seen[key] = true
		}
	}
}

func TestErrorKindClassification(t *testing.T) {
	err := Errorf(SimulationFailed, "no result file")
	k, ok := KindOf(err)
	if !ok || k != SimulationFailed {
		t.Fatalf("KindOf = %v, %v", k, ok)
	}
	if IsFatal(err) {
		t.Error("SimulationFailed should not be fatal")
	}
	if !IsFatal(Errorf(ConfigError, "bad field")) {
		t.Error("ConfigError should be fatal")
	}
}

func TestDecimateKeepsEndpoints(t *testing.T) {
	rows := make([]VIEntry, 250)
	for i := range rows {
		rows[i].V = float64(i)
	}
	out := Decimate(rows, MaxTableSize)
	if len(out) != MaxTableSize {
		t.Fatalf("decimated to %d rows, want %d", len(out), MaxTableSize)
	}
	if out[0].V != 0 {
		t.Errorf("first row V = %v, want 0", out[0].V)
	}
	if out[len(out)-1].V != 249 {
		t.Errorf("last row V = %v, want 249", out[len(out)-1].V)
	}
	for i := 1; i < len(out); i++ {
		if out[i].V <= out[i-1].V {
			t.Fatalf("decimated rows not increasing at %d: %v <= %v", i, out[i].V, out[i-1].V)
		}
	}
}
