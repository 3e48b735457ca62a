package analyze

import (
	"math"
	"testing"

	"github.com/OpenTraceLab/spice2ibis/pkg/ibis"
	"github.com/OpenTraceLab/spice2ibis/pkg/spice"
)

func TestSubtractVI(t *testing.T) {
	enabled := &ibis.VITable{}
	disabled := &ibis.VITable{}
	for i := 0; i < 5; i++ {
		v := float64(i)
		enabled.Rows = append(enabled.Rows, ibis.VIEntry{V: v, I: ibis.NewTMM(10, 9, 11)})
		disabled.Rows = append(disabled.Rows, ibis.VIEntry{V: v, I: ibis.NewTMM(2, ibis.NA(), 3)})
	}
	SubtractVI(enabled, disabled)
	for i, e := range enabled.Rows {
		if e.I.Typ != 8 {
			t.Errorf("row %d typ = %v, want 8", i, e.I.Typ)
		}
		if !ibis.IsNA(e.I.Min) {
			t.Errorf("row %d min should be NA when either side is NA", i)
		}
		if e.I.Max != 8 {
			t.Errorf("row %d max = %v, want 8", i, e.I.Max)
		}
	}
}

func TestRailRelativeReversedAscending(t *testing.T) {
	raw := &ibis.VITable{}
	for i := 0; i <= 66; i++ {
		v := -3.3 + float64(i)*0.15
		raw.Rows = append(raw.Rows, ibis.VIEntry{V: v, I: ibis.TypOnly(-v * 0.01)})
	}
	out := railRelativeReversed(raw, 3.3)
	if out.Size() != raw.Size() {
		t.Fatalf("size = %d, want %d", out.Size(), raw.Size())
	}
	for i := 1; i < out.Size(); i++ {
		if out.Rows[i].V <= out.Rows[i-1].V {
			t.Fatalf("voltage not ascending at %d", i)
		}
	}
	// First output row is Vcc - lastRawV.
	want := 3.3 - raw.Rows[len(raw.Rows)-1].V
	if math.Abs(out.Rows[0].V-want) > 1e-12 {
		t.Errorf("first row V = %v, want %v", out.Rows[0].V, want)
	}
}

func TestClampTablesKeepTheirSide(t *testing.T) {
	raw := &ibis.VITable{}
	for i := 0; i <= 100; i++ {
		v := -3.3 + float64(i)*0.099
		raw.Rows = append(raw.Rows, ibis.VIEntry{V: v, I: ibis.TypOnly(0)})
	}
	pc := powerClampTable(raw, 3.3)
	for _, e := range pc.Rows {
		if e.V > 0.001 {
			t.Fatalf("power clamp row above rail-relative 0: %v", e.V)
		}
	}
	gc := gndClampTable(raw, 3.3)
	for _, e := range gc.Rows {
		if e.V > 3.3+1e-9 {
			t.Fatalf("gnd clamp kept row above rail: %v", e.V)
		}
	}
}

func TestDerateVI(t *testing.T) {
	table := &ibis.VITable{Rows: []ibis.VIEntry{
		{V: 0, I: ibis.TypOnly(1.0)},
	}}
	derateVI(table, 10)
	i := table.Rows[0].I
	if math.Abs(i.Min-0.9) > 1e-12 {
		t.Errorf("min = %v, want 0.9", i.Min)
	}
	if math.Abs(i.Max-1.1) > 1e-12 {
		t.Errorf("max = %v, want 1.1", i.Max)
	}
}

func rampSamples(n int, rise bool) []spice.TranPoint {
	// Linear edge from 0 to 3.3 V over 1 ns, flat afterwards.
	out := make([]spice.TranPoint, 0, n)
	for i := 0; i < n; i++ {
		ti := float64(i) * 2e-11
		v := 3.3 * ti / 1e-9
		if v > 3.3 {
			v = 3.3
		}
		if !rise {
			v = 3.3 - v
		}
		out = append(out, spice.TranPoint{T: ti, V: v})
	}
	return out
}

func TestMeasureRampRising(t *testing.T) {
	dv, dt, err := MeasureRamp(rampSamples(200, true))
	if err != nil {
		t.Fatalf("MeasureRamp: %v", err)
	}
	if math.Abs(dv-0.6*3.3) > 1e-6 {
		t.Errorf("dv = %v, want %v", dv, 0.6*3.3)
	}
	// 20%..80% of a 1 ns linear edge is 0.6 ns.
	if math.Abs(dt-0.6e-9) > 2e-11 {
		t.Errorf("dt = %v, want 0.6e-9", dt)
	}
}

func TestMeasureRampFalling(t *testing.T) {
	dv, dt, err := MeasureRamp(rampSamples(200, false))
	if err != nil {
		t.Fatalf("MeasureRamp: %v", err)
	}
	if dv <= 0 || dt <= 0 {
		t.Errorf("falling measurement dv=%v dt=%v", dv, dt)
	}
}

func TestMeasureRampRefusesFlatline(t *testing.T) {
	samples := []spice.TranPoint{}
	for i := 0; i < 50; i++ {
		samples = append(samples, spice.TranPoint{T: float64(i) * 1e-11, V: 0})
	}
	_, _, err := MeasureRamp(samples)
	if err == nil {
		t.Fatal("flat waveform accepted")
	}
	if k, _ := ibis.KindOf(err); k != ibis.DeriveError {
		t.Errorf("kind = %v, want DeriveError", k)
	}
}

func TestBinWaveCountsAndEndpoints(t *testing.T) {
	wave := ibis.NewWaveTable(50, 0)
	wave.Alloc(ibis.WavePoints)
	simTime := 10e-9

	// Sparse sampling: roughly one sample per ten bins.
	var samples []spice.TranPoint
	for i := 0; i <= 10; i++ {
		ti := float64(i) * 1e-9
		samples = append(samples, spice.TranPoint{T: ti, V: 3.3 * ti / simTime})
	}
	BinWave(wave, samples, ibis.Typ, simTime)

	if len(wave.Rows) != ibis.WavePoints {
		t.Fatalf("rows = %d, want %d", len(wave.Rows), ibis.WavePoints)
	}
	if wave.Rows[0].T != 0 {
		t.Errorf("t[0] = %v, want 0", wave.Rows[0].T)
	}
	if wave.Rows[len(wave.Rows)-1].T != simTime {
		t.Errorf("t[-1] = %v, want %v", wave.Rows[len(wave.Rows)-1].T, simTime)
	}
	prev := -1.0
	for i, row := range wave.Rows {
		if row.T <= prev {
			t.Fatalf("time not strictly increasing at %d", i)
		}
		prev = row.T
		if ibis.IsNA(row.V.Typ) {
			t.Fatalf("bin %d left unfilled", i)
		}
	}
	// Interpolated values stay on the linear trajectory.
	mid := wave.Rows[ibis.WavePoints/2]
	want := 3.3 * mid.T / simTime
	if math.Abs(mid.V.Typ-want) > 0.1 {
		t.Errorf("midpoint V = %v, want about %v", mid.V.Typ, want)
	}
}

func TestBinWaveAveragesDenseBins(t *testing.T) {
	wave := ibis.NewWaveTable(50, 0)
	wave.Alloc(ibis.WavePoints)
	simTime := 10e-9
	binTime := simTime / float64(ibis.WavePoints-1)

	// Two samples inside one bin average together.
	target := 30
	tc := float64(target) * binTime
	samples := []spice.TranPoint{
		{T: 0, V: 0},
		{T: tc - 0.2*binTime, V: 1.0},
		{T: tc - 0.1*binTime, V: 3.0},
		{T: simTime, V: 2.0},
	}
	BinWave(wave, samples, ibis.Typ, simTime)
	if got := wave.Rows[target].V.Typ; math.Abs(got-2.0) > 1e-9 {
		t.Errorf("bin %d = %v, want averaged 2.0", target, got)
	}
}

func TestApplyRampDerate(t *testing.T) {
	m := ibis.NewModel("driver")
	m.Ramp.DvRise = ibis.TypOnly(2.0)
	m.Ramp.DtRise = ibis.TypOnly(1e-9)
	ApplyRampDerate(m, 10)
	if math.Abs(m.Ramp.DtRise.Min-1.1e-9) > 1e-18 {
		t.Errorf("derated min dt = %v, want 1.1e-9", m.Ramp.DtRise.Min)
	}
	if math.Abs(m.Ramp.DtRise.Max-0.9e-9) > 1e-18 {
		t.Errorf("derated max dt = %v, want 0.9e-9", m.Ramp.DtRise.Max)
	}
	if m.Ramp.DvRise.Min != 2.0 {
		t.Errorf("dv min = %v, want copied typ", m.Ramp.DvRise.Min)
	}
}

func TestSortSeriesVI(t *testing.T) {
	raw := &ibis.VITable{Rows: []ibis.VIEntry{
		{V: 0, I: ibis.TypOnly(0)},
		{V: 1.65, I: ibis.TypOnly(1e-3)},
		{V: 3.3, I: ibis.TypOnly(2e-3)},
	}}
	out := SortSeriesVI(raw, ibis.NewTMM(3.3, 3.0, 3.6))
	if out.Rows[0].V != 0 || out.Rows[2].V != 3.3 {
		t.Errorf("series table: %+v", out.Rows)
	}
	for i := 1; i < out.Size(); i++ {
		if out.Rows[i].V <= out.Rows[i-1].V {
			t.Fatalf("series table not ascending at %d", i)
		}
	}
}
