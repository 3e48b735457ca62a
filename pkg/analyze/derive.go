package analyze

import (
	"math"
	"sort"

	"github.com/OpenTraceLab/spice2ibis/pkg/ibis"
	"github.com/OpenTraceLab/spice2ibis/pkg/spice"
)

// SubtractVI subtracts the disabled-state currents from the enabled sweep
// in place, point by point, leaving the driver transistor's contribution.
// A corner that is NA on either side stays NA in the result.
func SubtractVI(enabled, disabled *ibis.VITable) {
	if enabled.Size() == 0 || disabled.Size() == 0 {
		return
	}
	n := enabled.Size()
	if disabled.Size() < n {
		n = disabled.Size()
	}
	for i := 0; i < n; i++ {
		en := &enabled.Rows[i].I
		dis := disabled.Rows[i].I
		for _, c := range ibis.Corners {
			a, b := en.Get(c), dis.Get(c)
			if ibis.IsNA(a) || ibis.IsNA(b) {
				en.Set(c, ibis.NA())
				continue
			}
			en.Set(c, a-b)
		}
	}
}

// SortVIData turns the raw sweep tables into emission-ready ones: pad
// voltages become rail-relative where IBIS requires it, row order is made
// ascending in V, clamp tables keep only their side of the rail, and V/I
// derating is applied.
func SortVIData(model *ibis.Model, scope ibis.Scope) {
	if model.PullupData.Size() > 0 {
		setup := SetupSweep(ibis.CurvePullup, model.Type, scope)
		model.Pullup = railRelativeReversed(model.PullupData, setup.Vcc.Typ)
		derateVI(model.Pullup, model.DerateVIPct)
	}
	if model.PulldownData.Size() > 0 {
		model.Pulldown = cloneTable(model.PulldownData)
		derateVI(model.Pulldown, model.DerateVIPct)
	}
	if model.PowerClampData.Size() > 0 {
		setup := SetupSweep(ibis.CurvePowerClamp, model.Type, scope)
		model.PowerClamp = powerClampTable(model.PowerClampData, setup.Vcc.Typ)
		derateVI(model.PowerClamp, model.DerateVIPct)
	}
	if model.GndClampData.Size() > 0 {
		setup := SetupSweep(ibis.CurveGndClamp, model.Type, scope)
		model.GndClamp = gndClampTable(model.GndClampData, setup.Vcc.Typ)
		derateVI(model.GndClamp, model.DerateVIPct)
	}
}

// railRelativeReversed rewrites a pullup-family sweep to Vcc-relative
// voltages (Vtable = Vcc - Vpad) and reverses the rows so V ascends.
func railRelativeReversed(raw *ibis.VITable, vccTyp float64) *ibis.VITable {
	out := &ibis.VITable{Rows: make([]ibis.VIEntry, 0, raw.Size())}
	for i := raw.Size() - 1; i >= 0; i-- {
		e := raw.Rows[i]
		e.V = vccTyp - e.V
		out.Rows = append(out.Rows, e)
	}
	sortByVoltage(out)
	return out
}

// powerClampTable keeps the rows at and above the clamp rail, rewritten
// Vcc-relative and ascending.
func powerClampTable(raw *ibis.VITable, vccTyp float64) *ibis.VITable {
	out := &ibis.VITable{}
	for i := raw.Size() - 1; i >= 0; i-- {
		e := raw.Rows[i]
		if e.V < vccTyp {
			break
		}
		out.Rows = append(out.Rows, ibis.VIEntry{V: vccTyp - e.V, I: e.I})
	}
	sortByVoltage(out)
	return out
}

// gndClampTable keeps the rows at and below the clamp span's upper rail.
func gndClampTable(raw *ibis.VITable, vccTyp float64) *ibis.VITable {
	out := &ibis.VITable{}
	for _, e := range raw.Rows {
		if e.V > vccTyp {
			break
		}
		out.Rows = append(out.Rows, e)
	}
	sortByVoltage(out)
	return out
}

// SortSeriesVI rewrites a series sweep Vcc-relative and ascending.
func SortSeriesVI(raw *ibis.VITable, vcc ibis.TypMinMax) *ibis.VITable {
	out := &ibis.VITable{Rows: make([]ibis.VIEntry, 0, raw.Size())}
	for i := raw.Size() - 1; i >= 0; i-- {
		e := raw.Rows[i]
		out.Rows = append(out.Rows, ibis.VIEntry{V: vcc.Typ - e.V, I: e.I})
	}
	sortByVoltage(out)
	return out
}

func cloneTable(t *ibis.VITable) *ibis.VITable {
	out := &ibis.VITable{Rows: make([]ibis.VIEntry, t.Size())}
	copy(out.Rows, t.Rows)
	sortByVoltage(out)
	return out
}

func sortByVoltage(t *ibis.VITable) {
	sort.SliceStable(t.Rows, func(i, j int) bool { return t.Rows[i].V < t.Rows[j].V })
	// Collapse duplicate voltages so the emitted table is strictly
	// monotonic.
	out := t.Rows[:0]
	for _, e := range t.Rows {
		if len(out) > 0 && e.V == out[len(out)-1].V {
			continue
		}
		out = append(out, e)
	}
	t.Rows = out
}

// derateVI widens the min/max current columns by pct when explicit corner
// simulations were unavailable or conservative margins are requested.
func derateVI(t *ibis.VITable, pct float64) {
	if pct == 0 || t.Size() == 0 {
		return
	}
	f := pct / 100.0
	for i := range t.Rows {
		e := &t.Rows[i].I
		if ibis.IsNA(e.Min) && !ibis.IsNA(e.Typ) {
			e.Min = e.Typ
		}
		if ibis.IsNA(e.Max) && !ibis.IsNA(e.Typ) {
			e.Max = e.Typ
		}
		if !ibis.IsNA(e.Min) {
			e.Min -= e.Min * f
		}
		if !ibis.IsNA(e.Max) {
			e.Max += e.Max * f
		}
	}
}

// MeasureRamp finds the 20%-80% traversal of the swing in a transient
// record and returns |dV| and dt. The measurement refuses to guess when
// the waveform never crosses its 80% level.
func MeasureRamp(samples []spice.TranPoint) (dv, dt float64, err error) {
	if len(samples) < 2 {
		return 0, 0, ibis.Errorf(ibis.DeriveError, "transient too short for ramp measurement")
	}
	pts := make([]spice.TranPoint, len(samples))
	copy(pts, samples)
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].T < pts[j].T })

	v0, v1 := pts[0].V, pts[len(pts)-1].V
	if math.Abs(v1-v0) < 1e-9 {
		return 0, 0, ibis.Errorf(ibis.DeriveError, "no swing in transient (v0=%g v1=%g)", v0, v1)
	}
	v20 := v0 + 0.2*(v1-v0)
	v80 := v0 + 0.8*(v1-v0)
	rising := v1 >= v0

	var t20, t80 float64
	found20, found80 := false, false
	prev := pts[0]
	for _, p := range pts[1:] {
		crossed := func(level float64) bool {
			if rising {
				return p.V >= level
			}
			return p.V <= level
		}
		if !found20 && crossed(v20) {
			t20 = lerpTime(prev, p, v20)
			found20 = true
		}
		if !found80 && crossed(v80) {
			t80 = lerpTime(prev, p, v80)
			found80 = true
			break
		}
		prev = p
	}
	if !found20 || !found80 {
		return 0, 0, ibis.Errorf(ibis.DeriveError,
			"waveform never reached the 20%%/80%% levels (v0=%g v1=%g)", v0, v1)
	}
	return math.Abs(v80 - v20), t80 - t20, nil
}

func lerpTime(a, b spice.TranPoint, level float64) float64 {
	if math.Abs(b.V-a.V) < 1e-30 {
		return b.T
	}
	return a.T + (level-a.V)*(b.T-a.T)/(b.V-a.V)
}

// ApplyRampDerate scales the min/max ramp time bases by pct: min corners
// get slower, max corners faster.
func ApplyRampDerate(model *ibis.Model, pct float64) {
	if pct == 0 {
		return
	}
	f := pct / 100.0
	for _, dt := range []*ibis.TypMinMax{&model.Ramp.DtRise, &model.Ramp.DtFall} {
		if ibis.IsNA(dt.Min) && !ibis.IsNA(dt.Typ) {
			dt.Min = dt.Typ
		}
		if ibis.IsNA(dt.Max) && !ibis.IsNA(dt.Typ) {
			dt.Max = dt.Typ
		}
		if !ibis.IsNA(dt.Min) {
			dt.Min *= 1 + f
		}
		if !ibis.IsNA(dt.Max) {
			dt.Max *= 1 - f
		}
	}
	for _, dv := range []*ibis.TypMinMax{&model.Ramp.DvRise, &model.Ramp.DvFall} {
		if ibis.IsNA(dv.Min) && !ibis.IsNA(dv.Typ) {
			dv.Min = dv.Typ
		}
		if ibis.IsNA(dv.Max) && !ibis.IsNA(dv.Typ) {
			dv.Max = dv.Typ
		}
	}
}

// BinWave folds raw transient samples into the wave table's fixed bins for
// one corner. Samples landing in a bin are averaged, empty bins are
// linearly interpolated from their filled neighbors, and the final row is
// pinned to the simulation window so the waveform keeps its terminal time.
func BinWave(wave *ibis.WaveTable, samples []spice.TranPoint, corner ibis.Corner, simTime float64) {
	n := len(wave.Rows)
	if n < 2 || simTime <= 0 || len(samples) == 0 {
		return
	}
	binTime := simTime / float64(n-1)

	sums := make([]float64, n)
	counts := make([]int, n)
	for _, p := range samples {
		if p.T < 0 || p.T > simTime {
			continue
		}
		bin := int(math.Ceil(p.T / binTime))
		if bin > n-1 {
			bin = n - 1
		}
		sums[bin] += p.V
		counts[bin]++
	}

	// Average the filled bins.
	for i := 0; i < n; i++ {
		wave.Rows[i].T = float64(i) * binTime
		if counts[i] > 0 {
			wave.Rows[i].V.Set(corner, sums[i]/float64(counts[i]))
		}
	}

	// Interpolate the empty ones between filled neighbors; the edges
	// extend the nearest filled value.
	firstFilled, lastFilled := -1, -1
	for i := 0; i < n; i++ {
		if counts[i] > 0 {
			if firstFilled < 0 {
				firstFilled = i
			}
			lastFilled = i
		}
	}
	if firstFilled < 0 {
		return
	}
	for i := 0; i < firstFilled; i++ {
		wave.Rows[i].V.Set(corner, wave.Rows[firstFilled].V.Get(corner))
	}
	for i := lastFilled + 1; i < n; i++ {
		wave.Rows[i].V.Set(corner, wave.Rows[lastFilled].V.Get(corner))
	}
	prev := firstFilled
	for i := firstFilled + 1; i <= lastFilled; i++ {
		if counts[i] == 0 {
			continue
		}
		if i > prev+1 {
			v0 := wave.Rows[prev].V.Get(corner)
			v1 := wave.Rows[i].V.Get(corner)
			t0 := wave.Rows[prev].T
			t1 := wave.Rows[i].T
			for j := prev + 1; j < i; j++ {
				frac := (wave.Rows[j].T - t0) / (t1 - t0)
				wave.Rows[j].V.Set(corner, v0+frac*(v1-v0))
			}
		}
		prev = i
	}

	// Terminal time is the simulation window by construction.
	wave.Rows[n-1].T = simTime
}
