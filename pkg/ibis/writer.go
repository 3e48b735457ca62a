package ibis

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// Writer serializes a Document to the .ibs grammar. Section order, column
// widths, and the NA sentinel are fixed so the output survives the external
// checker's parser and stays byte-stable across runs.
type Writer struct {
	doc *Document
}

// NewWriter wraps a completed document.
func NewWriter(doc *Document) *Writer { return &Writer{doc: doc} }

// WriteFile emits the document to path.
func (w *Writer) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return Wrap(EmitError, err)
	}
	defer f.Close()
	if err := w.Write(f); err != nil {
		return err
	}
	return nil
}

// Write emits the document in strict section order: header, components,
// models, [End].
func (w *Writer) Write(out io.Writer) error {
	b := bufio.NewWriter(out)

	w.header(b)
	for _, comp := range w.doc.Components {
		w.component(b, comp)
	}
	for _, m := range w.doc.Models {
		if m.NoModel {
			continue
		}
		w.model(b, m)
	}
	b.WriteString("[End]\n")

	if err := b.Flush(); err != nil {
		return Wrap(EmitError, err)
	}
	return nil
}

func (w *Writer) header(b *bufio.Writer) {
	bar := "|" + strings.Repeat("*", 78) + "\n"
	b.WriteString(bar)
	fmt.Fprintf(b, "| IBIS file %s created by spice2ibis\n", w.doc.FileName)
	b.WriteString(bar)
	b.WriteString("\n")

	keyword(b, "[IBIS Ver]", w.doc.IbisVersion)
	keyword(b, "[File Name]", w.doc.FileName)
	keyword(b, "[File Rev]", w.doc.FileRev)
	keyword(b, "[Date]", w.doc.Date)
	multiline(b, "[Source]", w.doc.Source)
	multiline(b, "[Notes]", w.doc.Notes)
	multiline(b, "[Disclaimer]", w.doc.Disclaimer)
	multiline(b, "[Copyright]", w.doc.Copyright)
	b.WriteString("\n")
}

func (w *Writer) component(b *bufio.Writer, comp *Component) {
	banner(b, "Component", comp.Name)
	keyword(b, "[Component]", comp.Name)
	keyword(b, "[Manufacturer]", comp.Manufacturer)

	b.WriteString("[Package]\n")
	b.WriteString("| variable       typ          min          max\n")
	p := comp.Parasitics
	if p == nil {
		pp := EmptyParasitics()
		p = &pp
	}
	fmt.Fprintf(b, "R_pkg     %s\n", tmmColumns(p.RPkg))
	fmt.Fprintf(b, "L_pkg     %s\n", tmmColumns(p.LPkg))
	fmt.Fprintf(b, "C_pkg     %s\n", tmmColumns(p.CPkg))
	b.WriteString("\n")

	if comp.PackageModel != "" {
		keyword(b, "[Package Model]", comp.PackageModel)
		b.WriteString("\n")
	}

	if len(comp.Pins) > 0 {
		b.WriteString("[Pin]  signal_name          model_name           R_pin     L_pin     C_pin\n")
		for _, pin := range comp.Pins {
			w.pinLine(b, pin)
		}
		b.WriteString("\n")
	}

	if comp.HasPinMapping() {
		b.WriteString("[Pin Mapping]  pulldown_ref    pullup_ref      gnd_clamp_ref   power_clamp_ref\n")
		for _, pm := range comp.PinMappings {
			fmt.Fprintf(b, "%-6s %-15s %-15s %-15s %-15s\n",
				pm.Pin, pm.PulldownRef, pm.PullupRef, pm.GndClampRef, pm.PowerClampRef)
		}
		b.WriteString("\n")
	}

	if len(comp.DiffPins) > 0 {
		b.WriteString("[Diff Pin]  inv_pin  vdiff  tdelay_typ  tdelay_min  tdelay_max\n")
		for _, dp := range comp.DiffPins {
			fmt.Fprintf(b, "%-6s %-8s %8s %10s %10s %10s\n",
				dp.Pin, dp.InvPin, num(dp.Vdiff.Typ),
				num(dp.TdelayTyp), num(dp.TdelayMin), num(dp.TdelayMax))
		}
		b.WriteString("\n")
	}

	if len(comp.SeriesPins) > 0 {
		b.WriteString("[Series Pin Mapping]  pin_2  model_name  function_table_group\n")
		for _, sp := range comp.SeriesPins {
			fmt.Fprintf(b, "%-6s %-6s %-20s %s\n", sp.Pin1, sp.Pin2, sp.ModelName, sp.Group)
		}
		b.WriteString("\n")
	}

	if len(comp.SwitchGroups) > 0 {
		b.WriteString("[Series Switch Groups]\n")
		for _, g := range comp.SwitchGroups {
			fmt.Fprintf(b, "%s %s /\n", g.State, strings.Join(g.Pins, " "))
		}
		b.WriteString("\n")
	}

	footer(b, "Component")
}

func (w *Writer) pinLine(b *bufio.Writer, pin *Pin) {
	// Pins bound to a nomodel model keep their metadata as a comment line.
	if pin.Model != nil && pin.Model.NoModel {
		fmt.Fprintf(b, "| %s %s %s\n", pin.Name, pin.SignalName, pin.ModelName)
		return
	}
	r, l, c := "", "", ""
	if !IsNA(pin.RPin) {
		r = num(pin.RPin)
	}
	if !IsNA(pin.LPin) {
		l = num(pin.LPin)
	}
	if !IsNA(pin.CPin) {
		c = num(pin.CPin)
	}
	fmt.Fprintf(b, "%-6s %-20s %-20s %9s %9s %9s\n",
		pin.Name, pin.SignalName, pin.ModelName, r, l, c)
}

func (w *Writer) model(b *bufio.Writer, m *Model) {
	banner(b, "Model", m.Name)
	keyword(b, "[Model]", m.Name)
	keyword(b, "Model_type", m.Type.String())
	keyword(b, "Polarity", m.Polarity.String())
	if m.Type != ModelInput && m.Type != ModelInputECL && m.Type != ModelTerminator {
		keyword(b, "Enable", m.Enable.String())
	}
	if !IsNA(m.Vinl.Typ) {
		keyword(b, "Vinl", fmt.Sprintf("%sV", num(m.Vinl.Typ)))
	}
	if !IsNA(m.Vinh.Typ) {
		keyword(b, "Vinh", fmt.Sprintf("%sV", num(m.Vinh.Typ)))
	}
	if !IsNA(m.Vmeas.Typ) {
		keyword(b, "Vmeas", fmt.Sprintf("%sV", num(m.Vmeas.Typ)))
	}
	if !IsNA(m.Vref.Typ) {
		keyword(b, "Vref", fmt.Sprintf("%sV", num(m.Vref.Typ)))
	}
	if !IsNA(m.Cref.Typ) {
		keyword(b, "Cref", fmt.Sprintf("%sF", num(m.Cref.Typ)))
	}
	if !IsNA(m.Rref.Typ) {
		keyword(b, "Rref", num(m.Rref.Typ))
	}
	fmt.Fprintf(b, "C_comp    %s\n", tmmColumns(m.CComp))
	b.WriteString("\n")

	for _, sec := range []struct {
		key string
		tmm TypMinMax
	}{
		{"[Temperature Range]", m.TempRange},
		{"[Voltage Range]", m.VoltageRange},
		{"[Pullup Reference]", m.PullupRef},
		{"[Pulldown Reference]", m.PulldownRef},
		{"[POWER Clamp Reference]", m.PowerClampRef},
		{"[GND Clamp Reference]", m.GndClampRef},
	} {
		if !sec.tmm.Empty() {
			fmt.Fprintf(b, "%-24s %s\n", sec.key, tmmColumns(sec.tmm))
		}
	}
	b.WriteString("\n")

	if m.Type == ModelTerminator {
		w.terminator(b, m)
	}

	w.viTable(b, "[Pulldown]", m.Pulldown, 0)
	w.viTable(b, "[Pullup]", m.Pullup, 0)
	w.viTable(b, "[GND Clamp]", m.GndClamp, m.ClampTol)
	w.viTable(b, "[POWER Clamp]", m.PowerClamp, m.ClampTol)

	if m.Type == ModelSeries || m.Type == ModelSeriesSwitch {
		w.series(b, m)
	}

	if !IsNA(m.Ramp.DvRise.Typ) || !IsNA(m.Ramp.DvFall.Typ) {
		w.ramp(b, m)
	}

	for _, wave := range m.RisingWave {
		w.waveform(b, "Rising", wave)
	}
	for _, wave := range m.FallingWave {
		w.waveform(b, "Falling", wave)
	}

	footer(b, "Model")
}

func (w *Writer) terminator(b *bufio.Writer, m *Model) {
	for _, sec := range []struct {
		key string
		tmm TypMinMax
	}{
		{"Rgnd", m.Rgnd},
		{"Rpower", m.Rpower},
		{"Rac", m.Rac},
		{"Cac", m.Cac},
	} {
		if !sec.tmm.Empty() {
			fmt.Fprintf(b, "%-9s %s\n", sec.key, tmmColumns(sec.tmm))
		}
	}
	b.WriteString("\n")
}

func (w *Writer) series(b *bufio.Writer, m *Model) {
	if m.Series == nil {
		return
	}
	if m.Series.OnState && len(m.SeriesVITables) > 0 {
		b.WriteString("[On]\n")
		for i, t := range m.SeriesVITables {
			if i >= len(m.Series.VdsList) {
				break
			}
			fmt.Fprintf(b, "[Series Current]  vds = %s\n", num(m.Series.VdsList[i]))
			w.viRows(b, t, 0)
		}
	}
	if m.Series.OffState {
		b.WriteString("[Off]\n")
		fmt.Fprintf(b, "[R Series] %s\n\n", tmmColumns(m.Series.RSeriesOff))
	}
}

// viTable prints one V/I section, suppressing currents below tol, capped at
// MaxTableSize rows by decimation.
func (w *Writer) viTable(b *bufio.Writer, key string, t *VITable, tol float64) {
	if t.Size() == 0 {
		return
	}
	fmt.Fprintf(b, "%s\n", key)
	w.viRows(b, t, tol)
}

func (w *Writer) viRows(b *bufio.Writer, t *VITable, tol float64) {
	b.WriteString("| Voltage     I(typ)        I(min)        I(max)\n")
	rows := Decimate(t.Rows, MaxTableSize)
	for _, e := range rows {
		i := e.I
		if tol > 0 {
			if !IsNA(i.Typ) && math.Abs(i.Typ) < tol {
				i.Typ = 0
			}
			if !IsNA(i.Min) && math.Abs(i.Min) < tol {
				i.Min = 0
			}
			if !IsNA(i.Max) && math.Abs(i.Max) < tol {
				i.Max = 0
			}
		}
		fmt.Fprintf(b, "%11s  %12s  %12s  %12s\n",
			num(e.V), num(i.Typ), num(i.Min), num(i.Max))
	}
	b.WriteString("\n")
}

func (w *Writer) ramp(b *bufio.Writer, m *Model) {
	b.WriteString("[Ramp]\n")
	b.WriteString("| variable       typ          min          max\n")
	rampLine(b, "dV/dt_r", m.Ramp.DvRise, m.Ramp.DtRise)
	rampLine(b, "dV/dt_f", m.Ramp.DvFall, m.Ramp.DtFall)
	if m.Rload > 0 {
		fmt.Fprintf(b, "R_load = %s\n", num(m.Rload))
	}
	b.WriteString("\n")
}

func rampLine(b *bufio.Writer, label string, dv, dt TypMinMax) {
	cols := make([]string, 0, 3)
	for _, c := range Corners {
		dvv, dtv := dv.Get(c), dt.Get(c)
		if IsNA(dvv) || IsNA(dtv) || dtv == 0 {
			cols = append(cols, "NA")
			continue
		}
		cols = append(cols, fmt.Sprintf("%s/%s", num(dvv), num(dtv)))
	}
	fmt.Fprintf(b, "%-10s %14s %14s %14s\n", label, cols[0], cols[1], cols[2])
}

func (w *Writer) waveform(b *bufio.Writer, direction string, wave *WaveTable) {
	if len(wave.Rows) == 0 {
		return
	}
	fmt.Fprintf(b, "[%s Waveform]\n", direction)
	fmt.Fprintf(b, "R_fixture = %s\n", num(wave.RFixture))
	fmt.Fprintf(b, "V_fixture = %s\n", num(wave.VFixture))
	for _, p := range []struct {
		key string
		val float64
	}{
		{"V_fixture_min", wave.VFixtureMin},
		{"V_fixture_max", wave.VFixtureMax},
		{"L_fixture", wave.LFixture},
		{"C_fixture", wave.CFixture},
		{"R_dut", wave.RDut},
		{"L_dut", wave.LDut},
		{"C_dut", wave.CDut},
	} {
		if !IsNA(p.val) {
			fmt.Fprintf(b, "%s = %s\n", p.key, num(p.val))
		}
	}
	b.WriteString("| time        V(typ)        V(min)        V(max)\n")
	for _, e := range wave.Rows {
		fmt.Fprintf(b, "%11s  %12s  %12s  %12s\n",
			num(e.T), num(e.V.Typ), num(e.V.Min), num(e.V.Max))
	}
	b.WriteString("\n")
}

// Decimate reduces rows to at most max entries, always keeping the first
// and last row so the table endpoints survive.
func Decimate(rows []VIEntry, max int) []VIEntry {
	n := len(rows)
	if n <= max {
		return rows
	}
	out := make([]VIEntry, 0, max)
	step := float64(n-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(float64(i)*step + 0.5)
		if idx > n-1 {
			idx = n - 1
		}
		out = append(out, rows[idx])
	}
	out[max-1] = rows[n-1]
	return out
}

func banner(b *bufio.Writer, kind, name string) {
	bar := "|" + strings.Repeat("*", 78) + "\n"
	b.WriteString(bar)
	pad := (78 - len(kind) - len(name) - 1) / 2
	if pad < 1 {
		pad = 1
	}
	fmt.Fprintf(b, "|%s%s %s\n", strings.Repeat(" ", pad), kind, name)
	b.WriteString(bar)
}

func footer(b *bufio.Writer, kind string) {
	fmt.Fprintf(b, "| End of %s\n\n", kind)
}

func keyword(b *bufio.Writer, key, value string) {
	if value != "" {
		fmt.Fprintf(b, "%s %s\n", key, value)
	}
}

func multiline(b *bufio.Writer, key, value string) {
	if value == "" {
		return
	}
	for _, line := range strings.Split(value, "\n") {
		fmt.Fprintf(b, "%s %s\n", key, line)
	}
	b.WriteString("\n")
}

// num formats one table number in fixed-precision scientific notation, or
// NA for an unset value.
func num(v float64) string {
	if IsNA(v) {
		return "NA"
	}
	if v == 0 {
		return "0.0000e+00"
	}
	return fmt.Sprintf("%1.4e", v)
}

// tmmColumns renders a corner triple as three aligned columns.
func tmmColumns(t TypMinMax) string {
	return fmt.Sprintf("%12s %12s %12s", num(t.Typ), num(t.Min), num(t.Max))
}
