package config

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/spice2ibis/pkg/ibis"
)

// EmitYAML serializes a Document's configuration back to the structured
// form: metadata, global defaults, models, and components with their pins
// and pin mappings. Component-scope overrides (ranges, references, timing,
// package parasitics and the scalar settings) and the diff-pin, series-pin
// and series-switch-group records are not written, so a Document that sets
// them does not re-parse to an equal Document.
func EmitYAML(doc *ibis.Document) ([]byte, error) {
	cfg := yamlConfig{
		IbisVersion:  doc.IbisVersion,
		FileName:     doc.FileName,
		FileRev:      doc.FileRev,
		Date:         doc.Date,
		Source:       doc.Source,
		Notes:        doc.Notes,
		Disclaimer:   doc.Disclaimer,
		Copyright:    doc.Copyright,
		SpiceType:    doc.SpiceType.String(),
		SpiceFile:    doc.SpiceFile,
		SpiceCommand: doc.SpiceCommand,
		Iterate:      doc.Iterate,
		Cleanup:      doc.Cleanup,
		Defaults:     defaultsToYAML(doc.Defaults),
	}

	for _, m := range doc.Models {
		cfg.Models = append(cfg.Models, modelToYAML(m))
	}
	for _, c := range doc.Components {
		yc := yamlComponent{
			Name:            c.Name,
			Manufacturer:    c.Manufacturer,
			PackageModel:    c.PackageModel,
			SpiceFile:       c.SpiceFile,
			SeriesSpiceFile: c.SeriesSpiceFile,
		}
		for _, p := range c.Pins {
			yp := yamlPin{
				Name:       p.Name,
				Node:       p.SpiceNode,
				Signal:     p.SignalName,
				Model:      p.ModelName,
				InputPin:   p.InputPin,
				EnablePin:  p.EnablePin,
				SeriesPin2: p.SeriesPin2,
				RPin:       optValue(p.RPin),
				LPin:       optValue(p.LPin),
				CPin:       optValue(p.CPin),
			}
			yc.Pins = append(yc.Pins, yp)
		}
		for _, pm := range c.PinMappings {
			yc.PinMapping = append(yc.PinMapping, yamlPinMapping{
				Pin:           pm.Pin,
				PulldownRef:   pm.PulldownRef,
				PullupRef:     pm.PullupRef,
				GndClampRef:   pm.GndClampRef,
				PowerClampRef: pm.PowerClampRef,
			})
		}
		cfg.Components = append(cfg.Components, yc)
	}

	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return nil, ibis.Errorf(ibis.EmitError, "yaml: %w", err)
	}
	return out, nil
}

func defaultsToYAML(d *ibis.Defaults) *yamlDefaults {
	y := &yamlDefaults{
		TempRange:     tripleOf(d.TempRange),
		VoltageRange:  tripleOf(d.VoltageRange),
		PullupRef:     tripleOf(d.PullupRef),
		PulldownRef:   tripleOf(d.PulldownRef),
		PowerClampRef: tripleOf(d.PowerClampRef),
		GndClampRef:   tripleOf(d.GndClampRef),
		Vil:           tripleOf(d.Vil),
		Vih:           tripleOf(d.Vih),
		Tr:            tripleOf(d.Tr),
		Tf:            tripleOf(d.Tf),
		CComp:         tripleOf(d.CComp),
		RPkg:          tripleOf(d.Parasitics.RPkg),
		LPkg:          tripleOf(d.Parasitics.LPkg),
		CPkg:          tripleOf(d.Parasitics.CPkg),
		RLoad:         optValue(d.Rload),
		DerateVIPct:   optNonZero(d.DerateVIPct),
		DerateRampPct: optNonZero(d.DerateRampPct),
		ClampTol:      optNonZero(d.ClampTol),
	}
	if d.SimTime > 0 {
		y.SimTime = optValue(d.SimTime)
	}
	return y
}

func modelToYAML(m *ibis.Model) yamlModel {
	ym := yamlModel{
		Name:            m.Name,
		Type:            m.Type.String(),
		NoModel:         m.NoModel,
		ModelFile:       m.ModelFile,
		ExtSpiceCmdFile: m.ExtSpiceCmdFile,
		Vinl:            tripleOf(m.Vinl),
		Vinh:            tripleOf(m.Vinh),
		Vmeas:           tripleOf(m.Vmeas),
		Vref:            tripleOf(m.Vref),
		Cref:            tripleOf(m.Cref),
		Rref:            tripleOf(m.Rref),
		Vil:             tripleOf(m.Vil),
		Vih:             tripleOf(m.Vih),
		Tr:              tripleOf(m.Tr),
		Tf:              tripleOf(m.Tf),
		CComp:           tripleOf(m.CComp),
		TempRange:       tripleOf(m.TempRange),
		VoltageRange:    tripleOf(m.VoltageRange),
		PullupRef:       tripleOf(m.PullupRef),
		PulldownRef:     tripleOf(m.PulldownRef),
		PowerClampRef:   tripleOf(m.PowerClampRef),
		GndClampRef:     tripleOf(m.GndClampRef),
		Rgnd:            tripleOf(m.Rgnd),
		Rpower:          tripleOf(m.Rpower),
		Rac:             tripleOf(m.Rac),
		Cac:             tripleOf(m.Cac),
		RLoad:           optNonZero(m.Rload),
		ClampTol:        optNonZero(m.ClampTol),
		DerateVIPct:     optNonZero(m.DerateVIPct),
		DerateRampPct:   optNonZero(m.DerateRampPct),
	}
	if m.Polarity == ibis.Inverting {
		ym.Polarity = "inverting"
	}
	if m.Enable == ibis.ActiveHigh {
		ym.Enable = "active_high"
	}
	if m.ModelFileMin != m.ModelFile {
		ym.ModelFileMin = m.ModelFileMin
	}
	if m.ModelFileMax != m.ModelFile {
		ym.ModelFileMax = m.ModelFileMax
	}
	if m.SimTime > 0 {
		ym.SimTime = optValue(m.SimTime)
	}
	for _, w := range m.RisingWave {
		ym.RisingWaves = append(ym.RisingWaves, waveToYAML(w))
	}
	for _, w := range m.FallingWave {
		ym.FallingWaves = append(ym.FallingWaves, waveToYAML(w))
	}
	if m.Series != nil {
		for _, v := range m.Series.VdsList {
			ym.VdsList = append(ym.VdsList, Value(v))
		}
		ym.RSeriesOff = tripleOf(m.Series.RSeriesOff)
	}
	return ym
}

func waveToYAML(w *ibis.WaveTable) yamlWave {
	return yamlWave{
		RFixture:    Value(w.RFixture),
		VFixture:    Value(w.VFixture),
		VFixtureMin: optValue(w.VFixtureMin),
		VFixtureMax: optValue(w.VFixtureMax),
		LFixture:    optValue(w.LFixture),
		CFixture:    optValue(w.CFixture),
		RDut:        optValue(w.RDut),
		LDut:        optValue(w.LDut),
		CDut:        optValue(w.CDut),
	}
}

func optValue(v float64) *Value {
	if ibis.IsNA(v) {
		return nil
	}
	out := Value(v)
	return &out
}

func optNonZero(v float64) *Value {
	if v == 0 || ibis.IsNA(v) {
		return nil
	}
	out := Value(v)
	return &out
}

// EmitFlat serializes a Document's configuration back to the flat keyword
// form. Of a component's overrides only the temperature and voltage ranges
// are written; a pin's series_pin2 and the diff-pin, series-pin and
// series-switch-group records are not written. Of a model's settings,
// C_comp, the temperature and voltage ranges, the four reference voltages,
// Rload, clamp tolerance and the derating percentages are not written.
func EmitFlat(doc *ibis.Document) []byte {
	var b bytes.Buffer

	kw := func(key, val string) {
		if val != "" {
			fmt.Fprintf(&b, "[%s] %s\n", key, val)
		}
	}
	para := func(key, val string) {
		if val == "" {
			return
		}
		lines := strings.Split(val, "\n")
		fmt.Fprintf(&b, "[%s] %s\n", key, lines[0])
		for _, line := range lines[1:] {
			fmt.Fprintf(&b, "+ %s\n", line)
		}
	}
	tmm := func(key string, t ibis.TypMinMax) {
		if !t.Empty() {
			fmt.Fprintf(&b, "[%s] %s\n", key, FormatTriple(t))
		}
	}

	kw("IBIS Ver", doc.IbisVersion)
	kw("File Name", doc.FileName)
	kw("File Rev", doc.FileRev)
	kw("Date", doc.Date)
	para("Source", doc.Source)
	para("Notes", doc.Notes)
	para("Disclaimer", doc.Disclaimer)
	para("Copyright", doc.Copyright)
	kw("Spice Type", doc.SpiceType.String())
	kw("Spice Command", doc.SpiceCommand)
	if doc.Iterate {
		b.WriteString("[Iterate]\n")
	}
	if doc.Cleanup {
		b.WriteString("[Cleanup]\n")
	}

	d := doc.Defaults
	tmm("Temperature Range", d.TempRange)
	tmm("Voltage Range", d.VoltageRange)
	tmm("Pullup Reference", d.PullupRef)
	tmm("Pulldown Reference", d.PulldownRef)
	tmm("POWER Clamp Reference", d.PowerClampRef)
	tmm("GND Clamp Reference", d.GndClampRef)
	tmm("Vil", d.Vil)
	tmm("Vih", d.Vih)
	tmm("Tr", d.Tr)
	tmm("Tf", d.Tf)
	tmm("C_comp", d.CComp)
	tmm("R_pkg", d.Parasitics.RPkg)
	tmm("L_pkg", d.Parasitics.LPkg)
	tmm("C_pkg", d.Parasitics.CPkg)
	if d.Rload != ibis.RloadDefault {
		kw("Rload", FormatValue(d.Rload))
	}
	if d.SimTime > 0 {
		kw("Sim Time", FormatValue(d.SimTime))
	}
	if d.DerateVIPct != 0 {
		kw("Derate VI", FormatValue(d.DerateVIPct))
	}
	if d.DerateRampPct != 0 {
		kw("Derate Ramp", FormatValue(d.DerateRampPct))
	}
	if d.ClampTol != 0 {
		kw("Clamp Tolerance", FormatValue(d.ClampTol))
	}

	for _, comp := range doc.Components {
		b.WriteString("\n")
		kw("Component", comp.Name)
		kw("Manufacturer", comp.Manufacturer)
		kw("Package Model", comp.PackageModel)
		kw("Spice File", comp.SpiceFile)
		kw("Series Spice File", comp.SeriesSpiceFile)
		tmm("Temperature Range", comp.TempRange)
		tmm("Voltage Range", comp.VoltageRange)
		b.WriteString("[Pin]\n")
		for _, p := range comp.Pins {
			fmt.Fprintf(&b, "%s %s %s %s", p.Name, p.SpiceNode, p.SignalName, p.ModelName)
			if !ibis.IsNA(p.RPin) || !ibis.IsNA(p.LPin) || !ibis.IsNA(p.CPin) {
				fmt.Fprintf(&b, " %s %s %s", FormatValue(p.RPin), FormatValue(p.LPin), FormatValue(p.CPin))
			}
			b.WriteString("\n")
			if p.InputPin != "" {
				fmt.Fprintf(&b, "-> %s\n", p.InputPin)
			}
			if p.EnablePin != "" {
				fmt.Fprintf(&b, "=> %s\n", p.EnablePin)
			}
		}
		if len(comp.PinMappings) > 0 {
			b.WriteString("[Pin Mapping]\n")
			for _, pm := range comp.PinMappings {
				fmt.Fprintf(&b, "%s %s %s %s %s\n", pm.Pin, pm.PulldownRef, pm.PullupRef,
					pm.GndClampRef, pm.PowerClampRef)
			}
		}
	}

	for _, m := range doc.Models {
		b.WriteString("\n")
		kw("Model", m.Name)
		if m.NoModel {
			b.WriteString("[NoModel]\n")
			continue
		}
		kw("Model Type", m.Type.String())
		if m.Polarity == ibis.Inverting {
			kw("Polarity", "Inverting")
		}
		if m.Enable == ibis.ActiveHigh {
			kw("Enable", "Active-High")
		}
		if m.ModelFile != "" {
			fmt.Fprintf(&b, "[Model File] %s %s %s\n", m.ModelFile, m.ModelFileMin, m.ModelFileMax)
		}
		kw("Ext Spice Cmd File", m.ExtSpiceCmdFile)
		tmm("Vinl", m.Vinl)
		tmm("Vinh", m.Vinh)
		tmm("Vmeas", m.Vmeas)
		tmm("Vref", m.Vref)
		tmm("Cref", m.Cref)
		tmm("Rref", m.Rref)
		tmm("Vil", m.Vil)
		tmm("Vih", m.Vih)
		tmm("Tr", m.Tr)
		tmm("Tf", m.Tf)
		tmm("Rgnd", m.Rgnd)
		tmm("Rpower", m.Rpower)
		tmm("Rac", m.Rac)
		tmm("Cac", m.Cac)
		if m.SimTime > 0 {
			kw("Sim Time", FormatValue(m.SimTime))
		}
		for _, w := range m.RisingWave {
			fmt.Fprintf(&b, "[Rising Waveform] %s\n", waveFixtureLine(w))
		}
		for _, w := range m.FallingWave {
			fmt.Fprintf(&b, "[Falling Waveform] %s\n", waveFixtureLine(w))
		}
		if m.Series != nil {
			if len(m.Series.VdsList) > 0 {
				toks := make([]string, len(m.Series.VdsList))
				for i, v := range m.Series.VdsList {
					toks[i] = FormatValue(v)
				}
				fmt.Fprintf(&b, "[Series VDS] %s\n", strings.Join(toks, " "))
			}
			fmt.Fprintf(&b, "[R Series] %s\n", FormatTriple(m.Series.RSeriesOff))
		}
	}

	return b.Bytes()
}

func waveFixtureLine(w *ibis.WaveTable) string {
	vals := []float64{
		w.RFixture, w.VFixture, w.VFixtureMin, w.VFixtureMax,
		w.LFixture, w.CFixture, w.RDut, w.LDut, w.CDut,
	}
	toks := make([]string, len(vals))
	for i, v := range vals {
		toks[i] = FormatValue(v)
	}
	return strings.Join(toks, " ")
}
