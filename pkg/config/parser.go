package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/participle/v2"

	"github.com/OpenTraceLab/spice2ibis/pkg/ibis"
)

// Parser reads the flat keyword-tagged configuration form.
type Parser struct {
	parser *participle.Parser[flatFile]
}

// NewParser builds the flat-form parser instance.
func NewParser() (*Parser, error) {
	parser, err := participle.Build[flatFile](
		participle.Lexer(FlatLexer),
		participle.Elide("Comment", "Whitespace"),
		participle.UseLookahead(2),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build parser: %w", err)
	}
	return &Parser{parser: parser}, nil
}

// ParseFile loads a flat configuration from disk and maps it onto a
// Document. Include directives are resolved relative to the file.
func (p *Parser) ParseFile(filename string) (*ibis.Document, error) {
	sections, err := p.sectionsFromFile(filename, 0)
	if err != nil {
		return nil, err
	}
	doc, err := mapSections(sections)
	if err != nil {
		return nil, err
	}
	if doc.FileName == "" || doc.FileName == "buffer.ibs" {
		base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
		doc.FileName = base + ".ibs"
	}
	return doc, nil
}

// ParseString maps an in-memory flat configuration onto a Document.
// Include directives are resolved relative to the working directory.
func (p *Parser) ParseString(input string) (*ibis.Document, error) {
	file, err := p.parser.ParseString("", input)
	if err != nil {
		return nil, ibis.Errorf(ibis.ConfigError, "parse error: %w", err)
	}
	sections, err := p.splice(file.Sections, ".", 0)
	if err != nil {
		return nil, err
	}
	return mapSections(sections)
}

const maxIncludeDepth = 8

func (p *Parser) sectionsFromFile(filename string, depth int) ([]*flatSection, error) {
	if depth > maxIncludeDepth {
		return nil, ibis.Errorf(ibis.ConfigError, "include nesting too deep at %s", filename)
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, ibis.Errorf(ibis.ResourceError, "unreadable configuration: %w", err)
	}
	defer f.Close()

	file, err := p.parser.Parse(filename, f)
	if err != nil {
		return nil, ibis.Errorf(ibis.ConfigError, "parse error in %s: %w", filename, err)
	}
	return p.splice(file.Sections, filepath.Dir(filename), depth)
}

// splice expands [include] sections in place, preserving order.
func (p *Parser) splice(sections []*flatSection, dir string, depth int) ([]*flatSection, error) {
	out := make([]*flatSection, 0, len(sections))
	for _, s := range sections {
		if s.Name() != "include" {
			out = append(out, s)
			continue
		}
		path := s.Value()
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		inner, err := p.sectionsFromFile(path, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, inner...)
	}
	return out, nil
}

// mapSections is the semantic pass: it walks the ordered section list with
// a three-state scope (document, component, model) and fills the tree.
func mapSections(sections []*flatSection) (*ibis.Document, error) {
	doc := ibis.NewDocument()
	var comp *ibis.Component
	var model *ibis.Model

	for _, s := range sections {
		name := s.Name()
		switch name {

		// ---- header ----
		case "ibis ver":
			doc.IbisVersion = s.Value()
		case "file name":
			doc.FileName = s.Value()
		case "file rev":
			doc.FileRev = s.Value()
		case "date":
			doc.Date = s.Value()
		case "source":
			doc.Source = s.Paragraph()
		case "notes":
			doc.Notes = s.Paragraph()
		case "disclaimer":
			doc.Disclaimer = s.Paragraph()
		case "copyright":
			doc.Copyright = s.Paragraph()

		// ---- run control ----
		case "spice type":
			st, err := ParseSpiceType(s.Value())
			if err != nil {
				return nil, err
			}
			doc.SpiceType = st
		case "spice command":
			doc.SpiceCommand = s.Value()
		case "iterate":
			doc.Iterate = flagValue(s)
		case "cleanup":
			doc.Cleanup = flagValue(s)

		// ---- scope openers ----
		case "component":
			comp = ibis.NewComponent(s.Value())
			doc.Components = append(doc.Components, comp)
			model = nil
		case "model":
			model = ibis.NewModel(s.Value())
			doc.Models = append(doc.Models, model)

		default:
			var err error
			switch {
			case model != nil:
				err = mapModelSection(model, name, s)
			case comp != nil:
				err = mapComponentSection(doc, comp, name, s)
			default:
				err = mapGlobalSection(doc, name, s)
			}
			if err != nil {
				return nil, err
			}
		}
	}
	if err := ibis.Complete(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// flagValue reads a 0/1 switch section; a bare keyword means enabled.
func flagValue(s *flatSection) bool {
	v := strings.TrimSpace(s.Value())
	return v == "" || v == "1"
}

// ParseSpiceType maps a simulator name to its dialect.
func ParseSpiceType(v string) (ibis.SpiceType, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "hspice", "":
		return ibis.HSPICE, nil
	case "spectre":
		return ibis.Spectre, nil
	case "eldo":
		return ibis.Eldo, nil
	}
	return ibis.HSPICE, ibis.Errorf(ibis.ConfigError, "unknown spice type %q", v)
}

// ParseModelType maps a configuration token to a model type.
func ParseModelType(v string) (ibis.ModelType, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "input":
		return ibis.ModelInput, nil
	case "output":
		return ibis.ModelOutput, nil
	case "i/o", "io":
		return ibis.ModelIO, nil
	case "3-state", "three-state", "3state":
		return ibis.ModelThreeState, nil
	case "open_drain":
		return ibis.ModelOpenDrain, nil
	case "open_sink":
		return ibis.ModelOpenSink, nil
	case "open_source":
		return ibis.ModelOpenSource, nil
	case "i/o_open_drain", "io_open_drain":
		return ibis.ModelIOOpenDrain, nil
	case "i/o_open_sink", "io_open_sink":
		return ibis.ModelIOOpenSink, nil
	case "i/o_open_source", "io_open_source":
		return ibis.ModelIOOpenSource, nil
	case "input_ecl":
		return ibis.ModelInputECL, nil
	case "output_ecl", "ecl":
		return ibis.ModelOutputECL, nil
	case "i/o_ecl", "io_ecl":
		return ibis.ModelIOECL, nil
	case "terminator":
		return ibis.ModelTerminator, nil
	case "series":
		return ibis.ModelSeries, nil
	case "series_switch":
		return ibis.ModelSeriesSwitch, nil
	}
	return ibis.ModelUnknown, ibis.Errorf(ibis.ConfigError, "unknown model type %q", v)
}

func triple(s *flatSection) (ibis.TypMinMax, error) {
	t, err := ParseTriple(strings.Fields(s.Value()))
	if err != nil {
		return t, ibis.Errorf(ibis.ConfigError, "%s: %w", s.Keyword, err)
	}
	return t, nil
}

func scalar(s *flatSection) (float64, error) {
	v, err := ParseValue(s.Value())
	if err != nil {
		return 0, ibis.Errorf(ibis.ConfigError, "%s: %w", s.Keyword, err)
	}
	return v, nil
}

func mapGlobalSection(doc *ibis.Document, name string, s *flatSection) error {
	d := doc.Defaults
	switch name {
	case "temperature range":
		return setTriple(&d.TempRange, s)
	case "voltage range":
		return setTriple(&d.VoltageRange, s)
	case "pullup reference":
		return setTriple(&d.PullupRef, s)
	case "pulldown reference":
		return setTriple(&d.PulldownRef, s)
	case "power clamp reference":
		return setTriple(&d.PowerClampRef, s)
	case "gnd clamp reference":
		return setTriple(&d.GndClampRef, s)
	case "vil":
		return setTriple(&d.Vil, s)
	case "vih":
		return setTriple(&d.Vih, s)
	case "tr":
		return setTriple(&d.Tr, s)
	case "tf":
		return setTriple(&d.Tf, s)
	case "c_comp":
		return setTriple(&d.CComp, s)
	case "r_pkg":
		return setTriple(&d.Parasitics.RPkg, s)
	case "l_pkg":
		return setTriple(&d.Parasitics.LPkg, s)
	case "c_pkg":
		return setTriple(&d.Parasitics.CPkg, s)
	case "rload":
		return setScalar(&d.Rload, s)
	case "sim time":
		return setScalar(&d.SimTime, s)
	case "derate vi", "derate vi pct":
		return setScalar(&d.DerateVIPct, s)
	case "derate ramp", "derate ramp pct":
		return setScalar(&d.DerateRampPct, s)
	case "clamp tolerance":
		return setScalar(&d.ClampTol, s)
	case "spice file":
		doc.SpiceFile = s.Value()
		return nil
	}
	return ibis.Errorf(ibis.ConfigError, "unknown keyword %s", s.Keyword)
}

func mapComponentSection(doc *ibis.Document, comp *ibis.Component, name string, s *flatSection) error {
	switch name {
	case "manufacturer":
		comp.Manufacturer = s.Value()
	case "package model":
		comp.PackageModel = s.Value()
	case "spice file":
		comp.SpiceFile = s.Value()
		if doc.SpiceFile == "" {
			doc.SpiceFile = s.Value()
		}
	case "series spice file":
		comp.SeriesSpiceFile = s.Value()
	case "temperature range":
		return setTriple(&comp.TempRange, s)
	case "voltage range":
		return setTriple(&comp.VoltageRange, s)
	case "pullup reference":
		return setTriple(&comp.PullupRef, s)
	case "pulldown reference":
		return setTriple(&comp.PulldownRef, s)
	case "power clamp reference":
		return setTriple(&comp.PowerClampRef, s)
	case "gnd clamp reference":
		return setTriple(&comp.GndClampRef, s)
	case "vil":
		return setTriple(&comp.Vil, s)
	case "vih":
		return setTriple(&comp.Vih, s)
	case "c_comp":
		return setTriple(&comp.CComp, s)
	case "rload":
		return setScalar(&comp.Rload, s)
	case "sim time":
		return setScalar(&comp.SimTime, s)
	case "pin":
		return mapPins(comp, s)
	case "pin mapping":
		for _, row := range s.PinRows() {
			f := row.Fields
			if len(f) < 5 {
				return ibis.Errorf(ibis.ConfigError, "[Pin Mapping] row needs 5 fields, got %d", len(f))
			}
			comp.PinMappings = append(comp.PinMappings, ibis.PinMapping{
				Pin: f[0], PulldownRef: f[1], PullupRef: f[2],
				GndClampRef: f[3], PowerClampRef: f[4],
			})
		}
	case "diff pin":
		for _, row := range s.PinRows() {
			f := row.Fields
			if len(f) < 3 {
				return ibis.Errorf(ibis.ConfigError, "[Diff Pin] row needs at least 3 fields")
			}
			dp := ibis.DiffPin{Pin: f[0], InvPin: f[1], Vdiff: ibis.EmptyTMM(),
				TdelayTyp: ibis.NA(), TdelayMin: ibis.NA(), TdelayMax: ibis.NA()}
			vals := make([]float64, 0, 4)
			for _, tok := range f[2:] {
				v, err := ParseValue(tok)
				if err != nil {
					return ibis.Errorf(ibis.ConfigError, "[Diff Pin]: %w", err)
				}
				vals = append(vals, v)
			}
			if len(vals) > 0 {
				dp.Vdiff.Typ = vals[0]
			}
			if len(vals) > 1 {
				dp.TdelayTyp = vals[1]
			}
			if len(vals) > 2 {
				dp.TdelayMin = vals[2]
			}
			if len(vals) > 3 {
				dp.TdelayMax = vals[3]
			}
			comp.DiffPins = append(comp.DiffPins, dp)
		}
	case "series pin mapping":
		for _, row := range s.PinRows() {
			f := row.Fields
			if len(f) < 3 {
				return ibis.Errorf(ibis.ConfigError, "[Series Pin Mapping] row needs at least 3 fields")
			}
			sp := ibis.SeriesPin{Pin1: f[0], Pin2: f[1], ModelName: f[2]}
			if len(f) > 3 {
				sp.Group = f[3]
			}
			comp.SeriesPins = append(comp.SeriesPins, sp)
		}
	case "series switch groups":
		for _, row := range s.PinRows() {
			f := row.Fields
			if len(f) < 2 {
				return ibis.Errorf(ibis.ConfigError, "[Series Switch Groups] row needs a state and pins")
			}
			pins := f[1:]
			if last := len(pins) - 1; pins[last] == "/" {
				pins = pins[:last]
			}
			comp.SwitchGroups = append(comp.SwitchGroups, ibis.SeriesSwitchGroup{State: f[0], Pins: pins})
		}
	default:
		return ibis.Errorf(ibis.ConfigError, "unknown keyword %s in [Component]", s.Keyword)
	}
	return nil
}

// mapPins fills the component pin list. Row layout:
// pin-name node-name signal-name model-name [R_pin L_pin C_pin]
// with -> naming the input pin and => the enable pin of the previous row.
func mapPins(comp *ibis.Component, s *flatSection) error {
	for _, row := range s.PinRows() {
		f := row.Fields
		if len(f) < 4 {
			return ibis.Errorf(ibis.ConfigError, "[Pin] row needs 4 fields, got %d: %v", len(f), f)
		}
		pin := &ibis.Pin{
			Name:       f[0],
			SpiceNode:  f[1],
			SignalName: f[2],
			ModelName:  f[3],
			InputPin:   row.Input,
			EnablePin:  row.Enable,
			RPin:       ibis.NA(),
			LPin:       ibis.NA(),
			CPin:       ibis.NA(),
			PullupRef:  "NC", PulldownRef: "NC", GndClampRef: "NC", PowerClampRef: "NC",
		}
		for i, dst := range []*float64{&pin.RPin, &pin.LPin, &pin.CPin} {
			if 4+i >= len(f) {
				break
			}
			v, err := ParseValue(f[4+i])
			if err != nil {
				return ibis.Errorf(ibis.ConfigError, "[Pin] %s: %w", pin.Name, err)
			}
			*dst = v
		}
		comp.Pins = append(comp.Pins, pin)
	}
	if len(comp.Pins) == 0 {
		return ibis.Errorf(ibis.ConfigError, "[Pin] list is empty")
	}
	return nil
}

func mapModelSection(model *ibis.Model, name string, s *flatSection) error {
	switch name {
	case "model type":
		mt, err := ParseModelType(s.Value())
		if err != nil {
			return err
		}
		model.Type = mt
	case "nomodel":
		model.NoModel = true
	case "polarity":
		if strings.HasPrefix(strings.ToLower(s.Value()), "inv") {
			model.Polarity = ibis.Inverting
		} else {
			model.Polarity = ibis.NonInverting
		}
	case "enable":
		if strings.Contains(strings.ToLower(s.Value()), "high") {
			model.Enable = ibis.ActiveHigh
		} else {
			model.Enable = ibis.ActiveLow
		}
	case "model file":
		f := strings.Fields(s.Value())
		if len(f) > 0 {
			model.ModelFile = f[0]
			model.ModelFileMin = f[0]
			model.ModelFileMax = f[0]
		}
		if len(f) > 1 {
			model.ModelFileMin = f[1]
		}
		if len(f) > 2 {
			model.ModelFileMax = f[2]
		}
	case "ext spice cmd file":
		model.ExtSpiceCmdFile = s.Value()
	case "vinl":
		return setTriple(&model.Vinl, s)
	case "vinh":
		return setTriple(&model.Vinh, s)
	case "vmeas":
		return setTriple(&model.Vmeas, s)
	case "vref":
		return setTriple(&model.Vref, s)
	case "cref":
		return setTriple(&model.Cref, s)
	case "rref":
		return setTriple(&model.Rref, s)
	case "vil":
		return setTriple(&model.Vil, s)
	case "vih":
		return setTriple(&model.Vih, s)
	case "tr":
		return setTriple(&model.Tr, s)
	case "tf":
		return setTriple(&model.Tf, s)
	case "c_comp":
		return setTriple(&model.CComp, s)
	case "temperature range":
		return setTriple(&model.TempRange, s)
	case "voltage range":
		return setTriple(&model.VoltageRange, s)
	case "pullup reference":
		return setTriple(&model.PullupRef, s)
	case "pulldown reference":
		return setTriple(&model.PulldownRef, s)
	case "power clamp reference":
		return setTriple(&model.PowerClampRef, s)
	case "gnd clamp reference":
		return setTriple(&model.GndClampRef, s)
	case "rgnd":
		return setTriple(&model.Rgnd, s)
	case "rpower":
		return setTriple(&model.Rpower, s)
	case "rac":
		return setTriple(&model.Rac, s)
	case "cac":
		return setTriple(&model.Cac, s)
	case "sim time":
		return setScalar(&model.SimTime, s)
	case "rload":
		return setScalar(&model.Rload, s)
	case "clamp tolerance":
		return setScalar(&model.ClampTol, s)
	case "derate vi", "derate vi pct":
		return setScalar(&model.DerateVIPct, s)
	case "derate ramp", "derate ramp pct":
		return setScalar(&model.DerateRampPct, s)
	case "rising waveform":
		w, err := parseWaveFixture(s)
		if err != nil {
			return err
		}
		model.RisingWave = append(model.RisingWave, w)
	case "falling waveform":
		w, err := parseWaveFixture(s)
		if err != nil {
			return err
		}
		model.FallingWave = append(model.FallingWave, w)
	case "series mosfet", "series vds":
		for _, tok := range strings.Fields(s.Value()) {
			v, err := ParseValue(tok)
			if err != nil {
				return ibis.Errorf(ibis.ConfigError, "%s: %w", s.Keyword, err)
			}
			if model.Series == nil {
				model.Series = newSeriesModel()
			}
			model.Series.VdsList = append(model.Series.VdsList, v)
		}
	case "r series":
		t, err := triple(s)
		if err != nil {
			return err
		}
		if model.Series == nil {
			model.Series = newSeriesModel()
		}
		model.Series.RSeriesOff = t
	default:
		return ibis.Errorf(ibis.ConfigError, "unknown keyword %s in [Model]", s.Keyword)
	}
	return nil
}

func newSeriesModel() *ibis.SeriesModel {
	return &ibis.SeriesModel{
		OnState:  true,
		OffState: true,
		RSeriesOff: ibis.NewTMM(ibis.RSeriesOffDefault,
			ibis.RSeriesOffDefault, ibis.RSeriesOffDefault),
	}
}

// parseWaveFixture reads a waveform fixture line:
// R_fixture V_fixture V_fix_min V_fix_max L_fix C_fix R_dut L_dut C_dut
// with NA for unused entries.
func parseWaveFixture(s *flatSection) (*ibis.WaveTable, error) {
	f := strings.Fields(s.Value())
	if len(f) < 2 {
		return nil, ibis.Errorf(ibis.ConfigError, "%s needs at least R_fixture and V_fixture", s.Keyword)
	}
	vals := make([]float64, len(f))
	for i, tok := range f {
		v, err := ParseValue(tok)
		if err != nil {
			return nil, ibis.Errorf(ibis.ConfigError, "%s: %w", s.Keyword, err)
		}
		vals[i] = v
	}
	w := ibis.NewWaveTable(vals[0], vals[1])
	dst := []*float64{&w.VFixtureMin, &w.VFixtureMax, &w.LFixture, &w.CFixture, &w.RDut, &w.LDut, &w.CDut}
	for i, d := range dst {
		if 2+i < len(vals) {
			*d = vals[2+i]
		}
	}
	return w, nil
}

func setTriple(dst *ibis.TypMinMax, s *flatSection) error {
	t, err := triple(s)
	if err != nil {
		return err
	}
	*dst = t
	return nil
}

func setScalar(dst *float64, s *flatSection) error {
	v, err := scalar(s)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
