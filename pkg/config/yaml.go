package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/spice2ibis/pkg/ibis"
)

// The structured hierarchical configuration form. Same semantics as the
// flat form; numeric values may carry SI-style suffixes or scientific
// notation.

// Value is a float that unmarshals from a YAML number or an SI-suffixed
// string ("3n", "0.2nH", "1e-9"). NA and absent both mean unset.
type Value float64

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	f, err := ParseValue(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*v = Value(f)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (v Value) MarshalYAML() (any, error) {
	if ibis.IsNA(float64(v)) {
		return "NA", nil
	}
	return float64(v), nil
}

// Float returns the value, or the unset sentinel for a zero-value field
// that was never present (tracked by the pointer in the owning struct).
func (v *Value) Float() float64 {
	if v == nil {
		return ibis.NA()
	}
	return float64(*v)
}

// Triple is a corner-valued scalar in the structured form: either a bare
// scalar (typ only) or a {typ, min, max} map.
type Triple struct {
	Typ *Value `yaml:"typ,omitempty"`
	Min *Value `yaml:"min,omitempty"`
	Max *Value `yaml:"max,omitempty"`
}

// UnmarshalYAML accepts both the scalar and the map shape.
func (t *Triple) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var v Value
		if err := v.UnmarshalYAML(node); err != nil {
			return err
		}
		t.Typ = &v
		return nil
	}
	type plain Triple
	return node.Decode((*plain)(t))
}

// TMM converts to the corner-valued representation; nil means unset.
func (t *Triple) TMM() ibis.TypMinMax {
	if t == nil {
		return ibis.EmptyTMM()
	}
	return ibis.TypMinMax{Typ: t.Typ.Float(), Min: t.Min.Float(), Max: t.Max.Float()}
}

func tripleOf(t ibis.TypMinMax) *Triple {
	if t.Empty() {
		return nil
	}
	out := &Triple{}
	if !ibis.IsNA(t.Typ) {
		v := Value(t.Typ)
		out.Typ = &v
	}
	if !ibis.IsNA(t.Min) {
		v := Value(t.Min)
		out.Min = &v
	}
	if !ibis.IsNA(t.Max) {
		v := Value(t.Max)
		out.Max = &v
	}
	return out
}

type yamlDefaults struct {
	TempRange     *Triple `yaml:"temp_range,omitempty"`
	VoltageRange  *Triple `yaml:"voltage_range,omitempty"`
	PullupRef     *Triple `yaml:"pullup_ref,omitempty"`
	PulldownRef   *Triple `yaml:"pulldown_ref,omitempty"`
	PowerClampRef *Triple `yaml:"power_clamp_ref,omitempty"`
	GndClampRef   *Triple `yaml:"gnd_clamp_ref,omitempty"`
	Vil           *Triple `yaml:"vil,omitempty"`
	Vih           *Triple `yaml:"vih,omitempty"`
	Tr            *Triple `yaml:"tr,omitempty"`
	Tf            *Triple `yaml:"tf,omitempty"`
	CComp         *Triple `yaml:"c_comp,omitempty"`
	RPkg          *Triple `yaml:"r_pkg,omitempty"`
	LPkg          *Triple `yaml:"l_pkg,omitempty"`
	CPkg          *Triple `yaml:"c_pkg,omitempty"`
	RLoad         *Value  `yaml:"r_load,omitempty"`
	SimTime       *Value  `yaml:"sim_time,omitempty"`
	DerateVIPct   *Value  `yaml:"derate_vi_pct,omitempty"`
	DerateRampPct *Value  `yaml:"derate_ramp_pct,omitempty"`
	ClampTol      *Value  `yaml:"clamp_tol,omitempty"`
}

type yamlWave struct {
	RFixture    Value  `yaml:"r_fixture"`
	VFixture    Value  `yaml:"v_fixture"`
	VFixtureMin *Value `yaml:"v_fixture_min,omitempty"`
	VFixtureMax *Value `yaml:"v_fixture_max,omitempty"`
	LFixture    *Value `yaml:"l_fixture,omitempty"`
	CFixture    *Value `yaml:"c_fixture,omitempty"`
	RDut        *Value `yaml:"r_dut,omitempty"`
	LDut        *Value `yaml:"l_dut,omitempty"`
	CDut        *Value `yaml:"c_dut,omitempty"`
}

type yamlModel struct {
	Name            string     `yaml:"name"`
	Type            string     `yaml:"model_type"`
	NoModel         bool       `yaml:"nomodel,omitempty"`
	Polarity        string     `yaml:"polarity,omitempty"`
	Enable          string     `yaml:"enable,omitempty"`
	ModelFile       string     `yaml:"model_file,omitempty"`
	ModelFileMin    string     `yaml:"model_file_min,omitempty"`
	ModelFileMax    string     `yaml:"model_file_max,omitempty"`
	ExtSpiceCmdFile string     `yaml:"ext_spice_cmd_file,omitempty"`
	Vinl            *Triple    `yaml:"vinl,omitempty"`
	Vinh            *Triple    `yaml:"vinh,omitempty"`
	Vmeas           *Triple    `yaml:"vmeas,omitempty"`
	Vref            *Triple    `yaml:"vref,omitempty"`
	Cref            *Triple    `yaml:"cref,omitempty"`
	Rref            *Triple    `yaml:"rref,omitempty"`
	Vil             *Triple    `yaml:"vil,omitempty"`
	Vih             *Triple    `yaml:"vih,omitempty"`
	Tr              *Triple    `yaml:"tr,omitempty"`
	Tf              *Triple    `yaml:"tf,omitempty"`
	CComp           *Triple    `yaml:"c_comp,omitempty"`
	TempRange       *Triple    `yaml:"temp_range,omitempty"`
	VoltageRange    *Triple    `yaml:"voltage_range,omitempty"`
	PullupRef       *Triple    `yaml:"pullup_ref,omitempty"`
	PulldownRef     *Triple    `yaml:"pulldown_ref,omitempty"`
	PowerClampRef   *Triple    `yaml:"power_clamp_ref,omitempty"`
	GndClampRef     *Triple    `yaml:"gnd_clamp_ref,omitempty"`
	Rgnd            *Triple    `yaml:"rgnd,omitempty"`
	Rpower          *Triple    `yaml:"rpower,omitempty"`
	Rac             *Triple    `yaml:"rac,omitempty"`
	Cac             *Triple    `yaml:"cac,omitempty"`
	SimTime         *Value     `yaml:"sim_time,omitempty"`
	RLoad           *Value     `yaml:"r_load,omitempty"`
	ClampTol        *Value     `yaml:"clamp_tol,omitempty"`
	DerateVIPct     *Value     `yaml:"derate_vi_pct,omitempty"`
	DerateRampPct   *Value     `yaml:"derate_ramp_pct,omitempty"`
	RisingWaves     []yamlWave `yaml:"rising_waveforms,omitempty"`
	FallingWaves    []yamlWave `yaml:"falling_waveforms,omitempty"`
	VdsList         []Value    `yaml:"vds_list,omitempty"`
	RSeriesOff      *Triple    `yaml:"r_series_off,omitempty"`
}

type yamlPin struct {
	Name       string `yaml:"name"`
	Node       string `yaml:"node,omitempty"`
	Signal     string `yaml:"signal,omitempty"`
	Model      string `yaml:"model"`
	InputPin   string `yaml:"input_pin,omitempty"`
	EnablePin  string `yaml:"enable_pin,omitempty"`
	SeriesPin2 string `yaml:"series_pin2,omitempty"`
	RPin       *Value `yaml:"r_pin,omitempty"`
	LPin       *Value `yaml:"l_pin,omitempty"`
	CPin       *Value `yaml:"c_pin,omitempty"`
}

type yamlPinMapping struct {
	Pin           string `yaml:"pin"`
	PulldownRef   string `yaml:"pulldown_ref,omitempty"`
	PullupRef     string `yaml:"pullup_ref,omitempty"`
	GndClampRef   string `yaml:"gnd_clamp_ref,omitempty"`
	PowerClampRef string `yaml:"power_clamp_ref,omitempty"`
}

type yamlComponent struct {
	Name            string           `yaml:"name"`
	Manufacturer    string           `yaml:"manufacturer,omitempty"`
	PackageModel    string           `yaml:"package_model,omitempty"`
	SpiceFile       string           `yaml:"spice_file,omitempty"`
	SeriesSpiceFile string           `yaml:"series_spice_file,omitempty"`
	Defaults        *yamlDefaults    `yaml:"defaults,omitempty"`
	Pins            []yamlPin        `yaml:"pList"`
	PinMapping      []yamlPinMapping `yaml:"pin_mapping,omitempty"`
}

type yamlConfig struct {
	IbisVersion  string          `yaml:"ibis_version,omitempty"`
	FileName     string          `yaml:"file_name,omitempty"`
	FileRev      string          `yaml:"file_rev,omitempty"`
	Date         string          `yaml:"date,omitempty"`
	Source       string          `yaml:"source,omitempty"`
	Notes        string          `yaml:"notes,omitempty"`
	Disclaimer   string          `yaml:"disclaimer,omitempty"`
	Copyright    string          `yaml:"copyright,omitempty"`
	SpiceType    string          `yaml:"spice_type,omitempty"`
	SpiceFile    string          `yaml:"spice_file,omitempty"`
	SpiceCommand string          `yaml:"spice_command,omitempty"`
	Iterate      bool            `yaml:"iterate,omitempty"`
	Cleanup      bool            `yaml:"cleanup,omitempty"`
	Defaults     *yamlDefaults   `yaml:"global_defaults,omitempty"`
	Models       []yamlModel     `yaml:"models"`
	Components   []yamlComponent `yaml:"components"`
}

// LoadYAMLFile reads the structured form from disk.
func LoadYAMLFile(path string) (*ibis.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ibis.Errorf(ibis.ResourceError, "unreadable configuration: %w", err)
	}
	doc, err := LoadYAML(data)
	if err != nil {
		return nil, err
	}
	if doc.FileName == "" || doc.FileName == "buffer.ibs" {
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		doc.FileName = base + ".ibs"
	}
	return doc, nil
}

// LoadYAML maps structured-form bytes onto a Document.
func LoadYAML(data []byte) (*ibis.Document, error) {
	var cfg yamlConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, ibis.Errorf(ibis.ConfigError, "yaml: %w", err)
	}

	doc := ibis.NewDocument()
	if cfg.IbisVersion != "" {
		doc.IbisVersion = cfg.IbisVersion
	}
	if cfg.FileName != "" {
		doc.FileName = cfg.FileName
	}
	if cfg.FileRev != "" {
		doc.FileRev = cfg.FileRev
	}
	if cfg.Date != "" {
		doc.Date = cfg.Date
	}
	doc.Source = cfg.Source
	doc.Notes = cfg.Notes
	doc.Disclaimer = cfg.Disclaimer
	doc.Copyright = cfg.Copyright
	doc.SpiceFile = cfg.SpiceFile
	doc.SpiceCommand = cfg.SpiceCommand
	doc.Iterate = cfg.Iterate
	doc.Cleanup = cfg.Cleanup
	if cfg.SpiceType != "" {
		st, err := ParseSpiceType(cfg.SpiceType)
		if err != nil {
			return nil, err
		}
		doc.SpiceType = st
	}
	if cfg.Defaults != nil {
		applyDefaults(doc.Defaults, cfg.Defaults)
	}

	for _, ym := range cfg.Models {
		m, err := modelFromYAML(ym)
		if err != nil {
			return nil, err
		}
		doc.Models = append(doc.Models, m)
	}

	for _, yc := range cfg.Components {
		comp := ibis.NewComponent(yc.Name)
		comp.Manufacturer = yc.Manufacturer
		comp.PackageModel = yc.PackageModel
		comp.SpiceFile = yc.SpiceFile
		comp.SeriesSpiceFile = yc.SeriesSpiceFile
		if comp.SpiceFile != "" && doc.SpiceFile == "" {
			doc.SpiceFile = comp.SpiceFile
		}
		if yc.Defaults != nil {
			comp.TempRange = yc.Defaults.TempRange.TMM()
			comp.VoltageRange = yc.Defaults.VoltageRange.TMM()
			comp.PullupRef = yc.Defaults.PullupRef.TMM()
			comp.PulldownRef = yc.Defaults.PulldownRef.TMM()
			comp.PowerClampRef = yc.Defaults.PowerClampRef.TMM()
			comp.GndClampRef = yc.Defaults.GndClampRef.TMM()
			comp.Vil = yc.Defaults.Vil.TMM()
			comp.Vih = yc.Defaults.Vih.TMM()
			comp.Tr = yc.Defaults.Tr.TMM()
			comp.Tf = yc.Defaults.Tf.TMM()
			comp.CComp = yc.Defaults.CComp.TMM()
			comp.Rload = valueOr(yc.Defaults.RLoad, 0)
			comp.SimTime = valueOr(yc.Defaults.SimTime, 0)
		}
		for _, yp := range yc.Pins {
			pin := &ibis.Pin{
				Name:       yp.Name,
				SpiceNode:  yp.Node,
				SignalName: yp.Signal,
				ModelName:  yp.Model,
				InputPin:   yp.InputPin,
				EnablePin:  yp.EnablePin,
				SeriesPin2: yp.SeriesPin2,
				RPin:       yp.RPin.Float(),
				LPin:       yp.LPin.Float(),
				CPin:       yp.CPin.Float(),
				PullupRef:  "NC", PulldownRef: "NC", GndClampRef: "NC", PowerClampRef: "NC",
			}
			if pin.SpiceNode == "" {
				pin.SpiceNode = pin.Name
			}
			if pin.SignalName == "" {
				pin.SignalName = pin.Name
			}
			comp.Pins = append(comp.Pins, pin)
		}
		for _, pm := range yc.PinMapping {
			comp.PinMappings = append(comp.PinMappings, ibis.PinMapping{
				Pin:           pm.Pin,
				PulldownRef:   pm.PulldownRef,
				PullupRef:     pm.PullupRef,
				GndClampRef:   pm.GndClampRef,
				PowerClampRef: pm.PowerClampRef,
			})
		}
		doc.Components = append(doc.Components, comp)
	}

	if err := ibis.Complete(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func applyDefaults(d *ibis.Defaults, y *yamlDefaults) {
	d.TempRange = y.TempRange.TMM()
	d.VoltageRange = y.VoltageRange.TMM()
	d.PullupRef = y.PullupRef.TMM()
	d.PulldownRef = y.PulldownRef.TMM()
	d.PowerClampRef = y.PowerClampRef.TMM()
	d.GndClampRef = y.GndClampRef.TMM()
	d.Vil = y.Vil.TMM()
	d.Vih = y.Vih.TMM()
	d.Tr = y.Tr.TMM()
	d.Tf = y.Tf.TMM()
	d.CComp = y.CComp.TMM()
	d.Parasitics.RPkg = y.RPkg.TMM()
	d.Parasitics.LPkg = y.LPkg.TMM()
	d.Parasitics.CPkg = y.CPkg.TMM()
	d.Rload = valueOr(y.RLoad, ibis.RloadDefault)
	d.SimTime = valueOr(y.SimTime, 0)
	d.DerateVIPct = valueOr(y.DerateVIPct, 0)
	d.DerateRampPct = valueOr(y.DerateRampPct, 0)
	d.ClampTol = valueOr(y.ClampTol, 0)
}

func modelFromYAML(ym yamlModel) (*ibis.Model, error) {
	m := ibis.NewModel(ym.Name)
	mt, err := ParseModelType(ym.Type)
	if err != nil {
		return nil, err
	}
	m.Type = mt
	m.NoModel = ym.NoModel
	if strings.HasPrefix(strings.ToLower(ym.Polarity), "inv") {
		m.Polarity = ibis.Inverting
	}
	if strings.Contains(strings.ToLower(ym.Enable), "high") {
		m.Enable = ibis.ActiveHigh
	}
	m.ModelFile = ym.ModelFile
	m.ModelFileMin = ym.ModelFileMin
	m.ModelFileMax = ym.ModelFileMax
	if m.ModelFileMin == "" {
		m.ModelFileMin = m.ModelFile
	}
	if m.ModelFileMax == "" {
		m.ModelFileMax = m.ModelFile
	}
	m.ExtSpiceCmdFile = ym.ExtSpiceCmdFile
	m.Vinl = ym.Vinl.TMM()
	m.Vinh = ym.Vinh.TMM()
	m.Vmeas = ym.Vmeas.TMM()
	m.Vref = ym.Vref.TMM()
	m.Cref = ym.Cref.TMM()
	m.Rref = ym.Rref.TMM()
	m.Vil = ym.Vil.TMM()
	m.Vih = ym.Vih.TMM()
	m.Tr = ym.Tr.TMM()
	m.Tf = ym.Tf.TMM()
	m.CComp = ym.CComp.TMM()
	m.TempRange = ym.TempRange.TMM()
	m.VoltageRange = ym.VoltageRange.TMM()
	m.PullupRef = ym.PullupRef.TMM()
	m.PulldownRef = ym.PulldownRef.TMM()
	m.PowerClampRef = ym.PowerClampRef.TMM()
	m.GndClampRef = ym.GndClampRef.TMM()
	m.Rgnd = ym.Rgnd.TMM()
	m.Rpower = ym.Rpower.TMM()
	m.Rac = ym.Rac.TMM()
	m.Cac = ym.Cac.TMM()
	m.SimTime = valueOr(ym.SimTime, 0)
	m.Rload = valueOr(ym.RLoad, 0)
	m.ClampTol = valueOr(ym.ClampTol, 0)
	m.DerateVIPct = valueOr(ym.DerateVIPct, 0)
	m.DerateRampPct = valueOr(ym.DerateRampPct, 0)

	for _, yw := range ym.RisingWaves {
		m.RisingWave = append(m.RisingWave, waveFromYAML(yw))
	}
	for _, yw := range ym.FallingWaves {
		m.FallingWave = append(m.FallingWave, waveFromYAML(yw))
	}
	if len(ym.VdsList) > 0 || ym.RSeriesOff != nil {
		m.Series = newSeriesModel()
		for _, v := range ym.VdsList {
			m.Series.VdsList = append(m.Series.VdsList, float64(v))
		}
		if ym.RSeriesOff != nil {
			m.Series.RSeriesOff = ym.RSeriesOff.TMM()
		}
	}
	return m, nil
}

func waveFromYAML(yw yamlWave) *ibis.WaveTable {
	w := ibis.NewWaveTable(float64(yw.RFixture), float64(yw.VFixture))
	w.VFixtureMin = yw.VFixtureMin.Float()
	w.VFixtureMax = yw.VFixtureMax.Float()
	w.LFixture = yw.LFixture.Float()
	w.CFixture = yw.CFixture.Float()
	w.RDut = yw.RDut.Float()
	w.LDut = yw.LDut.Float()
	w.CDut = yw.CDut.Float()
	return w
}

func valueOr(v *Value, def float64) float64 {
	if v == nil {
		return def
	}
	return float64(*v)
}
