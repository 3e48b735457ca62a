package ibis

import (
	"math"
	"strconv"
	"strings"
)

// NA is the sentinel marking an unset corner value. All corner-valued
// scalars default to NA and stay NA until the configuration or a
// simulation fills them in.
func NA() float64 { return math.NaN() }

// IsNA reports whether a value is the unset sentinel.
func IsNA(x float64) bool { return math.IsNaN(x) }

// TypMinMax is a corner-valued scalar: one value per process corner,
// each independently unset-able.
type TypMinMax struct {
	Typ float64
	Min float64
	Max float64
}

// NewTMM builds a fully populated corner triple.
func NewTMM(typ, min, max float64) TypMinMax {
	return TypMinMax{Typ: typ, Min: min, Max: max}
}

// EmptyTMM builds a triple with all corners unset.
func EmptyTMM() TypMinMax {
	return TypMinMax{Typ: NA(), Min: NA(), Max: NA()}
}

// TypOnly builds a triple carrying only the typical value.
func TypOnly(typ float64) TypMinMax {
	return TypMinMax{Typ: typ, Min: NA(), Max: NA()}
}

// Pick returns the value for a corner, falling back to the typical value
// when the min or max column is unset.
func (t TypMinMax) Pick(c Corner) float64 {
	switch c {
	case Min:
		if !IsNA(t.Min) {
			return t.Min
		}
	case Max:
		if !IsNA(t.Max) {
			return t.Max
		}
	}
	return t.Typ
}

// Get returns the raw corner value without the typ fallback.
func (t TypMinMax) Get(c Corner) float64 {
	switch c {
	case Min:
		return t.Min
	case Max:
		return t.Max
	}
	return t.Typ
}

// Set assigns one corner in place.
func (t *TypMinMax) Set(c Corner, v float64) {
	switch c {
	case Typ:
		t.Typ = v
	case Min:
		t.Min = v
	case Max:
		t.Max = v
	}
}

// Empty reports whether all three corners are unset.
func (t TypMinMax) Empty() bool {
	return IsNA(t.Typ) && IsNA(t.Min) && IsNA(t.Max)
}

// Inherit copies unset corners from src, leaving set corners alone. This is
// the single primitive behind the Document -> Component -> Model defaults
// hierarchy.
func (t *TypMinMax) Inherit(src TypMinMax) {
	if IsNA(t.Typ) {
		t.Typ = src.Typ
	}
	if IsNA(t.Min) {
		t.Min = src.Min
	}
	if IsNA(t.Max) {
		t.Max = src.Max
	}
}

// VIEntry is one row of a V/I table.
type VIEntry struct {
	V float64
	I TypMinMax
}

// VITable is an ordered V/I characterization, monotonic in V once
// normalized, capped at MaxTableSize rows on emission.
type VITable struct {
	Rows []VIEntry
}

// AddPoint appends a row for one corner; the voltage column is owned by the
// typ sweep and later corners only fill their current column.
func (t *VITable) AddPoint(row int, v float64, corner Corner, i float64) {
	for len(t.Rows) <= row {
		t.Rows = append(t.Rows, VIEntry{V: 0, I: EmptyTMM()})
	}
	if corner == Typ {
		t.Rows[row].V = v
	}
	t.Rows[row].I.Set(corner, i)
}

// Size returns the row count.
func (t *VITable) Size() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// WaveEntry is one row of a V/T waveform table.
type WaveEntry struct {
	T float64
	V TypMinMax
}

// WaveTable is a fixed-sample-count voltage/time waveform with its fixture.
type WaveTable struct {
	Rows []WaveEntry

	RFixture    float64
	VFixture    float64
	VFixtureMin float64
	VFixtureMax float64
	LFixture    float64
	CFixture    float64
	RDut        float64
	LDut        float64
	CDut        float64
}

// NewWaveTable allocates an empty fixture description; optional parasitics
// start unset.
func NewWaveTable(rFixture, vFixture float64) *WaveTable {
	return &WaveTable{
		RFixture:    rFixture,
		VFixture:    vFixture,
		VFixtureMin: NA(),
		VFixtureMax: NA(),
		LFixture:    NA(),
		CFixture:    NA(),
		RDut:        NA(),
		LDut:        NA(),
		CDut:        NA(),
	}
}

// Alloc sizes the sample rows for binning.
func (w *WaveTable) Alloc(n int) {
	w.Rows = make([]WaveEntry, n)
	for i := range w.Rows {
		w.Rows[i].V = EmptyTMM()
	}
}

// Ramp carries the 20%-80% rise and fall measurements as separate dV and dt
// triples so derating can scale the time base alone.
type Ramp struct {
	DvRise TypMinMax
	DtRise TypMinMax
	DvFall TypMinMax
	DtFall TypMinMax
}

// NewRamp returns a ramp record with every corner unset.
func NewRamp() Ramp {
	return Ramp{DvRise: EmptyTMM(), DtRise: EmptyTMM(), DvFall: EmptyTMM(), DtFall: EmptyTMM()}
}

// SeriesModel holds the series/series-switch characterization inputs.
type SeriesModel struct {
	OnState    bool
	OffState   bool
	RSeriesOff TypMinMax
	VdsList    []float64
}

// PinParasitics is a package R/L/C triple set.
type PinParasitics struct {
	RPkg TypMinMax
	LPkg TypMinMax
	CPkg TypMinMax
}

// EmptyParasitics returns a parasitics block with all corners unset.
func EmptyParasitics() PinParasitics {
	return PinParasitics{RPkg: EmptyTMM(), LPkg: EmptyTMM(), CPkg: EmptyTMM()}
}

// DiffPin is one [Diff Pin] row.
type DiffPin struct {
	Pin       string
	InvPin    string
	Vdiff     TypMinMax
	TdelayTyp float64
	TdelayMin float64
	TdelayMax float64
}

// SeriesPin is one [Series Pin Mapping] row.
type SeriesPin struct {
	Pin1      string
	Pin2      string
	ModelName string
	Group     string
}

// SeriesSwitchGroup is one [Series Switch Groups] state line.
type SeriesSwitchGroup struct {
	State string
	Pins  []string
}

// PinMapping is one [Pin Mapping] row: bus labels tying a signal pin to its
// supply rails.
type PinMapping struct {
	Pin           string
	PulldownRef   string
	PullupRef     string
	GndClampRef   string
	PowerClampRef string
}

// Pin binds a package pin to a SPICE node and a model.
type Pin struct {
	Name       string
	SignalName string
	ModelName  string
	SpiceNode  string

	// Directives for bidirectional and tri-state buffers.
	EnablePin string
	InputPin  string

	// Second terminal for series elements.
	SeriesPin2 string

	// Optional per-pin package parasitics; unset means use [Package].
	RPin float64
	LPin float64
	CPin float64

	// Supply bus labels from [Pin Mapping]; "NC" when unmapped.
	PullupRef     string
	PulldownRef   string
	GndClampRef   string
	PowerClampRef string

	// Filled in while completing the document.
	Model *Model
}

// Reserved returns the reserved-name tag for the pin's model name, or
// ReservedNone for a simulatable pin. The match is case-insensitive.
func (p *Pin) Reserved() ReservedKind {
	return ReservedKindOf(p.ModelName)
}

// ReservedKindOf classifies a model name string.
func ReservedKindOf(name string) ReservedKind {
	if k, ok := reservedNames[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return k
	}
	return ReservedNone
}

// Model is a named behavioral description plus its raw and derived curves.
type Model struct {
	Name    string
	Type    ModelType
	NoModel bool

	Polarity Polarity
	Enable   EnableMode

	// SPICE subcircuit files per corner.
	ModelFile    string
	ModelFileMin string
	ModelFileMax string

	// Extra simulator control cards appended verbatim to every deck.
	ExtSpiceCmdFile string

	// Receiver thresholds and measurement references.
	Vinl  TypMinMax
	Vinh  TypMinMax
	Vmeas TypMinMax
	Cref  TypMinMax
	Rref  TypMinMax
	Vref  TypMinMax

	// Stimulus levels and edge targets.
	Vil TypMinMax
	Vih TypMinMax
	Tr  TypMinMax
	Tf  TypMinMax

	// Analysis knobs.
	SimTime       float64
	Rload         float64
	CComp         TypMinMax
	ClampTol      float64
	DerateVIPct   float64
	DerateRampPct float64

	// Scope overrides of the hierarchical defaults.
	TempRange     TypMinMax
	VoltageRange  TypMinMax
	PullupRef     TypMinMax
	PulldownRef   TypMinMax
	PowerClampRef TypMinMax
	GndClampRef   TypMinMax

	// Terminator parameters.
	Rgnd   TypMinMax
	Rpower TypMinMax
	Rac    TypMinMax
	Cac    TypMinMax

	// Raw sweep results, straight from the result reader.
	PullupData     *VITable
	PulldownData   *VITable
	PowerClampData *VITable
	GndClampData   *VITable

	// Final tables after normalization, ready for emission.
	Pullup     *VITable
	Pulldown   *VITable
	PowerClamp *VITable
	GndClamp   *VITable

	Ramp        Ramp
	RisingWave  []*WaveTable
	FallingWave []*WaveTable

	Series         *SeriesModel
	SeriesVITables []*VITable

	Analyzed bool
}

// NewModel returns a model with every corner-valued field unset.
func NewModel(name string) *Model {
	return &Model{
		Name:          name,
		Vinl:          EmptyTMM(),
		Vinh:          EmptyTMM(),
		Vmeas:         EmptyTMM(),
		Cref:          EmptyTMM(),
		Rref:          EmptyTMM(),
		Vref:          EmptyTMM(),
		Vil:           EmptyTMM(),
		Vih:           EmptyTMM(),
		Tr:            EmptyTMM(),
		Tf:            EmptyTMM(),
		CComp:         EmptyTMM(),
		TempRange:     EmptyTMM(),
		VoltageRange:  EmptyTMM(),
		PullupRef:     EmptyTMM(),
		PulldownRef:   EmptyTMM(),
		PowerClampRef: EmptyTMM(),
		GndClampRef:   EmptyTMM(),
		Rgnd:          EmptyTMM(),
		Rpower:        EmptyTMM(),
		Rac:           EmptyTMM(),
		Cac:           EmptyTMM(),
		Ramp:          NewRamp(),
	}
}

// Component is a named physical part with its pin list.
type Component struct {
	Name            string
	Manufacturer    string
	PackageModel    string
	SpiceFile       string
	SeriesSpiceFile string

	Parasitics *PinParasitics

	// Component-scope overrides.
	TempRange     TypMinMax
	VoltageRange  TypMinMax
	PullupRef     TypMinMax
	PulldownRef   TypMinMax
	PowerClampRef TypMinMax
	GndClampRef   TypMinMax
	Vil           TypMinMax
	Vih           TypMinMax
	Tr            TypMinMax
	Tf            TypMinMax
	CComp         TypMinMax
	Rload         float64
	SimTime       float64
	DerateVIPct   float64
	DerateRampPct float64
	ClampTol      float64

	Pins         []*Pin
	PinMappings  []PinMapping
	DiffPins     []DiffPin
	SeriesPins   []SeriesPin
	SwitchGroups []SeriesSwitchGroup
}

// HasPinMapping reports whether supply lookup should match bus labels
// instead of the first POWER/GND pins.
func (c *Component) HasPinMapping() bool { return len(c.PinMappings) > 0 }

// NewComponent returns a component with unset overrides.
func NewComponent(name string) *Component {
	return &Component{
		Name:          name,
		TempRange:     EmptyTMM(),
		VoltageRange:  EmptyTMM(),
		PullupRef:     EmptyTMM(),
		PulldownRef:   EmptyTMM(),
		PowerClampRef: EmptyTMM(),
		GndClampRef:   EmptyTMM(),
		Vil:           EmptyTMM(),
		Vih:           EmptyTMM(),
		Tr:            EmptyTMM(),
		Tf:            EmptyTMM(),
		CComp:         EmptyTMM(),
	}
}

// Defaults is the document-scope bag of corner-valued scalars applied
// hierarchically: Document -> Component -> Model.
type Defaults struct {
	TempRange     TypMinMax
	VoltageRange  TypMinMax
	PullupRef     TypMinMax
	PulldownRef   TypMinMax
	PowerClampRef TypMinMax
	GndClampRef   TypMinMax
	Vil           TypMinMax
	Vih           TypMinMax
	Tr            TypMinMax
	Tf            TypMinMax
	CComp         TypMinMax
	Parasitics    PinParasitics
	Rload         float64
	SimTime       float64
	DerateVIPct   float64
	DerateRampPct float64
	ClampTol      float64
}

// NewDefaults returns document defaults with every field unset except the
// load resistance, which the IBIS fixture convention pins at 50 ohm.
func NewDefaults() *Defaults {
	return &Defaults{
		TempRange:     EmptyTMM(),
		VoltageRange:  EmptyTMM(),
		PullupRef:     EmptyTMM(),
		PulldownRef:   EmptyTMM(),
		PowerClampRef: EmptyTMM(),
		GndClampRef:   EmptyTMM(),
		Vil:           EmptyTMM(),
		Vih:           EmptyTMM(),
		Tr:            EmptyTMM(),
		Tf:            EmptyTMM(),
		CComp:         EmptyTMM(),
		Parasitics:    EmptyParasitics(),
		Rload:         RloadDefault,
		SimTime:       0,
	}
}

// Document is the top-level container serialized to the .ibs file.
type Document struct {
	IbisVersion string
	FileName    string
	FileRev     string
	Date        string
	Source      string
	Notes       string
	Disclaimer  string
	Copyright   string

	Defaults *Defaults

	Components []*Component
	Models     []*Model

	SpiceType    SpiceType
	SpiceFile    string
	SpiceCommand string
	Iterate      bool
	Cleanup      bool
}

// NewDocument returns a document with the header defaults the emitter
// expects when the configuration leaves them blank.
func NewDocument() *Document {
	return &Document{
		IbisVersion: "3.2",
		FileName:    "buffer.ibs",
		FileRev:     "0",
		Date:        "Unknown",
		Defaults:    NewDefaults(),
	}
}

// FindModel looks a model up by name, case-insensitively.
func (d *Document) FindModel(name string) *Model {
	for _, m := range d.Models {
		if strings.EqualFold(m.Name, name) {
			return m
		}
	}
	return nil
}

// WavePointCount returns the V/T table row count mandated by the declared
// IBIS version.
func (d *Document) WavePointCount() int {
	if versionAtLeast(d.IbisVersion, 4, 0) {
		return WavePointsWide
	}
	return WavePoints
}

func versionAtLeast(version string, major, minor int) bool {
	parts := strings.SplitN(strings.TrimSpace(version), ".", 2)
	maj, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	min := 0
	if len(parts) == 2 {
		if m, err := strconv.Atoi(parts[1]); err == nil {
			min = m
		}
	}
	if maj != major {
		return maj > major
	}
	return min >= minor
}
