package ibis

// Table and naming limits from the IBIS specification.
const (
	MaxTableSize      = 100 // IBIS 1.x V/I table row cap
	MaxWaveformTables = 100
	MaxSeriesTables   = 100

	WavePoints     = 100  // V/T rows for IBIS < 4.0
	WavePointsWide = 1000 // V/T rows for IBIS >= 4.0

	MaxLineLength      = 80
	MaxModelNameLength = 20
	MaxPinNameLength   = 5
)

// Characterization defaults.
const (
	SweepStepDefault       = 0.01 // never finer than 10 mV
	SweepPointsTarget      = 80   // desired points per DC sweep
	LinRangeDefault        = 5.0
	DiodeDropDefault       = 1.0
	ECLSweepRangeDefault   = 2.0
	ECLTerminationVoltage  = -2.0
	RloadDefault           = 50.0
	CCompDefault           = 5e-12
	SimTimeDefault         = 10e-9
	RSeriesOffDefault      = 1e6
	VoltageRangeTypDefault = 3.3
)

// Corner selects one column of a corner-valued scalar.
type Corner int

const (
	Typ Corner = iota
	Min
	Max
)

var cornerLabels = [...]string{"typ", "min", "max"}

// Corners lists all three corners in emission order.
var Corners = [...]Corner{Typ, Min, Max}

func (c Corner) String() string { return cornerLabels[c] }

// ModelType enumerates the IBIS model types understood by the planner.
type ModelType int

const (
	ModelUnknown ModelType = iota
	ModelInput
	ModelOutput
	ModelIO
	ModelThreeState
	ModelOpenDrain
	ModelOpenSink
	ModelOpenSource
	ModelIOOpenDrain
	ModelIOOpenSink
	ModelIOOpenSource
	ModelInputECL
	ModelOutputECL
	ModelIOECL
	ModelTerminator
	ModelSeries
	ModelSeriesSwitch
)

var modelTypeNames = map[ModelType]string{
	ModelInput:        "Input",
	ModelOutput:       "Output",
	ModelIO:           "I/O",
	ModelThreeState:   "3-state",
	ModelOpenDrain:    "Open_drain",
	ModelOpenSink:     "Open_sink",
	ModelOpenSource:   "Open_source",
	ModelIOOpenDrain:  "I/O_Open_drain",
	ModelIOOpenSink:   "I/O_Open_sink",
	ModelIOOpenSource: "I/O_Open_source",
	ModelInputECL:     "Input_ECL",
	ModelOutputECL:    "Output_ECL",
	ModelIOECL:        "I/O_ECL",
	ModelTerminator:   "Terminator",
	ModelSeries:       "Series",
	ModelSeriesSwitch: "Series_switch",
}

func (m ModelType) String() string {
	if s, ok := modelTypeNames[m]; ok {
		return s
	}
	return "Output"
}

// IsECL reports whether the type uses the ECL sweep windows and termination.
func (m ModelType) IsECL() bool {
	return m == ModelInputECL || m == ModelOutputECL || m == ModelIOECL
}

// IsOpenDrainFamily covers the pulldown-only driver types.
func (m ModelType) IsOpenDrainFamily() bool {
	switch m {
	case ModelOpenDrain, ModelOpenSink, ModelIOOpenDrain, ModelIOOpenSink:
		return true
	}
	return false
}

// IsOpenSourceFamily covers the pullup-only driver types.
func (m ModelType) IsOpenSourceFamily() bool {
	return m == ModelOpenSource || m == ModelIOOpenSource
}

// Polarity of the data input relative to the pad.
type Polarity int

const (
	NonInverting Polarity = iota
	Inverting
)

func (p Polarity) String() string {
	if p == Inverting {
		return "Inverting"
	}
	return "Non-Inverting"
}

// EnableMode gives the active level of the output-enable pin.
type EnableMode int

const (
	ActiveLow EnableMode = iota
	ActiveHigh
)

func (e EnableMode) String() string {
	if e == ActiveHigh {
		return "Active-High"
	}
	return "Active-Low"
}

// ReservedKind tags pins whose model name is a reserved token. Such pins
// never produce simulation plan items.
type ReservedKind int

const (
	ReservedNone ReservedKind = iota
	ReservedPower
	ReservedGND
	ReservedNC
	ReservedDummy
	ReservedNoModel
)

var reservedNames = map[string]ReservedKind{
	"POWER":   ReservedPower,
	"GND":     ReservedGND,
	"NC":      ReservedNC,
	"DUMMY":   ReservedDummy,
	"NOMODEL": ReservedNoModel,
}

// CurveType enumerates the characterization curves a plan item can request.
type CurveType int

const (
	CurvePullup CurveType = iota
	CurvePulldown
	CurvePowerClamp
	CurveGndClamp
	CurveDisabledPullup
	CurveDisabledPulldown
	CurveRisingRamp
	CurveFallingRamp
	CurveRisingWave
	CurveFallingWave
	CurveSeriesVI
)

var curveNames = [...]string{
	"pullup", "pulldown", "power_clamp", "gnd_clamp",
	"pullup_disabled", "pulldown_disabled",
	"rising_ramp", "falling_ramp", "rising_wave", "falling_wave",
	"series_vi",
}

func (c CurveType) String() string { return curveNames[c] }

// IsTransient reports whether the curve needs a .TRAN run instead of a DC sweep.
func (c CurveType) IsTransient() bool {
	switch c {
	case CurveRisingRamp, CurveFallingRamp, CurveRisingWave, CurveFallingWave:
		return true
	}
	return false
}

// Deck file prefixes keyed by curve type and corner. The per-corner prefix
// keeps every deck and result file name distinct so the iterate policy can
// match existing outputs.
var filePrefix = map[CurveType][3]string{
	CurvePullup:           {"put", "pun", "pux"},
	CurvePulldown:         {"pdt", "pdn", "pdx"},
	CurvePowerClamp:       {"pct", "pcn", "pcx"},
	CurveGndClamp:         {"gct", "gcn", "gcx"},
	CurveDisabledPullup:   {"dut", "dun", "dux"},
	CurveDisabledPulldown: {"ddt", "ddn", "ddx"},
	CurveRisingRamp:       {"rut", "run", "rux"},
	CurveFallingRamp:      {"rdt", "rdn", "rdx"},
	CurveRisingWave:       {"a", "b", "c"},
	CurveFallingWave:      {"x", "y", "z"},
	CurveSeriesVI:         {"vit", "vin", "vix"},
}

// FilePrefix returns the deck/result file prefix for a curve at a corner.
func FilePrefix(c CurveType, corner Corner) string {
	return filePrefix[c][corner]
}

// SpiceType selects the simulator dialect.
type SpiceType int

const (
	HSPICE SpiceType = iota
	Spectre
	Eldo
)

var spiceTypeNames = [...]string{"hspice", "spectre", "eldo"}

func (s SpiceType) String() string { return spiceTypeNames[s] }
