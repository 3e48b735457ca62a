package ibis

// Hierarchical defaults resolution. Every lookup walks the three layers
// explicitly (Model overrides Component overrides Document); there is no
// implicit inheritance at the type level, so corner mixing stays auditable.

// Scope names a corner-valued field resolvable through the hierarchy.
type Scope struct {
	Model     *Model
	Component *Component
	Document  *Document
}

// resolve merges the three layers corner by corner: a corner set at a
// narrower scope wins, an unset corner falls through to the next layer.
func resolve(model, component, document TypMinMax) TypMinMax {
	out := model
	out.Inherit(component)
	out.Inherit(document)
	return out
}

// VoltageRange resolves the effective supply range for a model.
func (s Scope) VoltageRange() TypMinMax {
	return resolve(s.Model.VoltageRange, s.Component.VoltageRange, s.Document.Defaults.VoltageRange)
}

// TempRange resolves the simulation temperatures. Min/max follow the
// slow/fast process convention and may be numerically reversed; they are
// passed through untouched.
func (s Scope) TempRange() TypMinMax {
	return resolve(s.Model.TempRange, s.Component.TempRange, s.Document.Defaults.TempRange)
}

// PullupRef resolves the pullup rail, defaulting to the voltage range.
func (s Scope) PullupRef() TypMinMax {
	ref := resolve(s.Model.PullupRef, s.Component.PullupRef, s.Document.Defaults.PullupRef)
	ref.Inherit(s.VoltageRange())
	return ref
}

// PulldownRef resolves the pulldown rail, defaulting to 0 V.
func (s Scope) PulldownRef() TypMinMax {
	ref := resolve(s.Model.PulldownRef, s.Component.PulldownRef, s.Document.Defaults.PulldownRef)
	ref.Inherit(NewTMM(0, 0, 0))
	return ref
}

// PowerClampRef resolves the power-clamp rail, defaulting to the voltage range.
func (s Scope) PowerClampRef() TypMinMax {
	ref := resolve(s.Model.PowerClampRef, s.Component.PowerClampRef, s.Document.Defaults.PowerClampRef)
	ref.Inherit(s.VoltageRange())
	return ref
}

// GndClampRef resolves the ground-clamp rail, defaulting to 0 V.
func (s Scope) GndClampRef() TypMinMax {
	ref := resolve(s.Model.GndClampRef, s.Component.GndClampRef, s.Document.Defaults.GndClampRef)
	ref.Inherit(NewTMM(0, 0, 0))
	return ref
}

// Vil resolves the input-low stimulus level.
func (s Scope) Vil() TypMinMax {
	return resolve(s.Model.Vil, s.Component.Vil, s.Document.Defaults.Vil)
}

// Vih resolves the input-high stimulus level.
func (s Scope) Vih() TypMinMax {
	return resolve(s.Model.Vih, s.Component.Vih, s.Document.Defaults.Vih)
}

// Tr resolves the target rise time of the input edge.
func (s Scope) Tr() TypMinMax {
	return resolve(s.Model.Tr, s.Component.Tr, s.Document.Defaults.Tr)
}

// Tf resolves the target fall time of the input edge.
func (s Scope) Tf() TypMinMax {
	return resolve(s.Model.Tf, s.Component.Tf, s.Document.Defaults.Tf)
}

// CComp resolves the die capacitance.
func (s Scope) CComp() TypMinMax {
	return resolve(s.Model.CComp, s.Component.CComp, s.Document.Defaults.CComp)
}

// Rload resolves the ramp load resistance; 50 ohm when unset everywhere.
func (s Scope) Rload() float64 {
	for _, v := range []float64{s.Model.Rload, s.Component.Rload, s.Document.Defaults.Rload} {
		if v > 0 && !IsNA(v) {
			return v
		}
	}
	return RloadDefault
}

// SimTime resolves the transient window; SimTimeDefault when unset.
func (s Scope) SimTime() float64 {
	for _, v := range []float64{s.Model.SimTime, s.Component.SimTime, s.Document.Defaults.SimTime} {
		if v > 0 && !IsNA(v) {
			return v
		}
	}
	return SimTimeDefault
}

// ClampTol resolves the clamp suppression tolerance.
func (s Scope) ClampTol() float64 {
	for _, v := range []float64{s.Model.ClampTol, s.Component.ClampTol, s.Document.Defaults.ClampTol} {
		if v > 0 {
			return v
		}
	}
	return 0
}

// DerateVIPct resolves the V/I derating percentage.
func (s Scope) DerateVIPct() float64 {
	for _, v := range []float64{s.Model.DerateVIPct, s.Component.DerateVIPct, s.Document.Defaults.DerateVIPct} {
		if v != 0 {
			return v
		}
	}
	return 0
}

// DerateRampPct resolves the ramp derating percentage.
func (s Scope) DerateRampPct() float64 {
	for _, v := range []float64{s.Model.DerateRampPct, s.Component.DerateRampPct, s.Document.Defaults.DerateRampPct} {
		if v != 0 {
			return v
		}
	}
	return 0
}

// Complete links pins to their models and pushes document defaults into the
// model-scope fields the emitter prints directly ([Voltage Range],
// [Temperature Range], C_comp). Resolution itself stays lazy through Scope;
// Complete only materializes what must appear in the output file.
func Complete(doc *Document) error {
	for _, comp := range doc.Components {
		for _, pin := range comp.Pins {
			if pin.Reserved() != ReservedNone {
				continue
			}
			m := doc.FindModel(pin.ModelName)
			if m == nil {
				return Errorf(ConfigError, "pin %s references unknown model %q", pin.Name, pin.ModelName)
			}
			pin.Model = m

			s := Scope{Model: m, Component: comp, Document: doc}
			m.VoltageRange = s.VoltageRange()
			m.TempRange = s.TempRange()
			if m.CComp.Empty() {
				m.CComp = s.CComp()
			}
			if m.CComp.Empty() {
				m.CComp = NewTMM(CCompDefault, CCompDefault, CCompDefault)
			}
			if m.SimTime <= 0 {
				m.SimTime = s.SimTime()
			}
			if m.Rload <= 0 {
				m.Rload = s.Rload()
			}
			if m.ClampTol <= 0 {
				m.ClampTol = s.ClampTol()
			}
			if m.DerateVIPct == 0 {
				m.DerateVIPct = s.DerateVIPct()
			}
			if m.DerateRampPct == 0 {
				m.DerateRampPct = s.DerateRampPct()
			}
		}
		if comp.Parasitics == nil && !doc.Defaults.Parasitics.RPkg.Empty() {
			p := doc.Defaults.Parasitics
			comp.Parasitics = &p
		}
	}
	return nil
}
