package formulation

import (
	"fmt"

	"github.com/kilianp07/ucplan/core/milp"
	"github.com/kilianp07/ucplan/core/model"
)

// Kind enumerates the families of decision variables.
type Kind int

const (
	Generation Kind = iota
	Committed
	StartUp
	ShutDown
	RenewableUsed
	Curtailed
	Charge
	Discharge
	StateOfCharge
)

var kindNames = [...]string{"gen", "on", "su", "sd", "ren", "curt", "ch", "dis", "soc"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// PerUnit reports whether the kind is indexed by unit and hour.
func (k Kind) PerUnit() bool { return k <= ShutDown }

// Registry owns the mapping between domain variables and solver columns.
type Registry struct {
	model *milp.Model
	T     int
	F     int

	unit   [4][][]milp.VarID // kind -> unit -> hour-1
	hourly [5][]milp.VarID   // kind-RenewableUsed -> hour-1
}

// NewRegistry validates the instance and declares all decision variables.
func NewRegistry(in model.Instance) (*Registry, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("invalid instance: %w", err)
	}
	r := &Registry{model: milp.NewModel(), T: in.Horizon.Len(), F: len(in.Units)}
	for k := Generation; k <= ShutDown; k++ {
		r.unit[k] = make([][]milp.VarID, r.F)
		for f := range in.Units {
			r.unit[k][f] = make([]milp.VarID, r.T)
		}
	}
	for k := RenewableUsed; k <= StateOfCharge; k++ {
		r.hourly[k-RenewableUsed] = make([]milp.VarID, r.T)
	}

	for f, u := range in.Units {
		for t := 1; t <= r.T; t++ {
			if err := r.declare(Generation, f, t, milp.Continuous, 0, u.CapacityMW); err != nil {
				return nil, err
			}
			for _, k := range []Kind{Committed, StartUp, ShutDown} {
				if err := r.declare(k, f, t, milp.Binary, 0, 1); err != nil {
					return nil, err
				}
			}
		}
	}
	b := in.Battery
	for t := 1; t <= r.T; t++ {
		avail := in.Availability(t)
		decls := []struct {
			k     Kind
			upper float64
		}{
			{RenewableUsed, avail},
			{Curtailed, avail},
			{Charge, b.PowerMW},
			{Discharge, b.PowerMW},
			{StateOfCharge, b.CapacityMWh},
		}
		for _, d := range decls {
			if err := r.declare(d.k, -1, t, milp.Continuous, 0, d.upper); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

func (r *Registry) declare(k Kind, f, t int, dom milp.Domain, lower, upper float64) error {
	id, err := r.model.AddVar(VarName(k, f, t), dom, lower, upper)
	if err != nil {
		return err
	}
	if k.PerUnit() {
		r.unit[k][f][t-1] = id
	} else {
		r.hourly[k-RenewableUsed][t-1] = id
	}
	return nil
}

// VarName returns the canonical solver name, e.g. gen[2,14] or soc[3].
// Units are printed 1-based like hours.
func VarName(k Kind, f, t int) string {
	if k.PerUnit() {
		return fmt.Sprintf("%s[%d,%d]", k, f+1, t)
	}
	return fmt.Sprintf("%s[%d]", k, t)
}

// ErrIndex is returned when a variable is requested outside the horizon or
// the fleet.
type ErrIndex struct {
	Kind Kind
	Unit int
	Hour int
}

func (e ErrIndex) Error() string {
	return fmt.Sprintf("variable %s unit=%d hour=%d out of range", e.Kind, e.Unit, e.Hour)
}

// Lookup returns the solver variable for kind at unit f (ignored for hourly
// kinds) and hour t (1-based).
func (r *Registry) Lookup(k Kind, f, t int) (milp.VarID, error) {
	if t < 1 || t > r.T {
		return -1, ErrIndex{Kind: k, Unit: f, Hour: t}
	}
	switch {
	case k < 0 || k > StateOfCharge:
		return -1, ErrIndex{Kind: k, Unit: f, Hour: t}
	case k.PerUnit():
		if f < 0 || f >= r.F {
			return -1, ErrIndex{Kind: k, Unit: f, Hour: t}
		}
		return r.unit[k][f][t-1], nil
	default:
		return r.hourly[k-RenewableUsed][t-1], nil
	}
}

// Var returns the declared variable for kind, unit and hour.
func (r *Registry) Var(k Kind, f, t int) (milp.Var, error) {
	id, err := r.Lookup(k, f, t)
	if err != nil {
		return milp.Var{}, err
	}
	return r.model.Vars[id], nil
}

// Value reads the value of a domain variable from a solver result.
func (r *Registry) Value(res milp.Result, k Kind, f, t int) float64 {
	id, err := r.Lookup(k, f, t)
	if err != nil {
		return 0
	}
	return res.Value(id)
}

// Len returns the number of declared variables.
func (r *Registry) Len() int { return len(r.model.Vars) }

// Model exposes the model the variables are declared on.
func (r *Registry) Model() *milp.Model { return r.model }
