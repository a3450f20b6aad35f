package formulation

import (
	"strings"

	"github.com/kilianp07/ucplan/core/milp"
	"github.com/kilianp07/ucplan/core/model"
)

// Formulation is the assembled optimisation problem for one instance. It is
// not modified after Formulate returns.
type Formulation struct {
	Instance model.Instance
	Registry *Registry
	Model    *milp.Model
}

// Formulate builds the registry, objective and constraints for in.
func Formulate(in model.Instance) (*Formulation, error) {
	reg, err := NewRegistry(in)
	if err != nil {
		return nil, err
	}
	obj, err := BuildObjective(in, reg)
	if err != nil {
		return nil, err
	}
	cons, err := BuildConstraints(in, reg)
	if err != nil {
		return nil, err
	}
	m := reg.Model()
	m.Objective = obj
	for _, c := range cons {
		m.AddConstraint(c)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &Formulation{Instance: in, Registry: reg, Model: m}, nil
}

// Stats summarises the size of a formulation.
type Stats struct {
	Variables   int            `json:"variables"`
	Binaries    int            `json:"binaries"`
	Constraints int            `json:"constraints"`
	ByFamily    map[Family]int `json:"by_family"`
}

// Stats counts variables and constraints per family.
func (f *Formulation) Stats() Stats {
	s := Stats{
		Variables:   len(f.Model.Vars),
		Binaries:    f.Model.NumIntegral(),
		Constraints: len(f.Model.Constraints),
		ByFamily:    make(map[Family]int),
	}
	for _, c := range f.Model.Constraints {
		s.ByFamily[FamilyOf(c.Name)]++
	}
	return s
}

// FamilyOf extracts the family from a constraint name.
func FamilyOf(name string) Family {
	if i := strings.IndexByte(name, '['); i >= 0 {
		return Family(name[:i])
	}
	return Family(name)
}
