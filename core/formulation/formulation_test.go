package formulation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/ucplan/core/milp"
	"github.com/kilianp07/ucplan/core/model"
)

func testInstance() model.Instance {
	return model.Instance{
		Name:    "two-units",
		Horizon: 4,
		Units: []model.FossilUnit{
			{Name: "coal", CapacityMW: 100, Cost: 10, StartUpCost: 50, MinUpHours: 2, MinDownHours: 2, RampLimitMW: 30, EmissionFactor: 0.5},
			{Name: "gas", CapacityMW: 50, Cost: 30, MinUpHours: 1, MinDownHours: 1, RampLimitMW: model.NoRampLimit, EmissionFactor: 1},
		},
		Renewable: model.RenewableProfile{AvailabilityMW: []float64{5, 10, 0, 20}, Cost: 1},
		Battery:   model.Battery{CapacityMWh: 20, PowerMW: 10, Efficiency: 0.9, OperatingCost: 2},
		DemandMW:  []float64{40, 60, 80, 50},
		Policy:    model.ReliabilityPolicy{ReserveFraction: 0.1, EmissionCap: 1000},
	}
}

// feasiblePoint commits coal all day, gas at hour 3 only and leaves the
// battery idle.
func feasiblePoint(t *testing.T, f *Formulation) []float64 {
	t.Helper()
	x := make([]float64, len(f.Model.Vars))
	set := func(k Kind, u, h int, v float64) {
		id, err := f.Registry.Lookup(k, u, h)
		require.NoError(t, err)
		x[id] = v
	}
	coal := []float64{35, 50, 50, 30}
	for h := 1; h <= 4; h++ {
		set(Committed, 0, h, 1)
		set(Generation, 0, h, coal[h-1])
		set(RenewableUsed, -1, h, f.Instance.Availability(h))
	}
	set(StartUp, 0, 1, 1)
	set(Committed, 1, 3, 1)
	set(Generation, 1, 3, 30)
	set(StartUp, 1, 3, 1)
	set(ShutDown, 1, 4, 1)
	return x
}

func countFamilies(cons []milp.Constraint) map[Family]int {
	out := make(map[Family]int)
	for _, c := range cons {
		out[FamilyOf(c.Name)]++
	}
	return out
}

func TestFormulate_FamilyCounts(t *testing.T) {
	f, err := Formulate(testInstance())
	require.NoError(t, err)
	got := f.Stats()
	assert.Equal(t, 4*(2*4)+5*4, got.Variables)
	assert.Equal(t, 2*3*4, got.Binaries)
	want := map[Family]int{
		FamilyBalance:         4,
		FamilyRenewableSplit:  4,
		FamilyLinkage:         8,
		FamilySoCInit:         1,
		FamilySoC:             3,
		FamilyNoOverDischarge: 4,
		FamilyStartUp:         8,
		FamilyShutDown:        6,
		FamilyMinUp:           3,
		FamilyMinDown:         2,
		FamilyRampUp:          3,
		FamilyRampDown:        3,
		FamilyReserve:         4,
		FamilyEmissionCap:     1,
	}
	assert.Equal(t, want, got.ByFamily)
}

func TestFormulate_FeasiblePointSatisfiesModel(t *testing.T) {
	f, err := Formulate(testInstance())
	require.NoError(t, err)
	x := feasiblePoint(t, f)
	assert.Empty(t, f.Model.Check(x, 1e-9))
}

func TestFormulate_ViolationsAreNamed(t *testing.T) {
	in := testInstance()
	in.Units[1].MinUpHours = 2
	f, err := Formulate(in)
	require.NoError(t, err)
	x := feasiblePoint(t, f)
	viol := f.Model.Check(x, 1e-9)
	require.Len(t, viol, 1)
	assert.Equal(t, "min_up[2,3,4]", viol[0].Name)

	// Generating while decommitted breaks the linkage.
	f, err = Formulate(testInstance())
	require.NoError(t, err)
	x = feasiblePoint(t, f)
	on, _ := f.Registry.Lookup(Committed, 1, 3)
	x[on] = 0
	names := map[string]bool{}
	for _, v := range f.Model.Check(x, 1e-9) {
		names[v.Name] = true
	}
	assert.True(t, names["linkage[2,3]"])
}

func TestRegistry_TightBounds(t *testing.T) {
	in := testInstance()
	reg, err := NewRegistry(in)
	require.NoError(t, err)
	for h := 1; h <= 4; h++ {
		v, err := reg.Var(RenewableUsed, -1, h)
		require.NoError(t, err)
		assert.Equal(t, in.Availability(h), v.Upper, "ren[%d]", h)
		c, _ := reg.Var(Curtailed, -1, h)
		assert.Equal(t, in.Availability(h), c.Upper)
		soc, _ := reg.Var(StateOfCharge, -1, h)
		assert.Equal(t, 20.0, soc.Upper)
		ch, _ := reg.Var(Charge, -1, h)
		assert.Equal(t, 10.0, ch.Upper)
	}
	g, err := reg.Var(Generation, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, "gen[2,2]", g.Name)
	assert.Equal(t, 50.0, g.Upper)
	assert.Equal(t, milp.Continuous, g.Domain)
	on, _ := reg.Var(Committed, 0, 1)
	assert.Equal(t, milp.Binary, on.Domain)

	_, err = reg.Lookup(Generation, 0, 0)
	var idx ErrIndex
	assert.True(t, errors.As(err, &idx))
	_, err = reg.Lookup(Generation, 2, 1)
	assert.Error(t, err)
	_, err = reg.Lookup(Charge, -1, 5)
	assert.Error(t, err)
}

func TestRegistry_RejectsInvalidInstance(t *testing.T) {
	in := testInstance()
	in.Battery.Efficiency = 0
	_, err := NewRegistry(in)
	assert.ErrorIs(t, err, model.ErrEfficiencyRange)

	in = testInstance()
	in.Horizon = 0
	_, err = Formulate(in)
	assert.ErrorIs(t, err, model.ErrEmptyHorizon)
}

func TestObjective_Coefficients(t *testing.T) {
	in := testInstance()
	reg, err := NewRegistry(in)
	require.NoError(t, err)
	obj, err := BuildObjective(in, reg)
	require.NoError(t, err)
	coef := make(map[string]float64)
	for _, term := range obj.Terms {
		coef[reg.Model().Vars[term.Var].Name] += term.Coef
	}
	assert.Equal(t, 10.0, coef["gen[1,3]"])
	assert.Equal(t, 30.0, coef["gen[2,1]"])
	assert.Equal(t, 50.0, coef["su[1,2]"])
	_, ok := coef["su[2,2]"]
	assert.False(t, ok, "zero start-up cost should not add a term")
	assert.Equal(t, 2.0, coef["ch[4]"])
	assert.Equal(t, 2.0, coef["dis[1]"])
	assert.Equal(t, 1.0, coef["ren[2]"])
	_, ok = coef["curt[2]"]
	assert.False(t, ok)
}

func constraintByName(cons []milp.Constraint, name string) (milp.Constraint, bool) {
	for _, c := range cons {
		if c.Name == name {
			return c, true
		}
	}
	return milp.Constraint{}, false
}

func termsByName(reg *Registry, c milp.Constraint) map[string]float64 {
	out := make(map[string]float64)
	for _, term := range c.Expr.Terms {
		out[reg.Model().Vars[term.Var].Name] += term.Coef
	}
	return out
}

func TestConstraints_StorageRecursion(t *testing.T) {
	in := testInstance()
	reg, err := NewRegistry(in)
	require.NoError(t, err)
	cons, err := BuildConstraints(in, reg)
	require.NoError(t, err)

	init, ok := constraintByName(cons, "soc_init")
	require.True(t, ok)
	assert.Equal(t, milp.Equal, init.Sense)
	assert.Equal(t, 0.0, init.RHS)

	c, ok := constraintByName(cons, "soc[3]")
	require.True(t, ok)
	terms := termsByName(reg, c)
	assert.Equal(t, 1.0, terms["soc[3]"])
	assert.Equal(t, -1.0, terms["soc[2]"])
	assert.InDelta(t, -0.9, terms["ch[2]"], 1e-12)
	assert.InDelta(t, 1/0.9, terms["dis[2]"], 1e-12)

	od, ok := constraintByName(cons, "no_overdischarge[3]")
	require.True(t, ok)
	terms = termsByName(reg, od)
	assert.Equal(t, map[string]float64{"dis[3]": 1, "soc[2]": -1}, terms)
	assert.Equal(t, milp.LessEq, od.Sense)
}

func TestConstraints_ReserveAndEmission(t *testing.T) {
	in := testInstance()
	reg, err := NewRegistry(in)
	require.NoError(t, err)
	cons, err := BuildConstraints(in, reg)
	require.NoError(t, err)

	r, ok := constraintByName(cons, "reserve[2]")
	require.True(t, ok)
	assert.Equal(t, milp.GreaterEq, r.Sense)
	assert.InDelta(t, 6.0, r.RHS, 1e-12)
	assert.Equal(t, 10.0, r.Expr.Constant)
	terms := termsByName(reg, r)
	assert.Equal(t, 100.0, terms["on[1,2]"])
	assert.Equal(t, 50.0, terms["on[2,2]"])
	assert.Equal(t, -1.0, terms["gen[1,2]"])
	assert.Equal(t, -1.0, terms["dis[2]"])

	e, ok := constraintByName(cons, "emission_cap")
	require.True(t, ok)
	assert.Len(t, e.Expr.Terms, 8)
	assert.Equal(t, 1000.0, e.RHS)

	in.Policy.EmissionCap = model.NoEmissionCap
	cons, err = BuildConstraints(in, reg)
	require.NoError(t, err)
	_, ok = constraintByName(cons, "emission_cap")
	assert.False(t, ok)
}

func TestConstraints_RampSkippedWithoutLimit(t *testing.T) {
	in := testInstance()
	reg, err := NewRegistry(in)
	require.NoError(t, err)
	cons, err := BuildConstraints(in, reg)
	require.NoError(t, err)
	_, ok := constraintByName(cons, "ramp_up[2,2]")
	assert.False(t, ok)
	_, ok = constraintByName(cons, "ramp_up[1,1]")
	assert.False(t, ok, "no ramp constraint at hour 1")
	up, ok := constraintByName(cons, "ramp_up[1,2]")
	require.True(t, ok)
	assert.Equal(t, 30.0, up.RHS)
}

func TestWindowEnd_Clamped(t *testing.T) {
	assert.Equal(t, 3, windowEnd(1, 3, 24))
	assert.Equal(t, 24, windowEnd(23, 5, 24))
	assert.Equal(t, 5, windowEnd(5, 1, 24))
}

func TestConstraints_MinUpWindowClampedToHorizon(t *testing.T) {
	in := testInstance()
	in.Units[0].MinUpHours = 6
	reg, err := NewRegistry(in)
	require.NoError(t, err)
	cons, err := BuildConstraints(in, reg)
	require.NoError(t, err)
	for _, c := range cons {
		if FamilyOf(c.Name) != FamilyMinUp {
			continue
		}
		for _, term := range c.Expr.Terms {
			v := reg.Model().Vars[term.Var]
			assert.NotContains(t, v.Name, ",0]")
			assert.NotContains(t, v.Name, ",5]")
		}
	}
	// t=1: tau 2..4, t=2: 3..4, t=3: 4
	assert.Equal(t, 6, countFamilies(cons)[FamilyMinUp])
}

func TestConstraints_InitialCommitment(t *testing.T) {
	cases := []struct {
		initial              model.InitialCommitment
		startups, shutdowns  int
		hasUpAt1, hasDownAt1 bool
	}{
		{model.InitialOff, 8, 6, true, false},
		{model.InitialOn, 6, 8, false, true},
		{model.InitialFree, 6, 6, false, false},
	}
	for _, c := range cases {
		t.Run(string(c.initial), func(t *testing.T) {
			in := testInstance()
			in.Options.InitialCommitment = c.initial
			reg, err := NewRegistry(in)
			require.NoError(t, err)
			cons, err := BuildConstraints(in, reg)
			require.NoError(t, err)
			counts := countFamilies(cons)
			assert.Equal(t, c.startups, counts[FamilyStartUp])
			assert.Equal(t, c.shutdowns, counts[FamilyShutDown])
			_, up := constraintByName(cons, "min_up[1,1,2]")
			assert.Equal(t, c.hasUpAt1, up)
			down, ok := constraintByName(cons, "min_down[1,1,2]")
			assert.Equal(t, c.hasDownAt1, ok)
			if ok {
				// 1 - on[1] + on[2] <= 1
				assert.Equal(t, 1.0, down.Expr.Constant)
				assert.Equal(t, 1.0, down.RHS)
			}
			if c.initial == model.InitialOn {
				sd, ok := constraintByName(cons, "shutdown[1,1]")
				require.True(t, ok)
				assert.Equal(t, -1.0, sd.Expr.Constant)
			}
		})
	}
}

func TestConstraints_MismatchedRegistry(t *testing.T) {
	in := testInstance()
	reg, err := NewRegistry(in)
	require.NoError(t, err)
	in.Horizon = 5
	in.DemandMW = append(in.DemandMW, 1)
	_, err = BuildConstraints(in, reg)
	assert.ErrorIs(t, err, ErrMismatch)

	in = testInstance()
	in.Units[0].MinDownHours = 0
	_, err = BuildConstraints(in, reg)
	assert.ErrorIs(t, err, model.ErrDuration)
}

func TestVarName(t *testing.T) {
	assert.Equal(t, "gen[1,24]", VarName(Generation, 0, 24))
	assert.Equal(t, "soc[3]", VarName(StateOfCharge, -1, 3))
	assert.Equal(t, "unknown", Kind(42).String())
}
