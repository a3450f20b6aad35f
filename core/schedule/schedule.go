package schedule

import (
	"github.com/kilianp07/ucplan/core/milp"
)

// UnitHour is the operating point of one fossil unit in one hour.
type UnitHour struct {
	Unit         int     `json:"unit"`
	Name         string  `json:"name"`
	Committed    bool    `json:"committed"`
	GenerationMW float64 `json:"generation_mw"`
	StartUp      bool    `json:"start_up"`
	ShutDown     bool    `json:"shut_down"`
}

// Hour is the system state for one period.
type Hour struct {
	Hour             int        `json:"hour"`
	DemandMW         float64    `json:"demand_mw"`
	Units            []UnitHour `json:"units"`
	RenewableUsedMW  float64    `json:"renewable_used_mw"`
	CurtailedMW      float64    `json:"curtailed_mw"`
	ChargeMW         float64    `json:"charge_mw"`
	DischargeMW      float64    `json:"discharge_mw"`
	StateOfChargeMWh float64    `json:"state_of_charge_mwh"`
}

// FossilMW returns the total fossil generation of the hour.
func (h Hour) FossilMW() float64 {
	var s float64
	for _, u := range h.Units {
		s += u.GenerationMW
	}
	return s
}

// Summary aggregates a schedule over the horizon.
type Summary struct {
	GenerationCost float64 `json:"generation_cost"`
	StartUpCost    float64 `json:"start_up_cost"`
	BatteryCost    float64 `json:"battery_cost"`
	RenewableCost  float64 `json:"renewable_cost"`
	FossilMWh      float64 `json:"fossil_mwh"`
	RenewableMWh   float64 `json:"renewable_mwh"`
	CurtailedMWh   float64 `json:"curtailed_mwh"`
	ChargedMWh     float64 `json:"charged_mwh"`
	DischargedMWh  float64 `json:"discharged_mwh"`
	Emissions      float64 `json:"emissions"`
	StartUps       int     `json:"start_ups"`
	CommittedHours int     `json:"committed_hours"`
}

// Schedule is the operating plan produced from an optimal solve.
type Schedule struct {
	Status    milp.Status `json:"status"`
	TotalCost float64     `json:"total_cost"`
	Hours     []Hour      `json:"hours"`
	Summary   Summary     `json:"summary"`
}

// Diagnostic explains why no schedule was produced.
type Diagnostic struct {
	Status  milp.Status `json:"status"`
	Message string      `json:"message,omitempty"`
	Nodes   int         `json:"nodes"`
	// Incumbent is the objective of the best feasible point found before the
	// solve stopped, when there is one.
	Incumbent *float64 `json:"incumbent,omitempty"`
}

// Outcome is the result of interpreting a solve: exactly one of Schedule and
// Diagnostic is set.
type Outcome struct {
	Status     milp.Status `json:"status"`
	Schedule   *Schedule   `json:"schedule,omitempty"`
	Diagnostic *Diagnostic `json:"diagnostic,omitempty"`
}

// Optimal reports whether the outcome carries a schedule.
func (o Outcome) Optimal() bool { return o.Status == milp.StatusOptimal && o.Schedule != nil }
