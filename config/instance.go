package config

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/ucplan/core/model"
)

// UnitFile is a fossil unit as written in an instance file.
type UnitFile struct {
	Name         string  `json:"name,omitempty" yaml:"name,omitempty"`
	CapacityMW   float64 `json:"capacity_mw" yaml:"capacity_mw"`
	Cost         float64 `json:"cost" yaml:"cost"`
	StartUpCost  float64 `json:"start_up_cost" yaml:"start_up_cost"`
	MinUpHours   int     `json:"min_up_hours,omitempty" yaml:"min_up_hours,omitempty"`
	MinDownHours int     `json:"min_down_hours,omitempty" yaml:"min_down_hours,omitempty"`
	// RampLimitMW absent or negative means no ramp limit.
	RampLimitMW    *float64 `json:"ramp_limit_mw,omitempty" yaml:"ramp_limit_mw,omitempty"`
	EmissionFactor float64  `json:"emission_factor" yaml:"emission_factor"`
}

// BatteryFile is the storage section of an instance file.
type BatteryFile struct {
	CapacityMWh float64 `json:"capacity_mwh" yaml:"capacity_mwh"`
	PowerMW     float64 `json:"power_mw" yaml:"power_mw"`
	// Efficiency defaults to 1 when absent.
	Efficiency    *float64 `json:"efficiency,omitempty" yaml:"efficiency,omitempty"`
	OperatingCost float64  `json:"operating_cost" yaml:"operating_cost"`
	InitialSoCMWh float64  `json:"initial_soc_mwh,omitempty" yaml:"initial_soc_mwh,omitempty"`
}

// InstanceFile is the persisted form of a planning problem, read from YAML or
// JSON files and from API request bodies.
type InstanceFile struct {
	Name string `json:"name" yaml:"name"`
	// Start is RFC 3339 or a plain date. Empty means the Unix epoch.
	Start string `json:"start,omitempty" yaml:"start,omitempty"`
	// Horizon defaults to the length of DemandMW.
	Horizon       int         `json:"horizon,omitempty" yaml:"horizon,omitempty"`
	DemandMW      []float64   `json:"demand_mw" yaml:"demand_mw"`
	RenewableMW   []float64   `json:"renewable_mw,omitempty" yaml:"renewable_mw,omitempty"`
	RenewableCost float64     `json:"renewable_cost,omitempty" yaml:"renewable_cost,omitempty"`
	Units         []UnitFile  `json:"units" yaml:"units"`
	Battery       BatteryFile `json:"battery" yaml:"battery"`
	// ReserveFraction of demand to hold as spinning reserve.
	ReserveFraction float64 `json:"reserve_fraction,omitempty" yaml:"reserve_fraction,omitempty"`
	// EmissionCap absent or negative means no cap.
	EmissionCap       *float64 `json:"emission_cap,omitempty" yaml:"emission_cap,omitempty"`
	InitialCommitment string   `json:"initial_commitment,omitempty" yaml:"initial_commitment,omitempty"`
}

var startLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

// ParseStart parses the start of hour 1 in RFC 3339 or as a plain date.
// An empty string yields the zero time.
func ParseStart(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range startLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("start %q: expected RFC 3339 or YYYY-MM-DD", s)
}

// Instance converts the file form into a validated model.Instance.
func (f InstanceFile) Instance() (model.Instance, error) {
	start, err := ParseStart(f.Start)
	if err != nil {
		return model.Instance{}, err
	}
	T := f.Horizon
	if T == 0 {
		T = len(f.DemandMW)
	}
	avail := f.RenewableMW
	if avail == nil {
		avail = make([]float64, T)
	}
	in := model.Instance{
		Name:      f.Name,
		Start:     start,
		Horizon:   model.TimeHorizon(T),
		DemandMW:  f.DemandMW,
		Renewable: model.RenewableProfile{AvailabilityMW: avail, Cost: f.RenewableCost},
		Battery: model.Battery{
			CapacityMWh:   f.Battery.CapacityMWh,
			PowerMW:       f.Battery.PowerMW,
			Efficiency:    1,
			OperatingCost: f.Battery.OperatingCost,
			InitialSoCMWh: f.Battery.InitialSoCMWh,
		},
		Policy: model.ReliabilityPolicy{
			ReserveFraction: f.ReserveFraction,
			EmissionCap:     model.NoEmissionCap,
		},
		Options: model.Options{InitialCommitment: model.InitialCommitment(f.InitialCommitment)},
	}
	if f.Battery.Efficiency != nil {
		in.Battery.Efficiency = *f.Battery.Efficiency
	}
	if f.EmissionCap != nil && *f.EmissionCap >= 0 {
		in.Policy.EmissionCap = *f.EmissionCap
	}
	in.Units = make([]model.FossilUnit, len(f.Units))
	for i, u := range f.Units {
		in.Units[i] = model.FossilUnit{
			Name:           u.Name,
			CapacityMW:     u.CapacityMW,
			Cost:           u.Cost,
			StartUpCost:    u.StartUpCost,
			MinUpHours:     max(u.MinUpHours, 1),
			MinDownHours:   max(u.MinDownHours, 1),
			RampLimitMW:    model.NoRampLimit,
			EmissionFactor: u.EmissionFactor,
		}
		if u.RampLimitMW != nil && *u.RampLimitMW >= 0 {
			in.Units[i].RampLimitMW = *u.RampLimitMW
		}
	}
	if err := in.Validate(); err != nil {
		return model.Instance{}, fmt.Errorf("instance %q: %w", f.Name, err)
	}
	return in, nil
}

// FromInstance returns the file form of in.
func FromInstance(in model.Instance) InstanceFile {
	f := InstanceFile{
		Name:            in.Name,
		Horizon:         in.Horizon.Len(),
		DemandMW:        in.DemandMW,
		RenewableMW:     in.Renewable.AvailabilityMW,
		RenewableCost:   in.Renewable.Cost,
		ReserveFraction: in.Policy.ReserveFraction,
		Battery: BatteryFile{
			CapacityMWh:   in.Battery.CapacityMWh,
			PowerMW:       in.Battery.PowerMW,
			OperatingCost: in.Battery.OperatingCost,
			InitialSoCMWh: in.Battery.InitialSoCMWh,
		},
		InitialCommitment: string(in.Options.InitialCommitment),
	}
	if !in.Start.IsZero() {
		f.Start = in.Start.Format(time.RFC3339)
	}
	if eff := in.Battery.Efficiency; eff != 1 {
		f.Battery.Efficiency = &eff
	}
	if in.Policy.HasEmissionCap() {
		c := in.Policy.EmissionCap
		f.EmissionCap = &c
	}
	f.Units = make([]UnitFile, len(in.Units))
	for i, u := range in.Units {
		f.Units[i] = UnitFile{
			Name:           u.Name,
			CapacityMW:     u.CapacityMW,
			Cost:           u.Cost,
			StartUpCost:    u.StartUpCost,
			MinUpHours:     u.MinUpHours,
			MinDownHours:   u.MinDownHours,
			EmissionFactor: u.EmissionFactor,
		}
		if u.HasRampLimit() && !math.IsNaN(u.RampLimitMW) {
			r := u.RampLimitMW
			f.Units[i].RampLimitMW = &r
		}
	}
	return f
}

// timeToString lets YAML timestamps land in string fields.
func timeToString(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if t, ok := data.(time.Time); ok && to.Kind() == reflect.String {
		return t.Format(time.RFC3339), nil
	}
	return data, nil
}

// ReadInstanceFile parses a YAML or JSON instance file.
func ReadInstanceFile(path string) (InstanceFile, error) {
	var f InstanceFile
	parser, err := parserFor(path)
	if err != nil {
		return f, err
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return f, err
	}
	err = k.UnmarshalWithConf("", &f, koanf.UnmarshalConf{
		Tag: "json",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook:       mapstructure.ComposeDecodeHookFunc(timeToString),
			Result:           &f,
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return f, fmt.Errorf("decode %s: %w", path, err)
	}
	return f, nil
}

// LoadInstance reads and validates the instance file at path.
func LoadInstance(path string) (model.Instance, error) {
	f, err := ReadInstanceFile(path)
	if err != nil {
		return model.Instance{}, err
	}
	return f.Instance()
}
