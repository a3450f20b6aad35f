// Package export renders planning outcomes for people and spreadsheets. It
// only consumes schedules; rounding happens here and nowhere upstream.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kilianp07/ucplan/core/model"
	"github.com/kilianp07/ucplan/core/schedule"
)

// Places is the number of decimals shown for MW, MWh and cost values.
const Places int32 = 2

// Format renders v with the given number of decimals. Non-finite values are
// printed as "inf", "-inf" or "nan".
func Format(v float64, places int32) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}

func num(v float64) string { return Format(v, Places) }

// WriteJSON writes the outcome as indented JSON with raw solver values.
func WriteJSON(w io.Writer, o schedule.Outcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(o)
}

// CSVHeader returns the column names of WriteCSV for in.
func CSVHeader(in model.Instance) []string {
	h := []string{"hour", "time", "demand_mw"}
	for f := range in.Units {
		name := in.UnitName(f)
		h = append(h, name+"_on", name+"_mw")
	}
	return append(h, "renewable_used_mw", "curtailed_mw", "charge_mw", "discharge_mw", "soc_mwh")
}

// WriteCSV writes one row per hour of s.
func WriteCSV(w io.Writer, in model.Instance, s *schedule.Schedule) error {
	if s == nil {
		return errors.New("export: no schedule")
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader(in)); err != nil {
		return err
	}
	for _, h := range s.Hours {
		rec := []string{fmt.Sprint(h.Hour), in.HourStart(h.Hour).Format(time.RFC3339), num(h.DemandMW)}
		for _, u := range h.Units {
			on := "0"
			if u.Committed {
				on = "1"
			}
			rec = append(rec, on, num(u.GenerationMW))
		}
		rec = append(rec, num(h.RenewableUsedMW), num(h.CurtailedMW), num(h.ChargeMW), num(h.DischargeMW), num(h.StateOfChargeMWh))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteText writes a human-readable report: status, cost, the hourly plan
// and the summary. Non-optimal outcomes print the diagnostic only.
func WriteText(w io.Writer, in model.Instance, o schedule.Outcome) error {
	name := in.Name
	if name == "" {
		name = "instance"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", name, o.Status)
	if !o.Optimal() {
		if d := o.Diagnostic; d != nil {
			fmt.Fprintf(&b, "reason: %s\n", d.Message)
			fmt.Fprintf(&b, "nodes: %d\n", d.Nodes)
			if d.Incumbent != nil {
				fmt.Fprintf(&b, "best feasible cost: %s\n", num(*d.Incumbent))
			}
		}
		_, err := io.WriteString(w, b.String())
		return err
	}
	s := o.Schedule
	fmt.Fprintf(&b, "total cost: %s\n\n", num(s.TotalCost))
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	header := []string{"hour", "demand"}
	for f := range in.Units {
		header = append(header, in.UnitName(f))
	}
	header = append(header, "renew", "curt", "charge", "disch", "soc")
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")
	for _, h := range s.Hours {
		row := []string{fmt.Sprint(h.Hour), num(h.DemandMW)}
		for _, u := range h.Units {
			if u.Committed {
				row = append(row, num(u.GenerationMW))
			} else {
				row = append(row, "off")
			}
		}
		row = append(row, num(h.RenewableUsedMW), num(h.CurtailedMW), num(h.ChargeMW), num(h.DischargeMW), num(h.StateOfChargeMWh))
		fmt.Fprintln(tw, strings.Join(row, "\t")+"\t")
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	sum := s.Summary
	b.Reset()
	fmt.Fprintf(&b, "\ngeneration cost: %s\n", num(sum.GenerationCost))
	fmt.Fprintf(&b, "start-up cost: %s (%d start-ups)\n", num(sum.StartUpCost), sum.StartUps)
	fmt.Fprintf(&b, "battery cost: %s\n", num(sum.BatteryCost))
	if sum.RenewableCost != 0 {
		fmt.Fprintf(&b, "renewable cost: %s\n", num(sum.RenewableCost))
	}
	fmt.Fprintf(&b, "fossil: %s MWh, renewable: %s MWh, curtailed: %s MWh\n", num(sum.FossilMWh), num(sum.RenewableMWh), num(sum.CurtailedMWh))
	fmt.Fprintf(&b, "emissions: %s\n", num(sum.Emissions))
	_, err := io.WriteString(w, b.String())
	return err
}
