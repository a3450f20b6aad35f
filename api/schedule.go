package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kilianp07/ucplan/config"
	"github.com/kilianp07/ucplan/core/model"
	"github.com/kilianp07/ucplan/core/planner"
	"github.com/kilianp07/ucplan/pkg/export"
)

// Planner solves one instance.
type Planner interface {
	Plan(ctx context.Context, in model.Instance) (planner.Run, error)
}

// NewScheduleHandler solves the instance posted as JSON via POST
// /api/schedule. The format query parameter selects json (default), csv or
// text output. Invalid instances answer 422; infeasible ones still answer
// 200 with the diagnostic in the body.
func NewScheduleHandler(p Planner, maxBody int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if maxBody > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		var f config.InstanceFile
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}
		in, err := f.Instance()
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		run, err := p.Plan(r.Context(), in)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("X-Run-ID", run.ID)
		switch r.URL.Query().Get("format") {
		case "csv":
			if !run.Outcome.Optimal() {
				http.Error(w, "no schedule: "+run.Outcome.Status.String(), http.StatusConflict)
				return
			}
			w.Header().Set("Content-Type", "text/csv")
			err = export.WriteCSV(w, in, run.Outcome.Schedule)
		case "text":
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			err = export.WriteText(w, in, run.Outcome)
		default:
			w.Header().Set("Content-Type", "application/json")
			err = json.NewEncoder(w).Encode(run)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
