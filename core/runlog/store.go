package runlog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/kilianp07/ucplan/core/model"
)

// Record captures one planning run.
type Record struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Instance   string    `json:"instance"`
	Digest     string    `json:"digest"`
	Status     string    `json:"status"`
	Objective  *float64  `json:"objective,omitempty"`
	Nodes      int       `json:"nodes"`
	DurationMS float64   `json:"duration_ms"`
	Violations int       `json:"violations"`
	Message    string    `json:"message,omitempty"`
}

// Query defines filters for retrieving records. Zero fields match
// everything; Limit keeps the most recent records.
type Query struct {
	Start    time.Time
	End      time.Time
	Instance string
	Status   string
	Limit    int
}

// Match reports whether r passes every filter except Limit.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Instance != "" && r.Instance != q.Instance {
		return false
	}
	if q.Status != "" && r.Status != q.Status {
		return false
	}
	return true
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// finish sorts records by time and applies the limit.
func finish(res []Record, limit int) []Record {
	sort.SliceStable(res, func(i, j int) bool { return res[i].Timestamp.Before(res[j].Timestamp) })
	if limit > 0 && len(res) > limit {
		res = res[len(res)-limit:]
	}
	return res
}

// Digest returns a stable fingerprint of the instance contents, used to
// spot repeated runs of the same problem.
func Digest(in model.Instance) string {
	b, err := json.Marshal(digestView(in))
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

// digestView replaces infinite limits, which encoding/json rejects.
func digestView(in model.Instance) model.Instance {
	units := make([]model.FossilUnit, len(in.Units))
	copy(units, in.Units)
	for i := range units {
		if !units[i].HasRampLimit() {
			units[i].RampLimitMW = -1
		}
	}
	in.Units = units
	if !in.Policy.HasEmissionCap() {
		in.Policy.EmissionCap = -1
	}
	return in
}
