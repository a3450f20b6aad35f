package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/ucplan/core/runlog"
)

// NewRunsHandler exposes the run history via GET /api/runs. Supported query
// parameters: start and end (RFC 3339), instance, status and limit.
func NewRunsHandler(store runlog.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		params := r.URL.Query()
		q := runlog.Query{Instance: params.Get("instance"), Status: params.Get("status")}
		for key, dst := range map[string]*time.Time{"start": &q.Start, "end": &q.End} {
			if s := params.Get(key); s != "" {
				t, err := time.Parse(time.RFC3339, s)
				if err != nil {
					http.Error(w, "invalid "+key+": "+err.Error(), http.StatusBadRequest)
					return
				}
				*dst = t
			}
		}
		if s := params.Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			q.Limit = n
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []runlog.Record{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
