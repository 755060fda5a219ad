package pipeline_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/couchcryptid/station-snapshot-collector/internal/domain"
)

// newFeedServer serves a small XML document for every history feed, except
// the stations listed in statuses, which answer with the given status.
func newFeedServer(t *testing.T, statuses map[string]int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := domain.ExtractIdentifier(r.URL.Path, domain.HistoryPattern)
		if !ok {
			http.NotFound(w, r)
			return
		}
		if code, ok := statuses[id]; ok {
			w.WriteHeader(code)
			return
		}
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(`<data><station>` + id + `</station></data>`))
	}))
	t.Cleanup(srv.Close)
	return srv
}
