package httpapi

import (
	"net/http"
	hpprof "net/http/pprof"
)

const pprofPrefix = "/debug/pprof/"

// mountPprof registers the profiling handlers. Index also serves the named
// profiles (heap, goroutine, ...) below the prefix.
func mountPprof(mux *http.ServeMux) {
	mux.HandleFunc("GET "+pprofPrefix, hpprof.Index)
	mux.HandleFunc("GET "+pprofPrefix+"cmdline", hpprof.Cmdline)
	mux.HandleFunc("GET "+pprofPrefix+"profile", hpprof.Profile)
	mux.HandleFunc("GET "+pprofPrefix+"symbol", hpprof.Symbol)
	mux.HandleFunc("POST "+pprofPrefix+"symbol", hpprof.Symbol)
	mux.HandleFunc("GET "+pprofPrefix+"trace", hpprof.Trace)
	mux.HandleFunc("GET /debug/pprof", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, pprofPrefix, http.StatusPermanentRedirect)
	})
}
