package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/robertodauria/speedtest/pkg/speedtest/spec"
)

// NoStore marks every response as non-cacheable. A cached payload would
// never reach the client through the network under test.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		h := rw.Header()
		h.Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		next.ServeHTTP(rw, req)
	})
}

// NewRouter returns the HTTP API served by h. If staticDir is not empty its
// contents are served at "/".
func NewRouter(h *Handler, allowedOrigins []string, staticDir string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(NoStore)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Length", spec.MeasurementIDHeader},
	}))

	r.Get(spec.PingPath, h.Ping)
	r.Get(spec.DownloadSizesPath, h.DownloadSizes)
	r.Get(spec.DownloadPath, h.Download)
	r.Post(spec.UploadPath, h.Upload)
	r.Get(spec.WSDownloadPath, h.DownloadWS)
	r.Get(spec.WSUploadPath, h.UploadWS)

	if staticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(staticDir)))
	}
	return r
}
