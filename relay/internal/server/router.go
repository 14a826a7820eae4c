package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bloomwatch/bloomwatch-stack/common/httputil"
	"github.com/bloomwatch/bloomwatch-stack/common/logging"
	"github.com/bloomwatch/bloomwatch-stack/common/middleware"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/handlers"
)

// RouterConfig holds dependencies needed to configure routes
type RouterConfig struct {
	Handler   *handlers.Handler
	CORS      middleware.CORSConfig
	StaticDir string
	Logger    *logging.Logger
}

// NewRouter constructs a ServeMux with relay routes registered and wraps it
// in the shared middleware chain.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	h := cfg.Handler
	mux := http.NewServeMux()

	// Method checks happen in the handler so a wrong method still gets an envelope
	mux.HandleFunc("/predict-crop-health", h.PredictCropHealth)

	// Probes and metrics
	mux.HandleFunc("GET /healthz", h.HealthCheck)
	mux.HandleFunc("GET /readyz", h.Readyz)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Read API
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/predictions", h.ListPredictions)
	mux.HandleFunc("GET /api/v1/predictions/{id}", h.GetPrediction)

	// Front end (must be last)
	if cfg.StaticDir != "" {
		mux.Handle("/", handlers.NewSPAHandler(cfg.StaticDir))
	} else {
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			httputil.WriteError(w, http.StatusNotFound, "not found", r.URL.Path)
		})
	}

	var handler http.Handler = mux
	handler = middleware.CORS(cfg.CORS)(handler)
	handler = middleware.Recover(cfg.Logger.Logger)(handler)
	handler = middleware.AccessLog(cfg.Logger.Logger, "/healthz", "/readyz", "/metrics")(handler)
	return middleware.RequestID(handler)
}
