package api

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// StartAPIServer starts the operational HTTP sidecar.
// It provides endpoints for health checks (/healthz) and Prometheus metrics
// (/metrics) and runs until the application is terminated. The tool transport
// owns stdin and stdout, so this is the only network listener the process
// opens.
func StartAPIServer(port string) {
	http.HandleFunc("/healthz", healthzHandler)
	http.Handle("/metrics", metricsHandler())

	log.Info().Msgf("API server starting on :%s", port)
	err := http.ListenAndServe(":"+port, nil)
	if err != nil {
		log.Error().Err(err).Msg("API server failed")
	}
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
