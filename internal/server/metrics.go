package server

import (
	"net/http"

	"github.com/arl/statsviz"
)

// MetricsHandler serves the statsviz runtime dashboard under /debug/statsviz/.
func MetricsHandler() (http.Handler, error) {
	mux := http.NewServeMux()
	if err := statsviz.Register(mux); err != nil {
		return nil, err
	}
	return mux, nil
}
