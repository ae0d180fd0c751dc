package mainboilerplate

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// InitMetrics serves Prometheus metrics at |addr| and |path| in the background.
func InitMetrics(addr, path string) {
	http.Handle(path, promhttp.Handler())
	go func() {
		var err = http.ListenAndServe(addr, nil)
		log.WithFields(log.Fields{"err": err, "addr": addr}).
			Error("metrics server exited")
	}()
}
