package main

import (
	"github.com/sirupsen/logrus"

	"linemend/internal/config"
	"linemend/internal/metrics"
	"linemend/internal/metrics/datadog"
	"linemend/internal/metrics/prompush"
)

const defaultDatadogAddr = "127.0.0.1:8125"

// setupMetrics installs the configured backend and returns the flush to
// defer. Backend failures disable metrics instead of failing the run.
func setupMetrics(job config.Job, log logrus.FieldLogger) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch job.Metrics.Backend {
	case "pushgateway", "prom":
		b, err = prompush.NewBackend(job.Name, job.Metrics.PushgatewayURL)
	case "datadog", "dogstatsd":
		addr := job.Metrics.DatadogAddr
		if addr == "" {
			addr = defaultDatadogAddr
		}
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  job.Metrics.Namespace,
			GlobalTags: []string{"job:" + job.Name},
		})
	case "", "none":
		return func() {}
	default:
		log.WithField("backend", job.Metrics.Backend).Warn("metrics: unknown backend; metrics disabled")
		return func() {}
	}
	if err != nil {
		log.WithError(err).Warn("metrics: backend init failed; metrics disabled")
		return func() {}
	}

	metrics.SetBackend(b)
	log.WithField("backend", job.Metrics.Backend).Debug("metrics enabled")
	return func() {
		if err := metrics.Flush(); err != nil {
			log.WithError(err).Warn("metrics: flush failed")
		}
	}
}
