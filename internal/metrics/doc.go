// Package metrics provides the observability hooks for the lastsignal daemon.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics never require nil checks at call sites:
//
//	engine := escalation.New(cfg, store, dispatcher, composer)
//	engine.WithRecorder(metrics.NewPrometheusRecorder(registry))
//
// The daemon activates PrometheusRecorder when app.metrics_listen is set and
// serves the registry through HTTPHandler.
package metrics
