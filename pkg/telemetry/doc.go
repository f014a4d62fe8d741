// Package telemetry provides the observability stack of a chainstage
// invocation.
//
// It integrates structured logging (zerolog), tracing (OpenTelemetry) and
// metrics (Prometheus), plus a synchronous event bus that fans the run
// timeline out to its sinks.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.Environment = "sepolia"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	orch, err := engine.New(client, artifacts, engine.Options{
//	    Events:  tel.Events,
//	    Metrics: tel.Metrics,
//	    Tracer:  tel.Tracer.Tracer(),
//	    Logger:  tel.Logger.Zerolog(),
//	})
//
// # Metrics
//
// An invocation performs at most one step and exits, so nothing is scraped.
// Shutdown exports the registry once, to a node_exporter textfile
// (Metrics.TextfilePath) and/or a Pushgateway (Metrics.PushgatewayURL).
//
//	chainstage_runs_total{network, outcome}
//	chainstage_run_duration_seconds{network, outcome}
//	chainstage_last_run_timestamp_seconds{network, outcome}
//	chainstage_steps_total{step, kind, outcome}
//	chainstage_step_duration_seconds{kind}
//	chainstage_errors_total{class, code}
//
// # Tracing
//
// The exporter is otlp (gRPC), stdout or none. Spans are exported
// synchronously since the process ends right after the step.
//
// # Events
//
// EventBus implements engine.EventPublisher. Subscribers are added with an
// optional filter (MinLevel, OfType); a log sink is always subscribed and
// the SQLite record store subscribes itself when it is the record backend.
package telemetry
