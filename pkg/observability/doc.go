// Package observability provides OpenTelemetry tracing and RED metrics for
// the engine plane. engine.Plane builds one process-wide Provider at
// startup; the queue, scheduler, runtime host, and cache do not record
// spans or metrics through it.
//
// # Tracing
//
// Initialize tracing at application startup:
//
//	p, err := observability.New(ctx, &observability.Config{
//		ServiceName:  "uicp-engine",
//		OTLPEndpoint: "otel-collector:4317",
//		SampleRate:   0.1, // 10% sampling in production
//	})
//	defer p.Shutdown(ctx)
//
// Create spans manually:
//
//	ctx, span := p.StartSpan(ctx, "operation_name")
//	defer span.End()
//
// # Metrics
//
// RED metrics (request rate, errors, duration) are recorded automatically
// by TrackOperation:
//
//	ctx, finish := p.TrackOperation(ctx, "compute.job.run", observability.JobOperation(jobID, task, false)...)
//	defer finish(err)
package observability
