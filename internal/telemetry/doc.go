// Package telemetry sets up OpenTelemetry tracing and metrics export for
// docforge.
//
// Instrumented packages create their tracers and instruments from the
// global providers at init; New installs the real providers when telemetry
// is enabled, so those package-level instruments start exporting without
// being recreated.
//
//	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry), logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Exporter failures never stop the server. The instance is marked degraded
// and the global no-op providers stay in place.
//
// Tests use NewRecorder, which keeps spans and metrics in memory.
package telemetry
