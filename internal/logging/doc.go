// Package logging provides structured logging with OpenTelemetry integration.
//
// The package wraps Zap with:
//   - Console or JSON output to stdout, stderr, or a file
//   - Optional dual output to an OpenTelemetry log provider
//   - Automatic trace correlation fields (trace_id, span_id) from context
//
// Create a logger from config:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Log with context so trace correlation is attached automatically:
//
//	logger.Info(ctx, "batch upserted", zap.Int("points", n))
//
// Logger is safe for concurrent use. Child loggers (With, Named) are
// independent and do not affect parent or siblings.
package logging
