// Package logging configures structured logging for the bulwark proxy.
//
// # Overview
//
// The logging package builds log/slog loggers from configuration:
//   - JSON or text output at a configurable minimum level
//   - Automatic redaction of sensitive attribute values (API keys,
//     authorization headers, tokens)
//   - Context-aware records: request_id and user attributes are added
//     automatically when present in the call's context
//
// # Usage
//
// At startup, install the configured logger as the process default:
//
//	logger, err := logging.Setup(cfg.Telemetry.Logging)
//	if err != nil {
//	    return err
//	}
//
// Components then derive their own loggers the usual way:
//
//	logger := slog.Default().With("component", "proxy.orchestrator")
//
// Request handlers stamp the context once and every log call downstream
// carries the request ID:
//
//	ctx = logging.WithRequestID(ctx, requestID)
//	logger.InfoContext(ctx, "request admitted")
package logging
