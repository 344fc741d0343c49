// Package logger builds the *slog.Logger used across authcore.
//
// New returns a logger configured by functional options: output format, level,
// static attributes and ContextExtractor callbacks that pull request-scoped
// values (request id, caller ip) out of the context on every record.
//
//	log := logger.New(
//		logger.WithEnvironment(environment.Production, "authcore"),
//		logger.WithContextExtractors(logger.RequestIDExtractor(requestid.FromContext)),
//	)
//	log.InfoContext(ctx, "two-factor enabled", logger.UserID(id))
//
// Attribute helpers in attr.go keep key names consistent. None of them accept
// secret material; TOTP secrets implement slog.LogValuer and redact themselves.
package logger
