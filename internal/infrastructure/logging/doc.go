// Package logging provides structured logging for the strip gateway.
//
// It wraps log/slog so that every component logs with the same default
// fields (service, version) and the same level filtering.
//
// Configuration in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("device connected", "device_id", id)
//
// Never log bearer tokens, refresh tokens or API keys in full. Use Redact.
package logging
