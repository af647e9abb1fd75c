// Package logger holds the process-wide zap logger.
//
// The level and encoder (console or JSON) are chosen once at startup with
// Configure. Code that logs takes the logger from its context: WithName and
// WithKV derive annotated loggers, so a zone's entries carry its id and
// category, and the *KV helpers write structured entries at each level.
package logger
