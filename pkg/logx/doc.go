// Package logx provides the structured logging layer used across dayplan.
//
// It wraps zerolog behind a small Logger value type so components can be
// handed a logger without caring about sinks. The Service owns the sinks
// (console and optional file) and can re-apply configuration at runtime;
// loggers created from it pick up changes immediately.
package logx
