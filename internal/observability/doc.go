// Package observability provides structured logging and Prometheus metrics
// for the SME-Plug service.
//
// This package implements:
//   - zap logger construction from configuration (json or console encoding)
//   - Request-scoped loggers carrying the request ID
//   - Prometheus collectors for pipeline steps, guardrail decisions,
//     retrieval cache activity, LLM calls and audit persistence
//
// Every collector method is safe to call on a nil *Metrics, so components can
// run without metrics in tests and in the CLI.
package observability
