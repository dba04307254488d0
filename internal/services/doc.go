// Package services defines shared utilities consumed by the job workers and
// the provider integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, job kinds, provider names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and KindOf which maps a
//     failure onto the labels reported on failed jobs.
//
// Use these helpers when wiring new worker pipelines so failure reporting and
// observability stay uniform across job kinds.
package services
