// Package logs reads the daemon log file for `reelsmith logs`.
//
// Tail returns the last N lines (or the lines after a byte offset) and can
// wait for new lines to arrive. A Filter keeps only the lines mentioning a
// job id, which works for both the console and JSON log formats because
// both render job_id verbatim.
package logs
