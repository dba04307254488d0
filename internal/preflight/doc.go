// Package preflight provides readiness checks for the filesystem paths,
// binaries and credentials reelsmith depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failed check as a
//     warning; jobs that need the missing piece fail on their own later.
//   - The CLI "reelsmith status" command renders the same results as a table.
package preflight
