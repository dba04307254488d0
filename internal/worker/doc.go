// Package worker runs one goroutine per job. Each goroutine drives a provider
// or the local media tools, reports fixed progress phases to the job
// registry, records the produced media and always leaves its job in a
// terminal state.
//
// Progress phases:
//
//	5   submitted
//	10  uploading inputs
//	15..75 provider progress
//	80  downloading
//	90  post-processing
//	100 done
package worker
