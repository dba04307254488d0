// Package jobs tracks asynchronous generation jobs in a JSON document that is
// rewritten atomically after every mutation.
//
// Status only moves forward: a running job becomes completed or failed and
// never changes again. Completed jobs always carry a result and no error;
// failed jobs always carry an error and no result. The registry normalizes
// patches to keep both rules, and LoadAndReconcile fails every job that was
// still running when the previous process exited.
package jobs
