// Package providers defines the submit/poll/fetch contract shared by the
// generation backends and the helpers that drive it: Await polls a handle
// on a fixed interval until it settles or times out, and Download streams
// the chosen output to local storage.
//
// Adapters live in subpackages (replicate, wavespeed, vertex, elevenlabs);
// catalog builds them from configuration.
package providers
