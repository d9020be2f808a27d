// Package voice resolves voice names against a directory tree of model
// descriptor files. Each descriptor carries the model path and the base
// speaker embedding a synthesis request needs.
package voice
