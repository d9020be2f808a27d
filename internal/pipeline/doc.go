// Package pipeline drives a speech run from text to audible sentences.
//
// An Orchestrator couples a sentence segmenter to a synthesizer and a
// player, speaking each sentence as soon as its text is complete. A run
// moves through an explicit state machine; one Orchestrator serves one run.
package pipeline
