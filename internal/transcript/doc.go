// Package transcript extracts speakable prose from session transcripts.
//
// A transcript is a JSONL file of message records. The newest assistant
// message is located by its id, its text blocks are joined in file order,
// and the resulting markdown is reduced to plain prose fit for speech.
package transcript
