// Package follow turns a growing file into an io.Reader.
//
// A Reader yields bytes appended to the file as they arrive, waiting on
// filesystem notifications instead of polling. Rename replacements and
// truncation are followed the way tail follows them.
package follow
