// Package supervisor enforces the single live utterance rule: starting a
// run forcibly terminates whichever run is still registered, registers the
// new one before any synthesis begins, and unregisters it at the end.
package supervisor
