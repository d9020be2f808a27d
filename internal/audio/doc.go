// Package audio plays finished artifacts through whichever external player
// is installed, in a fixed preference order, and owns the artifact's
// lifecycle from playback to deletion.
package audio
