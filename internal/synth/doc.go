// Package synth is the client side of the xVA-Synth HTTP protocol: a
// device/model handshake per run, one synthesize request per sentence, and a
// bounded poll for the audio artifact the backend writes asynchronously.
package synth
