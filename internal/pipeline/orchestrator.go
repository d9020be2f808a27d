package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/outloud/internal/sentence"
	"github.com/dgnsrekt/outloud/internal/synth"
	"github.com/dgnsrekt/outloud/internal/voice"
)

// Synthesizer turns one sentence into a playable artifact on disk.
type Synthesizer interface {
	Prepare(ctx context.Context, profile voice.Profile) error
	Synthesize(ctx context.Context, unit sentence.Unit, profile voice.Profile) (string, error)
}

// Player consumes one artifact.
type Player interface {
	Play(ctx context.Context, path string) error
}

// VoiceFinder resolves a voice name to its profile.
type VoiceFinder interface {
	Find(name string) (voice.Profile, error)
}

// Orchestrator runs one speech pipeline: segment, synthesize, play, in
// strict sentence order. Voice resolution and handshake failures end the
// run before any synthesis; once streaming, sentence-level failures are
// logged and skipped so the stream keeps flowing. Not safe for concurrent
// use, and a single Orchestrator serves a single run.
type Orchestrator struct {
	voices  VoiceFinder
	synth   Synthesizer
	player  Player
	voice   string
	machine *machine
	spoken  int
	log     *log.Logger
}

// New assembles an Orchestrator speaking with the named voice.
func New(voices VoiceFinder, synthesizer Synthesizer, player Player, voiceName string) *Orchestrator {
	return &Orchestrator{
		voices:  voices,
		synth:   synthesizer,
		player:  player,
		voice:   voiceName,
		machine: newMachine(),
		log:     log.WithPrefix("pipeline"),
	}
}

// State reports the phase the run is in.
func (o *Orchestrator) State() State {
	return o.machine.current
}

// SpeakText speaks one complete text.
func (o *Orchestrator) SpeakText(ctx context.Context, text string) error {
	return o.SpeakStream(ctx, strings.NewReader(text))
}

// SpeakStream speaks src incrementally. Sentences are synthesized as soon
// as the segmenter completes them, without waiting for the source to end;
// whatever remains at end of input is drained as a final sentence.
func (o *Orchestrator) SpeakStream(ctx context.Context, src io.Reader) error {
	if !o.machine.to(StateLoadingVoice) {
		return errors.New("orchestrator already ran")
	}

	profile, err := o.voices.Find(o.voice)
	if err != nil {
		return o.fail(err)
	}
	o.log.Debug("voice resolved", "voice", profile.Name, "model", profile.ModelPath)

	if err := o.synth.Prepare(ctx, profile); err != nil {
		return o.fail(err)
	}
	if !o.machine.to(StateStreaming) {
		return o.fail(errors.New("unable to enter streaming state"))
	}

	var seg sentence.Segmenter
	buf := make([]byte, 4096)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			for _, unit := range seg.Feed(string(buf[:n])) {
				if err := o.speak(ctx, unit, profile); err != nil {
					return o.fail(err)
				}
			}
		}
		if rerr != nil {
			if !errors.Is(rerr, io.EOF) {
				return o.fail(fmt.Errorf("text source failed: %w", rerr))
			}
			break
		}
	}

	if !o.machine.to(StateDraining) {
		return o.fail(errors.New("unable to enter draining state"))
	}
	if unit, ok := seg.Flush(); ok {
		if err := o.speak(ctx, unit, profile); err != nil {
			return o.fail(err)
		}
	}

	o.machine.to(StateDone)
	o.log.Debug("run finished", "sentences", o.spoken)
	return nil
}

// speak synthesizes and plays one unit. Cancellation aborts the run;
// anything else wrong with a single sentence is contained so the stream
// keeps moving.
func (o *Orchestrator) speak(ctx context.Context, unit sentence.Unit, profile voice.Profile) error {
	artifact, err := o.synth.Synthesize(ctx, unit, profile)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if synth.IsTimeout(err) {
			o.log.Warn("sentence skipped, artifact never appeared", "seq", unit.Seq, "err", err)
		} else {
			o.log.Warn("sentence skipped", "seq", unit.Seq, "err", err)
		}
		return nil
	}

	o.spoken++
	if err := o.player.Play(ctx, artifact); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.log.Debug("player failed", "artifact", artifact, "err", err)
	}
	return nil
}

// fail parks the machine in StateFailed and passes err through.
func (o *Orchestrator) fail(err error) error {
	o.machine.to(StateFailed)
	return err
}
