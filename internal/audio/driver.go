package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/charmbracelet/log"
)

// ErrNoPlayer means none of the supported playback programs is installed.
// Callers treat this as fatal before any synthesis work begins.
var ErrNoPlayer = errors.New("no audio player found (tried paplay, aplay, ffplay, mpv)")

// preference is the fixed player order. The extra arguments keep the
// video-capable players windowless and make them exit at end of file.
var preference = []struct {
	name string
	args []string
}{
	{name: "paplay"},
	{name: "aplay"},
	{name: "ffplay", args: []string{"-nodisp", "-autoexit"}},
	{name: "mpv", args: []string{"--no-video"}},
}

// Driver plays one artifact at a time through an external player process.
// The artifact is removed after playback whatever the player's exit status;
// cancelling the context kills the player.
type Driver struct {
	bin  string
	name string
	args []string
	log  *log.Logger
}

// Discover returns a Driver for the first player found on PATH, or
// ErrNoPlayer.
func Discover() (*Driver, error) {
	for _, p := range preference {
		bin, err := exec.LookPath(p.name)
		if err != nil {
			continue
		}
		return &Driver{
			bin:  bin,
			name: p.name,
			args: p.args,
			log:  log.WithPrefix("audio"),
		}, nil
	}
	return nil, ErrNoPlayer
}

// String returns the selected player's name.
func (d *Driver) String() string {
	return d.name
}

// Play blocks until the player exits. The player's own output is routed to
// the null device; it is not part of the pipeline's output. A cancelled
// context surfaces as the context's error, any other player failure as a
// wrapped exit error.
func (d *Driver) Play(ctx context.Context, artifact string) error {
	defer func() {
		if err := os.Remove(artifact); err != nil && !errors.Is(err, os.ErrNotExist) {
			d.log.Debug("unable to remove artifact", "path", artifact, "err", err)
		}
	}()

	args := append(append([]string(nil), d.args...), artifact)
	cmd := exec.CommandContext(ctx, d.bin, args...)
	// Stdin, stdout and stderr stay nil: os/exec wires them to /dev/null.

	d.log.Debug("playing", "player", d.name, "path", artifact)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s exited abnormally: %w", d.name, err)
	}
	return nil
}

// PathWriter is the playback-disabled Player: it emits each artifact's path
// and retains the file, since the caller consumes it externally.
type PathWriter struct {
	W io.Writer
}

// Play writes the artifact path followed by a newline.
func (p PathWriter) Play(_ context.Context, artifact string) error {
	_, err := fmt.Fprintln(p.W, artifact)
	return err
}
