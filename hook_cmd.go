package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/outloud/internal/runfile"
	"github.com/dgnsrekt/outloud/internal/supervisor"
	"github.com/dgnsrekt/outloud/internal/transcript"
	"github.com/dgnsrekt/outloud/internal/voice"
)

// hookEnv carries runtime overrides for hook invocations, which run without
// a shell where flags could be set.
type hookEnv struct {
	Voice  string `env:"OUTLOUD_HOOK_VOICE"`
	Device string `env:"OUTLOUD_HOOK_DEVICE"`
}

// hookInput is the stop-hook payload read from stdin. Unknown fields are
// ignored.
type hookInput struct {
	TranscriptPath string `json:"transcript_path"`
	StopHookActive bool   `json:"stop_hook_active"`
}

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Speak the newest assistant reply from a transcript",
	Long: paragraph(fmt.Sprintf(
		"\nRead a stop-hook payload from stdin and speak the %s from the transcript it points at. Any run still in flight is preempted first.",
		keyword("newest assistant reply"),
	)),
	Args: cobra.NoArgs,
	RunE: runHook,
}

func runHook(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	hlog := log.WithPrefix("hook")

	var input hookInput
	if err := json.NewDecoder(os.Stdin).Decode(&input); err != nil {
		return fmt.Errorf("unable to decode hook payload: %w", err)
	}
	if input.StopHookActive {
		hlog.Debug("stop hook already active, nothing to do")
		return nil
	}

	// A transcript that never materializes, or one without assistant text,
	// is a quiet no-op rather than an error.
	text, err := transcript.Await(ctx, input.TranscriptPath, transcript.DefaultAwaitAttempts, transcript.DefaultAwaitDelay)
	if err != nil {
		hlog.Debug("no transcript text", "path", input.TranscriptPath, "err", err)
		return nil
	}

	prose := transcript.Prose(text)
	if prose == "" {
		hlog.Debug("assistant reply has no speakable prose")
		return nil
	}

	overrides, err := env.ParseAs[hookEnv]()
	if err != nil {
		return fmt.Errorf("error parsing hook environment: %w", err)
	}
	if overrides.Voice != "" {
		voiceName = overrides.Voice
	}
	if overrides.Device != "" {
		if overrides.Device != "cpu" && overrides.Device != "gpu" {
			return fmt.Errorf("invalid device %q, must be cpu or gpu", overrides.Device)
		}
		device = overrides.Device
	}

	orch, err := buildPipeline(voice.NewCatalog(modelsDir))
	if err != nil {
		return err
	}

	sup := supervisor.New(runfile.NewStore(handleFile))
	return withVoiceHint(sup.Run(ctx, func(runCtx context.Context) error {
		return orch.SpeakStream(runCtx, strings.NewReader(prose))
	}))
}
