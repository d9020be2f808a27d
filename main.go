// Package main provides the entry point for the Outloud CLI application.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"golang.org/x/text/language"

	"github.com/dgnsrekt/outloud/internal/audio"
	"github.com/dgnsrekt/outloud/internal/follow"
	"github.com/dgnsrekt/outloud/internal/pipeline"
	"github.com/dgnsrekt/outloud/internal/runfile"
	"github.com/dgnsrekt/outloud/internal/synth"
	"github.com/dgnsrekt/outloud/internal/voice"
)

const defaultModelsDir = "resources/app/models"

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	voiceName  string
	useGPU     bool
	useCPU     bool
	serverURL  string
	modelsDir  string
	noPlay     bool
	debug      bool
	stream     bool
	followPath string
	listVoices bool

	device       string
	outputDir    string
	remoteDir    string
	langTag      string
	handleFile   string
	pollInterval time.Duration
	pollTimeout  time.Duration

	rootCmd = &cobra.Command{
		Use:   "outloud [text]",
		Short: "Speak text out loud, sentence by sentence",
		Long: paragraph(
			fmt.Sprintf("\nSpeak text out loud, %s. Each sentence plays as soon as the backend has rendered it, so long passages start quickly.", keyword("sentence by sentence")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(_ *cobra.Command) error {
	// grab config values from Viper
	voiceName = viper.GetString("voice")
	serverURL = viper.GetString("server_url")
	modelsDir = expandPath(viper.GetString("models_dir"))
	outputDir = expandPath(viper.GetString("output_dir"))
	remoteDir = viper.GetString("remote_dir")
	langTag = viper.GetString("language")
	handleFile = expandPath(viper.GetString("handle_file"))
	pollInterval = viper.GetDuration("poll.interval")
	pollTimeout = viper.GetDuration("poll.timeout")
	debug = viper.GetBool("debug")

	if debug {
		log.SetLevel(log.DebugLevel)
	}

	if useGPU && useCPU {
		return errors.New("cannot use both --gpu and --cpu")
	}
	if useGPU {
		viper.Set("device", "gpu")
	} else if useCPU {
		viper.Set("device", "cpu")
	}
	device = viper.GetString("device")
	if device != "cpu" && device != "gpu" {
		return fmt.Errorf("invalid device %q, must be cpu or gpu", device)
	}

	if _, err := language.Parse(langTag); err != nil {
		return fmt.Errorf("invalid language %q: %w", langTag, err)
	}

	if pollInterval <= 0 || pollTimeout <= 0 {
		return errors.New("poll interval and timeout must be positive")
	}

	if stream && followPath != "" {
		return errors.New("cannot use both --stream and --follow")
	}
	return nil
}

// expandPath resolves a leading ~ in user-supplied paths.
func expandPath(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to stat stdin: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func execute(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	catalog := voice.NewCatalog(modelsDir)
	if listVoices {
		return printVoices(os.Stdout, catalog)
	}

	orch, err := buildPipeline(catalog)
	if err != nil {
		return err
	}

	if followPath != "" {
		src, err := follow.Open(ctx, expandPath(followPath))
		if err != nil {
			return err
		}
		defer src.Close() //nolint:errcheck
		return withVoiceHint(orch.SpeakStream(ctx, src))
	}

	// if stdin is a pipe then speak it as it arrives. --stream forces the
	// same path on an interactive terminal.
	if yes, err := stdinIsPipe(); err != nil {
		return err
	} else if yes || stream {
		return withVoiceHint(orch.SpeakStream(ctx, os.Stdin))
	}

	if len(args) == 0 {
		_ = cmd.Help()
		return errors.New("nothing to speak: pass text, pipe stdin, or use --follow")
	}
	return withVoiceHint(orch.SpeakText(ctx, args[0]))
}

func buildPipeline(catalog *voice.Catalog) (*pipeline.Orchestrator, error) {
	client := synth.NewClient(synth.Config{
		ServerURL:    serverURL,
		Device:       device,
		Language:     langTag,
		OutputDir:    outputDir,
		RemoteDir:    remoteDir,
		PollInterval: pollInterval,
		PollTimeout:  pollTimeout,
	})

	var player pipeline.Player
	if noPlay {
		player = audio.PathWriter{W: os.Stdout}
	} else {
		driver, err := audio.Discover()
		if err != nil {
			return nil, err
		}
		player = driver
	}
	return pipeline.New(catalog, client, player, voiceName), nil
}

func printVoices(w io.Writer, catalog *voice.Catalog) error {
	names, err := catalog.List()
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(w, name)
	}
	return nil
}

// withVoiceHint decorates unresolvable-voice errors with the catalog's
// contents before passing them through.
func withVoiceHint(err error) error {
	var notFound *voice.NotFoundError
	if errors.As(err, &notFound) {
		printVoiceHint(os.Stderr, notFound)
	}
	return err
}

func printVoiceHint(w io.Writer, notFound *voice.NotFoundError) {
	highlight := func(s string) string { return s }
	if term.IsTerminal(int(os.Stderr.Fd())) {
		highlight = keyword
	}
	if len(notFound.Suggestions) > 0 {
		fmt.Fprintf(w, "Did you mean %s?\n", highlight(strings.Join(notFound.Suggestions, ", ")))
	}
	if len(notFound.Available) == 0 {
		fmt.Fprintf(w, "No voice descriptors found under %s.\n", modelsDir)
		return
	}
	fmt.Fprintf(w, "Available voices:\n%s\n", indent.String(wordwrap.String(strings.Join(notFound.Available, ", "), 72), 2))
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().StringVarP(&voiceName, "voice", "v", "edi", "voice to speak with")
	rootCmd.PersistentFlags().BoolVar(&useGPU, "gpu", false, "synthesize on the gpu")
	rootCmd.PersistentFlags().BoolVar(&useCPU, "cpu", false, "synthesize on the cpu")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", synth.DefaultServerURL, "xVA Synth server URL")
	rootCmd.PersistentFlags().StringVar(&modelsDir, "models", defaultModelsDir, "voice model directory")
	rootCmd.PersistentFlags().BoolVar(&noPlay, "no-play", false, "print artifact paths instead of playing them")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log debug output")
	rootCmd.Flags().BoolVarP(&stream, "stream", "s", false, "speak stdin as sentences arrive")
	rootCmd.Flags().StringVarP(&followPath, "follow", "f", "", "speak text appended to a file")
	rootCmd.Flags().BoolVarP(&listVoices, "list-voices", "l", false, "list available voices and exit")

	// Config bindings
	_ = viper.BindPFlag("voice", rootCmd.PersistentFlags().Lookup("voice"))
	_ = viper.BindPFlag("server_url", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("models_dir", rootCmd.PersistentFlags().Lookup("models"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	viper.SetDefault("voice", "edi")
	viper.SetDefault("device", "cpu")
	viper.SetDefault("server_url", synth.DefaultServerURL)
	viper.SetDefault("models_dir", defaultModelsDir)
	viper.SetDefault("output_dir", synth.DefaultOutputDir)
	viper.SetDefault("remote_dir", synth.DefaultRemoteDir)
	viper.SetDefault("language", "en")
	viper.SetDefault("handle_file", runfile.DefaultPath())
	viper.SetDefault("poll.interval", synth.DefaultPollInterval)
	viper.SetDefault("poll.timeout", synth.DefaultPollTimeout)

	rootCmd.AddCommand(configCmd, manCmd, hookCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "outloud")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "outloud")}, dirs...)
	}

	if c := os.Getenv("OUTLOUD_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("outloud")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("outloud")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "outloud.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
