package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/outloud/internal/sentence"
	"github.com/dgnsrekt/outloud/internal/voice"
)

// Defaults match a locally running xVA-Synth container with ./resources
// mounted at /app/resources.
const (
	DefaultServerURL    = "http://localhost:8008"
	DefaultOutputDir    = "resources"
	DefaultRemoteDir    = "/app/resources"
	DefaultPollInterval = 100 * time.Millisecond
	DefaultPollTimeout  = 30 * time.Second
)

// The backend ships exactly one model family.
const modelType = "xVAPitch"

// TimeoutError reports an artifact that did not appear within the poll
// ceiling. The run decides whether to skip the sentence or abort.
type TimeoutError struct {
	Path string
	Wait time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no artifact at %s after %s", e.Path, e.Wait)
}

// IsTimeout reports whether err is a synthesis deadline miss.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Config holds the per-run synthesis parameters.
type Config struct {
	ServerURL string
	Device    string // "cpu" or "gpu"
	Language  string // BCP 47 tag, fixed for the run

	// OutputDir is where artifacts appear locally; RemoteDir is the same
	// directory as the backend sees it. Requests carry the remote path,
	// the poll watches the local one.
	OutputDir string
	RemoteDir string

	PollInterval time.Duration
	PollTimeout  time.Duration
}

// Client issues synthesis work against one backend. Requests are stateless
// beyond the Prepare handshake; the artifact filesystem is the only feedback
// channel for completion.
type Client struct {
	cfg   Config
	runID int
	httpc *http.Client
	log   *log.Logger
}

// NewClient fills zero Config fields with defaults. Artifact names combine
// the calling process id with the sentence sequence index, which keeps
// successive and concurrent runs collision-free.
func NewClient(cfg Config) *Client {
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
	}
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	if cfg.Device == "" {
		cfg.Device = "cpu"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	if cfg.RemoteDir == "" {
		cfg.RemoteDir = DefaultRemoteDir
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}

	return &Client{
		cfg:   cfg,
		runID: os.Getpid(),
		httpc: &http.Client{},
		log:   log.WithPrefix("synth"),
	}
}

type setDeviceRequest struct {
	Device string `json:"device"`
}

type loadModelRequest struct {
	Outputs        any    `json:"outputs"`
	Model          string `json:"model"`
	ModelType      string `json:"modelType"`
	BaseLang       string `json:"base_lang"`
	PluginsContext string `json:"pluginsContext"`
}

type synthesizeRequest struct {
	Sequence       string  `json:"sequence"`
	Pace           float64 `json:"pace"`
	Outfile        string  `json:"outfile"`
	Vocoder        string  `json:"vocoder"`
	BaseLang       string  `json:"base_lang"`
	BaseEmb        string  `json:"base_emb"`
	UseSR          bool    `json:"useSR"`
	UseCleanup     bool    `json:"useCleanup"`
	ModelType      string  `json:"modelType"`
	Device         string  `json:"device"`
	PluginsContext string  `json:"pluginsContext"`
}

// Prepare runs the one-time device and model handshake. Both operations are
// idempotent on the backend side, so repeating them for an already loaded
// model is safe.
func (c *Client) Prepare(ctx context.Context, profile voice.Profile) error {
	if err := c.post(ctx, "/setDevice", setDeviceRequest{Device: c.cfg.Device}); err != nil {
		return fmt.Errorf("unable to select device %q: %w", c.cfg.Device, err)
	}
	c.log.Debug("device selected", "device", c.cfg.Device)

	if err := c.post(ctx, "/loadModel", loadModelRequest{
		Model:          profile.ModelPath,
		ModelType:      modelType,
		BaseLang:       c.cfg.Language,
		PluginsContext: "{}",
	}); err != nil {
		return fmt.Errorf("unable to load voice %q: %w", profile.Name, err)
	}
	c.log.Debug("voice model loaded", "voice", profile.Name, "model", profile.ModelPath)
	return nil
}

// Synthesize produces the audio artifact for one sentence and returns its
// local path. The backend writes the file asynchronously; existence of the
// path is the completion signal. A miss of the poll ceiling comes back as a
// *TimeoutError, cancellation as the context's error.
func (c *Client) Synthesize(ctx context.Context, unit sentence.Unit, profile voice.Profile) (string, error) {
	if err := os.MkdirAll(c.cfg.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("unable to create output directory: %w", err)
	}
	local, remote := c.artifactPaths(unit.Seq)

	req := synthesizeRequest{
		Sequence:       unit.Text,
		Pace:           1.0,
		Outfile:        remote,
		Vocoder:        "n/a",
		BaseLang:       c.cfg.Language,
		BaseEmb:        profile.Embedding,
		ModelType:      modelType,
		Device:         c.cfg.Device,
		PluginsContext: "{}",
	}

	start := time.Now()
	if err := c.post(ctx, "/synthesize", req); err != nil {
		return "", fmt.Errorf("synthesis request for sentence %d failed: %w", unit.Seq, err)
	}
	if err := c.awaitArtifact(ctx, local); err != nil {
		return "", err
	}

	if fi, err := os.Stat(local); err == nil {
		c.log.Debug("artifact ready",
			"seq", unit.Seq,
			"text", runewidth.Truncate(unit.Text, 40, "…"),
			"size", humanize.Bytes(uint64(fi.Size())),
			"took", time.Since(start).Round(time.Millisecond))
	}
	return local, nil
}

// awaitArtifact polls for path at the configured interval until the ceiling.
// The limiter starts with a full token, so the first check is immediate.
func (c *Client) awaitArtifact(ctx context.Context, path string) error {
	deadline, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
	defer cancel()

	lim := rate.NewLimiter(rate.Every(c.cfg.PollInterval), 1)
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		if err := lim.Wait(deadline); err != nil {
			// The limiter refuses a wait that would overrun the
			// deadline; hold out for the full ceiling and look once
			// more before declaring a miss.
			<-deadline.Done()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if _, err := os.Stat(path); err == nil {
				return nil
			}
			return &TimeoutError{Path: path, Wait: c.cfg.PollTimeout}
		}
	}
}

// artifactPaths derives the local and remote names for one sequence index.
// The remote side always speaks forward slashes.
func (c *Client) artifactPaths(seq int) (local, remote string) {
	name := fmt.Sprintf("tts_%d_%d.wav", c.runID, seq)
	return filepath.Join(c.cfg.OutputDir, name), path.Join(c.cfg.RemoteDir, name)
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("unable to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.ServerURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("unable to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
