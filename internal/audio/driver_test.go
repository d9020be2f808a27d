package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// installFake drops an executable shell script named like a player into dir.
func installFake(t *testing.T, dir, name, script string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
}

func writeArtifact(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "tts_1_0.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDiscover(t *testing.T) {
	tests := []struct {
		name      string
		installed []string
		want      string
	}{
		{name: "paplay wins", installed: []string{"mpv", "paplay", "ffplay"}, want: "paplay"},
		{name: "aplay before ffplay", installed: []string{"ffplay", "aplay"}, want: "aplay"},
		{name: "mpv as last resort", installed: []string{"mpv"}, want: "mpv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin := t.TempDir()
			for _, name := range tt.installed {
				installFake(t, bin, name, "exit 0\n")
			}
			t.Setenv("PATH", bin)

			d, err := Discover()
			if err != nil {
				t.Fatalf("Discover failed: %v", err)
			}
			if d.String() != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, d.String())
			}
		})
	}
}

func TestDiscoverNone(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	_, err := Discover()
	if !errors.Is(err, ErrNoPlayer) {
		t.Fatalf("Expected ErrNoPlayer, got %v", err)
	}
}

func TestPlayRemovesArtifact(t *testing.T) {
	bin := t.TempDir()
	installFake(t, bin, "paplay", "exit 0\n")
	t.Setenv("PATH", bin)

	d, err := Discover()
	if err != nil {
		t.Fatal(err)
	}

	artifact := writeArtifact(t, t.TempDir())
	if err := d.Play(context.Background(), artifact); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if _, err := os.Stat(artifact); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected artifact to be removed, stat returned %v", err)
	}
}

func TestPlayFailureStillRemoves(t *testing.T) {
	bin := t.TempDir()
	installFake(t, bin, "paplay", "exit 3\n")
	t.Setenv("PATH", bin)

	d, err := Discover()
	if err != nil {
		t.Fatal(err)
	}

	artifact := writeArtifact(t, t.TempDir())
	if err := d.Play(context.Background(), artifact); err == nil {
		t.Error("Expected an error for a failing player")
	}
	if _, err := os.Stat(artifact); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected artifact to be removed, stat returned %v", err)
	}
}

func TestPlayCancelKillsPlayer(t *testing.T) {
	bin := t.TempDir()
	installFake(t, bin, "paplay", "exec sleep 5\n")
	t.Setenv("PATH", bin)

	d, err := Discover()
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	artifact := writeArtifact(t, t.TempDir())
	start := time.Now()
	err = d.Play(ctx, artifact)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Cancellation should kill the player promptly, took %v", elapsed)
	}
}

func TestPlayPassesPlayerArgs(t *testing.T) {
	bin := t.TempDir()
	argsFile := filepath.Join(t.TempDir(), "args")
	installFake(t, bin, "ffplay", fmt.Sprintf("echo \"$@\" > %s\n", argsFile))
	t.Setenv("PATH", bin)

	d, err := Discover()
	if err != nil {
		t.Fatal(err)
	}

	artifact := writeArtifact(t, t.TempDir())
	if err := d.Play(context.Background(), artifact); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	b, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	want := "-nodisp -autoexit " + artifact
	if got := strings.TrimSpace(string(b)); got != want {
		t.Errorf("Expected args %q, got %q", want, got)
	}
}

func TestPathWriter(t *testing.T) {
	var buf bytes.Buffer
	artifact := writeArtifact(t, t.TempDir())

	p := PathWriter{W: &buf}
	if err := p.Play(context.Background(), artifact); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	if got := buf.String(); got != artifact+"\n" {
		t.Errorf("Expected path line, got %q", got)
	}
	if _, err := os.Stat(artifact); err != nil {
		t.Errorf("PathWriter must retain the artifact: %v", err)
	}
}
