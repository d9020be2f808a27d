package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/outloud/internal/sentence"
	"github.com/dgnsrekt/outloud/internal/voice"
)

func testProfile() voice.Profile {
	return voice.Profile{Name: "edi", ModelPath: "/models/f4/f4_edi", Embedding: "0.1,0.2"}
}

func TestPrepare(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	bodies := make(map[string]map[string]any)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Bad request body on %s: %v", r.URL.Path, err)
		}
		mu.Lock()
		calls = append(calls, r.URL.Path)
		bodies[r.URL.Path] = body
		mu.Unlock()
	}))
	defer srv.Close()

	c := NewClient(Config{ServerURL: srv.URL, Device: "gpu", OutputDir: t.TempDir()})
	if err := c.Prepare(context.Background(), testProfile()); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	if want := []string{"/setDevice", "/loadModel"}; !reflect.DeepEqual(calls, want) {
		t.Fatalf("Expected handshake %v, got %v", want, calls)
	}
	if got := bodies["/setDevice"]["device"]; got != "gpu" {
		t.Errorf("Expected device gpu, got %v", got)
	}

	lm := bodies["/loadModel"]
	if got := lm["model"]; got != "/models/f4/f4_edi" {
		t.Errorf("Expected model path, got %v", got)
	}
	if got := lm["modelType"]; got != "xVAPitch" {
		t.Errorf("Expected modelType xVAPitch, got %v", got)
	}
	if got := lm["base_lang"]; got != "en" {
		t.Errorf("Expected base_lang en, got %v", got)
	}
	if v, ok := lm["outputs"]; !ok || v != nil {
		t.Errorf("Expected outputs to be null, got %v (present=%v)", v, ok)
	}
	if got := lm["pluginsContext"]; got != "{}" {
		t.Errorf("Expected empty plugins context, got %v", got)
	}
}

func TestSynthesize(t *testing.T) {
	outDir := t.TempDir()

	var mu sync.Mutex
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/synthesize" {
			t.Errorf("Unexpected path %s", r.URL.Path)
			return
		}
		mu.Lock()
		_ = json.NewDecoder(r.Body).Decode(&body)
		outfile, _ := body["outfile"].(string)
		mu.Unlock()

		// The real backend writes the artifact long after responding.
		local := filepath.Join(outDir, path.Base(outfile))
		go func() {
			time.Sleep(30 * time.Millisecond)
			_ = os.WriteFile(local, []byte("RIFF fake wav"), 0o644)
		}()
	}))
	defer srv.Close()

	c := NewClient(Config{
		ServerURL:    srv.URL,
		OutputDir:    outDir,
		RemoteDir:    "/app/resources",
		PollInterval: 10 * time.Millisecond,
		PollTimeout:  2 * time.Second,
	})

	artifact, err := c.Synthesize(context.Background(), sentence.Unit{Text: "Hello there.", Seq: 3}, testProfile())
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	wantName := fmt.Sprintf("tts_%d_3.wav", os.Getpid())
	if artifact != filepath.Join(outDir, wantName) {
		t.Errorf("Expected artifact %s under %s, got %s", wantName, outDir, artifact)
	}
	if _, err := os.Stat(artifact); err != nil {
		t.Errorf("Expected artifact on disk: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	checks := map[string]any{
		"sequence":       "Hello there.",
		"pace":           float64(1),
		"outfile":        "/app/resources/" + wantName,
		"vocoder":        "n/a",
		"base_lang":      "en",
		"base_emb":       "0.1,0.2",
		"useSR":          false,
		"useCleanup":     false,
		"modelType":      "xVAPitch",
		"device":         "cpu",
		"pluginsContext": "{}",
	}
	for key, want := range checks {
		if got := body[key]; got != want {
			t.Errorf("Field %s: expected %v, got %v", key, want, got)
		}
	}
}

func TestSynthesizeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		// Accept the request, never write the artifact.
	}))
	defer srv.Close()

	const (
		interval = 20 * time.Millisecond
		ceiling  = 150 * time.Millisecond
	)
	c := NewClient(Config{
		ServerURL:    srv.URL,
		OutputDir:    t.TempDir(),
		PollInterval: interval,
		PollTimeout:  ceiling,
	})

	start := time.Now()
	_, err := c.Synthesize(context.Background(), sentence.Unit{Text: "Nope.", Seq: 0}, testProfile())
	elapsed := time.Since(start)

	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Expected TimeoutError, got %v", err)
	}
	if !IsTimeout(err) {
		t.Error("IsTimeout should report true")
	}
	if te.Wait != ceiling {
		t.Errorf("Expected reported wait %v, got %v", ceiling, te.Wait)
	}
	if elapsed < ceiling {
		t.Errorf("Timeout reported before the ceiling: %v < %v", elapsed, ceiling)
	}
	if elapsed > ceiling+interval+100*time.Millisecond {
		t.Errorf("Timeout reported too late: %v", elapsed)
	}
}

func TestSynthesizeCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	c := NewClient(Config{
		ServerURL:    srv.URL,
		OutputDir:    t.TempDir(),
		PollInterval: 10 * time.Millisecond,
		PollTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := c.Synthesize(ctx, sentence.Unit{Text: "Interrupted.", Seq: 0}, testProfile())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if IsTimeout(err) {
		t.Error("Cancellation must not look like a synthesis timeout")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Cancellation took too long: %v", elapsed)
	}
}

func TestBackendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cuda out of memory", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{ServerURL: srv.URL, OutputDir: t.TempDir()})

	_, err := c.Synthesize(context.Background(), sentence.Unit{Text: "Hello.", Seq: 0}, testProfile())
	if err == nil {
		t.Fatal("Expected an error for a 500 response")
	}
	if IsTimeout(err) {
		t.Error("A backend failure is not a timeout")
	}
}

func TestBackendUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(Config{ServerURL: url, OutputDir: t.TempDir()})
	if err := c.Prepare(context.Background(), testProfile()); err == nil {
		t.Fatal("Expected an error when the backend is down")
	}
}
