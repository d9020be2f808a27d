package voice

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/muesli/gitcha"
	"github.com/sahilm/fuzzy"
)

// Profile is a voice's identity: the model path the backend loads and the
// base speaker embedding sent with every synthesis request. Exactly one
// Profile is active per pipeline run.
type Profile struct {
	Name      string
	ModelPath string
	Embedding string
}

// NotFoundError reports an unresolvable voice name together with the
// catalog's contents, so callers can print remediation hints.
type NotFoundError struct {
	Name        string
	Available   []string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("voice %q not found", e.Name)
}

// descriptor is the slice of a model descriptor file we care about.
type descriptor struct {
	Games []struct {
		BaseSpeakerEmb []float64 `json:"base_speaker_emb"`
	} `json:"games"`
}

// Catalog scans a models directory for `*_<voice>.json` descriptors. A
// voice's name is everything after the first underscore of the descriptor
// basename, extension stripped.
type Catalog struct {
	dir string
}

// NewCatalog returns a catalog rooted at dir. The directory is scanned per
// call, not cached; voices installed mid-session are picked up.
func NewCatalog(dir string) *Catalog {
	return &Catalog{dir: dir}
}

// Dir returns the catalog root.
func (c *Catalog) Dir() string {
	return c.dir
}

// Find resolves name to a Profile. An unknown name yields a *NotFoundError
// carrying the available voices and close matches.
func (c *Catalog) Find(name string) (Profile, error) {
	suffix := "_" + name + ".json"

	ch, err := gitcha.FindAllFilesExcept(c.dir, []string{"*.json"}, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("unable to scan models directory %s: %w", c.dir, err)
	}

	// Drain the channel fully so the walker goroutine can finish; the first
	// match wins.
	var found string
	for res := range ch {
		if found == "" && strings.HasSuffix(filepath.Base(res.Path), suffix) {
			found = res.Path
		}
	}
	if found != "" {
		return loadProfile(name, found)
	}

	nf := &NotFoundError{Name: name}
	if available, err := c.List(); err == nil {
		nf.Available = available
		for i, m := range fuzzy.Find(name, available) {
			if i == 3 {
				break
			}
			nf.Suggestions = append(nf.Suggestions, m.Str)
		}
	}
	return Profile{}, nf
}

// List returns the names of every voice in the catalog, sorted.
func (c *Catalog) List() ([]string, error) {
	ch, err := gitcha.FindAllFilesExcept(c.dir, []string{"*.json"}, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to scan models directory %s: %w", c.dir, err)
	}

	seen := make(map[string]struct{})
	for res := range ch {
		n := voiceName(filepath.Base(res.Path))
		if n == "" {
			continue
		}
		seen[n] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// loadProfile reads a descriptor and renders its embedding the way the
// backend expects it: decimal numbers joined by commas.
func loadProfile(name, path string) (Profile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("unable to read voice descriptor: %w", err)
	}

	var d descriptor
	if err := json.Unmarshal(b, &d); err != nil {
		return Profile{}, fmt.Errorf("unable to parse voice descriptor %s: %w", path, err)
	}
	if len(d.Games) == 0 || len(d.Games[0].BaseSpeakerEmb) == 0 {
		return Profile{}, fmt.Errorf("voice descriptor %s has no speaker embedding", path)
	}

	parts := make([]string, len(d.Games[0].BaseSpeakerEmb))
	for i, v := range d.Games[0].BaseSpeakerEmb {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}

	return Profile{
		Name:      name,
		ModelPath: strings.TrimSuffix(path, ".json"),
		Embedding: strings.Join(parts, ","),
	}, nil
}

// voiceName derives a voice name from a descriptor filename:
// "f4_edi.json" is voice "edi".
func voiceName(base string) string {
	base = strings.TrimSuffix(base, ".json")
	if i := strings.Index(base, "_"); i >= 0 {
		return base[i+1:]
	}
	return base
}
