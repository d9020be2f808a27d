package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Await retry defaults. A stop hook can fire before the final records of a
// transcript have been flushed, so readers poll briefly before giving up.
const (
	DefaultAwaitAttempts = 10
	DefaultAwaitDelay    = 300 * time.Millisecond
)

// ErrUnavailable indicates the transcript holds no assistant text.
var ErrUnavailable = errors.New("no assistant text in transcript")

// record is one line of a session transcript. A single logical assistant
// message spans several records (thinking, text and tool blocks each get
// their own line), all sharing one message id.
type record struct {
	Message message `json:"message"`
}

type message struct {
	Role    string          `json:"role"`
	ID      string          `json:"id"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// LastAssistantText returns the text of the newest assistant message in the
// JSONL transcript read from r. Blank and malformed lines are skipped. The
// text blocks of every record carrying the newest assistant message id are
// joined with newlines, in file order.
func LastAssistantText(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	// Scanner line limits are too small for transcript records, so split
	// the whole file instead.
	var entries []message
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		entries = append(entries, rec.Message)
	}

	var lastID string
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Role == "assistant" && entries[i].ID != "" {
			lastID = entries[i].ID
			break
		}
	}
	if lastID == "" {
		return "", ErrUnavailable
	}

	var parts []string
	for _, m := range entries {
		if m.ID != lastID || len(m.Content) == 0 {
			continue
		}
		var plain string
		if err := json.Unmarshal(m.Content, &plain); err == nil {
			if plain != "" {
				parts = append(parts, plain)
			}
			continue
		}
		var blocks []contentBlock
		if err := json.Unmarshal(m.Content, &blocks); err != nil {
			continue
		}
		for _, b := range blocks {
			if b.Type == "text" {
				parts = append(parts, b.Text)
			}
		}
	}
	if len(parts) == 0 {
		return "", ErrUnavailable
	}
	return strings.Join(parts, "\n"), nil
}

// Await reads the transcript at path, retrying until it yields assistant
// text or attempts run out. Waits between attempts are cancellable through
// ctx.
func Await(ctx context.Context, path string, attempts int, delay time.Duration) (string, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}
		f, err := os.Open(path)
		if err != nil {
			lastErr = err
			continue
		}
		text, err := LastAssistantText(f)
		f.Close()
		if err == nil {
			return text, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("transcript not ready after %d attempts: %w", attempts, lastErr)
}
