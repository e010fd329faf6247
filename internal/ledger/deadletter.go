package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DeadLetter is a failed or unconfirmed mint kept for manual review.
type DeadLetter struct {
	Timestamp time.Time `json:"timestamp"`
	Account   string    `json:"account"`
	Address   string    `json:"address"`
	Campaign  string    `json:"campaign"`
	Network   string    `json:"network"`
	Outcome   string    `json:"outcome"`
	TxHash    string    `json:"txHash,omitempty"`
	Error     string    `json:"error"`
}

// DeadLetters writes one JSON file per letter into a directory. The zero value is
// disabled.
type DeadLetters struct {
	Dir string
}

func (d DeadLetters) Enabled() bool { return d.Dir != "" }

// Write stores the letter and returns its path.
func (d DeadLetters) Write(letter DeadLetter) (string, error) {
	if !d.Enabled() {
		return "", nil
	}
	if letter.Timestamp.IsZero() {
		letter.Timestamp = time.Now().UTC()
	}

	data, err := json.MarshalIndent(letter, "", "  ")
	if err != nil {
		return "", fmt.Errorf("dead letter marshal: %w", err)
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", fmt.Errorf("dead letter mkdir: %w", err)
	}

	filename := fmt.Sprintf("%d-%s-%s.json", letter.Timestamp.UnixNano(), safe(letter.Account), safe(letter.Network))
	path := filepath.Join(d.Dir, filename)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("dead letter write: %w", err)
	}
	return path, nil
}

// Depth counts letters waiting in the directory.
func (d DeadLetters) Depth() (int, error) {
	if !d.Enabled() {
		return 0, nil
	}
	entries, err := os.ReadDir(d.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			n++
		}
	}
	return n, nil
}

func safe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
