// Package syncq keeps roster writes that could not reach the API in
// ~/.gng/queue.json so `gng sync` can send them later under the same
// idempotency keys.
package syncq

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

type Command struct {
	Method         string         `json:"method"`
	Path           string         `json:"path"`
	Body           map[string]any `json:"body,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
	Summary        string         `json:"summary,omitempty"`
	QueuedAt       time.Time      `json:"queued_at"`
}

// Outcome classifies a send attempt.
type Outcome int

const (
	// Sent means the server committed the command, now or earlier.
	Sent Outcome = iota
	// Rejected means the server refused the command; it is dropped.
	Rejected
	// Retry means the command stays queued and replay stops.
	Retry
)

type SendFunc func(ctx context.Context, cmd Command) (Outcome, error)

type Failure struct {
	Command Command
	Err     error
}

type Report struct {
	Sent     int
	Rejected []Failure
	Pending  int
}

func queuePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".gng")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "queue.json"), nil
}

func Load() ([]Command, error) {
	path, err := queuePath()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Command{}, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return []Command{}, nil
	}
	var out []Command
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Save writes the queue through a temp file so a crash never leaves it torn.
func Save(commands []Command) error {
	path, err := queuePath()
	if err != nil {
		return err
	}
	if commands == nil {
		commands = []Command{}
	}
	raw, err := json.MarshalIndent(commands, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func Push(cmd Command) error {
	if cmd.IdempotencyKey == "" {
		return errors.New("queued command needs an idempotency key")
	}
	if cmd.QueuedAt.IsZero() {
		cmd.QueuedAt = time.Now().UTC()
	}
	commands, err := Load()
	if err != nil {
		return err
	}
	commands = append(commands, cmd)
	return Save(commands)
}

// Replay sends queued commands in order. Sent and rejected commands leave the
// queue. The first Retry stops the pass and keeps that command and the rest.
func Replay(ctx context.Context, send SendFunc) (Report, error) {
	commands, err := Load()
	if err != nil {
		return Report{}, err
	}
	var report Report
	i := 0
	for ; i < len(commands); i++ {
		if err := ctx.Err(); err != nil {
			break
		}
		outcome, sendErr := send(ctx, commands[i])
		if outcome == Retry {
			break
		}
		if outcome == Rejected {
			report.Rejected = append(report.Rejected, Failure{Command: commands[i], Err: sendErr})
			continue
		}
		report.Sent++
	}
	rest := commands[i:]
	report.Pending = len(rest)
	if err := Save(rest); err != nil {
		return report, err
	}
	return report, ctx.Err()
}
