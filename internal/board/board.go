// Package board finds debug probes attached to the host. It only answers "which
// serial ports look like a probe right now"; choosing and managing ports is left
// to the caller.
package board

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/coral-mesh/mcudbg/internal/constants"
	"github.com/coral-mesh/mcudbg/internal/retry"
)

// ErrNoBoard is returned when no board could be found.
var ErrNoBoard = errors.New("no board detected")

// Board is a connected target, or the offline placeholder.
type Board struct {
	Port    string `json:"port" table:"PORT"`
	Name    string `json:"name,omitempty" table:"NAME"`
	Offline bool   `json:"offline" table:"OFFLINE"`
}

// Offline stands in for hardware when a session runs without a board.
var Offline = Board{Port: constants.OfflinePort, Name: "offline", Offline: true}

func (b Board) String() string {
	if b.Offline {
		return "offline"
	}
	if b.Name != "" && b.Name != b.Port {
		return fmt.Sprintf("%s (%s)", b.Name, b.Port)
	}
	return b.Port
}

// Enumerator lists the boards currently attached.
type Enumerator interface {
	List(ctx context.Context) ([]Board, error)
}

// EnumeratorFunc adapts a function to Enumerator.
type EnumeratorFunc func(ctx context.Context) ([]Board, error)

// List calls f.
func (f EnumeratorFunc) List(ctx context.Context) ([]Board, error) {
	return f(ctx)
}

// GlobEnumerator reports device nodes matching shell patterns.
type GlobEnumerator struct {
	Patterns []string
}

// NewGlobEnumerator returns an enumerator for patterns, or for the platform
// defaults when patterns is empty.
func NewGlobEnumerator(patterns []string) *GlobEnumerator {
	if len(patterns) == 0 {
		patterns = constants.DefaultBoardGlobs
	}
	return &GlobEnumerator{Patterns: patterns}
}

// List returns the matching ports, sorted and de-duplicated.
func (g *GlobEnumerator) List(ctx context.Context) ([]Board, error) {
	seen := map[string]bool{}
	var boards []Board
	for _, pattern := range g.Patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid board pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			boards = append(boards, Board{Port: m, Name: filepath.Base(m)})
		}
	}
	sort.Slice(boards, func(i, j int) bool { return boards[i].Port < boards[j].Port })
	return boards, nil
}

// Detect returns the first board enum reports, retrying while none is found.
// Enumeration errors other than "nothing found" are not retried.
func Detect(ctx context.Context, enum Enumerator, cfg retry.Config) (Board, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = constants.DefaultDetectTimeout / time.Duration(cfg.MaxRetries+1)
	}

	var found Board
	err := retry.Do(ctx, cfg, func() error {
		boards, err := enum.List(ctx)
		if err != nil {
			return err
		}
		if len(boards) == 0 {
			return ErrNoBoard
		}
		found = boards[0]
		return nil
	}, func(err error) bool {
		return errors.Is(err, ErrNoBoard)
	})
	if err != nil {
		if errors.Is(err, ErrNoBoard) {
			return Board{}, ErrNoBoard
		}
		return Board{}, fmt.Errorf("failed to detect board: %w", err)
	}
	return found, nil
}

// Contains reports whether port is among boards. Ports compare
// case-insensitively so COM3 and com3 match.
func Contains(boards []Board, port string) bool {
	for _, b := range boards {
		if strings.EqualFold(b.Port, port) {
			return true
		}
	}
	return false
}
