package debug

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/coral-mesh/mcudbg/internal/board"
)

func TestHaltDetector(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []bool
	}{
		{
			name:   "single chunk",
			chunks: []string{"Running\nTarget halted\n"},
			want:   []bool{true},
		},
		{
			name:   "split across chunks",
			chunks: []string{"Target ha", "lted"},
			want:   []bool{false, true},
		},
		{
			name:   "split three ways",
			chunks: []string{"HA", "L", "TED"},
			want:   []bool{false, false, true},
		},
		{
			name:   "fires once",
			chunks: []string{"HALTED", "HALTED", "Target halted"},
			want:   []bool{true, false, false},
		},
		{
			name:   "no indication",
			chunks: []string{"Running", "still running"},
			want:   []bool{false, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewHaltDetector(nil)
			for i, chunk := range tt.chunks {
				assert.Equal(t, tt.want[i], d.Feed(chunk), "chunk %d", i)
			}
		})
	}
}

func TestHaltDetector_CustomPatterns(t *testing.T) {
	d := NewHaltDetector([]string{"", "BREAK"})
	assert.False(t, d.Feed("Target halted"))
	assert.True(t, d.Feed("BREAK"))
	assert.True(t, d.Fired())
}

func TestStderrDetector(t *testing.T) {
	d := NewStderrDetector(nil, 3)

	assert.False(t, d.Feed("Permission denied"))
	assert.False(t, d.Feed("Access is denied"))
	assert.Equal(t, 2, d.Count())

	assert.False(t, d.Feed("some other warning"))
	assert.Zero(t, d.Count())

	assert.False(t, d.Feed("could not open port"))
	assert.False(t, d.Feed("could not open port"))
	assert.True(t, d.Feed("could not open port"))
	assert.False(t, d.Feed("could not open port"), "trips once")
}

func TestStderrDetector_DefaultThreshold(t *testing.T) {
	d := NewStderrDetector(nil, 0)
	for i := 0; i < 4; i++ {
		assert.False(t, d.Feed("Permission denied"))
	}
	assert.True(t, d.Feed("Permission denied"))
}

func TestLivenessChecker(t *testing.T) {
	var calls atomic.Int32
	enum := board.EnumeratorFunc(func(context.Context) ([]board.Board, error) {
		switch calls.Add(1) {
		case 1:
			return []board.Board{{Port: "COM3"}}, nil
		case 2:
			return nil, errors.New("busy")
		default:
			return nil, nil
		}
	})

	var lost atomic.Int32
	done := make(chan struct{})
	go func() {
		NewLivenessChecker(enum, 5*time.Millisecond, zerolog.Nop()).Run(context.Background(), "com3", func() { lost.Add(1) })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("liveness checker did not return")
	}
	assert.Equal(t, int32(1), lost.Load())
	assert.Equal(t, int32(3), calls.Load(), "an enumeration error skips the tick")
}

func TestLivenessChecker_StopsWithContext(t *testing.T) {
	enum := board.EnumeratorFunc(func(context.Context) ([]board.Board, error) {
		return []board.Board{{Port: "COM3"}}, nil
	})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewLivenessChecker(enum, 5*time.Millisecond, zerolog.Nop()).Run(ctx, "COM3", func() { t.Error("unexpected loss") })
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("liveness checker did not stop")
	}
}
