package constants

import "time"

// Timeouts - Default timeout values.
const (
	// DefaultCommandTimeout bounds a single request/response probe command.
	DefaultCommandTimeout = 10 * time.Second

	// DefaultKillGrace is how long a terminated process may take to exit before
	// it is killed.
	DefaultKillGrace = 500 * time.Millisecond

	// DefaultLivenessInterval is the period of the board presence check.
	DefaultLivenessInterval = 5 * time.Second

	// DefaultDetectTimeout bounds board auto-detection at session start.
	DefaultDetectTimeout = 3 * time.Second
)

// Limits - Default limits for sessions and symbol handling.
const (
	// DefaultBreakpointSlots is the number of hardware comparators on the target.
	DefaultBreakpointSlots = 4

	// DefaultDisconnectThreshold is the number of consecutive disconnect-looking
	// stderr chunks that end a session.
	DefaultDisconnectThreshold = 5

	// DefaultLookaheadWindow is how many lines after a source comment are searched
	// for the instruction that belongs to it.
	DefaultLookaheadWindow = 8

	// DefaultMaxVariableReads caps memory reads issued for one variables snapshot.
	DefaultMaxVariableReads = 32

	// DefaultMaxImageSize caps the size of disassembly listings and images read
	// into memory.
	DefaultMaxImageSize = 64 << 20

	// DefaultSymbolCacheSize is the number of parsed artifacts kept in memory.
	DefaultSymbolCacheSize = 8

	// DefaultDetectRetries is the number of board enumeration attempts at start.
	DefaultDetectRetries = 3
)
