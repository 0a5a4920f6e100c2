package debug

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/mcudbg/internal/retry"
)

func TestVariables_FromListingWhileHalted(t *testing.T) {
	h := newHarness(t, Config{}, workspaceWithListing(t))
	h.start(t)
	ctx := context.Background()
	h.transport.set("read 0x20000000", "0x20000000: 0x00000007\n")
	h.transport.set("read 0x20000004", "0x20000004: 0x01\n")

	_, err := h.ctrl.Halt(ctx)
	require.NoError(t, err)

	vars, err := h.ctrl.Variables(ctx)
	require.NoError(t, err)
	require.Len(t, vars, 2)

	assert.Equal(t, "counter", vars[0].Name)
	assert.Equal(t, ScopeGlobal, vars[0].Scope)
	assert.Equal(t, "0x00000007", vars[0].Value)
	assert.Equal(t, 4, vars[0].Size)

	assert.Equal(t, "state", vars[1].Name)
	assert.Equal(t, ScopeStatic, vars[1].Scope)
	assert.Equal(t, "0x01", vars[1].Value)
}

func TestVariables_NoValuesWhileRunning(t *testing.T) {
	h := newHarness(t, Config{}, workspaceWithListing(t))
	h.start(t)

	vars, err := h.ctrl.Variables(context.Background())
	require.NoError(t, err)
	require.Len(t, vars, 2)
	for _, v := range vars {
		assert.Empty(t, v.Value)
	}
	assert.Empty(t, h.transport.commands())
}

func TestVariables_ReadCap(t *testing.T) {
	h := newHarness(t, Config{MaxVariableReads: 1}, workspaceWithListing(t))
	h.start(t)
	ctx := context.Background()

	_, err := h.ctrl.Halt(ctx)
	require.NoError(t, err)
	h.transport.reset()

	_, err = h.ctrl.Variables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"read 0x20000000"}, h.transport.commands())
}

func TestVariables_FromImage(t *testing.T) {
	h := newHarness(t, Config{}, workspaceWithImage(t))
	h.start(t)

	vars, err := h.ctrl.Variables(context.Background())
	require.NoError(t, err)
	require.Len(t, vars, 1)
	assert.Equal(t, "ticks", vars[0].Name)
	assert.Equal(t, "0x20000010", vars[0].Address)
}

func TestVariables_RegisterFallback(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	h.start(t)

	vars, err := h.ctrl.Variables(context.Background())
	require.NoError(t, err)
	require.Len(t, vars, 3)
	assert.Equal(t, "PC", vars[2].Name)
	assert.Equal(t, "register", vars[2].Type)
	assert.Equal(t, ScopeLocal, vars[2].Scope)
	assert.Equal(t, "0x00000132", vars[2].Value)
}

func TestVariables_RunningUsesLastRegisters(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	h.start(t)
	ctx := context.Background()

	_, err := h.ctrl.Halt(ctx)
	require.NoError(t, err)
	require.NoError(t, h.ctrl.Resume(ctx))

	vars, err := h.ctrl.Variables(ctx)
	require.NoError(t, err)
	require.Len(t, vars, 3)
	assert.Equal(t, "0x20001000", vars[1].Value)
}

func TestVariables_RunningWithoutRegisters(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	h.start(t)
	ctx := context.Background()
	require.NoError(t, h.ctrl.Resume(ctx))

	vars, err := h.ctrl.Variables(ctx)
	require.NoError(t, err)
	assert.Len(t, vars, len(placeholderRegisterNames))
}

func TestVariables_Offline(t *testing.T) {
	h := newHarness(t, Config{AllowOffline: true}, nil)
	h.boards.set()
	h.ctrl.detectRetry = retry.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}

	_, err := h.ctrl.Start(context.Background(), StartOptions{})
	require.NoError(t, err)

	vars, err := h.ctrl.Variables(context.Background())
	require.NoError(t, err)
	require.Len(t, vars, len(placeholderRegisterNames))
	assert.Equal(t, placeholderValue, vars[0].Value)
}

func TestWhere(t *testing.T) {
	h := newHarness(t, Config{}, workspaceWithListing(t))
	h.start(t)

	f, err := h.ctrl.Where(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Frame{PC: "0x132", Function: "main", File: "src/main.c", Line: 10}, f)
	assert.Equal(t, "0x132 in main at src/main.c:10", f.String())
}

func TestDescribe(t *testing.T) {
	h := newHarness(t, Config{}, workspaceWithImage(t))

	f := h.ctrl.Describe("0x00000208")
	assert.Equal(t, "reset_handler", f.Function)
	assert.Equal(t, "0x208 in reset_handler", f.String())

	f = h.ctrl.Describe("0x9000")
	assert.Equal(t, "0x9000", f.String())

	f = h.ctrl.Describe("garbage")
	assert.Equal(t, Frame{PC: "garbage"}, f)
}
