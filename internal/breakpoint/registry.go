// Package breakpoint tracks the breakpoints an IDE declares and keeps them in
// step with the target's small set of hardware breakpoint slots.
//
// A breakpoint moves through three states:
//
//	Declared  the IDE asked for it; no address is known
//	Resolved  an address is known; nothing is armed on the device
//	Armed     the device has confirmed an enabled slot at the address
//
// The device is only believed right after a slot listing, so every set or
// clear is followed by one. A function and a line can resolve to the same
// address; only the breakpoint that was enabled owns the slot there.
package breakpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/mcudbg/internal/addrmap"
	"github.com/coral-mesh/mcudbg/internal/constants"
)

var (
	// ErrCapacityExceeded rejects a declaration beyond the hardware slot count.
	ErrCapacityExceeded = errors.New("breakpoint capacity exceeded")

	// ErrUnresolvedAddress means the breakpoint has no known address to arm.
	ErrUnresolvedAddress = errors.New("breakpoint address could not be resolved")

	// ErrNotFound means no breakpoint matches the given ID or address.
	ErrNotFound = errors.New("breakpoint not found")

	// ErrNotConfirmed means the slot listing contradicts the requested change.
	ErrNotConfirmed = errors.New("device did not confirm breakpoint change")

	// ErrAddressInUse means another breakpoint already owns the slot at the
	// address.
	ErrAddressInUse = errors.New("breakpoint address already armed")
)

// State is a breakpoint's lifecycle state.
type State string

const (
	StateDeclared State = "declared"
	StateResolved State = "resolved"
	StateArmed    State = "armed"
)

// Breakpoint is one declared breakpoint.
type Breakpoint struct {
	ID          string              `json:"id" table:"ID"`
	Declaration addrmap.Declaration `json:"declaration" table:"-"`
	Location    string              `json:"location" table:"LOCATION"`
	Address     string              `json:"address,omitempty" table:"ADDRESS"`
	State       State               `json:"state" table:"STATE"`
	Slot        int                 `json:"slot" table:"SLOT"`
}

// Device is the hardware side of breakpoint management.
type Device interface {
	SetBreakpoint(ctx context.Context, addr string) error
	ClearBreakpoint(ctx context.Context, addr string) error
	ClearSlot(ctx context.Context, slot int) error
	ListSlots(ctx context.Context) ([]Slot, error)
}

// Resolver maps declarations to addresses. *addrmap.Mapper implements it.
type Resolver interface {
	Resolve(file string, line int) (addrmap.Location, bool)
	ResolveFunction(name string) (addrmap.Location, bool)
}

// Registry owns the declared breakpoints for one target.
type Registry struct {
	capacity int
	device   Device
	logger   zerolog.Logger

	mu       sync.Mutex
	resolver Resolver
	items    []*Breakpoint
}

// NewRegistry creates a registry. A non-positive capacity uses the default
// slot count. resolver may be nil until a listing is loaded.
func NewRegistry(device Device, resolver Resolver, capacity int, logger zerolog.Logger) *Registry {
	if capacity <= 0 {
		capacity = constants.DefaultBreakpointSlots
	}
	return &Registry{
		capacity: capacity,
		device:   device,
		resolver: resolver,
		logger:   logger.With().Str("component", "breakpoints").Logger(),
	}
}

// Capacity returns the number of hardware slots.
func (r *Registry) Capacity() int {
	return r.capacity
}

// Declare records a breakpoint and resolves its address if it can. Declaring
// the same location twice returns the existing breakpoint. A declaration past
// capacity is rejected before anything is sent to the device.
func (r *Registry) Declare(decl addrmap.Declaration) (Breakpoint, error) {
	if !decl.IsFunction() && (decl.File == "" || decl.Line <= 0) {
		return Breakpoint{}, fmt.Errorf("invalid breakpoint declaration: need a function or file and line")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, bp := range r.items {
		if sameDeclaration(bp.Declaration, decl) {
			return *bp, nil
		}
	}

	if len(r.items) >= r.capacity {
		return Breakpoint{}, fmt.Errorf("%w: %d of %d slots declared", ErrCapacityExceeded, len(r.items), r.capacity)
	}

	bp := &Breakpoint{
		ID:          uuid.New().String(),
		Declaration: decl,
		Location:    describe(decl),
		State:       StateDeclared,
		Slot:        -1,
	}
	r.resolve(bp)
	r.items = append(r.items, bp)

	r.logger.Debug().
		Str("id", bp.ID).
		Str("location", bp.Location).
		Str("address", bp.Address).
		Msg("Breakpoint declared")

	return *bp, nil
}

// Enable arms the breakpoint identified by ref, an ID or an address.
func (r *Registry) Enable(ctx context.Context, ref string) (Breakpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bp, err := r.find(ref)
	if err != nil {
		return Breakpoint{}, err
	}
	if bp.Address == "" {
		return *bp, fmt.Errorf("%w: %s", ErrUnresolvedAddress, bp.Location)
	}
	if owner := r.ownerOf(bp.Address, bp); owner != nil {
		return *bp, fmt.Errorf("%w: %s holds slot %d at %s", ErrAddressInUse, owner.Location, owner.Slot, bp.Address)
	}
	if bp.State != StateArmed && r.armedCount() >= r.capacity {
		return *bp, fmt.Errorf("%w: all %d slots armed", ErrCapacityExceeded, r.capacity)
	}

	setErr := r.device.SetBreakpoint(ctx, bp.Address)

	slots, err := r.device.ListSlots(ctx)
	if err != nil {
		return *bp, errors.Join(setErr, fmt.Errorf("failed to list breakpoint slots: %w", err))
	}
	r.apply(slots, bp)

	if bp.State != StateArmed {
		return *bp, errors.Join(fmt.Errorf("%w: no enabled slot at %s", ErrNotConfirmed, bp.Address), setErr)
	}
	if setErr != nil {
		r.logger.Warn().Err(setErr).Str("address", bp.Address).Msg("Breakpoint set reported an error but the device lists it")
	}
	return *bp, nil
}

// Disable disarms the breakpoint identified by ref and keeps its declaration.
func (r *Registry) Disable(ctx context.Context, ref string) (Breakpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bp, err := r.find(ref)
	if err != nil {
		return Breakpoint{}, err
	}
	if bp.Address == "" {
		return *bp, fmt.Errorf("%w: %s", ErrUnresolvedAddress, bp.Location)
	}
	if bp.State != StateArmed && r.ownerOf(bp.Address, bp) != nil {
		// The slot belongs to another breakpoint; this one is already off.
		return *bp, nil
	}
	if err := r.disarm(ctx, bp); err != nil {
		return *bp, err
	}
	return *bp, nil
}

// Remove drops the breakpoint identified by ref, disarming it first if armed.
func (r *Registry) Remove(ctx context.Context, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bp, err := r.find(ref)
	if err != nil {
		return err
	}
	if bp.State == StateArmed {
		if err := r.disarm(ctx, bp); err != nil {
			return err
		}
	}

	for i, item := range r.items {
		if item == bp {
			r.items = append(r.items[:i], r.items[i+1:]...)
			break
		}
	}
	r.logger.Debug().Str("id", bp.ID).Str("location", bp.Location).Msg("Breakpoint removed")
	return nil
}

// disarm clears bp on the device and confirms it with a listing.
func (r *Registry) disarm(ctx context.Context, bp *Breakpoint) error {
	clearErr := r.device.ClearBreakpoint(ctx, bp.Address)

	slots, err := r.device.ListSlots(ctx)
	if err != nil {
		return errors.Join(clearErr, fmt.Errorf("failed to list breakpoint slots: %w", err))
	}
	r.apply(slots, nil)

	if bp.State == StateArmed {
		return errors.Join(fmt.Errorf("%w: slot %d still enabled at %s", ErrNotConfirmed, bp.Slot, bp.Address), clearErr)
	}
	if clearErr != nil {
		r.logger.Warn().Err(clearErr).Str("address", bp.Address).Msg("Breakpoint clear reported an error but the device no longer lists it")
	}
	return nil
}

// Slots queries the device's slot listing.
func (r *Registry) Slots(ctx context.Context) ([]Slot, error) {
	slots, err := r.device.ListSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list breakpoint slots: %w", err)
	}
	return slots, nil
}

// SyncReport summarizes a reconciliation against the device.
type SyncReport struct {
	// Armed lists IDs confirmed armed.
	Armed []string `json:"armed"`
	// Demoted lists IDs believed armed that the device no longer holds.
	Demoted []string `json:"demoted"`
	// Strays are enabled slots no armed breakpoint accounts for.
	Strays []Slot `json:"strays"`
}

// Sync reconciles every breakpoint against one slot listing.
func (r *Registry) Sync(ctx context.Context) (SyncReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slots, err := r.device.ListSlots(ctx)
	if err != nil {
		return SyncReport{}, fmt.Errorf("failed to list breakpoint slots: %w", err)
	}

	var report SyncReport
	wasArmed := map[string]bool{}
	for _, bp := range r.items {
		wasArmed[bp.ID] = bp.State == StateArmed
	}
	r.apply(slots, nil)

	known := map[string]bool{}
	for _, bp := range r.items {
		if bp.State == StateArmed {
			known[addrmap.NormalizeAddress(bp.Address)] = true
		}
		switch {
		case bp.State == StateArmed:
			report.Armed = append(report.Armed, bp.ID)
		case wasArmed[bp.ID]:
			report.Demoted = append(report.Demoted, bp.ID)
		}
	}
	for _, s := range slots {
		if s.Enabled && !known[addrmap.NormalizeAddress(s.Address)] {
			report.Strays = append(report.Strays, s)
		}
	}

	if len(report.Demoted) > 0 || len(report.Strays) > 0 {
		r.logger.Info().
			Int("demoted", len(report.Demoted)).
			Int("strays", len(report.Strays)).
			Msg("Breakpoints reconciled with device")
	}
	return report, nil
}

// ClearStrays disarms the given slots by index and re-reads the listing.
func (r *Registry) ClearStrays(ctx context.Context, strays []Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, s := range strays {
		if err := r.device.ClearSlot(ctx, s.Index); err != nil {
			errs = append(errs, fmt.Errorf("failed to clear slot %d: %w", s.Index, err))
		}
	}
	slots, err := r.device.ListSlots(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to list breakpoint slots: %w", err))
	} else {
		r.apply(slots, nil)
	}
	return errors.Join(errs...)
}

// Rebind re-resolves every declaration with resolver, typically after a
// rebuild. It returns the IDs whose address changed while armed; their old
// address may still be set on the device.
func (r *Registry) Rebind(resolver Resolver) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resolver = resolver
	var stale []string
	for _, bp := range r.items {
		before, armed := bp.Address, bp.State == StateArmed
		r.resolve(bp)
		if armed && bp.Address != before {
			if bp.Address != "" {
				bp.State = StateResolved
				bp.Slot = -1
			}
			stale = append(stale, bp.ID)
		}
	}
	return stale
}

// List returns the breakpoints in declaration order.
func (r *Registry) List() []Breakpoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Breakpoint, len(r.items))
	for i, bp := range r.items {
		out[i] = *bp
	}
	return out
}

// Armed returns the number of breakpoints the device has confirmed.
func (r *Registry) Armed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.armedCount()
}

// Reset forgets device state, leaving every resolved breakpoint unarmed. It
// is used when the target goes away.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, bp := range r.items {
		if bp.State == StateArmed {
			bp.State = StateResolved
			bp.Slot = -1
		}
	}
}

// armedCount counts the distinct slots held by armed breakpoints.
func (r *Registry) armedCount() int {
	slots := map[int]bool{}
	for _, bp := range r.items {
		if bp.State == StateArmed {
			slots[bp.Slot] = true
		}
	}
	return len(slots)
}

// ownerOf returns the armed breakpoint other than except that holds addr.
func (r *Registry) ownerOf(addr string, except *Breakpoint) *Breakpoint {
	want := addrmap.NormalizeAddress(addr)
	for _, bp := range r.items {
		if bp != except && bp.State == StateArmed && addrmap.NormalizeAddress(bp.Address) == want {
			return bp
		}
	}
	return nil
}

func (r *Registry) find(ref string) (*Breakpoint, error) {
	for _, bp := range r.items {
		if bp.ID == ref {
			return bp, nil
		}
	}
	if _, err := addrmap.ParseAddress(ref); err == nil {
		want := addrmap.NormalizeAddress(ref)
		var match *Breakpoint
		for _, bp := range r.items {
			if bp.Address == "" || addrmap.NormalizeAddress(bp.Address) != want {
				continue
			}
			if bp.State == StateArmed {
				return bp, nil
			}
			if match == nil {
				match = bp
			}
		}
		if match != nil {
			return match, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
}

// resolve sets bp's address from the current resolver.
func (r *Registry) resolve(bp *Breakpoint) {
	var (
		loc addrmap.Location
		ok  bool
	)
	if r.resolver != nil {
		if bp.Declaration.IsFunction() {
			loc, ok = r.resolver.ResolveFunction(bp.Declaration.Function)
		} else {
			loc, ok = r.resolver.Resolve(bp.Declaration.File, bp.Declaration.Line)
		}
	}

	if !ok {
		bp.Address = ""
		bp.State = StateDeclared
		bp.Slot = -1
		return
	}
	bp.Address = addrmap.FormatAddress(loc.Address)
	if bp.State == StateDeclared {
		bp.State = StateResolved
	}
}

// apply updates armed state from a slot listing. Only breakpoints that were
// already armed, plus target when non-nil, can hold an enabled slot, and each
// address has at most one holder.
func (r *Registry) apply(slots []Slot, target *Breakpoint) {
	held := map[string]bool{}
	claim := func(bp *Breakpoint) {
		key := addrmap.NormalizeAddress(bp.Address)
		if s, ok := enabledAt(slots, bp.Address); ok && !held[key] {
			held[key] = true
			bp.State = StateArmed
			bp.Slot = s.Index
			return
		}
		bp.State = StateResolved
		bp.Slot = -1
	}

	// Existing holders keep their slot ahead of the target.
	for _, bp := range r.items {
		if bp.Address != "" && bp != target && bp.State == StateArmed {
			claim(bp)
		}
	}
	if target != nil && target.Address != "" {
		claim(target)
	}
}

func sameDeclaration(a, b addrmap.Declaration) bool {
	if a.IsFunction() || b.IsFunction() {
		return a.Function == b.Function
	}
	return a.Line == b.Line && addrmap.NormalizePath(a.File) == addrmap.NormalizePath(b.File)
}

func describe(d addrmap.Declaration) string {
	if d.IsFunction() {
		return d.Function + "()"
	}
	return fmt.Sprintf("%s:%d", addrmap.NormalizePath(d.File), d.Line)
}
