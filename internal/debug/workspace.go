package debug

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/mcudbg/internal/addrmap"
	"github.com/coral-mesh/mcudbg/internal/elfsym"
	"github.com/coral-mesh/mcudbg/internal/symcache"
)

// WorkspaceConfig locates the build artifacts of the firmware being debugged.
type WorkspaceConfig struct {
	// DisassemblyPath is a listing produced by objdump -d -l (optionally -t).
	DisassemblyPath string `yaml:"disassembly" env:"MCUDBG_DISASSEMBLY"`

	// ImagePath is the linked ELF image.
	ImagePath string `yaml:"image" env:"MCUDBG_IMAGE"`

	// LookaheadWindow bounds the search for a source line's instruction.
	LookaheadWindow int `yaml:"lookahead_window" env:"MCUDBG_LOOKAHEAD_WINDOW"`

	// CacheSize is how many parsed artifacts are kept.
	CacheSize int `yaml:"cache_size"`
}

// Workspace loads build artifacts on demand. Parsed results are cached by
// content, so a rebuilt artifact is picked up on the next call and an
// unchanged one is not parsed again.
type Workspace struct {
	cfg      WorkspaceConfig
	logger   zerolog.Logger
	listings *symcache.Cache[*addrmap.Mapper]
	images   *symcache.Cache[[]elfsym.Symbol]
}

// NewWorkspace creates a workspace for cfg.
func NewWorkspace(cfg WorkspaceConfig, logger zerolog.Logger) *Workspace {
	return &Workspace{
		cfg:      cfg,
		logger:   logger.With().Str("component", "workspace").Logger(),
		listings: symcache.New[*addrmap.Mapper](cfg.CacheSize),
		images:   symcache.New[[]elfsym.Symbol](cfg.CacheSize),
	}
}

// Config returns the workspace configuration.
func (w *Workspace) Config() WorkspaceConfig {
	return w.cfg
}

// Mapper returns the address mapper for the current listing. Without a usable
// listing it returns an unloaded mapper.
func (w *Workspace) Mapper() *addrmap.Mapper {
	if w.cfg.DisassemblyPath == "" {
		return addrmap.New()
	}
	m, err := w.listings.Load(w.cfg.DisassemblyPath, func(data []byte) (*addrmap.Mapper, error) {
		return addrmap.Parse(bytes.NewReader(data), addrmap.WithLookahead(w.cfg.LookaheadWindow))
	})
	if err != nil {
		w.logArtifactError(err, w.cfg.DisassemblyPath)
		return addrmap.New()
	}
	return m
}

// Symbols returns the symbols of the linked image. A missing or unreadable
// image yields no symbols.
func (w *Workspace) Symbols() []elfsym.Symbol {
	if w.cfg.ImagePath == "" {
		return nil
	}
	syms, err := w.images.Load(w.cfg.ImagePath, func(data []byte) ([]elfsym.Symbol, error) {
		return elfsym.Read(data), nil
	})
	if err != nil {
		w.logArtifactError(err, w.cfg.ImagePath)
		return nil
	}
	return syms
}

func (w *Workspace) logArtifactError(err error, path string) {
	if errors.Is(err, fs.ErrNotExist) {
		w.logger.Debug().Str("path", path).Msg("Build artifact not present")
		return
	}
	w.logger.Warn().Err(err).Str("path", path).Msg("Failed to load build artifact")
}

// Resolve implements breakpoint.Resolver against the current listing.
func (w *Workspace) Resolve(file string, line int) (addrmap.Location, bool) {
	return w.Mapper().Resolve(file, line)
}

// ResolveFunction implements breakpoint.Resolver. Functions missing from the
// listing are looked up in the image's symbol table.
func (w *Workspace) ResolveFunction(name string) (addrmap.Location, bool) {
	if loc, ok := w.Mapper().ResolveFunction(name); ok {
		return loc, true
	}
	for _, s := range elfsym.Functions(w.Symbols()) {
		if s.Name == name {
			return addrmap.Location{Function: name, Address: s.Hex()}, true
		}
	}
	return addrmap.Location{}, false
}

// ErrUnknownLocation means a lookup matched nothing in the build artifacts.
var ErrUnknownLocation = errors.New("location not found in build artifacts")

// Lookup resolves query, which is a 0x-prefixed address, "file:line" or a
// function name.
func (w *Workspace) Lookup(query string) (addrmap.Location, error) {
	q := strings.TrimSpace(query)
	if strings.HasPrefix(strings.ToLower(q), "0x") {
		v, err := addrmap.ParseAddress(q)
		if err != nil {
			return addrmap.Location{}, fmt.Errorf("invalid address %q: %w", q, err)
		}
		m := w.Mapper()
		if loc, ok := m.ReverseResolve(q); ok {
			return loc, nil
		}
		if loc, ok := m.Locate(q); ok {
			loc.Address = addrmap.FormatAddress(q)
			return loc, nil
		}
		if v <= 0xffffffff {
			if sym, ok := elfsym.Lookup(elfsym.Functions(w.Symbols()), uint32(v)); ok {
				return addrmap.Location{Address: addrmap.FormatAddress(q), Function: sym.Name}, nil
			}
		}
		return addrmap.Location{}, fmt.Errorf("%w: %s", ErrUnknownLocation, q)
	}

	decl, err := addrmap.ParseDeclaration(q)
	if err != nil {
		return addrmap.Location{}, err
	}
	var (
		loc addrmap.Location
		ok  bool
	)
	if decl.IsFunction() {
		loc, ok = w.ResolveFunction(decl.Function)
	} else {
		loc, ok = w.Resolve(decl.File, decl.Line)
	}
	if !ok {
		return addrmap.Location{}, fmt.Errorf("%w: %s", ErrUnknownLocation, q)
	}
	return loc, nil
}
