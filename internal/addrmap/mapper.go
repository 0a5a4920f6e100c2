package addrmap

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/coral-mesh/mcudbg/internal/constants"
	"github.com/coral-mesh/mcudbg/internal/safe"
)

const maxLineLength = 1 << 20

// Mapper answers source line <-> address questions for one disassembly listing.
// A Mapper is immutable once built and safe for concurrent use.
type Mapper struct {
	loaded bool
	window int

	forward   map[string]Location // LineKey -> location
	reverse   map[string]Location // normalized address -> location
	byBase    map[string][]string // base name -> normalized files, first-seen order
	functions map[string]string   // name -> normalized address
	funcOrder []Function          // sorted by address
	sorted    []addressedLocation // reverse entries sorted by address
	variables []Variable
}

type addressedLocation struct {
	addr uint64
	loc  Location
}

// Option configures parsing.
type Option func(*Mapper)

// WithLookahead sets how many lines after a source comment are searched for its
// instruction. Values below 1 keep the default.
func WithLookahead(lines int) Option {
	return func(m *Mapper) {
		if lines > 0 {
			m.window = lines
		}
	}
}

// New returns a mapper with nothing loaded. Every lookup on it is unresolved.
func New() *Mapper {
	return &Mapper{
		window:    constants.DefaultLookaheadWindow,
		forward:   map[string]Location{},
		reverse:   map[string]Location{},
		byBase:    map[string][]string{},
		functions: map[string]string{},
	}
}

// Load reads and parses the listing at path.
func Load(filePath string, opts ...Option) (*Mapper, error) {
	data, err := safe.ReadFile(filePath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read disassembly %s: %w", filePath, err)
	}
	return Parse(bytes.NewReader(data), opts...)
}

// Parse builds a mapper from a disassembly listing. Lines that match none of
// the known shapes are ignored. On a read error the listing is discarded and an
// unloaded mapper is returned with the error.
func Parse(r io.Reader, opts ...Option) (*Mapper, error) {
	m := New()
	for _, opt := range opts {
		opt(m)
	}

	var lines []parsedLine
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)
	for scanner.Scan() {
		lines = append(lines, classify(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		empty := New()
		empty.window = m.window
		return empty, fmt.Errorf("failed to read disassembly: %w", err)
	}

	m.indexFunctions(lines)
	m.indexVariables(lines)
	m.indexForward(lines)
	m.indexReverse(lines)
	m.loaded = true
	return m, nil
}

func (m *Mapper) indexFunctions(lines []parsedLine) {
	for _, l := range lines {
		if l.kind != kindLabel {
			continue
		}
		if _, seen := m.functions[l.name]; seen {
			continue
		}
		m.functions[l.name] = l.address
		m.funcOrder = append(m.funcOrder, Function{Name: l.name, Address: "0x" + l.address})
	}
	sort.SliceStable(m.funcOrder, func(i, j int) bool {
		return hexLess(m.funcOrder[i].Address, m.funcOrder[j].Address)
	})
}

func (m *Mapper) indexVariables(lines []parsedLine) {
	seen := map[string]bool{}
	for _, l := range lines {
		if l.kind != kindSymtab || seen[l.variable.Name] {
			continue
		}
		seen[l.variable.Name] = true
		m.variables = append(m.variables, *l.variable)
	}
	sort.SliceStable(m.variables, func(i, j int) bool {
		return hexLess(m.variables[i].Address, m.variables[j].Address)
	})
}

// sourceAt walks the listing and calls fn for every source comment that has an
// instruction within the lookahead window.
func (m *Mapper) sourceAt(lines []parsedLine, fn func(file string, line int, addr, function string)) {
	var currentFile, currentFunc string
	for i, l := range lines {
		switch l.kind {
		case kindLabel:
			currentFunc = l.name
			continue
		case kindSource:
		default:
			continue
		}

		file := l.file
		if file == "" {
			file = currentFile
		} else {
			currentFile = file
		}
		if file == "" {
			continue
		}

		addr, ok := m.addressAfter(lines, i)
		if !ok {
			continue
		}
		fn(file, l.line, addr, currentFunc)
	}
}

// addressAfter picks the address a source comment at index i maps to: the first
// control-transfer instruction in the window, otherwise the first instruction.
func (m *Mapper) addressAfter(lines []parsedLine, i int) (string, bool) {
	first := ""
	end := i + 1 + m.window
	if end > len(lines) {
		end = len(lines)
	}
	for j := i + 1; j < end; j++ {
		l := lines[j]
		if l.kind == kindSource || l.kind == kindLabel {
			break
		}
		if l.kind != kindInstruction {
			continue
		}
		if l.branch {
			return l.address, true
		}
		if first == "" {
			first = l.address
		}
	}
	return first, first != ""
}

func (m *Mapper) indexForward(lines []parsedLine) {
	claimed := map[string]bool{}
	m.sourceAt(lines, func(file string, line int, addr, function string) {
		key := file + ":" + strconv.Itoa(line)
		if _, exists := m.forward[key]; exists || claimed[addr] {
			return
		}
		claimed[addr] = true
		m.forward[key] = Location{File: file, Line: line, Address: "0x" + addr, Function: function}

		base := path.Base(file)
		for _, f := range m.byBase[base] {
			if f == file {
				return
			}
		}
		m.byBase[base] = append(m.byBase[base], file)
	})
}

func (m *Mapper) indexReverse(lines []parsedLine) {
	m.sourceAt(lines, func(file string, line int, addr, _ string) {
		loc, ok := m.forward[file+":"+strconv.Itoa(line)]
		if !ok || loc.Address != "0x"+addr {
			return
		}
		if _, exists := m.reverse[addr]; exists {
			return
		}
		m.reverse[addr] = loc
		if v, err := strconv.ParseUint(addr, 16, 64); err == nil {
			m.sorted = append(m.sorted, addressedLocation{addr: v, loc: loc})
		}
	})
	sort.Slice(m.sorted, func(i, j int) bool { return m.sorted[i].addr < m.sorted[j].addr })
}

// Loaded reports whether a listing has been parsed.
func (m *Mapper) Loaded() bool {
	return m != nil && m.loaded
}

// Resolve returns the address of the first instruction generated for file:line.
// The file may be spelled differently from the listing: an absolute IDE path
// matches a relative listing path by trailing components, then by base name.
func (m *Mapper) Resolve(file string, line int) (Location, bool) {
	if !m.Loaded() || line <= 0 {
		return Location{}, false
	}
	norm := NormalizePath(file)
	if loc, ok := m.forward[norm+":"+strconv.Itoa(line)]; ok {
		return loc, true
	}
	for _, candidate := range m.matchFiles(norm) {
		if loc, ok := m.forward[candidate+":"+strconv.Itoa(line)]; ok {
			return loc, true
		}
	}
	return Location{}, false
}

// matchFiles returns listing files sharing norm's base name, best suffix match first.
func (m *Mapper) matchFiles(norm string) []string {
	candidates := m.byBase[path.Base(norm)]
	if len(candidates) == 0 {
		return nil
	}
	out := make([]string, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		return commonSuffix(norm, out[i]) > commonSuffix(norm, out[j])
	})
	return out
}

// commonSuffix counts the trailing path components a and b share.
func commonSuffix(a, b string) int {
	as := strings.Split(a, "/")
	bs := strings.Split(b, "/")
	n := 0
	for i, j := len(as)-1, len(bs)-1; i >= 0 && j >= 0; i, j = i-1, j-1 {
		if as[i] != bs[j] || as[i] == ".." {
			break
		}
		n++
	}
	return n
}

// ResolveFunction returns the entry address of a labelled function.
func (m *Mapper) ResolveFunction(name string) (Location, bool) {
	if !m.Loaded() {
		return Location{}, false
	}
	addr, ok := m.functions[strings.TrimSpace(name)]
	if !ok {
		return Location{}, false
	}
	loc := Location{Address: "0x" + addr, Function: name}
	if src, ok := m.reverse[addr]; ok {
		loc.File, loc.Line = src.File, src.Line
	}
	return loc, true
}

// ReverseResolve returns the source line whose first instruction is exactly addr.
func (m *Mapper) ReverseResolve(addr string) (Location, bool) {
	if !m.Loaded() {
		return Location{}, false
	}
	loc, ok := m.reverse[NormalizeAddress(addr)]
	return loc, ok
}

// Locate returns the mapped line at or immediately before addr, provided it
// lies in the same function as addr.
func (m *Mapper) Locate(addr string) (Location, bool) {
	if !m.Loaded() || len(m.sorted) == 0 {
		return Location{}, false
	}
	if loc, ok := m.ReverseResolve(addr); ok {
		return loc, true
	}
	target, err := ParseAddress(addr)
	if err != nil {
		return Location{}, false
	}
	i := sort.Search(len(m.sorted), func(i int) bool { return m.sorted[i].addr > target })
	if i == 0 {
		return Location{}, false
	}
	found := m.sorted[i-1].loc
	if fn, ok := m.functionAt(target); ok && found.Function != "" && fn.Name != found.Function {
		return Location{}, false
	}
	return found, true
}

func (m *Mapper) functionAt(addr uint64) (Function, bool) {
	var best Function
	found := false
	for _, fn := range m.funcOrder {
		v, err := ParseAddress(fn.Address)
		if err != nil || v > addr {
			break
		}
		best, found = fn, true
	}
	return best, found
}

// ResolveAll resolves each declaration. Declarations that cannot be resolved
// are returned separately so callers can flag them.
func (m *Mapper) ResolveAll(decls []Declaration) (resolved []Location, unresolved []Declaration) {
	for _, d := range decls {
		var (
			loc Location
			ok  bool
		)
		if d.IsFunction() {
			loc, ok = m.ResolveFunction(d.Function)
		} else {
			loc, ok = m.Resolve(d.File, d.Line)
		}
		if ok {
			resolved = append(resolved, loc)
		} else {
			unresolved = append(unresolved, d)
		}
	}
	return resolved, unresolved
}

// Lines returns every mapped source line ordered by address.
func (m *Mapper) Lines() []Location {
	if !m.Loaded() {
		return nil
	}
	out := make([]Location, len(m.sorted))
	for i, e := range m.sorted {
		out[i] = e.loc
	}
	return out
}

// Functions returns the labelled functions ordered by address.
func (m *Mapper) Functions() []Function {
	if !m.Loaded() {
		return nil
	}
	return append([]Function(nil), m.funcOrder...)
}

// Variables returns the data objects from the listing's symbol table, if it had one.
func (m *Mapper) Variables() []Variable {
	if !m.Loaded() {
		return nil
	}
	return append([]Variable(nil), m.variables...)
}

func hexLess(a, b string) bool {
	av, aerr := ParseAddress(a)
	bv, berr := ParseAddress(b)
	if aerr != nil || berr != nil {
		return a < b
	}
	return av < bv
}
