package breakpoint

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/coral-mesh/mcudbg/internal/addrmap"
)

// Slot is one hardware comparator as listed by the device.
type Slot struct {
	Index   int    `json:"index" table:"SLOT"`
	Address string `json:"address" table:"ADDRESS"`
	Enabled bool   `json:"enabled" table:"ENABLED"`
}

var slotRe = regexp.MustCompile(`(?i)^\s*slot\s+(\d+)\s*:\s*(enabled|disabled)(?:\s+at\s+(\S+))?`)

// ParseSlots reads "Slot <n>: ENABLED at <address>" lines from a breakpoint
// listing. Disabled slots are returned with Enabled false; other lines are
// ignored.
func ParseSlots(output string) []Slot {
	slots := []Slot{}
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		m := slotRe.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		s := Slot{Index: idx, Enabled: strings.EqualFold(m[2], "enabled")}
		if m[3] != "" {
			s.Address = addrmap.FormatAddress(m[3])
		}
		if s.Enabled && s.Address == "" {
			continue
		}
		slots = append(slots, s)
	}
	return slots
}

// enabledAt returns the enabled slot holding addr.
func enabledAt(slots []Slot, addr string) (Slot, bool) {
	want := addrmap.NormalizeAddress(addr)
	for _, s := range slots {
		if s.Enabled && addrmap.NormalizeAddress(s.Address) == want {
			return s, true
		}
	}
	return Slot{}, false
}
