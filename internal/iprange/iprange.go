// Package iprange parses the address-range grammar used to configure UDP
// discovery targets: comma-separated decimal octet ranges for IPv4,
// colon-separated hex hextet ranges (with "::" zero-run expansion) for
// IPv6, cartesian-producted against a decimal port range.
package iprange

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

type u8Range struct{ lo, hi uint8 }
type u16Range struct{ lo, hi uint16 }

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseU8DecList(s string) ([]u8Range, error) {
	var out []u8Range
	for _, item := range splitList(s) {
		from, to, isRange := strings.Cut(item, "-")
		from = strings.TrimSpace(from)
		lo, err := strconv.ParseUint(from, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("iprange: bad octet %q: %w", item, err)
		}
		hi := lo
		if isRange {
			to = strings.TrimSpace(to)
			hi, err = strconv.ParseUint(to, 10, 8)
			if err != nil {
				return nil, fmt.Errorf("iprange: bad octet range %q: %w", item, err)
			}
		}
		out = append(out, u8Range{lo: uint8(lo), hi: uint8(hi)})
	}
	return out, nil
}

func parseU16HexList(s string) ([]u16Range, error) {
	var out []u16Range
	for _, item := range splitList(s) {
		if item == "" {
			out = append(out, u16Range{lo: 0, hi: 0})
			continue
		}
		from, to, isRange := strings.Cut(item, "-")
		from = strings.TrimSpace(from)
		lo, err := strconv.ParseUint(from, 16, 16)
		if err != nil {
			return nil, fmt.Errorf("iprange: bad hextet %q: %w", item, err)
		}
		hi := lo
		if isRange {
			to = strings.TrimSpace(to)
			hi, err = strconv.ParseUint(to, 16, 16)
			if err != nil {
				return nil, fmt.Errorf("iprange: bad hextet range %q: %w", item, err)
			}
		}
		out = append(out, u16Range{lo: uint16(lo), hi: uint16(hi)})
	}
	return out, nil
}

func parseU16DecList(s string) ([]u16Range, error) {
	var out []u16Range
	for _, item := range splitList(s) {
		from, to, isRange := strings.Cut(item, "-")
		from = strings.TrimSpace(from)
		lo, err := strconv.ParseUint(from, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("iprange: bad port %q: %w", item, err)
		}
		hi := lo
		if isRange {
			to = strings.TrimSpace(to)
			hi, err = strconv.ParseUint(to, 10, 16)
			if err != nil {
				return nil, fmt.Errorf("iprange: bad port range %q: %w", item, err)
			}
		}
		out = append(out, u16Range{lo: uint16(lo), hi: uint16(hi)})
	}
	return out, nil
}

func expandU8(ranges []u8Range) []uint64 {
	var out []uint64
	for _, r := range ranges {
		for v := int(r.lo); v <= int(r.hi); v++ {
			out = append(out, uint64(v))
		}
	}
	return out
}

func expandU16(ranges []u16Range) []uint64 {
	var out []uint64
	for _, r := range ranges {
		for v := int(r.lo); v <= int(r.hi); v++ {
			out = append(out, uint64(v))
		}
	}
	return out
}

// ParseIPv4Range parses a dotted-quad address range, e.g. "127.0-4.2,3.8,9-10".
func ParseIPv4Range(s string) ([4][]u8Range, error) {
	var out [4][]u8Range
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return out, fmt.Errorf("iprange: %q is not a 4-octet range", s)
	}
	for i, p := range parts {
		r, err := parseU8DecList(strings.TrimSpace(p))
		if err != nil {
			return out, err
		}
		out[i] = r
	}
	return out, nil
}

// ParseIPv6Range parses a colon-separated hextet range, with at most one
// "::" zero-run expanding to fill the remaining groups. Surrounding
// brackets, if present, are stripped first.
func ParseIPv6Range(s string) ([8][]u16Range, error) {
	var out [8][]u16Range
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")

	if strings.Contains(s, "::") {
		left, right, _ := strings.Cut(s, "::")
		var leftGroups, rightGroups []string
		if left != "" {
			leftGroups = strings.Split(left, ":")
		}
		if right != "" {
			rightGroups = strings.Split(right, ":")
		}
		fill := 8 - len(leftGroups) - len(rightGroups)
		if fill < 0 {
			return out, fmt.Errorf("iprange: %q has too many hextet groups", s)
		}
		groups := append([]string{}, leftGroups...)
		for i := 0; i < fill; i++ {
			groups = append(groups, "0")
		}
		groups = append(groups, rightGroups...)
		for i, g := range groups {
			r, err := parseU16HexList(g)
			if err != nil {
				return out, err
			}
			out[i] = r
		}
		return out, nil
	}

	groups := strings.Split(s, ":")
	if len(groups) != 8 {
		return out, fmt.Errorf("iprange: %q does not have 8 hextet groups", s)
	}
	for i, g := range groups {
		r, err := parseU16HexList(strings.TrimSpace(g))
		if err != nil {
			return out, err
		}
		out[i] = r
	}
	return out, nil
}

// Targets is a restartable iterator over the cartesian product of an
// address range and a port range.
type Targets struct {
	dims   [][]uint64
	build  func([]uint64) net.Addr
	cursor []int
	done   bool
}

func newTargets(dims [][]uint64, build func([]uint64) net.Addr) (*Targets, error) {
	for _, d := range dims {
		if len(d) == 0 {
			return nil, fmt.Errorf("iprange: empty range dimension")
		}
	}
	return &Targets{dims: dims, build: build, cursor: make([]int, len(dims))}, nil
}

// Next returns the next address in the product, or false once exhausted.
func (t *Targets) Next() (net.Addr, bool) {
	if t.done {
		return nil, false
	}
	values := make([]uint64, len(t.dims))
	for i, d := range t.dims {
		values[i] = d[t.cursor[i]]
	}
	addr := t.build(values)

	for i := len(t.dims) - 1; i >= 0; i-- {
		t.cursor[i]++
		if t.cursor[i] < len(t.dims[i]) {
			return addr, true
		}
		t.cursor[i] = 0
		if i == 0 {
			t.done = true
		}
	}
	return addr, true
}

// Reset rewinds the iterator to its first address.
func (t *Targets) Reset() {
	t.done = false
	for i := range t.cursor {
		t.cursor[i] = 0
	}
}

// NewIPv4Targets builds a Targets iterator over addrRange x portRange.
func NewIPv4Targets(addrRange, portRange string) (*Targets, error) {
	octets, err := ParseIPv4Range(addrRange)
	if err != nil {
		return nil, err
	}
	ports, err := parseU16DecList(portRange)
	if err != nil {
		return nil, err
	}

	dims := make([][]uint64, 5)
	for i := 0; i < 4; i++ {
		dims[i] = expandU8(octets[i])
	}
	dims[4] = expandU16(ports)

	build := func(v []uint64) net.Addr {
		ip := net.IPv4(byte(v[0]), byte(v[1]), byte(v[2]), byte(v[3]))
		return &net.UDPAddr{IP: ip, Port: int(v[4])}
	}
	return newTargets(dims, build)
}

// NewIPv6Targets builds a Targets iterator over addrRange x portRange.
func NewIPv6Targets(addrRange, portRange string) (*Targets, error) {
	hextets, err := ParseIPv6Range(addrRange)
	if err != nil {
		return nil, err
	}
	ports, err := parseU16DecList(portRange)
	if err != nil {
		return nil, err
	}

	dims := make([][]uint64, 9)
	for i := 0; i < 8; i++ {
		dims[i] = expandU16(hextets[i])
	}
	dims[8] = expandU16(ports)

	build := func(v []uint64) net.Addr {
		ip := make(net.IP, 16)
		for i := 0; i < 8; i++ {
			ip[i*2] = byte(v[i] >> 8)
			ip[i*2+1] = byte(v[i])
		}
		return &net.UDPAddr{IP: ip, Port: int(v[8])}
	}
	return newTargets(dims, build)
}

// ParseTargets dispatches to NewIPv6Targets or NewIPv4Targets based on
// whether addrRange contains a colon.
func ParseTargets(addrRange, portRange string) (*Targets, error) {
	if strings.Contains(addrRange, ":") {
		return NewIPv6Targets(addrRange, portRange)
	}
	return NewIPv4Targets(addrRange, portRange)
}
