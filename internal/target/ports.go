package target

import (
	"fmt"
	"sort"
	"strings"
)

// ParsePortRange parses "start-end". A single port is accepted as a range of one.
func ParsePortRange(spec string) (int, int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, 0, fmt.Errorf("%w: empty", ErrInvalidPortRange)
	}

	lo, hi, found := strings.Cut(spec, "-")
	start, err := parsePort(lo)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidPortRange, err)
	}
	if !found {
		return start, start, nil
	}
	end, err := parsePort(hi)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidPortRange, err)
	}
	if start > end {
		return 0, 0, fmt.Errorf("%w: start %d > end %d", ErrInvalidPortRange, start, end)
	}
	return start, end, nil
}

// ParsePortList parses comma separated ports and ranges, e.g. "22,80,8000-8010".
// The result is sorted and deduplicated. Any malformed piece fails the whole list.
func ParsePortList(spec string) ([]int, error) {
	seen := make(map[int]struct{})
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		start, end, err := ParsePortRange(part)
		if err != nil {
			return nil, err
		}
		for p := start; p <= end; p++ {
			seen[p] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("%w: no ports in %q", ErrInvalidPortRange, spec)
	}

	ports := make([]int, 0, len(seen))
	for p := range seen {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports, nil
}

// ExpandHostPorts builds the host x port cross product for the port scanner.
// Invalid hosts are kept once so they still resolve to an Invalid slot.
func ExpandHostPorts(hosts []Target, ports []int) []Target {
	out := make([]Target, 0, len(hosts)*len(ports))
	for _, h := range hosts {
		if !h.Valid() {
			h.Index = len(out)
			out = append(out, h)
			continue
		}
		for _, p := range ports {
			t := Target{Raw: h.Raw, Host: h.Host, Port: p}
			t.Index = len(out)
			out = append(out, t)
		}
	}
	return out
}
