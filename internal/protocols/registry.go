package protocols

import (
	"fmt"
	"strings"

	"github.com/wrenfold/haptic-core/internal/device"
)

// entry is one vendor signature in the static registry: name prefixes
// and/or advertised service ids, plus a factory producing a fresh
// per-device protocol instance.
type entry struct {
	name         string
	namePrefixes []string
	services     []string
	factory      func(identity device.Identity, probe device.Probe) device.Protocol
}

// Registry is the static table of known vendor protocols. It implements
// device.ProtocolRegistry; matching runs once per discovered device at
// registration time.
type Registry struct {
	entries []entry
}

// New returns the registry with every built-in vendor protocol.
func New() *Registry {
	return &Registry{
		entries: []entry{
			{
				name:         "lovense",
				namePrefixes: []string{"LVS-", "Lovense"},
				services:     []string{lovenseService},
				factory:      newLovense,
			},
			{
				name:         "vorze",
				namePrefixes: []string{"CycSA", "VorzeA10"},
				services:     []string{vorzeService},
				factory:      newVorze,
			},
			{
				name:         "wevibe",
				namePrefixes: []string{"4 Plus", "Ditto", "Pivot", "Wish", "Verge"},
				services:     []string{wevibeService},
				factory:      newWeVibe,
			},
		},
	}
}

// Match selects a protocol for a discovered device. A device matches an
// entry when its probed name carries one of the entry's prefixes or its
// advertised services include one of the entry's service ids. Unmatched
// devices are rejected.
func (r *Registry) Match(identity device.Identity, probe device.Probe) (device.Protocol, error) {
	name := probe.Name
	if name == "" {
		name = identity.Name
	}

	for _, e := range r.entries {
		if e.matches(name, probe.Services) {
			return e.factory(identity, probe), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", device.ErrUnsupportedDevice, name)
}

func (e entry) matches(name string, services []string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range e.namePrefixes {
		if strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return true
		}
	}
	for _, svc := range services {
		for _, want := range e.services {
			if strings.EqualFold(svc, want) {
				return true
			}
		}
	}
	return false
}
