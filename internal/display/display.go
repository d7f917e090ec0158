// Package display holds the domain model shared by the reconciler, the
// layout store and the protocol session: output identities, modes and
// per-output configuration.
package display

import (
	"fmt"
	"math"
	"sort"
)

// Identity identifies one physical display. It is derived from the
// attributes the compositor reports for a head and is recomputed on every
// snapshot, never cached across them.
type Identity struct {
	Connector string `json:"connector"`
	Make      string `json:"make,omitempty"`
	Model     string `json:"model,omitempty"`
	Serial    string `json:"serial,omitempty"`
}

// Key returns the stable lookup key for this identity. A display that
// reports a serial number keeps its identity across connectors; without a
// serial the connector name is part of the key. A head missing every
// distinguishing field still gets a key (the bare connector name).
func (id Identity) Key() string {
	if id.Serial != "" {
		return id.Make + "|" + id.Model + "|" + id.Serial
	}
	if id.Make == "" && id.Model == "" {
		return id.Connector
	}
	return id.Connector + "|" + id.Make + "|" + id.Model
}

func (id Identity) String() string {
	if id.Make == "" && id.Model == "" {
		return id.Connector
	}
	return fmt.Sprintf("%s (%s %s)", id.Connector, id.Make, id.Model)
}

// Mode is a display mode. Refresh is in mHz as the protocol reports it;
// zero means unspecified.
type Mode struct {
	Width      int32 `json:"width"`
	Height     int32 `json:"height"`
	RefreshMHz int32 `json:"refresh_mhz,omitempty"`
}

func (m Mode) String() string {
	if m.RefreshMHz == 0 {
		return fmt.Sprintf("%dx%d", m.Width, m.Height)
	}
	return fmt.Sprintf("%dx%d@%.3fHz", m.Width, m.Height, float64(m.RefreshMHz)/1000.0)
}

// Config is the geometry of one output: enablement, mode, position in the
// global layout space, scale and transform.
type Config struct {
	Enabled      bool      `json:"enabled"`
	Mode         Mode      `json:"mode"`
	X            int32     `json:"x"`
	Y            int32     `json:"y"`
	Scale        float64   `json:"scale,omitempty"`
	Transform    Transform `json:"transform,omitempty"`
	AdaptiveSync bool      `json:"adaptive_sync,omitempty"`
}

// FixedScale returns the scale quantized to wl_fixed (24.8) precision.
// Comparisons go through this so float noise coming back from the
// compositor never looks like a user edit.
func (c Config) FixedScale() int32 {
	return int32(math.Round(c.Scale * 256))
}

// Equal reports whether two configs describe the same geometry. Two
// disabled heads are equal regardless of their remaining fields, which
// carry no meaning while the head is off.
func (c Config) Equal(o Config) bool {
	if c.Enabled != o.Enabled {
		return false
	}
	if !c.Enabled {
		return true
	}
	return c.Mode == o.Mode &&
		c.X == o.X && c.Y == o.Y &&
		c.FixedScale() == o.FixedScale() &&
		c.Transform == o.Transform &&
		c.AdaptiveSync == o.AdaptiveSync
}

// Head is one connected output in a snapshot: who it is and how it is
// currently configured.
type Head struct {
	Identity Identity `json:"identity"`
	Config   Config   `json:"config"`
}

// Layout is the saved geometry for every display in one specific
// connected-display set.
type Layout []Head

// Keys returns the lookup key for every head, index-aligned with the
// layout. Heads with identical identities (cloned hardware) get "#n"
// suffixes assigned in connector-name order, never arrival order, so the
// same physical arrangement always yields the same keys and two clones
// never collapse onto one key.
func (l Layout) Keys() []string {
	order := make([]int, len(l))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return l[order[a]].Identity.Connector < l[order[b]].Identity.Connector
	})

	keys := make([]string, len(l))
	seen := make(map[string]int, len(l))
	for _, i := range order {
		key := l[i].Identity.Key()
		if n := seen[key]; n > 0 {
			key = fmt.Sprintf("%s#%d", key, n)
		}
		seen[l[i].Identity.Key()]++
		keys[i] = key
	}
	return keys
}

// Configs returns the layout's configs keyed by Keys().
func (l Layout) Configs() map[string]Config {
	keys := l.Keys()
	m := make(map[string]Config, len(l))
	for i, h := range l {
		m[keys[i]] = h.Config
	}
	return m
}

// Equal reports whether two layouts cover the same identity set with equal
// configs, independent of ordering. A layout naming a head the other does
// not is never equal. Clones are matched pairwise through their
// disambiguated keys, not first-wins.
func (l Layout) Equal(o Layout) bool {
	if len(l) != len(o) {
		return false
	}
	theirs := o.Configs()
	keys := l.Keys()
	for i, h := range l {
		cfg, ok := theirs[keys[i]]
		if !ok || !h.Config.Equal(cfg) {
			return false
		}
	}
	return true
}
