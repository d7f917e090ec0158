// Package identity derives stable identities for displays and
// display sets from snapshot data. Everything here is pure: same input,
// same output, no I/O.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/waykeep/waykeep/internal/display"
)

// SetID identifies one exact set of connected displays. It is invariant
// under permutation of the input head list.
type SetID string

// Resolve computes the per-display identities and the set identity for a
// snapshot. The set identity is derived from the same disambiguated keys
// (display.Layout.Keys) that per-display configs are stored and applied
// under, so cloned hardware hashes the same way it is addressed.
func Resolve(heads []display.Head) ([]display.Identity, SetID) {
	ids := make([]display.Identity, len(heads))
	for i, h := range heads {
		ids[i] = h.Identity
	}
	return ids, setIDFromKeys(display.Layout(heads).Keys())
}

// SetIDOf computes the set identity of a stored layout. It must agree with
// Resolve for the snapshot the layout was derived from.
func SetIDOf(l display.Layout) SetID {
	_, id := Resolve(l)
	return id
}

func setIDFromKeys(keys []string) SetID {
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\x00")))
	return SetID(hex.EncodeToString(sum[:]))
}
