// Package fingerprint computes order-independent content hashes over
// attribute sets and membership sets. The hashes are change detectors for
// sync state comparison, not cryptographic commitments.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Fingerprint is a comparable content hash. Two fingerprints are equal iff
// their canonical inputs were set-equal.
type Fingerprint [sha256.Size]byte

// Hex returns the lowercase hex encoding, used for persistence and logging.
func (f Fingerprint) Hex() string {
	return hex.EncodeToString(f[:])
}

func (f Fingerprint) String() string {
	return f.Hex()
}

// FromHex parses a persisted hex fingerprint. A blank or whitespace-only
// value is rejected; the cache must never hold an empty hash.
func FromHex(raw string) (Fingerprint, error) {
	var f Fingerprint
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return f, errors.New("fingerprint: raw hash must not be blank")
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return f, errors.Wrap(err, "fingerprint: invalid hex hash")
	}
	if len(decoded) != sha256.Size {
		return f, errors.Newf("fingerprint: expected %d bytes, got %d", sha256.Size, len(decoded))
	}
	copy(f[:], decoded)
	return f, nil
}

// ComputeAttributesHash hashes a set of (name, value) attribute pairs.
// Names are compared case-insensitively and the pair order never affects the
// result: pairs are canonically sorted before hashing. A nil/absent value is
// equivalent to an empty string, so an attribute disappearing from the
// directory hashes the same as that attribute going empty.
func ComputeAttributesHash(attributes map[string]string) Fingerprint {
	type pair struct {
		name  string
		value string
	}

	pairs := make([]pair, 0, len(attributes))
	for name, value := range attributes {
		if value == "" {
			// Absent and empty are the same state.
			continue
		}
		pairs = append(pairs, pair{name: strings.ToLower(name), value: value})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].name != pairs[j].name {
			return pairs[i].name < pairs[j].name
		}
		return pairs[i].value < pairs[j].value
	})

	h := sha256.New()
	for _, p := range pairs {
		// NUL separators keep ("ab","c") and ("a","bc") from colliding.
		h.Write([]byte(p.name))
		h.Write([]byte{0})
		h.Write([]byte(p.value))
		h.Write([]byte{0})
	}

	var f Fingerprint
	h.Sum(f[:0])
	return f
}

// ComputeEntriesHash hashes a collection of member GUIDs, independent of
// enumeration order. An empty collection is valid and yields the hash of the
// empty canonical encoding.
func ComputeEntriesHash(guids []uuid.UUID) Fingerprint {
	sorted := make([]uuid.UUID, len(guids))
	copy(sorted, guids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	h := sha256.New()
	var prev uuid.UUID
	for i, id := range sorted {
		if i > 0 && id == prev {
			continue // set semantics, duplicates don't count
		}
		b := id // uuid.UUID is [16]byte
		h.Write(b[:])
		prev = id
	}

	var f Fingerprint
	h.Sum(f[:0])
	return f
}
