package molecule

import (
	"encoding/binary"
	"sort"
)

// ─────────────────────────────────────────────────────────────────────────────
// Morgan (Circular) Fingerprint
// ─────────────────────────────────────────────────────────────────────────────

// hashCombine mixes v into seed (boost::hash_combine on 32 bits).
func hashCombine(seed, v uint32) uint32 {
	return seed ^ (v + 0x9e3779b9 + (seed << 6) + (seed >> 2))
}

// atomInvariant is the radius-0 identifier of an atom: element, total degree
// (hydrogens included), hydrogen count, formal charge, mass shift from the
// standard weight and ring membership.
func (m *Molecule) atomInvariant(idx int) uint32 {
	a := &m.atoms[idx]
	var seed uint32
	seed = hashCombine(seed, uint32(a.AtomicNum))
	seed = hashCombine(seed, uint32(m.Degree(idx)+a.TotalHs()))
	seed = hashCombine(seed, uint32(a.TotalHs()))
	seed = hashCombine(seed, uint32(int32(a.Charge)))
	delta := 0
	if a.Isotope > 0 {
		if e := elementByNumber(a.AtomicNum); e != nil {
			delta = int(float64(a.Isotope) - e.Mass)
		}
	}
	seed = hashCombine(seed, uint32(int32(delta)))
	if m.inRing[idx] {
		seed = hashCombine(seed, 1)
	}
	return seed
}

// neighborhood is the sorted set of bond indices an environment covers. It
// stays small: an environment of radius r only reaches bonds r hops away.
type neighborhood []int32

// with returns the union of n, o and the single bond b.
func (n neighborhood) with(o neighborhood, b int32) neighborhood {
	out := make(neighborhood, 0, len(n)+len(o)+1)
	out = append(out, n...)
	out = append(out, o...)
	out = append(out, b)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	w := 0
	for i, v := range out {
		if i > 0 && v == out[w-1] {
			continue
		}
		out[w] = v
		w++
	}
	return out[:w]
}

func (n neighborhood) key() string {
	buf := make([]byte, 4*len(n))
	for i, v := range n {
		binary.BigEndian.PutUint32(buf[4*i:], uint32(v))
	}
	return string(buf)
}

type environment struct {
	key  string
	inv  uint32
	atom int
}

// MorganEnvironments returns the identifiers of every distinct circular
// environment of m up to radius, in the order they are found. Each atom
// starts from its invariant; at every iteration an atom's identifier is
// rehashed with the sorted (bond type, neighbour identifier) pairs. An
// environment is kept only when the set of bonds it covers has not been seen
// before; the atom that produced a duplicate stops growing and contributes a
// zero identifier to its neighbours afterwards.
func MorganEnvironments(m *Molecule, radius int) []uint32 {
	n := len(m.atoms)
	if n == 0 {
		return nil
	}

	ids := make([]uint32, 0, n*(radius+1))
	invariants := make([]uint32, n)
	for i := 0; i < n; i++ {
		invariants[i] = m.atomInvariant(i)
		ids = append(ids, invariants[i])
	}

	neighborhoods := make([]neighborhood, n)
	dead := make([]bool, n)
	seen := make(map[string]struct{})

	type pair struct {
		bond uint32
		inv  uint32
	}

	for layer := 0; layer < radius; layer++ {
		next := make([]uint32, n)
		roundSets := make([]neighborhood, n)
		copy(roundSets, neighborhoods)
		var envs []environment

		for i := 0; i < n; i++ {
			if dead[i] {
				continue
			}
			if len(m.adj[i]) == 0 {
				dead[i] = true
				continue
			}
			covered := neighborhoods[i]
			pairs := make([]pair, 0, len(m.adj[i]))
			for _, nb := range m.adj[i] {
				covered = covered.with(neighborhoods[nb.atom], int32(nb.bond))
				pairs = append(pairs, pair{bond: uint32(m.bonds[nb.bond].Order), inv: invariants[nb.atom]})
			}
			sort.Slice(pairs, func(a, b int) bool {
				if pairs[a].bond != pairs[b].bond {
					return pairs[a].bond < pairs[b].bond
				}
				return pairs[a].inv < pairs[b].inv
			})

			inv := uint32(layer)
			inv = hashCombine(inv, invariants[i])
			for _, p := range pairs {
				inv = hashCombine(inv, hashCombine(hashCombine(0, p.bond), p.inv))
			}
			next[i] = inv
			roundSets[i] = covered

			key := covered.key()
			if _, dup := seen[key]; dup {
				dead[i] = true
			}
			envs = append(envs, environment{key: key, inv: inv, atom: i})
		}

		sort.Slice(envs, func(a, b int) bool {
			if envs[a].key != envs[b].key {
				return envs[a].key < envs[b].key
			}
			if envs[a].inv != envs[b].inv {
				return envs[a].inv < envs[b].inv
			}
			return envs[a].atom < envs[b].atom
		})
		for _, e := range envs {
			if _, dup := seen[e.key]; dup {
				dead[e.atom] = true
				continue
			}
			seen[e.key] = struct{}{}
			ids = append(ids, e.inv)
		}

		invariants = next
		neighborhoods = roundSets
	}
	return ids
}

// MorganFingerprint computes the circular fingerprint of m with the given
// radius folded into nBits.
func MorganFingerprint(m *Molecule, radius, nBits int) *Fingerprint {
	fp := NewFingerprint(FingerprintMorgan, radius, nBits)
	if nBits <= 0 {
		return fp
	}
	for _, id := range MorganEnvironments(m, radius) {
		fp.SetBit(int(id % uint32(nBits)))
	}
	return fp
}

// MorganFromSMILES parses smiles and returns its Morgan fingerprint.
func MorganFromSMILES(smiles string, radius, nBits int) (*Fingerprint, error) {
	m, err := ParseSMILES(smiles)
	if err != nil {
		return nil, err
	}
	return MorganFingerprint(m, radius, nBits), nil
}
