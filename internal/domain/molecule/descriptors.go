package molecule

import (
	"sort"
	"strconv"
	"strings"
)

// Descriptors bundles the whole-molecule properties the pipeline reports
// locally when no reference record is available.
type Descriptors struct {
	HeavyAtoms      int     `json:"heavy_atoms"`
	LogP            float64 `json:"logp"`
	Formula         string  `json:"formula"`
	MolecularWeight float64 `json:"molecular_weight"`
}

// Describe computes Descriptors for m.
func Describe(m *Molecule) Descriptors {
	return Descriptors{
		HeavyAtoms:      m.HeavyAtomCount(),
		LogP:            CrippenLogP(m),
		Formula:         Formula(m),
		MolecularWeight: MolecularWeight(m),
	}
}

// elementCounts tallies atoms by symbol, implicit and folded hydrogens included.
func elementCounts(m *Molecule) map[string]int {
	counts := make(map[string]int)
	for i := range m.atoms {
		a := &m.atoms[i]
		if a.AtomicNum > 0 {
			counts[a.Symbol]++
		}
		if h := a.TotalHs(); h > 0 {
			counts["H"] += h
		}
	}
	return counts
}

// Formula renders the Hill-order molecular formula: C first, then H, then
// the remaining elements alphabetically. Without carbon every element,
// hydrogen included, is alphabetical. A net charge is appended as +n / -n.
func Formula(m *Molecule) string {
	counts := elementCounts(m)
	var order []string
	_, hasC := counts["C"]
	if hasC {
		order = append(order, "C")
		if _, ok := counts["H"]; ok {
			order = append(order, "H")
		}
	}
	rest := make([]string, 0, len(counts))
	for sym := range counts {
		if hasC && (sym == "C" || sym == "H") {
			continue
		}
		rest = append(rest, sym)
	}
	sort.Strings(rest)
	order = append(order, rest...)

	var sb strings.Builder
	for _, sym := range order {
		sb.WriteString(sym)
		if n := counts[sym]; n > 1 {
			sb.WriteString(strconv.Itoa(n))
		}
	}

	charge := 0
	for i := range m.atoms {
		charge += m.atoms[i].Charge
	}
	switch {
	case charge == 1:
		sb.WriteString("+")
	case charge == -1:
		sb.WriteString("-")
	case charge > 1:
		sb.WriteString("+" + strconv.Itoa(charge))
	case charge < -1:
		sb.WriteString(strconv.Itoa(charge))
	}
	return sb.String()
}

// MolecularWeight returns the average molecular weight using standard atomic
// weights. Atoms with an explicit isotope contribute their mass number.
func MolecularWeight(m *Molecule) float64 {
	h := elementBySymbol["H"].Mass
	var w float64
	for i := range m.atoms {
		a := &m.atoms[i]
		if a.Isotope > 0 {
			w += float64(a.Isotope)
		} else if e := elementByNumber(a.AtomicNum); e != nil {
			w += e.Mass
		}
		w += float64(a.TotalHs()) * h
	}
	return w
}
