package molecule

// Atom-contribution octanol/water partition coefficient after Wildman and
// Crippen (J. Chem. Inf. Comput. Sci. 1999, 39, 868). Every heavy atom and
// every attached hydrogen is typed by the first matching rule of its element
// and the type contributions are summed. Rule order follows the published
// type table; the catch-all types (CS, HS, NS, OS) close each element.

type bondTest func(BondOrder) bool

func anyBond(BondOrder) bool { return true }

// singleOrArom is the default bond of the type patterns.
func singleOrArom(o BondOrder) bool { return o == BondSingle || o == BondAromatic }

func singleBond(o BondOrder) bool   { return o == BondSingle }
func aromaticBond(o BondOrder) bool { return o == BondAromatic }
func doubleBond(o BondOrder) bool   { return o == BondDouble }
func tripleBond(o BondOrder) bool   { return o == BondTriple }

// atomTest inspects graph atom j.
type atomTest func(m *Molecule, j int) bool

func inSet(z int, set []int) bool {
	for _, v := range set {
		if v == z {
			return true
		}
	}
	return false
}

// aliphatic matches non-aromatic atoms of the given elements, or any
// non-aromatic atom when none are given.
func aliphatic(zs ...int) atomTest {
	return func(m *Molecule, j int) bool {
		a := &m.atoms[j]
		return !a.Aromatic && (len(zs) == 0 || inSet(a.AtomicNum, zs))
	}
}

// aromatic matches aromatic atoms of the given elements, or any aromatic atom.
func aromatic(zs ...int) atomTest {
	return func(m *Molecule, j int) bool {
		a := &m.atoms[j]
		return a.Aromatic && (len(zs) == 0 || inSet(a.AtomicNum, zs))
	}
}

// ofElement matches atoms of the given elements regardless of aromaticity.
func ofElement(zs ...int) atomTest {
	return func(m *Molecule, j int) bool { return inSet(m.atoms[j].AtomicNum, zs) }
}

// notElement matches atoms outside the given elements.
func notElement(zs ...int) atomTest {
	return func(m *Molecule, j int) bool { return !inSet(m.atoms[j].AtomicNum, zs) }
}

func both(a, b atomTest) atomTest {
	return func(m *Molecule, j int) bool { return a(m, j) && b(m, j) }
}

var (
	heavyAliphatic = both(aliphatic(), notElement(1)) // [A;!#1]
	heavyAny       = notElement(1)                    // [!#1;A,a]
	heavyAromatic  = both(aromatic(), notElement(1))  // [a;!#1]
	aliphaticC     = aliphatic(6)
	aromaticC      = aromatic(6)
	polarAliphatic = aliphatic(7, 8, 15, 16, 9, 17, 35, 53) // [N,O,P,S,F,Cl,Br,I]
)

// hydrogenCount is the number of hydrogens on atom j, implicit, bracket and
// unfolded graph hydrogens together.
func (m *Molecule) hydrogenCount(j int) int {
	n := m.atoms[j].TotalHs()
	for _, nb := range m.adj[j] {
		if m.atoms[nb.atom].AtomicNum == 1 {
			n++
		}
	}
	return n
}

// connectivity is the total number of connections of atom j, hydrogens
// included.
func (m *Molecule) connectivity(j int) int {
	return len(m.adj[j]) + m.atoms[j].TotalHs()
}

type nbrSpec struct {
	bond bondTest
	atom atomTest
}

func nb(bond bondTest, atom atomTest) nbrSpec { return nbrSpec{bond: bond, atom: atom} }

// hasNeighbors reports whether distinct graph neighbours of idx, other than
// exclude, satisfy every spec.
func (m *Molecule) hasNeighbors(idx, exclude int, specs ...nbrSpec) bool {
	used := make([]bool, len(m.adj[idx]))
	var assign func(k int) bool
	assign = func(k int) bool {
		if k == len(specs) {
			return true
		}
		for i, n := range m.adj[idx] {
			if used[i] || n.atom == exclude {
				continue
			}
			if !specs[k].bond(m.bonds[n.bond].Order) || !specs[k].atom(m, n.atom) {
				continue
			}
			used[i] = true
			if assign(k + 1) {
				return true
			}
			used[i] = false
		}
		return false
	}
	return assign(0)
}

// anyNeighbor reports whether some neighbour j of idx reached through a bond
// accepted by bond satisfies atom and then.
func (m *Molecule) anyNeighbor(idx int, bond bondTest, atom atomTest, then func(j int) bool) bool {
	for _, n := range m.adj[idx] {
		if bond(m.bonds[n.bond].Order) && atom(m, n.atom) && (then == nil || then(n.atom)) {
			return true
		}
	}
	return false
}

type crippenRule struct {
	typ   string
	logP  float64
	match func(m *Molecule, i int) bool
}

func hs(m *Molecule, i, n int) bool { return m.hydrogenCount(i) == n }

func charge(m *Molecule, i int, allowed ...int) bool { return inSet(m.atoms[i].Charge, allowed) }

var positive = []int{1, 2, 3}

var carbonRules = []crippenRule{
	{"C1", 0.1441, func(m *Molecule, i int) bool { return hs(m, i, 4) }},
	{"C1", 0.1441, func(m *Molecule, i int) bool {
		return hs(m, i, 3) && m.hasNeighbors(i, -1, nb(singleOrArom, aliphaticC))
	}},
	{"C1", 0.1441, func(m *Molecule, i int) bool {
		return hs(m, i, 2) && m.hasNeighbors(i, -1, nb(singleOrArom, aliphaticC), nb(singleOrArom, aliphaticC))
	}},
	{"C2", 0, func(m *Molecule, i int) bool {
		return hs(m, i, 1) && m.hasNeighbors(i, -1, nb(singleOrArom, aliphaticC), nb(singleOrArom, aliphaticC), nb(singleOrArom, aliphaticC))
	}},
	{"C2", 0, func(m *Molecule, i int) bool {
		return m.hasNeighbors(i, -1, nb(singleOrArom, aliphaticC), nb(singleOrArom, aliphaticC), nb(singleOrArom, aliphaticC), nb(singleOrArom, aliphaticC))
	}},
	{"C3", -0.2035, func(m *Molecule, i int) bool {
		return hs(m, i, 3) && m.hasNeighbors(i, -1, nb(singleOrArom, polarAliphatic))
	}},
	{"C3", -0.2035, func(m *Molecule, i int) bool {
		return hs(m, i, 2) && m.connectivity(i) == 4 &&
			m.hasNeighbors(i, -1, nb(singleOrArom, polarAliphatic), nb(singleOrArom, heavyAliphatic))
	}},
	{"C4", -0.2051, func(m *Molecule, i int) bool {
		return hs(m, i, 1) && m.connectivity(i) == 4 &&
			m.hasNeighbors(i, -1, nb(singleOrArom, polarAliphatic), nb(singleOrArom, heavyAliphatic), nb(singleOrArom, heavyAliphatic))
	}},
	{"C4", -0.2051, func(m *Molecule, i int) bool {
		return hs(m, i, 0) && m.connectivity(i) == 4 &&
			m.hasNeighbors(i, -1, nb(singleOrArom, polarAliphatic), nb(singleOrArom, heavyAliphatic), nb(singleOrArom, heavyAliphatic), nb(singleOrArom, heavyAliphatic))
	}},
	{"C5", -0.2783, func(m *Molecule, i int) bool {
		return m.hasNeighbors(i, -1, nb(doubleBond, both(heavyAliphatic, notElement(6))))
	}},
	{"C6", 0.1551, func(m *Molecule, i int) bool {
		return hs(m, i, 2) && m.hasNeighbors(i, -1, nb(doubleBond, aliphaticC))
	}},
	{"C6", 0.1551, func(m *Molecule, i int) bool {
		return hs(m, i, 1) && m.hasNeighbors(i, -1, nb(doubleBond, aliphaticC), nb(singleOrArom, heavyAliphatic))
	}},
	{"C6", 0.1551, func(m *Molecule, i int) bool {
		return hs(m, i, 0) && m.hasNeighbors(i, -1, nb(doubleBond, aliphaticC), nb(singleOrArom, heavyAliphatic), nb(singleOrArom, heavyAliphatic))
	}},
	{"C6", 0.1551, func(m *Molecule, i int) bool {
		return m.hasNeighbors(i, -1, nb(doubleBond, aliphaticC), nb(doubleBond, aliphaticC))
	}},
	{"C7", 0.0017, func(m *Molecule, i int) bool {
		return m.connectivity(i) == 2 && m.hasNeighbors(i, -1, nb(tripleBond, aliphatic()))
	}},
	{"C8", 0.08452, func(m *Molecule, i int) bool {
		return hs(m, i, 3) && m.hasNeighbors(i, -1, nb(singleOrArom, aromaticC))
	}},
	{"C9", -0.1444, func(m *Molecule, i int) bool {
		return hs(m, i, 3) && m.hasNeighbors(i, -1, nb(singleOrArom, aromatic()))
	}},
	{"C10", -0.0516, func(m *Molecule, i int) bool {
		return hs(m, i, 2) && m.connectivity(i) == 4 && m.hasNeighbors(i, -1, nb(singleOrArom, aromatic()))
	}},
	{"C11", 0.1193, func(m *Molecule, i int) bool {
		return hs(m, i, 1) && m.connectivity(i) == 4 && m.hasNeighbors(i, -1, nb(singleOrArom, aromatic()))
	}},
	{"C12", -0.0967, func(m *Molecule, i int) bool {
		return hs(m, i, 0) && m.connectivity(i) == 4 && m.hasNeighbors(i, -1, nb(singleOrArom, aromatic()))
	}},
	// C26 and C27 are aliphatic; the aromatic types C13-C25 are listed with
	// aromaticCarbonRules.
	{"C26", 0.264, func(m *Molecule, i int) bool {
		return m.hasNeighbors(i, -1, nb(doubleBond, aliphaticC), nb(singleOrArom, aromatic()), nb(singleOrArom, heavyAliphatic))
	}},
	{"C26", 0.264, func(m *Molecule, i int) bool {
		return m.hasNeighbors(i, -1, nb(doubleBond, aliphaticC), nb(singleOrArom, aromaticC), nb(singleOrArom, aromatic()))
	}},
	{"C26", 0.264, func(m *Molecule, i int) bool {
		return hs(m, i, 1) && m.hasNeighbors(i, -1, nb(doubleBond, aliphaticC), nb(singleOrArom, aromatic()))
	}},
	{"C26", 0.264, func(m *Molecule, i int) bool {
		return m.hasNeighbors(i, -1, nb(doubleBond, aromaticC))
	}},
	{"C27", 0.2148, func(m *Molecule, i int) bool {
		return m.connectivity(i) == 4 &&
			m.hasNeighbors(i, -1, nb(singleOrArom, both(heavyAliphatic, notElement(6, 7, 8, 15, 16, 9, 17, 35, 53))))
	}},
}

// aromaticPair is the (:a)(:a) part shared by C19-C25.
func aromaticPair(extra nbrSpec) func(m *Molecule, i int) bool {
	return func(m *Molecule, i int) bool {
		return m.hasNeighbors(i, -1, nb(aromaticBond, aromatic()), nb(aromaticBond, aromatic()), extra)
	}
}

var aromaticCarbonRules = []crippenRule{
	{"C13", -0.5443, func(m *Molecule, i int) bool {
		return hs(m, i, 0) && m.hasNeighbors(i, -1, nb(singleBond, both(heavyAliphatic, notElement(6, 7, 8, 16, 9, 17, 35, 53))))
	}},
	{"C14", 0, func(m *Molecule, i int) bool { return m.hasNeighbors(i, -1, nb(singleOrArom, ofElement(9))) }},
	{"C15", 0.245, func(m *Molecule, i int) bool { return m.hasNeighbors(i, -1, nb(singleOrArom, ofElement(17))) }},
	{"C16", 0.198, func(m *Molecule, i int) bool { return m.hasNeighbors(i, -1, nb(singleOrArom, ofElement(35))) }},
	{"C17", 0, func(m *Molecule, i int) bool { return m.hasNeighbors(i, -1, nb(singleOrArom, ofElement(53))) }},
	{"C18", 0.1581, func(m *Molecule, i int) bool { return hs(m, i, 1) }},
	{"C19", 0.2955, aromaticPair(nb(aromaticBond, aromatic()))},
	{"C20", 0.2713, aromaticPair(nb(singleBond, aromatic()))},
	{"C21", 0.136, aromaticPair(nb(singleBond, aliphaticC))},
	{"C22", 0.4619, aromaticPair(nb(singleBond, aliphatic(7)))},
	{"C23", 0.5437, aromaticPair(nb(singleBond, aliphatic(8)))},
	{"C24", 0.1893, aromaticPair(nb(singleBond, aliphatic(16)))},
	{"C25", -0.8186, aromaticPair(nb(doubleBond, aliphatic(6, 7, 8)))},
}

var nitrogenRules = []crippenRule{
	{"N1", -1.019, func(m *Molecule, i int) bool {
		return !m.atoms[i].Aromatic && hs(m, i, 2) && charge(m, i, 0) && m.hasNeighbors(i, -1, nb(singleOrArom, heavyAliphatic))
	}},
	{"N2", -0.7096, func(m *Molecule, i int) bool {
		return !m.atoms[i].Aromatic && hs(m, i, 1) && charge(m, i, 0) &&
			m.hasNeighbors(i, -1, nb(singleOrArom, heavyAliphatic), nb(singleOrArom, heavyAliphatic))
	}},
	{"N3", -1.027, func(m *Molecule, i int) bool {
		return !m.atoms[i].Aromatic && hs(m, i, 2) && charge(m, i, 0) && m.hasNeighbors(i, -1, nb(singleOrArom, aromatic()))
	}},
	{"N4", -0.5188, func(m *Molecule, i int) bool {
		return !m.atoms[i].Aromatic && hs(m, i, 1) && charge(m, i, 0) &&
			m.hasNeighbors(i, -1, nb(singleOrArom, heavyAny), nb(singleOrArom, aromatic()))
	}},
	{"N5", 0.08387, func(m *Molecule, i int) bool {
		return !m.atoms[i].Aromatic && hs(m, i, 1) && charge(m, i, 0) && m.hasNeighbors(i, -1, nb(doubleBond, heavyAny))
	}},
	{"N6", 0.1836, func(m *Molecule, i int) bool {
		return !m.atoms[i].Aromatic && charge(m, i, 0) &&
			m.hasNeighbors(i, -1, nb(doubleBond, heavyAny), nb(singleOrArom, heavyAny))
	}},
	{"N7", -0.3187, func(m *Molecule, i int) bool {
		return !m.atoms[i].Aromatic && charge(m, i, 0) &&
			m.hasNeighbors(i, -1, nb(singleOrArom, heavyAliphatic), nb(singleOrArom, heavyAliphatic), nb(singleOrArom, heavyAliphatic))
	}},
	{"N8", -0.4458, func(m *Molecule, i int) bool {
		return !m.atoms[i].Aromatic && charge(m, i, 0) &&
			m.hasNeighbors(i, -1, nb(singleOrArom, aromatic()), nb(singleOrArom, heavyAny), nb(singleOrArom, heavyAliphatic))
	}},
	{"N8", -0.4458, func(m *Molecule, i int) bool {
		return !m.atoms[i].Aromatic && charge(m, i, 0) &&
			m.hasNeighbors(i, -1, nb(singleOrArom, aromatic()), nb(singleOrArom, aromatic()), nb(singleOrArom, aromatic()))
	}},
	{"N9", 0.01508, func(m *Molecule, i int) bool {
		return !m.atoms[i].Aromatic && charge(m, i, 0) && m.hasNeighbors(i, -1, nb(tripleBond, heavyAliphatic))
	}},
	{"N10", -1.95, func(m *Molecule, i int) bool {
		h := m.hydrogenCount(i)
		return !m.atoms[i].Aromatic && h >= 1 && h <= 3 && charge(m, i, positive...)
	}},
	{"N11", -0.3239, func(m *Molecule, i int) bool { return m.atoms[i].Aromatic && charge(m, i, 0) }},
	{"N12", -1.119, func(m *Molecule, i int) bool { return m.atoms[i].Aromatic && charge(m, i, positive...) }},
	{"N13", -0.3396, func(m *Molecule, i int) bool {
		return !m.atoms[i].Aromatic && hs(m, i, 0) && charge(m, i, positive...) &&
			m.hasNeighbors(i, -1, nb(singleOrArom, heavyAliphatic), nb(singleOrArom, heavyAliphatic), nb(singleOrArom, heavyAliphatic), nb(singleOrArom, heavyAliphatic))
	}},
	{"N13", -0.3396, func(m *Molecule, i int) bool {
		return !m.atoms[i].Aromatic && hs(m, i, 0) && charge(m, i, positive...) &&
			m.hasNeighbors(i, -1, nb(doubleBond, heavyAliphatic), nb(singleOrArom, heavyAliphatic), nb(singleOrArom, heavyAny))
	}},
	{"N13", -0.3396, func(m *Molecule, i int) bool {
		return !m.atoms[i].Aromatic && hs(m, i, 0) && charge(m, i, positive...) &&
			m.hasNeighbors(i, -1, nb(doubleBond, ofElement(6)), nb(doubleBond, ofElement(7)))
	}},
	{"N14", 0.2887, func(m *Molecule, i int) bool {
		return !m.atoms[i].Aromatic && charge(m, i, positive...) && m.hasNeighbors(i, -1, nb(tripleBond, heavyAliphatic))
	}},
	{"N14", 0.2887, func(m *Molecule, i int) bool { return !m.atoms[i].Aromatic && charge(m, i, -1, -2, -3) }},
	{"N14", 0.2887, func(m *Molecule, i int) bool {
		anion := func(m *Molecule, j int) bool { return !m.atoms[j].Aromatic && charge(m, j, -1, -2, -3) }
		return !m.atoms[i].Aromatic && charge(m, i, positive...) &&
			m.hasNeighbors(i, -1, nb(doubleBond, both(ofElement(7), anion)), nb(doubleBond, aliphatic(7)))
	}},
	{"NS", -0.4806, func(*Molecule, int) bool { return true }},
}

// carbonylCarbon runs then on an aliphatic carbon double bonded to oxygen i.
func carbonylCarbon(m *Molecule, i int, then func(c int) bool) bool {
	return m.anyNeighbor(i, doubleBond, aliphaticC, then)
}

var oxygenRules = []crippenRule{
	{"O1", 0.1552, func(m *Molecule, i int) bool { return m.atoms[i].Aromatic }},
	{"O2", -0.2893, func(m *Molecule, i int) bool { h := m.hydrogenCount(i); return h == 1 || h == 2 }},
	{"O3", -0.0684, func(m *Molecule, i int) bool {
		return m.hasNeighbors(i, -1, nb(singleOrArom, heavyAliphatic), nb(singleOrArom, heavyAliphatic))
	}},
	{"O4", -0.4195, func(m *Molecule, i int) bool {
		return m.hasNeighbors(i, -1, nb(singleOrArom, aromatic()), nb(singleOrArom, heavyAny))
	}},
	{"O5", 0.0335, func(m *Molecule, i int) bool { return m.hasNeighbors(i, -1, nb(doubleBond, ofElement(7, 8))) }},
	{"O5", 0.0335, func(m *Molecule, i int) bool {
		return m.connectivity(i) == 1 && charge(m, i, -1) && m.hasNeighbors(i, -1, nb(anyBond, ofElement(7)))
	}},
	{"O6", -0.3339, func(m *Molecule, i int) bool {
		return m.connectivity(i) == 1 && charge(m, i, -1) && m.hasNeighbors(i, -1, nb(anyBond, ofElement(16)))
	}},
	{"O6", -0.3339, func(m *Molecule, i int) bool {
		neutralS := func(m *Molecule, j int) bool { return m.atoms[j].AtomicNum == 16 && m.atoms[j].Charge == 0 }
		return charge(m, i, 0) && m.hasNeighbors(i, -1, nb(doubleBond, neutralS))
	}},
	{"O12", -1.326, func(m *Molecule, i int) bool {
		return charge(m, i, -1) && m.anyNeighbor(i, singleOrArom, aliphaticC, func(c int) bool {
			return m.hasNeighbors(c, i, nb(doubleBond, aliphatic(8)))
		})
	}},
	{"O7", -1.189, func(m *Molecule, i int) bool {
		return m.connectivity(i) == 1 && charge(m, i, -1) && !m.hasNeighbors(i, -1, nb(anyBond, ofElement(7, 16)))
	}},
	{"O8", 0.1788, func(m *Molecule, i int) bool { return m.hasNeighbors(i, -1, nb(doubleBond, aromaticC)) }},
	{"O9", -0.1526, func(m *Molecule, i int) bool {
		return carbonylCarbon(m, i, func(c int) bool {
			return hs(m, c, 1) && m.hasNeighbors(c, i, nb(singleOrArom, aliphaticC))
		})
	}},
	{"O9", -0.1526, func(m *Molecule, i int) bool {
		return carbonylCarbon(m, i, func(c int) bool {
			return m.hasNeighbors(c, i, nb(singleOrArom, aliphaticC), nb(singleOrArom, heavyAliphatic))
		})
	}},
	{"O9", -0.1526, func(m *Molecule, i int) bool {
		return carbonylCarbon(m, i, func(c int) bool { return hs(m, c, 2) })
	}},
	{"O9", -0.1526, func(m *Molecule, i int) bool {
		return carbonylCarbon(m, i, func(c int) bool {
			return m.connectivity(c) == 2 && m.hasNeighbors(c, i, nb(doubleBond, aliphatic(8)))
		})
	}},
	{"O10", 0.1129, func(m *Molecule, i int) bool {
		return carbonylCarbon(m, i, func(c int) bool {
			return hs(m, c, 1) && m.hasNeighbors(c, i, nb(singleOrArom, aromaticC))
		})
	}},
	{"O10", 0.1129, func(m *Molecule, i int) bool {
		return carbonylCarbon(m, i, func(c int) bool {
			return m.hasNeighbors(c, i, nb(singleOrArom, ofElement(6)), nb(singleOrArom, heavyAromatic))
		})
	}},
	{"O10", 0.1129, func(m *Molecule, i int) bool {
		return carbonylCarbon(m, i, func(c int) bool {
			return m.hasNeighbors(c, i, nb(singleOrArom, aromaticC), nb(singleOrArom, heavyAliphatic))
		})
	}},
	{"O11", 0.4833, func(m *Molecule, i int) bool {
		return carbonylCarbon(m, i, func(c int) bool {
			nonCarbon := notElement(1, 6)
			return m.hasNeighbors(c, i, nb(singleOrArom, nonCarbon), nb(singleOrArom, nonCarbon))
		})
	}},
	{"OS", -0.1188, func(*Molecule, int) bool { return true }},
}

var otherRules = []crippenRule{
	{"F", 0.4202, func(m *Molecule, i int) bool { return m.atoms[i].AtomicNum == 9 && charge(m, i, 0) }},
	{"Cl", 0.6895, func(m *Molecule, i int) bool { return m.atoms[i].AtomicNum == 17 && charge(m, i, 0) }},
	{"Br", 0.8456, func(m *Molecule, i int) bool { return m.atoms[i].AtomicNum == 35 && charge(m, i, 0) }},
	{"I", 0.8857, func(m *Molecule, i int) bool { return m.atoms[i].AtomicNum == 53 && charge(m, i, 0) }},
	{"Hal", -2.996, func(m *Molecule, i int) bool {
		return inSet(m.atoms[i].AtomicNum, []int{9, 17, 35, 53}) && m.atoms[i].Charge < 0
	}},
	{"Hal", -2.996, func(m *Molecule, i int) bool { return m.atoms[i].AtomicNum == 53 && charge(m, i, positive...) }},
	{"Hal", -2.996, func(m *Molecule, i int) bool {
		return inSet(m.atoms[i].AtomicNum, []int{3, 11, 19, 37, 55}) && charge(m, i, 1)
	}},
	{"P", 0.8612, func(m *Molecule, i int) bool { return m.atoms[i].AtomicNum == 15 }},
	{"S1", 0.6482, func(m *Molecule, i int) bool {
		return m.atoms[i].AtomicNum == 16 && !m.atoms[i].Aromatic && charge(m, i, 0)
	}},
	{"S2", -0.0024, func(m *Molecule, i int) bool {
		return m.atoms[i].AtomicNum == 16 && !m.atoms[i].Aromatic && charge(m, i, -4, -3, -2, -1, 1, 2, 3, 5, 6)
	}},
	{"S3", 0.6237, func(m *Molecule, i int) bool { return m.atoms[i].AtomicNum == 16 && m.atoms[i].Aromatic }},
	{"Me1", -0.3808, func(m *Molecule, i int) bool {
		return inSet(m.atoms[i].AtomicNum, []int{3, 11, 19, 37, 55, 4, 12, 20, 38, 56, 5, 13, 31, 49, 81, 14, 32, 50, 82, 33, 51, 83, 34, 52, 84})
	}},
	{"Me2", -0.0025, func(m *Molecule, i int) bool {
		z := m.atoms[i].AtomicNum
		return (z >= 21 && z <= 30) || (z >= 39 && z <= 48) || (z >= 57 && z <= 80)
	}},
}

// hydrogenRule types one hydrogen bonded to host; self is the hydrogen's
// graph index, or -1 for an implicit hydrogen.
type hydrogenRule struct {
	typ   string
	logP  float64
	match func(m *Molecule, host int, self int) bool
}

// hydroxylPartner runs then on each neighbour of the aliphatic oxygen host
// other than the hydrogen being typed (self is its graph index, or -1 when it
// is implicit). A second hydrogen on host is offered to then as -1.
func hydroxylPartner(m *Molecule, host, self int, then func(j int) bool) bool {
	a := &m.atoms[host]
	if a.AtomicNum != 8 || a.Aromatic {
		return false
	}
	for _, n := range m.adj[host] {
		if n.atom != self && singleOrArom(m.bonds[n.bond].Order) && then(n.atom) {
			return true
		}
	}
	others := m.hydrogenCount(host) - 1
	return others > 0 && then(-1)
}

func isZ(m *Molecule, j int, zs ...int) bool {
	if j < 0 {
		return inSet(1, zs)
	}
	return inSet(m.atoms[j].AtomicNum, zs)
}

var hydrogenRules = []hydrogenRule{
	{"H1", 0.123, func(m *Molecule, host, _ int) bool { return isZ(m, host, 6, 1) }},
	{"H2", -0.2677, func(m *Molecule, host, self int) bool {
		return hydroxylPartner(m, host, self, func(j int) bool {
			return j >= 0 && aliphaticC(m, j) && m.connectivity(j) == 4
		})
	}},
	{"H2", -0.2677, func(m *Molecule, host, self int) bool {
		return hydroxylPartner(m, host, self, func(j int) bool { return j >= 0 && aromaticC(m, j) })
	}},
	{"H2", -0.2677, func(m *Molecule, host, self int) bool {
		return hydroxylPartner(m, host, self, func(j int) bool { return !isZ(m, j, 6, 7, 8, 16) })
	}},
	{"H2", -0.2677, func(m *Molecule, host, _ int) bool { return !isZ(m, host, 6, 7, 8) }},
	{"H3", 0.2142, func(m *Molecule, host, _ int) bool { return isZ(m, host, 7) }},
	{"H3", 0.2142, func(m *Molecule, host, self int) bool {
		return hydroxylPartner(m, host, self, func(j int) bool { return isZ(m, j, 7) })
	}},
	{"H4", 0.298, func(m *Molecule, host, self int) bool {
		return hydroxylPartner(m, host, self, func(j int) bool {
			return j >= 0 && aliphaticC(m, j) && m.hasNeighbors(j, host, nb(doubleBond, ofElement(6, 7)))
		})
	}},
	{"H4", 0.298, func(m *Molecule, host, self int) bool {
		return hydroxylPartner(m, host, self, func(j int) bool {
			return j >= 0 && aliphaticC(m, j) && m.hasNeighbors(j, host, nb(doubleBond, aliphatic(8, 16)))
		})
	}},
	{"H4", 0.298, func(m *Molecule, host, self int) bool {
		return hydroxylPartner(m, host, self, func(j int) bool { return j >= 0 && aliphatic(8, 16)(m, j) })
	}},
	{"HS", 0.1125, func(*Molecule, int, int) bool { return true }},
}

// CrippenContribution is the logP share of one atom and its hydrogens.
type CrippenContribution struct {
	Type      string
	LogP      float64
	Hydrogens []string
}

func rulesFor(a *Atom) []crippenRule {
	switch a.AtomicNum {
	case 6:
		if a.Aromatic {
			return aromaticCarbonRules
		}
		return carbonRules
	case 7:
		return nitrogenRules
	case 8:
		return oxygenRules
	}
	return otherRules
}

func (m *Molecule) heavyType(i int) (string, float64) {
	for _, r := range rulesFor(&m.atoms[i]) {
		if r.match(m, i) {
			return r.typ, r.logP
		}
	}
	if m.atoms[i].AtomicNum == 6 {
		return "CS", 0.08129
	}
	return "", 0
}

func (m *Molecule) hydrogenType(host, self int) (string, float64) {
	for _, r := range hydrogenRules {
		if r.match(m, host, self) {
			return r.typ, r.logP
		}
	}
	return "HS", 0.1125
}

// CrippenContributions types every graph atom of m. Graph hydrogens are
// typed through their neighbour and carry an empty Type of their own.
func CrippenContributions(m *Molecule) []CrippenContribution {
	out := make([]CrippenContribution, len(m.atoms))
	for i := range m.atoms {
		a := &m.atoms[i]
		c := &out[i]
		switch {
		case a.AtomicNum == 1 && len(m.adj[i]) == 1:
			t, v := m.hydrogenType(m.adj[i][0].atom, i)
			c.Hydrogens = append(c.Hydrogens, t)
			c.LogP += v
		case a.AtomicNum == 1:
			c.Hydrogens = append(c.Hydrogens, "HS")
			c.LogP += 0.1125
		default:
			c.Type, c.LogP = m.heavyType(i)
		}
		for h := 0; h < a.TotalHs(); h++ {
			t, v := m.hydrogenType(i, -1)
			c.Hydrogens = append(c.Hydrogens, t)
			c.LogP += v
		}
	}
	return out
}

// CrippenLogP returns the Wildman-Crippen logP estimate for m.
func CrippenLogP(m *Molecule) float64 {
	var total float64
	for _, c := range CrippenContributions(m) {
		total += c.LogP
	}
	return total
}
