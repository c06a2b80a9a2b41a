// Package molecule holds the molecular-graph model used by the potency
// pipeline: a SMILES reader, ring perception, circular (Morgan) fingerprints
// and atom-contribution descriptors.
package molecule

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/turtacn/AntiMalaria-Intelligence/pkg/errors"
)

// BondOrder is the multiplicity of a bond. Aromatic bonds carry their own
// value so fingerprints can tell them apart from alternating single/double.
type BondOrder int

const (
	BondSingle    BondOrder = 1
	BondDouble    BondOrder = 2
	BondTriple    BondOrder = 3
	BondQuadruple BondOrder = 4
	BondAromatic  BondOrder = 12
)

// valenceContribution is the bond's contribution to explicit valence. An
// aromatic bond counts as one; the shared pi electron is accounted for per atom.
func (o BondOrder) valenceContribution() int {
	if o == BondAromatic {
		return 1
	}
	return int(o)
}

// Atom is a heavy atom (or an unfoldable explicit hydrogen) of a Molecule.
type Atom struct {
	Index     int
	Symbol    string
	AtomicNum int
	Aromatic  bool
	Charge    int
	Isotope   int
	Bracket   bool
	Chirality string
	Class     int

	explicitH int
	implicitH int
}

// TotalHs is the number of hydrogens attached to the atom, bracket-declared
// and implicit combined.
func (a *Atom) TotalHs() int { return a.explicitH + a.implicitH }

// Bond joins two atoms by index.
type Bond struct {
	Index  int
	Begin  int
	End    int
	Order  BondOrder
	inRing bool
}

// InRing reports whether the bond is part of at least one cycle.
func (b *Bond) InRing() bool { return b.inRing }

// Other returns the atom at the opposite end from idx.
func (b *Bond) Other(idx int) int {
	if b.Begin == idx {
		return b.End
	}
	return b.Begin
}

type neighbor struct {
	atom int
	bond int
}

// Molecule is an immutable molecular graph built by ParseSMILES.
type Molecule struct {
	smiles string
	atoms  []Atom
	bonds  []Bond
	adj    [][]neighbor
	inRing []bool
}

// SMILES returns the string the molecule was read from.
func (m *Molecule) SMILES() string { return m.smiles }

// NumAtoms returns the number of graph atoms (hydrogens folded into their
// heavy neighbours are not counted).
func (m *Molecule) NumAtoms() int { return len(m.atoms) }

// NumBonds returns the number of graph bonds.
func (m *Molecule) NumBonds() int { return len(m.bonds) }

// Atom returns the atom at idx.
func (m *Molecule) Atom(idx int) *Atom { return &m.atoms[idx] }

// Bond returns the bond at idx.
func (m *Molecule) Bond(idx int) *Bond { return &m.bonds[idx] }

// Degree is the number of explicit graph neighbours of atom idx.
func (m *Molecule) Degree(idx int) int { return len(m.adj[idx]) }

// AtomInRing reports whether atom idx has at least one ring bond.
func (m *Molecule) AtomInRing(idx int) bool { return m.inRing[idx] }

// Neighbors calls fn for every neighbour of atom idx with the joining bond.
func (m *Molecule) Neighbors(idx int, fn func(nbr *Atom, bond *Bond)) {
	for _, n := range m.adj[idx] {
		fn(&m.atoms[n.atom], &m.bonds[n.bond])
	}
}

// HeavyAtomCount returns the number of non-hydrogen atoms.
func (m *Molecule) HeavyAtomCount() int {
	n := 0
	for i := range m.atoms {
		if m.atoms[i].AtomicNum != 1 {
			n++
		}
	}
	return n
}

// ─────────────────────────────────────────────────────────────────────────────
// Reader
// ─────────────────────────────────────────────────────────────────────────────

// ParseSMILES reads a SMILES string into a Molecule. It accepts the OpenSMILES
// grammar: organic-subset and bracket atoms, isotopes, charges, hydrogen
// counts, atom classes, chirality marks, bond symbols, branches, ring
// closures (including %nn) and dot-disconnected components. The graph is
// then sanitised: explicit hydrogens are folded into their heavy neighbour,
// rings are perceived, implicit hydrogens are assigned, valences are checked
// and aromatic atoms outside rings are rejected.
//
// All failures carry errors.ErrCodeMoleculeInvalidSMILES.
func ParseSMILES(smiles string) (*Molecule, error) {
	s := strings.TrimSpace(smiles)
	if s == "" {
		return nil, invalid(smiles, "empty input")
	}
	p := &parser{src: s, prev: -1, rings: make(map[int]ringOpen)}
	if err := p.run(); err != nil {
		return nil, invalid(smiles, err.Error())
	}
	m := p.build()
	m.smiles = s
	if err := m.sanitize(); err != nil {
		return nil, invalid(smiles, err.Error())
	}
	return m, nil
}

// IsValidSMILES reports whether ParseSMILES accepts s.
func IsValidSMILES(s string) bool {
	_, err := ParseSMILES(s)
	return err == nil
}

func invalid(smiles, reason string) error {
	return errors.New(errors.ErrCodeMoleculeInvalidSMILES, "invalid SMILES").
		WithDetail(fmt.Sprintf("%q: %s", smiles, reason))
}

type ringOpen struct {
	atom     int
	order    BondOrder
	explicit bool
}

type parser struct {
	src   string
	pos   int
	atoms []Atom
	bonds []Bond

	prev     int
	branches []int
	rings    map[int]ringOpen

	pending    BondOrder
	hasPending bool
}

func (p *parser) run() error {
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == '(':
			if p.prev < 0 {
				return fmt.Errorf("branch opened before any atom at position %d", p.pos)
			}
			if p.hasPending {
				return fmt.Errorf("bond symbol before branch at position %d", p.pos)
			}
			p.branches = append(p.branches, p.prev)
			p.pos++
		case c == ')':
			if len(p.branches) == 0 {
				return fmt.Errorf("unmatched ')' at position %d", p.pos)
			}
			if p.hasPending {
				return fmt.Errorf("dangling bond at position %d", p.pos)
			}
			if p.pos > 0 && p.src[p.pos-1] == '(' {
				return fmt.Errorf("empty branch at position %d", p.pos)
			}
			p.prev = p.branches[len(p.branches)-1]
			p.branches = p.branches[:len(p.branches)-1]
			p.pos++
		case strings.IndexByte("-=#$:/\\", c) >= 0:
			if p.hasPending {
				return fmt.Errorf("consecutive bond symbols at position %d", p.pos)
			}
			if p.prev < 0 {
				return fmt.Errorf("bond symbol without preceding atom at position %d", p.pos)
			}
			p.pending, p.hasPending = bondFromSymbol(c), true
			p.pos++
		case c == '.':
			if p.hasPending || p.prev < 0 {
				return fmt.Errorf("misplaced '.' at position %d", p.pos)
			}
			if len(p.branches) > 0 {
				return fmt.Errorf("'.' inside branch at position %d", p.pos)
			}
			p.prev = -1
			p.pos++
		case c >= '0' && c <= '9' || c == '%':
			if err := p.ringClosure(); err != nil {
				return err
			}
		case c == '[':
			a, err := p.bracketAtom()
			if err != nil {
				return err
			}
			if err := p.addAtom(a); err != nil {
				return err
			}
		default:
			a, err := p.organicAtom()
			if err != nil {
				return err
			}
			if err := p.addAtom(a); err != nil {
				return err
			}
		}
	}

	switch {
	case len(p.atoms) == 0:
		return fmt.Errorf("no atoms")
	case p.hasPending:
		return fmt.Errorf("dangling bond at end of input")
	case len(p.branches) > 0:
		return fmt.Errorf("unclosed branch")
	case len(p.rings) > 0:
		for n := range p.rings {
			return fmt.Errorf("unclosed ring %d", n)
		}
	}
	return nil
}

func bondFromSymbol(c byte) BondOrder {
	switch c {
	case '=':
		return BondDouble
	case '#':
		return BondTriple
	case '$':
		return BondQuadruple
	case ':':
		return BondAromatic
	default:
		return BondSingle
	}
}

func (p *parser) addAtom(a Atom) error {
	a.Index = len(p.atoms)
	p.atoms = append(p.atoms, a)
	if p.prev >= 0 {
		if err := p.addBond(p.prev, a.Index, p.pending, p.hasPending); err != nil {
			return err
		}
	}
	p.hasPending = false
	p.prev = a.Index
	return nil
}

func (p *parser) addBond(a, b int, order BondOrder, explicit bool) error {
	if a == b {
		return fmt.Errorf("atom %d bonded to itself", a)
	}
	for _, bd := range p.bonds {
		if (bd.Begin == a && bd.End == b) || (bd.Begin == b && bd.End == a) {
			return fmt.Errorf("duplicate bond between atoms %d and %d", a, b)
		}
	}
	if !explicit {
		order = BondSingle
		if p.atoms[a].Aromatic && p.atoms[b].Aromatic {
			order = BondAromatic
		}
	}
	p.bonds = append(p.bonds, Bond{Index: len(p.bonds), Begin: a, End: b, Order: order})
	return nil
}

func (p *parser) ringClosure() error {
	if p.prev < 0 {
		return fmt.Errorf("ring closure without preceding atom at position %d", p.pos)
	}
	var num int
	if p.src[p.pos] == '%' {
		if p.pos+2 >= len(p.src) || !isDigit(p.src[p.pos+1]) || !isDigit(p.src[p.pos+2]) {
			return fmt.Errorf("malformed %%nn ring number at position %d", p.pos)
		}
		num, _ = strconv.Atoi(p.src[p.pos+1 : p.pos+3])
		p.pos += 3
	} else {
		num = int(p.src[p.pos] - '0')
		p.pos++
	}

	order, explicit := p.pending, p.hasPending
	p.hasPending = false

	open, ok := p.rings[num]
	if !ok {
		p.rings[num] = ringOpen{atom: p.prev, order: order, explicit: explicit}
		return nil
	}
	delete(p.rings, num)
	if open.explicit && explicit && open.order != order {
		return fmt.Errorf("conflicting bond orders on ring closure %d", num)
	}
	if open.explicit && !explicit {
		order, explicit = open.order, true
	}
	return p.addBond(open.atom, p.prev, order, explicit)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (p *parser) organicAtom() (Atom, error) {
	rest := p.src[p.pos:]
	if rest[0] == '*' {
		p.pos++
		return Atom{Symbol: "*"}, nil
	}
	// Two-letter organic symbols first.
	if strings.HasPrefix(rest, "Cl") || strings.HasPrefix(rest, "Br") {
		e := elementBySymbol[rest[:2]]
		p.pos += 2
		return Atom{Symbol: e.Symbol, AtomicNum: e.Number}, nil
	}
	c := rest[0]
	if c >= 'a' && c <= 'z' {
		upper := strings.ToUpper(string(c))
		e, ok := elementBySymbol[upper]
		if !ok || !e.Organic || !e.Aromatic {
			return Atom{}, fmt.Errorf("unexpected character %q at position %d", c, p.pos)
		}
		p.pos++
		return Atom{Symbol: e.Symbol, AtomicNum: e.Number, Aromatic: true}, nil
	}
	e, ok := elementBySymbol[string(c)]
	if !ok || !e.Organic {
		return Atom{}, fmt.Errorf("unexpected character %q at position %d", c, p.pos)
	}
	p.pos++
	return Atom{Symbol: e.Symbol, AtomicNum: e.Number}, nil
}

func (p *parser) bracketAtom() (Atom, error) {
	start := p.pos
	end := strings.IndexByte(p.src[start:], ']')
	if end < 0 {
		return Atom{}, fmt.Errorf("unterminated bracket atom at position %d", start)
	}
	body := p.src[start+1 : start+end]
	p.pos = start + end + 1
	if body == "" {
		return Atom{}, fmt.Errorf("empty bracket atom at position %d", start)
	}

	a := Atom{Bracket: true}
	i := 0

	// isotope
	j := i
	for j < len(body) && isDigit(body[j]) {
		j++
	}
	if j > i {
		a.Isotope, _ = strconv.Atoi(body[i:j])
		i = j
	}

	// symbol
	if i >= len(body) {
		return Atom{}, fmt.Errorf("missing element in bracket atom at position %d", start)
	}
	switch {
	case body[i] == '*':
		a.Symbol = "*"
		i++
	case body[i] >= 'a' && body[i] <= 'z':
		matched := false
		for _, cand := range []string{"se", "as", "te", "b", "c", "n", "o", "p", "s"} {
			if strings.HasPrefix(body[i:], cand) {
				e := elementBySymbol[strings.ToUpper(cand[:1])+cand[1:]]
				a.Symbol, a.AtomicNum, a.Aromatic = e.Symbol, e.Number, true
				i += len(cand)
				matched = true
				break
			}
		}
		if !matched {
			return Atom{}, fmt.Errorf("unknown aromatic element in %q", body)
		}
	case body[i] >= 'A' && body[i] <= 'Z':
		sym := body[i : i+1]
		if i+1 < len(body) && body[i+1] >= 'a' && body[i+1] <= 'z' {
			if _, ok := elementBySymbol[body[i:i+2]]; ok {
				sym = body[i : i+2]
			}
		}
		e, ok := elementBySymbol[sym]
		if !ok {
			return Atom{}, fmt.Errorf("unknown element %q", sym)
		}
		a.Symbol, a.AtomicNum = e.Symbol, e.Number
		i += len(sym)
	default:
		return Atom{}, fmt.Errorf("malformed bracket atom %q", body)
	}

	// chirality
	if i < len(body) && body[i] == '@' {
		j := i
		for j < len(body) && body[j] == '@' {
			j++
		}
		if j < len(body) && (strings.HasPrefix(body[j:], "TH") || strings.HasPrefix(body[j:], "AL") ||
			strings.HasPrefix(body[j:], "SP") || strings.HasPrefix(body[j:], "TB") || strings.HasPrefix(body[j:], "OH")) {
			j += 2
			for j < len(body) && isDigit(body[j]) {
				j++
			}
		}
		a.Chirality = body[i:j]
		i = j
	}

	// hydrogen count
	if i < len(body) && body[i] == 'H' {
		i++
		a.explicitH = 1
		j := i
		for j < len(body) && isDigit(body[j]) {
			j++
		}
		if j > i {
			a.explicitH, _ = strconv.Atoi(body[i:j])
			i = j
		}
	}

	// charge
	if i < len(body) && (body[i] == '+' || body[i] == '-') {
		sign := 1
		if body[i] == '-' {
			sign = -1
		}
		ch := body[i]
		i++
		j := i
		for j < len(body) && isDigit(body[j]) {
			j++
		}
		switch {
		case j > i:
			n, _ := strconv.Atoi(body[i:j])
			a.Charge = sign * n
			i = j
		default:
			n := 1
			for i < len(body) && body[i] == ch {
				n++
				i++
			}
			a.Charge = sign * n
		}
	}

	// atom class
	if i < len(body) && body[i] == ':' {
		i++
		j := i
		for j < len(body) && isDigit(body[j]) {
			j++
		}
		if j == i {
			return Atom{}, fmt.Errorf("missing atom class in %q", body)
		}
		a.Class, _ = strconv.Atoi(body[i:j])
		i = j
	}

	if i != len(body) {
		return Atom{}, fmt.Errorf("unexpected %q in bracket atom %q", body[i:], body)
	}
	return a, nil
}

// build folds removable explicit hydrogens into their neighbours and returns
// the re-indexed graph.
func (p *parser) build() *Molecule {
	remove := make([]bool, len(p.atoms))
	degree := make([]int, len(p.atoms))
	for _, b := range p.bonds {
		degree[b.Begin]++
		degree[b.End]++
	}
	for _, b := range p.bonds {
		for _, pair := range [][2]int{{b.Begin, b.End}, {b.End, b.Begin}} {
			h, heavy := pair[0], pair[1]
			ha := &p.atoms[h]
			if ha.AtomicNum == 1 && ha.Isotope == 0 && ha.Charge == 0 && ha.explicitH == 0 &&
				degree[h] == 1 && b.Order == BondSingle && p.atoms[heavy].AtomicNum != 1 {
				remove[h] = true
				p.atoms[heavy].explicitH++
			}
		}
	}

	newIdx := make([]int, len(p.atoms))
	m := &Molecule{}
	for i, a := range p.atoms {
		if remove[i] {
			newIdx[i] = -1
			continue
		}
		newIdx[i] = len(m.atoms)
		a.Index = len(m.atoms)
		m.atoms = append(m.atoms, a)
	}
	for _, b := range p.bonds {
		if remove[b.Begin] || remove[b.End] {
			continue
		}
		b.Begin, b.End = newIdx[b.Begin], newIdx[b.End]
		b.Index = len(m.bonds)
		m.bonds = append(m.bonds, b)
	}
	// Hydrogens folded into a non-bracket atom are recomputed as implicit.
	for i := range m.atoms {
		if !m.atoms[i].Bracket {
			m.atoms[i].explicitH = 0
		}
	}

	m.adj = make([][]neighbor, len(m.atoms))
	for _, b := range m.bonds {
		m.adj[b.Begin] = append(m.adj[b.Begin], neighbor{atom: b.End, bond: b.Index})
		m.adj[b.End] = append(m.adj[b.End], neighbor{atom: b.Begin, bond: b.Index})
	}
	return m
}

func (m *Molecule) sanitize() error {
	m.perceiveRings()
	// An implicit link between two aromatic atoms outside any ring, as in
	// c1ccccc1c1ccccc1, is a single bond.
	for i := range m.bonds {
		if b := &m.bonds[i]; b.Order == BondAromatic && !b.inRing {
			b.Order = BondSingle
		}
	}
	for i := range m.atoms {
		a := &m.atoms[i]
		if a.Aromatic && !m.inRing[i] {
			return fmt.Errorf("non-ring atom %d marked aromatic", i)
		}
		explicit, aromaticBonds, exoDouble := m.explicitValence(i)
		if !a.Bracket {
			a.implicitH = m.implicitHydrogens(a, explicit, exoDouble)
		}
		allowed := allowedValences(a.AtomicNum, a.Charge)
		if allowed == nil {
			continue
		}
		total := explicit + a.TotalHs()
		if a.Aromatic && a.AtomicNum == 6 && !exoDouble && aromaticBonds > 0 {
			total++
		}
		if total > allowed[len(allowed)-1] {
			return fmt.Errorf("explicit valence for atom %d %s, %d, is greater than permitted", i, a.Symbol, total)
		}
	}
	return nil
}

// explicitValence sums bond contributions at atom idx and reports how many
// bonds are aromatic and whether a double bond leaves the aromatic system.
func (m *Molecule) explicitValence(idx int) (sum, aromatic int, exoDouble bool) {
	for _, n := range m.adj[idx] {
		b := &m.bonds[n.bond]
		sum += b.Order.valenceContribution()
		if b.Order == BondAromatic {
			aromatic++
		}
		if b.Order == BondDouble {
			exoDouble = true
		}
	}
	return sum, aromatic, exoDouble
}

func (m *Molecule) implicitHydrogens(a *Atom, explicit int, exoDouble bool) int {
	if a.AtomicNum == 0 {
		return 0
	}
	allowed := allowedValences(a.AtomicNum, a.Charge)
	if allowed == nil {
		return 0
	}
	if a.Aromatic {
		// One valence unit is taken by the delocalised system.
		target := allowed[0] - 1
		if exoDouble {
			target = allowed[0]
		}
		if h := target - explicit; h > 0 {
			return h
		}
		return 0
	}
	for _, v := range allowed {
		if v >= explicit {
			return v - explicit
		}
	}
	return 0
}

// perceiveRings marks every bond that is not a bridge as a ring bond, using
// an iterative Tarjan low-link traversal.
func (m *Molecule) perceiveRings() {
	n := len(m.atoms)
	m.inRing = make([]bool, n)
	disc := make([]int, n)
	low := make([]int, n)
	for i := range disc {
		disc[i] = -1
	}
	timer := 0

	type frame struct {
		atom, parentBond, next int
	}
	for root := 0; root < n; root++ {
		if disc[root] >= 0 {
			continue
		}
		stack := []frame{{atom: root, parentBond: -1}}
		disc[root], low[root] = timer, timer
		timer++
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(m.adj[top.atom]) {
				nb := m.adj[top.atom][top.next]
				top.next++
				if nb.bond == top.parentBond {
					continue
				}
				if disc[nb.atom] < 0 {
					disc[nb.atom], low[nb.atom] = timer, timer
					timer++
					stack = append(stack, frame{atom: nb.atom, parentBond: nb.bond})
				} else if disc[nb.atom] < low[top.atom] {
					low[top.atom] = disc[nb.atom]
				}
				continue
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				break
			}
			parent := &stack[len(stack)-1]
			if low[top.atom] < low[parent.atom] {
				low[parent.atom] = low[top.atom]
			}
			if low[top.atom] <= disc[parent.atom] {
				m.bonds[top.parentBond].inRing = true
			}
		}
	}
	for _, b := range m.bonds {
		if b.inRing {
			m.inRing[b.Begin] = true
			m.inRing[b.End] = true
		}
	}
}
