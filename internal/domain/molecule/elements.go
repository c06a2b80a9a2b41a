package molecule

// element describes the periodic-table facts the SMILES reader and the
// descriptor calculators need.
type element struct {
	Symbol   string
	Number   int
	Mass     float64 // standard atomic weight
	Valences []int   // allowed neutral valences, ascending; nil means unchecked
	Organic  bool    // may appear outside brackets
	Aromatic bool    // may be written in lowercase
	MostMass int     // mass number of the most abundant isotope
}

var elements = []element{
	{"*", 0, 0, nil, false, false, 0},
	{"H", 1, 1.008, []int{1}, false, false, 1},
	{"He", 2, 4.003, []int{0}, false, false, 4},
	{"Li", 3, 6.94, []int{1}, false, false, 7},
	{"Be", 4, 9.012, []int{2}, false, false, 9},
	{"B", 5, 10.81, []int{3}, true, true, 11},
	{"C", 6, 12.011, []int{4}, true, true, 12},
	{"N", 7, 14.007, []int{3}, true, true, 14},
	{"O", 8, 15.999, []int{2}, true, true, 16},
	{"F", 9, 18.998, []int{1}, true, false, 19},
	{"Ne", 10, 20.180, []int{0}, false, false, 20},
	{"Na", 11, 22.990, []int{1}, false, false, 23},
	{"Mg", 12, 24.305, []int{2}, false, false, 24},
	{"Al", 13, 26.982, []int{3}, false, false, 27},
	{"Si", 14, 28.085, []int{4}, false, false, 28},
	{"P", 15, 30.974, []int{3, 5, 7}, true, true, 31},
	{"S", 16, 32.06, []int{2, 4, 6}, true, true, 32},
	{"Cl", 17, 35.45, []int{1}, true, false, 35},
	{"Ar", 18, 39.948, []int{0}, false, false, 40},
	{"K", 19, 39.098, []int{1}, false, false, 39},
	{"Ca", 20, 40.078, []int{2}, false, false, 40},
	{"Sc", 21, 44.956, nil, false, false, 45},
	{"Ti", 22, 47.867, nil, false, false, 48},
	{"V", 23, 50.942, nil, false, false, 51},
	{"Cr", 24, 51.996, nil, false, false, 52},
	{"Mn", 25, 54.938, nil, false, false, 55},
	{"Fe", 26, 55.845, nil, false, false, 56},
	{"Co", 27, 58.933, nil, false, false, 59},
	{"Ni", 28, 58.693, nil, false, false, 58},
	{"Cu", 29, 63.546, nil, false, false, 63},
	{"Zn", 30, 65.38, nil, false, false, 64},
	{"Ga", 31, 69.723, []int{3}, false, false, 69},
	{"Ge", 32, 72.630, []int{4}, false, false, 74},
	{"As", 33, 74.922, []int{3, 5, 7}, false, true, 75},
	{"Se", 34, 78.971, []int{2, 4, 6}, false, true, 80},
	{"Br", 35, 79.904, []int{1}, true, false, 79},
	{"Kr", 36, 83.798, []int{0}, false, false, 84},
	{"Rb", 37, 85.468, []int{1}, false, false, 85},
	{"Sr", 38, 87.62, []int{2}, false, false, 88},
	{"Y", 39, 88.906, nil, false, false, 89},
	{"Zr", 40, 91.224, nil, false, false, 90},
	{"Nb", 41, 92.906, nil, false, false, 93},
	{"Mo", 42, 95.95, nil, false, false, 98},
	{"Tc", 43, 98, nil, false, false, 98},
	{"Ru", 44, 101.07, nil, false, false, 102},
	{"Rh", 45, 102.906, nil, false, false, 103},
	{"Pd", 46, 106.42, nil, false, false, 106},
	{"Ag", 47, 107.868, nil, false, false, 107},
	{"Cd", 48, 112.414, nil, false, false, 114},
	{"In", 49, 114.818, nil, false, false, 115},
	{"Sn", 50, 118.710, nil, false, false, 120},
	{"Sb", 51, 121.760, []int{3, 5}, false, false, 121},
	{"Te", 52, 127.60, []int{2, 4, 6}, false, true, 130},
	{"I", 53, 126.904, []int{1, 3, 5}, true, false, 127},
	{"Xe", 54, 131.293, []int{0}, false, false, 132},
	{"Cs", 55, 132.905, []int{1}, false, false, 133},
	{"Ba", 56, 137.327, []int{2}, false, false, 138},
	{"La", 57, 138.905, nil, false, false, 139},
	{"Ce", 58, 140.116, nil, false, false, 140},
	{"Pr", 59, 140.908, nil, false, false, 141},
	{"Nd", 60, 144.242, nil, false, false, 142},
	{"Pm", 61, 145, nil, false, false, 145},
	{"Sm", 62, 150.36, nil, false, false, 152},
	{"Eu", 63, 151.964, nil, false, false, 153},
	{"Gd", 64, 157.25, nil, false, false, 158},
	{"Tb", 65, 158.925, nil, false, false, 159},
	{"Dy", 66, 162.500, nil, false, false, 164},
	{"Ho", 67, 164.930, nil, false, false, 165},
	{"Er", 68, 167.259, nil, false, false, 166},
	{"Tm", 69, 168.934, nil, false, false, 169},
	{"Yb", 70, 173.045, nil, false, false, 174},
	{"Lu", 71, 174.967, nil, false, false, 175},
	{"Hf", 72, 178.49, nil, false, false, 180},
	{"Ta", 73, 180.948, nil, false, false, 181},
	{"W", 74, 183.84, nil, false, false, 184},
	{"Re", 75, 186.207, nil, false, false, 187},
	{"Os", 76, 190.23, nil, false, false, 192},
	{"Ir", 77, 192.217, nil, false, false, 193},
	{"Pt", 78, 195.084, nil, false, false, 195},
	{"Au", 79, 196.967, nil, false, false, 197},
	{"Hg", 80, 200.592, nil, false, false, 202},
	{"Tl", 81, 204.38, nil, false, false, 205},
	{"Pb", 82, 207.2, nil, false, false, 208},
	{"Bi", 83, 208.980, nil, false, false, 209},
	{"Po", 84, 209, nil, false, false, 209},
	{"At", 85, 210, nil, false, false, 210},
	{"Rn", 86, 222, nil, false, false, 222},
}

var elementBySymbol = func() map[string]*element {
	m := make(map[string]*element, len(elements))
	for i := range elements {
		m[elements[i].Symbol] = &elements[i]
	}
	return m
}()

func elementByNumber(z int) *element {
	if z < 0 || z >= len(elements) {
		return nil
	}
	return &elements[z]
}

// allowedValences returns the neutral valence list of the isoelectronic
// element for a charged atom (N+ behaves like C, O- like F). nil means the
// atom's valence is not checked.
func allowedValences(z, charge int) []int {
	e := elementByNumber(z)
	if e == nil || e.Valences == nil {
		return nil
	}
	if charge == 0 {
		return e.Valences
	}
	iso := elementByNumber(z - charge)
	if iso == nil || iso.Valences == nil || period(iso.Number) != period(z) {
		return nil
	}
	return iso.Valences
}

func period(z int) int {
	switch {
	case z <= 2:
		return 1
	case z <= 10:
		return 2
	case z <= 18:
		return 3
	case z <= 36:
		return 4
	case z <= 54:
		return 5
	default:
		return 6
	}
}
