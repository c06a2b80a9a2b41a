package prediction

// Category buckets a predicted pIC50 into a potency class.
type Category string

const (
	CategoryVeryStrong Category = "very strong"
	CategoryStrong     Category = "strong"
	CategoryModerate   Category = "moderate"
	CategoryWeak       Category = "weak"
	CategoryInactive   Category = "inactive"
)

// CategoryFor maps a pIC50 onto the category ladder. Lower bounds are
// exclusive: 6.0 is strong, anything above it very strong.
func CategoryFor(pic50 float64) Category {
	switch {
	case pic50 > 6:
		return CategoryVeryStrong
	case pic50 > 5:
		return CategoryStrong
	case pic50 > 4:
		return CategoryModerate
	case pic50 > 3:
		return CategoryWeak
	default:
		return CategoryInactive
	}
}

// String implements fmt.Stringer.
func (c Category) String() string { return string(c) }
