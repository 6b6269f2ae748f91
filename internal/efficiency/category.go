package efficiency

import "fmt"

// Category is one of the four fixed efficiency tiers
type Category int

const (
	Poor Category = iota
	Average
	Good
	Excellent
)

// Categories lists every tier, best first
var Categories = []Category{Excellent, Good, Average, Poor}

func (c Category) String() string {
	switch c {
	case Excellent:
		return "excellent"
	case Good:
		return "good"
	case Average:
		return "average"
	case Poor:
		return "poor"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// MarshalText lets categories key JSON objects by name
func (c Category) MarshalText() ([]byte, error) {
	switch c {
	case Excellent, Good, Average, Poor:
		return []byte(c.String()), nil
	}
	return nil, fmt.Errorf("unknown category %d", int(c))
}

// UnmarshalText parses a category name
func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCategory maps a tier name back to its Category
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if c.String() == s {
			return c, nil
		}
	}
	return Poor, fmt.Errorf("unknown category %q", s)
}
