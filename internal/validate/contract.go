package validate

// Field describes one column of a Contract.
type Field struct {
	Name     string   `json:"name" yaml:"name"`
	Type     string   `json:"type" yaml:"type"` // "int" | "text" | "bool" | "date" | "enum"
	Required bool     `json:"required,omitempty" yaml:"required,omitempty"`
	Nullable bool     `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	Enum     []string `json:"enum,omitempty" yaml:"enum,omitempty"`
	Truthy   []string `json:"truthy,omitempty" yaml:"truthy,omitempty"`
	Falsy    []string `json:"falsy,omitempty" yaml:"falsy,omitempty"`

	// Layouts are Go time layouts tried in order; default "02/01/2006".
	Layouts []string `json:"layouts,omitempty" yaml:"layouts,omitempty"`
	// MinYear is exclusive, MaxYear inclusive. Zero disables the bound.
	MinYear int `json:"min_year,omitempty" yaml:"min_year,omitempty"`
	MaxYear int `json:"max_year,omitempty" yaml:"max_year,omitempty"`
	// TwoDigitYear accepts JJ/MM/AA, read as 20AA below 50 and 19AA otherwise.
	TwoDigitYear bool `json:"two_digit_year,omitempty" yaml:"two_digit_year,omitempty"`
}

// Contract is the set of field rules for one table.
type Contract struct {
	Name   string  `json:"name" yaml:"name"`
	Fields []Field `json:"fields" yaml:"fields"`
}
