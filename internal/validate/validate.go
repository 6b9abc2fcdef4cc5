// Package validate performs field-level semantic checks (integers, dates,
// enumerations, booleans) on rows that already have the expected shape.
//
// It never repairs values. A failing row is reported to the caller, which
// routes it to the rejected sink.
package validate

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const defaultDateLayout = "02/01/2006"

var (
	defaultTruthy = map[string]struct{}{"1": {}, "t": {}, "true": {}, "yes": {}, "y": {}, "oui": {}, "o": {}}
	defaultFalsy  = map[string]struct{}{"0": {}, "f": {}, "false": {}, "no": {}, "n": {}, "non": {}}
)

// FieldError describes the first failing column of a row.
type FieldError struct {
	Column string
	Value  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %q %s", e.Column, e.Value, e.Reason)
}

// fieldMeta is a contract field bound to a column position.
type fieldMeta struct {
	name     string
	index    int
	kind     string
	nullable bool

	layouts      []string
	minYear      int
	maxYear      int
	twoDigitYear bool

	enumSet   map[string]struct{}
	truthySet map[string]struct{}
	falsySet  map[string]struct{}
}

// Validator checks rows of one file against a Contract.
type Validator struct {
	contract string
	meta     []fieldMeta
}

// New binds c to the columns of header. Header names are matched case
// insensitively after trimming. A required field that is absent from the
// header is an error; an absent optional field is skipped.
func New(c Contract, header []string) (*Validator, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		k := strings.ToLower(strings.TrimSpace(h))
		if k == "" {
			continue
		}
		if _, dup := pos[k]; !dup {
			pos[k] = i
		}
	}

	v := &Validator{contract: c.Name}
	var missing []string
	for _, f := range c.Fields {
		idx, ok := pos[strings.ToLower(strings.TrimSpace(f.Name))]
		if !ok {
			if f.Required {
				missing = append(missing, f.Name)
			}
			continue
		}
		m := fieldMeta{
			name:         f.Name,
			index:        idx,
			kind:         normalizeKind(f.Type),
			nullable:     f.Nullable,
			layouts:      f.Layouts,
			minYear:      f.MinYear,
			maxYear:      f.MaxYear,
			twoDigitYear: f.TwoDigitYear,
		}
		if len(m.layouts) == 0 {
			m.layouts = []string{defaultDateLayout}
		}
		if len(f.Enum) > 0 {
			m.enumSet = toSet(f.Enum, false)
			if m.kind == "text" {
				m.kind = "enum"
			}
		}
		if len(f.Truthy) > 0 {
			m.truthySet = toSet(f.Truthy, true)
		}
		if len(f.Falsy) > 0 {
			m.falsySet = toSet(f.Falsy, true)
		}
		v.meta = append(v.meta, m)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("validate: contract %q: header lacks required columns %s", c.Name, strings.Join(missing, ", "))
	}
	return v, nil
}

// Contract is the name of the bound contract.
func (v *Validator) Contract() string { return v.contract }

// Check validates one row and returns a *FieldError for the first failing
// column, or nil.
func (v *Validator) Check(fields []string) error {
	for i := range v.meta {
		fm := &v.meta[i]
		if fm.index >= len(fields) {
			return &FieldError{Column: fm.name, Reason: "column missing from row"}
		}
		raw := fields[fm.index]
		s := strings.TrimSpace(raw)
		if s == "" {
			if fm.nullable {
				continue
			}
			return &FieldError{Column: fm.name, Value: raw, Reason: "must not be empty"}
		}
		if reason := fm.check(s); reason != "" {
			return &FieldError{Column: fm.name, Value: raw, Reason: reason}
		}
	}
	return nil
}

func (fm *fieldMeta) check(s string) string {
	switch fm.kind {
	case "int":
		if _, err := strconv.ParseInt(s, 10, 64); err != nil {
			return "is not an integer"
		}
	case "bool":
		if !isBool(strings.ToLower(s), fm.truthySet, fm.falsySet) {
			return "is not a recognized boolean"
		}
	case "enum":
		if _, ok := fm.enumSet[s]; !ok {
			return "is not an allowed value"
		}
	case "date":
		return fm.checkDate(s)
	}
	return ""
}

func (fm *fieldMeta) checkDate(s string) string {
	if fm.twoDigitYear {
		s = ExpandTwoDigitYear(s)
	}
	var (
		t   time.Time
		err error
	)
	for _, layout := range fm.layouts {
		if t, err = time.Parse(layout, s); err == nil {
			break
		}
	}
	if err != nil {
		return "is not a valid date (" + strings.Join(fm.layouts, " | ") + ")"
	}
	y := t.Year()
	if fm.minYear != 0 && y <= fm.minYear {
		return fmt.Sprintf("year %d is not after %d", y, fm.minYear)
	}
	if fm.maxYear != 0 && y > fm.maxYear {
		return fmt.Sprintf("year %d is after %d", y, fm.maxYear)
	}
	return ""
}

// ExpandTwoDigitYear rewrites JJ/MM/AA into JJ/MM/AAAA (AA < 50 is 20AA,
// otherwise 19AA). Any other input is returned unchanged.
func ExpandTwoDigitYear(s string) string {
	parts := strings.Split(s, "/")
	if len(parts) != 3 || len(parts[2]) != 2 {
		return s
	}
	yy, err := strconv.Atoi(parts[2])
	if err != nil {
		return s
	}
	if yy < 50 {
		yy += 2000
	} else {
		yy += 1900
	}
	return parts[0] + "/" + parts[1] + "/" + strconv.Itoa(yy)
}

func isBool(s string, truthy, falsy map[string]struct{}) bool {
	if truthy == nil && falsy == nil {
		truthy, falsy = defaultTruthy, defaultFalsy
	}
	if _, ok := truthy[s]; ok {
		return true
	}
	_, ok := falsy[s]
	return ok
}

func toSet(vals []string, lower bool) map[string]struct{} {
	m := make(map[string]struct{}, len(vals))
	for _, s := range vals {
		if lower {
			s = strings.ToLower(s)
		}
		m[s] = struct{}{}
	}
	return m
}

// normalizeKind maps schema field types onto the small set of validator kinds.
//
//	"bigint", "int8", "integer" → "int"
//	"boolean"                    → "bool"
//	"date", "timestamp"          → "date"
//	"string", "str", ""          → "text"
func normalizeKind(t string) string {
	s := strings.ToLower(strings.TrimSpace(t))
	switch s {
	case "bigint", "int8", "integer", "int4", "int2", "int":
		return "int"
	case "boolean", "bool":
		return "bool"
	case "date", "timestamp":
		return "date"
	case "text", "string", "str", "":
		return "text"
	default:
		return s
	}
}
