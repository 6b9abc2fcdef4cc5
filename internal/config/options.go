package config

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"linemend/internal/repair"
	"linemend/internal/validate"
)

// Options is a free-form map with typed getters. Missing keys and values of
// an unexpected type yield the supplied default.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if s, ok := o[key].(string); ok {
		return s
	}
	return def
}

// Bool returns the bool value for key or def.
func (o Options) Bool(key string, def bool) bool {
	if b, ok := o[key].(bool); ok {
		return b
	}
	return def
}

// Int returns the int value for key or def. JSON decodes numbers as float64
// and YAML as int; both are accepted.
func (o Options) Int(key string, def int) int {
	switch n := o[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	}
	return def
}

// Rune returns the first rune of a string value for key, or def when the key
// is missing or empty. A literal `\t` selects a tab.
func (o Options) Rune(key string, def rune) rune {
	s, ok := o[key].(string)
	if !ok || s == "" {
		return def
	}
	if s == `\t` {
		return '\t'
	}
	return []rune(s)[0]
}

// StringSlice returns a []string for key, or nil.
func (o Options) StringSlice(key string) []string {
	switch vv := o[key].(type) {
	case []any:
		out := make([]string, 0, len(vv))
		for _, x := range vv {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return vv
	}
	return nil
}

// StringMap returns the string values of an object at key. Never nil.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if m, ok := o[key].(map[string]any); ok {
		for k, v := range m {
			if s, ok := v.(string); ok {
				res[k] = s
			}
		}
	}
	return res
}

// Any returns the raw value for key.
func (o Options) Any(key string) any { return o[key] }

// UnmarshalJSON makes a missing or null options object decode to an empty,
// non-nil map.
func (o *Options) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	var tmp map[string]any
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}

// Delimiter is the configured field delimiter.
func (j *Job) Delimiter() rune {
	return j.Parser.Options.Rune("delimiter", repair.DefaultDelimiter)
}

// Contract resolves the validation contract, or reports false when
// validation is off.
func (j *Job) Contract() (validate.Contract, bool, error) {
	if j.Validate.Contract != nil {
		return *j.Validate.Contract, true, nil
	}
	if j.Validate.Table == "" {
		return validate.Contract{}, false, nil
	}
	c, err := validate.Lookup(j.Validate.Table)
	if err != nil {
		return validate.Contract{}, false, err
	}
	return c, true, nil
}

// RepairOptions builds the options of one repair from the job.
func (j *Job) RepairOptions(logger logrus.FieldLogger) (repair.Options, error) {
	po := j.Parser.Options
	opts := repair.Options{
		Delimiter:        j.Delimiter(),
		Encoding:         po.String("encoding", "utf-8"),
		FallbackEncoding: po.String("fallback_encoding", ""),
		Strategy:         repair.Strategy(po.String("strategy", string(repair.StrategyMode))),
		ChunkSize:        po.Int("chunk_size", repair.DefaultChunkSize),
		JoinWith:         po.String("join_with", ""),
		MaxFragments:     po.Int("max_fragments", repair.DefaultMaxFragments),
		Logger:           logger,
	}

	c, ok, err := j.Contract()
	if err != nil {
		return opts, fmt.Errorf("validate: %w", err)
	}
	if ok {
		opts.NewValidator = func(header []string) (repair.RowValidator, error) {
			v, err := validate.New(c, header)
			if err != nil {
				return nil, err
			}
			return v, nil
		}
	}
	return opts, nil
}
