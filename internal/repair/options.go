package repair

import (
	"io"

	"github.com/sirupsen/logrus"

	"linemend/internal/linefile"
)

// Strategy selects how the expected column count is derived from the
// column frequency table.
type Strategy string

const (
	// StrategyMode picks the most frequent column count; ties go to the
	// smallest count.
	StrategyMode Strategy = "mode"
	// StrategyMax picks the widest observed data line.
	StrategyMax Strategy = "max"
)

// Defaults.
const (
	DefaultDelimiter    = ';'
	DefaultChunkSize    = 100_000
	DefaultMaxFragments = 256
)

// RowValidator checks a row that already has the expected width.
type RowValidator interface {
	Check(fields []string) error
}

// Options carries everything the census and merge passes need for one file.
// The zero value is usable; see withDefaults.
type Options struct {
	Delimiter        rune
	Encoding         string
	FallbackEncoding string // retried once when Encoding fails to decode; "" disables
	Strategy         Strategy
	ChunkSize        int    // progress interval, in lines
	JoinWith         string // inserted where a split value is glued back together
	MaxFragments     int    // physical lines one logical row may span

	// NewValidator, when set, builds a row validator from the reconciled
	// header. Rows it rejects go to the rejected sink.
	NewValidator func(header []string) (RowValidator, error)

	Logger   logrus.FieldLogger
	Progress func(pass string, line int)
}

func (o Options) withDefaults() Options {
	if o.Delimiter == 0 {
		o.Delimiter = DefaultDelimiter
	}
	if o.Encoding == "" {
		o.Encoding = linefile.UTF8
	}
	if o.Strategy == "" {
		o.Strategy = StrategyMode
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.MaxFragments <= 0 {
		o.MaxFragments = DefaultMaxFragments
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.Logger = l
	}
	return o
}

func (o Options) progress(pass string, line int) {
	if line%o.ChunkSize != 0 {
		return
	}
	o.Logger.WithFields(logrus.Fields{"pass": pass, "line": line}).Debug("progress")
	if o.Progress != nil {
		o.Progress(pass, line)
	}
}
