package repair

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"linemend/internal/linefile"
	"linemend/internal/rejects"
)

// memSink collects rejected units.
type memSink struct {
	units []rejects.Unit
}

func (m *memSink) Record(u rejects.Unit) error {
	frags := append([]rejects.Fragment(nil), u.Fragments...)
	u.Fragments = frags
	m.units = append(m.units, u)
	return nil
}

func (m *memSink) lines() int {
	n := 0
	for _, u := range m.units {
		n += len(u.Fragments)
	}
	return n
}

func writeInput(t *testing.T, lines ...string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return p
}

func correct(t *testing.T, path string, opts Options) (string, *memSink, Stats) {
	t.Helper()
	ctx := context.Background()
	cen, err := Census(ctx, path, opts)
	require.NoError(t, err)
	header, _, _ := Reconcile(cen.Header, cen.Expected)

	var out bytes.Buffer
	sink := &memSink{}
	st, err := Correct(ctx, path, &out, sink, opts, cen.Expected, header)
	require.NoError(t, err)
	require.True(t, st.Balanced(), "stats not balanced: %+v", st)
	return out.String(), sink, st
}

func TestCorrectMergesSplitValue(t *testing.T) {
	p := writeInput(t, "h1;h2;h3", "a;b;c", "d;e", "f;3")

	out, sink, st := correct(t, p, Options{})

	assert.Equal(t, "h1;h2;h3\na;b;c\nd;ef;3\n", out)
	assert.Empty(t, sink.units)
	assert.Equal(t, 4, st.OriginalLines)
	assert.Equal(t, 3, st.CorrectedLines)
	assert.Equal(t, 1, st.MergedRows)
	assert.Equal(t, 0, st.RejectedLines)
}

func TestCorrectJoinWith(t *testing.T) {
	p := writeInput(t, "h1;h2;h3", "a;b;c", "d;e", "f;3")

	out, _, _ := correct(t, p, Options{JoinWith: " "})

	assert.Equal(t, "h1;h2;h3\na;b;c\nd;e f;3\n", out)
}

func TestCorrectMultiFragmentMerge(t *testing.T) {
	p := writeInput(t, "a;b;c;d", "1;2;3;4", "5;6;7;8", "9;x", "y", "z;10;11")

	out, sink, st := correct(t, p, Options{})

	assert.Equal(t, "a;b;c;d\n1;2;3;4\n5;6;7;8\n9;xyz;10;11\n", out)
	assert.Empty(t, sink.units)
	assert.Equal(t, 4, st.CorrectedLines)
	assert.Equal(t, 6, st.ConsumedLines+1)
}

func TestHeaderTrimmedWhenOneExtraEmptyColumn(t *testing.T) {
	p := writeInput(t, "h1;h2;h3; ", "a;b;c", "d;e;f")

	out, _, _ := correct(t, p, Options{})

	first := strings.SplitN(out, "\n", 2)[0]
	assert.Equal(t, "h1;h2;h3", first)
	assert.Len(t, linefile.Split(first, ';'), 3)
}

func TestOvershootRejectsBufferAndReprocessesLine(t *testing.T) {
	p := writeInput(t,
		"h1;h2;h3",
		"a;b;c",
		"d;e",   // short: buffered
		"f;g;h", // merging would give 4 columns
		"i;j;k",
	)

	out, sink, st := correct(t, p, Options{})

	assert.Equal(t, "h1;h2;h3\na;b;c\nf;g;h\ni;j;k\n", out)
	require.Len(t, sink.units, 1)
	u := sink.units[0]
	assert.Equal(t, rejects.ColumnOvershoot, u.Reason)
	assert.Equal(t, []rejects.Fragment{{Line: 3, Text: "d;e"}}, u.Fragments)
	assert.Equal(t, 1, st.RejectedLines)
	assert.Equal(t, 1, st.Reasons[rejects.ColumnOvershoot])
}

func TestOvershootWithTwoColumns(t *testing.T) {
	// Expected width 2: "x" then "p;q;r" would give 3 fields. The buffer is
	// rejected, then "p;q;r" is reprocessed alone and is itself too wide.
	p := writeInput(t, "h1;h2", "a;b", "c;d", "x", "p;q;r", "e;f")

	out, sink, st := correct(t, p, Options{})

	assert.Equal(t, "h1;h2\na;b\nc;d\ne;f\n", out)
	require.Len(t, sink.units, 2)
	assert.Equal(t, 4, sink.units[0].Start())
	assert.Equal(t, 5, sink.units[1].Start())
	assert.Equal(t, rejects.ColumnOvershoot, sink.units[1].Reason)
	assert.Equal(t, 2, st.RejectedRows)
}

func TestUnmergeableAtEndOfInput(t *testing.T) {
	p := writeInput(t, "h1;h2;h3", "a;b;c", "d;e;f", "g;h")

	out, sink, _ := correct(t, p, Options{})

	assert.Equal(t, "h1;h2;h3\na;b;c\nd;e;f\n", out)
	require.Len(t, sink.units, 1)
	assert.Equal(t, rejects.Unmergeable, sink.units[0].Reason)
	assert.Equal(t, 4, sink.units[0].Start())
}

func TestMaxFragmentsBoundsBuffer(t *testing.T) {
	p := writeInput(t, "h1;h2", "a;b", "c;d", "e;f", "k;l", "x", "", "", "", "g;h")

	out, sink, st := correct(t, p, Options{MaxFragments: 3})

	require.Len(t, sink.units, 1)
	assert.Equal(t, rejects.Unmergeable, sink.units[0].Reason)
	assert.Len(t, sink.units[0].Fragments, 3)
	assert.Equal(t, 6, sink.units[0].Start())
	// The last blank line starts a new buffer and absorbs "g;h".
	assert.Equal(t, "h1;h2\na;b\nc;d\ne;f\nk;l\ng;h\n", out)
	assert.Equal(t, 1, st.MergedRows)
}

func TestEmptyLineGluesOntoNextRow(t *testing.T) {
	p := writeInput(t, "h1;h2", "a;b", "", "c;d")

	out, sink, _ := correct(t, p, Options{})

	assert.Equal(t, "h1;h2\na;b\nc;d\n", out)
	assert.Empty(t, sink.units)
}

func TestModeWithNoise(t *testing.T) {
	assert.Equal(t, 58, Mode(map[int]int64{58: 9000, 57: 50, 59: 30}))
	assert.Equal(t, 2, Mode(map[int]int64{3: 5, 2: 5, 7: 1}))
	assert.Equal(t, 59, Widest(map[int]int64{58: 9000, 57: 50, 59: 30}))
}

func TestCensusStrategies(t *testing.T) {
	p := writeInput(t, "h1;h2;h3", "a;b;c", "d;e;f", "g;h;i;j", "k")

	cen, err := Census(context.Background(), p, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, cen.Expected)
	assert.Equal(t, map[int]int64{3: 2, 4: 1, 1: 1}, cen.Frequencies)
	assert.Equal(t, 5, cen.Lines)
	assert.Equal(t, 4, cen.DataLines)
	assert.Equal(t, []string{"h1", "h2", "h3"}, cen.Header)

	cen, err = Census(context.Background(), p, Options{Strategy: StrategyMax})
	require.NoError(t, err)
	assert.Equal(t, 4, cen.Expected)
}

func TestCensusProgress(t *testing.T) {
	lines := []string{"h"}
	for i := 0; i < 10; i++ {
		lines = append(lines, "x")
	}
	p := writeInput(t, lines...)

	var seen []int
	_, err := Census(context.Background(), p, Options{ChunkSize: 4, Progress: func(pass string, line int) {
		assert.Equal(t, "census", pass)
		seen = append(seen, line)
	}})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 8}, seen)
}

func TestCensusErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	_, err := Census(ctx, empty, Options{})
	assert.ErrorIs(t, err, ErrEmptyFile)

	headerOnly := filepath.Join(dir, "header.csv")
	require.NoError(t, os.WriteFile(headerOnly, []byte("a;b\n"), 0o644))
	_, err = Census(ctx, headerOnly, Options{})
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = Census(ctx, filepath.Join(dir, "missing.csv"), Options{})
	var ioe *IOError
	require.ErrorAs(t, err, &ioe)
	assert.Equal(t, "open", ioe.Op)
}

func TestCensusFallsBackToLatin1(t *testing.T) {
	raw, err := charmap.ISO8859_1.NewEncoder().String("nom;ville\nAli;Sfax\nHédi;Gabès\n")
	require.NoError(t, err)
	p := filepath.Join(t.TempDir(), "latin.csv")
	require.NoError(t, os.WriteFile(p, []byte(raw), 0o644))

	_, err = Census(context.Background(), p, Options{})
	var ioe *IOError
	require.ErrorAs(t, err, &ioe)
	assert.Equal(t, "decode", ioe.Op)
	assert.Equal(t, 3, ioe.Line)

	cen, err := Census(context.Background(), p, Options{FallbackEncoding: linefile.Latin1})
	require.NoError(t, err)
	assert.Equal(t, linefile.Latin1, cen.Encoding)
	assert.Equal(t, 2, cen.Expected)
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name     string
		header   []string
		expected int
		want     []string
		adjusted bool
		warn     bool
	}{
		{"equal", []string{"a", "b"}, 2, []string{"a", "b"}, false, false},
		{"trailing empty", []string{"a", "b", ""}, 2, []string{"a", "b"}, true, false},
		{"trailing blank", []string{"a", "b", "  "}, 2, []string{"a", "b"}, true, false},
		{"leading empty kept", []string{"", "a", "b"}, 2, []string{"", "a", "b"}, false, true},
		{"two extra", []string{"a", "b", "", ""}, 2, []string{"a", "b", "", ""}, false, true},
		{"too few", []string{"a"}, 2, []string{"a"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, adjusted, warn := Reconcile(tt.header, tt.expected)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.adjusted, adjusted)
			assert.Equal(t, tt.warn, warn != nil)
		})
	}
}

type rejectOdd struct{}

func (rejectOdd) Check(fields []string) error {
	n, err := strconv.Atoi(fields[0])
	if err != nil || n%2 == 1 {
		return fmt.Errorf("id %q is odd", fields[0])
	}
	return nil
}

func TestSemanticFailuresGoToSink(t *testing.T) {
	p := writeInput(t, "id;v", "2;a", "3;b", "4;c", "5;d")

	out, sink, st := correct(t, p, Options{NewValidator: func([]string) (RowValidator, error) { return rejectOdd{}, nil }})

	assert.Equal(t, "id;v\n2;a\n4;c\n", out)
	require.Len(t, sink.units, 2)
	for _, u := range sink.units {
		assert.Equal(t, rejects.SemanticValidationFailure, u.Reason)
		assert.Contains(t, u.Detail, "odd")
	}
	assert.Equal(t, 2, st.Reasons[rejects.SemanticValidationFailure])
}

func TestCorrectHonoursCancellation(t *testing.T) {
	p := writeInput(t, "a;b", "1;2")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Correct(ctx, p, &bytes.Buffer{}, &memSink{}, Options{}, 2, []string{"a", "b"})
	assert.ErrorIs(t, err, context.Canceled)
}

// brokenRows builds n rows of width cols and returns the clean rows and the
// same rows with line breaks inserted inside some values.
func brokenRows(rng *rand.Rand, n, cols int) (clean, broken []string) {
	for i := 0; i < n; i++ {
		fields := make([]string, cols)
		for c := range fields {
			fields[c] = fmt.Sprintf("r%dc%d", i, c)
		}
		row := strings.Join(fields, ";")
		clean = append(clean, row)

		if rng.Intn(10) == 0 {
			c := rng.Intn(cols)
			v := fields[c]
			cut := 1 + rng.Intn(len(v)-1)
			fields[c] = v[:cut] + "\n" + v[cut:]
			row = strings.Join(fields, ";")
		}
		broken = append(broken, strings.Split(row, "\n")...)
	}
	return clean, broken
}

func TestBrokenRowsAreRestoredExactly(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	clean, broken := brokenRows(rng, 2000, 7)
	require.Greater(t, len(broken), len(clean))

	header := "c0;c1;c2;c3;c4;c5;c6;"
	p := writeInput(t, append([]string{header}, broken...)...)

	out, sink, st := correct(t, p, Options{})

	want := "c0;c1;c2;c3;c4;c5;c6\n" + strings.Join(clean, "\n") + "\n"
	assert.Equal(t, want, out)
	assert.Empty(t, sink.units)
	assert.Equal(t, len(broken)+1, st.OriginalLines)
	assert.Equal(t, len(clean)+1, st.CorrectedLines)
	assert.LessOrEqual(t, st.CorrectedLines, st.OriginalLines)
}

func TestConservationAndProvenanceOnNoisyInput(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	_, broken := brokenRows(rng, 500, 5)
	// Inject garbage: too-wide lines, orphan fragments and blank lines.
	var lines []string
	for i, l := range broken {
		lines = append(lines, l)
		switch i % 97 {
		case 13:
			lines = append(lines, "w;w;w;w;w;w;w")
		case 41:
			lines = append(lines, "orphan")
		case 67:
			lines = append(lines, "")
		}
	}
	p := writeInput(t, append([]string{"a;b;c;d;e"}, lines...)...)

	_, sink, st := correct(t, p, Options{})

	assert.True(t, st.Balanced())
	assert.Equal(t, st.RejectedLines, sink.lines())
	assert.Equal(t, st.RejectedRows, len(sink.units))
	for _, u := range sink.units {
		for _, f := range u.Fragments {
			assert.GreaterOrEqual(t, f.Line, 2)
			assert.LessOrEqual(t, f.Line, st.OriginalLines)
			assert.Equal(t, lines[f.Line-2], f.Text, "fragment text must match source line %d", f.Line)
		}
	}
}

func TestOutputPreservesInputOrder(t *testing.T) {
	p := writeInput(t, "id;v", "1;a", "2;b", "3", ";c", "4;d", "5", "x;y;z", "6;f")

	out, _, _ := correct(t, p, Options{})

	var ids []int
	for _, l := range strings.Split(strings.TrimSpace(out), "\n")[1:] {
		id, err := strconv.Atoi(strings.SplitN(l, ";", 2)[0])
		require.NoError(t, err, l)
		ids = append(ids, id)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 6}, ids)
}

func TestRepairFileWritesOutputsAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	src := writeInput(t, "h1;h2;h3;", "a;b;c", "d;e", "f;3", "g;h;i;j", "k;l;m", "n;o;p")

	first := Paths{Corrected: filepath.Join(dir, "csv", "corrected_in.csv"), Rejected: filepath.Join(dir, "rejected", "rejected_in.csv")}
	rep, err := RepairFile(context.Background(), src, first, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Expected)
	assert.True(t, rep.HeaderAdjusted)
	assert.Equal(t, StatusWarning, rep.Status())
	assert.Equal(t, 1, rep.Stats.RejectedRows)
	assert.NotEmpty(t, rep.Checksum)

	corrected, err := os.ReadFile(first.Corrected)
	require.NoError(t, err)
	assert.Equal(t, "h1;h2;h3\na;b;c\nd;ef;3\nk;l;m\nn;o;p\n", string(corrected))

	rejected, err := os.ReadFile(first.Rejected)
	require.NoError(t, err)
	assert.Equal(t,
		"rejected_reason;rejected_group;rejected_line;rejected_fragment;rejected_detail;h1;h2;h3\n"+
			"column_overshoot;5;5;1;4 columns, expected 3;g;h;i;j\n",
		string(rejected))

	_, err = os.Stat(first.Corrected + ".partial")
	assert.True(t, errors.Is(err, os.ErrNotExist))

	second := Paths{Corrected: filepath.Join(dir, "again", "c.csv"), Rejected: filepath.Join(dir, "again", "r.csv")}
	rep2, err := RepairFile(context.Background(), first.Corrected, second, Options{})
	require.NoError(t, err)
	again, err := os.ReadFile(second.Corrected)
	require.NoError(t, err)
	assert.Equal(t, corrected, again)
	assert.Equal(t, rep.Checksum, rep2.Checksum)
	assert.Equal(t, StatusOK, rep2.Status())
	assert.Zero(t, rep2.Stats.RejectedRows)
}

func TestRepairFileLeavesNoOutputOnFailure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(src, nil, 0o644))

	dst := Paths{Corrected: filepath.Join(dir, "out", "c.csv"), Rejected: filepath.Join(dir, "out", "r.csv")}
	_, err := RepairFile(context.Background(), src, dst, Options{})
	require.ErrorIs(t, err, ErrEmptyFile)

	_, err = os.Stat(dst.Corrected)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRepairFileDisablesValidatorOnBindError(t *testing.T) {
	dir := t.TempDir()
	src := writeInput(t, "a;b", "1;2")
	dst := Paths{Corrected: filepath.Join(dir, "c.csv"), Rejected: filepath.Join(dir, "r.csv")}

	rep, err := RepairFile(context.Background(), src, dst, Options{
		NewValidator: func([]string) (RowValidator, error) { return nil, errors.New("no such column") },
	})
	require.NoError(t, err)
	require.Len(t, rep.Warnings, 1)
	assert.Equal(t, StatusWarning, rep.Status())
}

func TestAnalyzeListsAnomalies(t *testing.T) {
	p := writeInput(t, "h1", "a;b", "c;d", "e", "f;g;h", "i;j")

	var got []Anomaly
	cen, n, err := Analyze(context.Background(), p, Options{}, func(a Anomaly) { got = append(got, a) })
	require.NoError(t, err)

	assert.Equal(t, 2, cen.Expected)
	assert.Equal(t, 3, n)
	assert.Equal(t, []Anomaly{{Line: 1, Columns: 1}, {Line: 4, Columns: 1}, {Line: 5, Columns: 3}}, got)
}
