package repair

import (
	"fmt"
	"strings"
)

// Reconcile aligns the header with the expected data width.
//
// A header exactly one column wider than the data whose last field is blank
// is trimmed. Any other mismatch is returned unmodified together with a
// warning; the reconciler never guesses which column to drop.
func Reconcile(header []string, expected int) ([]string, bool, *HeaderMismatchWarning) {
	n := len(header)
	switch {
	case n == expected:
		return header, false, nil
	case n == expected+1 && strings.TrimSpace(header[n-1]) == "":
		return header[:n-1], true, nil
	}

	w := &HeaderMismatchWarning{HeaderColumns: n, Expected: expected}
	switch {
	case n == expected+1:
		w.Reason = fmt.Sprintf("extra trailing column %q is not empty", header[n-1])
	case n > expected:
		w.Reason = fmt.Sprintf("%d extra columns", n-expected)
	default:
		w.Reason = fmt.Sprintf("%d columns missing", expected-n)
	}
	return header, false, w
}
