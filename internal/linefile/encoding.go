package linefile

import (
	"fmt"
	"strings"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Well-known encoding names.
const (
	UTF8   = "utf-8"
	Latin1 = "latin-1"
	Auto   = "auto"
)

// sniffLen is how many leading bytes are inspected when the encoding is "auto".
const sniffLen = 4096

// Resolve maps a declared encoding name to a decoder.
//
// UTF-8 returns a nil encoding: input is passed through and validated line by
// line so that invalid bytes surface as a *DecodeError instead of being
// replaced. Latin-1 aliases map to ISO-8859-1, never WHATWG's windows-1252.
// Every other label is resolved through the HTML charset index.
func Resolve(name string) (encoding.Encoding, string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "", "utf-8", "utf8":
		return nil, UTF8, nil
	case "latin-1", "latin1", "iso-8859-1", "iso8859-1", "l1":
		return charmap.ISO8859_1, Latin1, nil
	case "cp1252", "windows-1252":
		return charmap.Windows1252, "windows-1252", nil
	}
	enc, canonical := charset.Lookup(n)
	if enc == nil {
		return nil, "", fmt.Errorf("unknown encoding %q", name)
	}
	if canonical == "utf-8" {
		return nil, UTF8, nil
	}
	return enc, canonical, nil
}

// Detect guesses the encoding of a file prefix. It honours a BOM and
// otherwise falls back to content heuristics. The returned name can be
// passed to Resolve.
func Detect(prefix []byte) string {
	if len(prefix) > sniffLen {
		prefix = prefix[:sniffLen]
	}
	_, name, _ := charset.DetermineEncoding(prefix, "text/plain")
	if name == "" || name == "utf-8" {
		return UTF8
	}
	return name
}
