package file

import (
	"path/filepath"
	"strings"
)

// Output file prefixes.
const (
	CorrectedPrefix = "corrected_"
	RejectedPrefix  = "rejected_"
)

// Layout lists every output derived from one source.
type Layout struct {
	Corrected string
	Rejected  string
	Parquet   string
	Report    string
}

// Stem is the base name of path without its extension, with spaces replaced
// by underscores.
func Stem(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ReplaceAll(base, " ", "_")
}

// Outputs names the outputs of src under outDir:
//
//	<outDir>/csv/corrected_<stem>.csv
//	<outDir>/rejected/rejected_<stem>.csv
//	<outDir>/parquet/<stem>.parquet
//	<outDir>/reports/<stem>.json
func Outputs(outDir, src string) Layout {
	stem := Stem(src)
	return Layout{
		Corrected: filepath.Join(outDir, "csv", CorrectedPrefix+stem+".csv"),
		Rejected:  filepath.Join(outDir, "rejected", RejectedPrefix+stem+".csv"),
		Parquet:   filepath.Join(outDir, "parquet", stem+".parquet"),
		Report:    filepath.Join(outDir, "reports", stem+".json"),
	}
}
