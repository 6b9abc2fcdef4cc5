package validate

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	regMu    sync.RWMutex
	registry = map[string]Contract{}
)

// Register makes a contract available by table name. Later registrations
// replace earlier ones.
func Register(c Contract) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[strings.ToLower(c.Name)] = c
}

// Lookup returns the contract registered for table.
func Lookup(table string) (Contract, error) {
	regMu.RLock()
	defer regMu.RUnlock()
	c, ok := registry[strings.ToLower(table)]
	if !ok {
		return Contract{}, fmt.Errorf("validate: no contract for table %q (known: %s)", table, strings.Join(knownLocked(), ", "))
	}
	return c, nil
}

// Known lists registered table names.
func Known() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	return knownLocked()
}

func knownLocked() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func init() {
	Register(CNRPS())
}

// Date window applied to the built-in contracts.
const (
	dateMinYear = 1900
	dateMaxYear = 2025
)

// CNRPS is the pension-fund affiliates extract.
func CNRPS() Contract {
	date := func(name string, nullable bool) Field {
		return Field{
			Name:     name,
			Type:     "date",
			Required: true,
			Nullable: nullable,
			Layouts:  []string{"02/01/2006"},
			MinYear:  dateMinYear,
			MaxYear:  dateMaxYear,
		}
	}
	col := func(name, typ string, nullable bool) Field {
		return Field{Name: name, Type: typ, Required: true, Nullable: nullable}
	}

	fields := []Field{
		col("matricul", "int", false),
		col("CIN", "int", false),
		{Name: "sexe", Type: "enum", Required: true, Enum: []string{"M", "F"}},
		date("date_naissance", false),
		col("sitfam", "int", false),
		col("postal", "int", true),
		date("date_affiliation", true),
		date("date_recrut", true),
		col("pos_admin", "int", true),
		col("code_etab_payeur", "int", true),
		col("libelle_etab", "text", true),
		col("code_grade", "int", true),
		col("code_fonction", "int", true),
		col("annee", "int", true),
		col("periode", "int", true),
		col("perd", "text", true),
	}
	for i := 1; i <= 20; i++ {
		fields = append(fields,
			col(fmt.Sprintf("code_indem%d", i), "int", true),
			col(fmt.Sprintf("montant_indem%d", i), "int", true),
		)
	}
	return Contract{Name: "cnrps", Fields: fields}
}
