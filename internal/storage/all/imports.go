// Package all registers every built-in storage backend: postgres, mssql and
// sqlite. Import it for side effects.
package all

import (
	_ "linemend/internal/storage/mssql"
	_ "linemend/internal/storage/postgres"
	_ "linemend/internal/storage/sqlite"
)
