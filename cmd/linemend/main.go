// Command linemend repairs delimited extracts whose rows were split by stray
// line breaks inside field values.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "linemend/internal/storage/all"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
