// Command archivist lists, extracts and adds members of zip and rar family archives.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/Defacto2/archivist/internal/cli"
)

// version is set via ldflags at build time: -ldflags "-X main.version=x.y.z"
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.New(version).Execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		os.Exit(1)
	}
}
