// Command dbclone clones a relational database from a source endpoint to a
// target endpoint: schema, data, foreign keys, functions and views. It can
// also export a database to an archive, import an archive, verify two
// databases against each other and repair the tables that differ.
//
// Configuration is read from the environment, optionally seeded from a
// .env file in the working directory.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	// register all backends with the storage factory.
	_ "dbclone/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := newApp(os.LookupEnv, os.Stdout).execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
