// Command ftpclient is a command-line front end for the ftpclient package.
//
// Usage:
//
//	ftpclient [global flags] <command> [args]
//
// Connection settings come from ~/.config/ftpclient/config.yaml, then
// FTPCLIENT_* environment variables, then flags.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
