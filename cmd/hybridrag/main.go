// Package main provides the entry point for the hybridrag CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Aman-CERP/hybridrag/cmd/hybridrag/cmd"
	herrors "github.com/Aman-CERP/hybridrag/internal/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()
	if err == nil {
		return
	}
	if cmd.WantsJSON(os.Args[1:]) {
		if data, jerr := herrors.FormatJSON(err); jerr == nil {
			fmt.Fprintln(os.Stderr, string(data))
			os.Exit(1)
		}
	}
	fmt.Fprint(os.Stderr, herrors.FormatForCLI(err))
	os.Exit(1)
}
