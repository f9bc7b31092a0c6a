package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stdin).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", userMessage(err))
		os.Exit(1)
	}
}

// userMessage prefers the normalized, user-facing text of an auth error.
func userMessage(err error) string {
	var ae *autherrors.AuthError
	if autherrors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return err.Error()
}
