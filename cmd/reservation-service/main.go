package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	serve := newServeCmd(logger)
	root := &cobra.Command{
		Use:           "reservation-service",
		Short:         "Queue numbering, reservation status and customer notification service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve)
	root.AddCommand(newMigrateCmd(logger))
	root.AddCommand(newSeedStatusesCmd(logger))
	return root
}
