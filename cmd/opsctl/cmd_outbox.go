package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect the search outbox",
}

// outboxRequeueCmd gives dead-lettered events a fresh set of attempts
var outboxRequeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Retry outbox events that used up their index attempts",
	Long: `Reset the attempt counter of every unprocessed outbox event the search
worker gave up on. Run it once the cluster problem that failed them is fixed.`,
	Args: cobra.NoArgs,
	RunE: runOutboxRequeue,
}

func init() {
	outboxCmd.AddCommand(outboxRequeueCmd)
}

func runOutboxRequeue(cmd *cobra.Command, _ []string) error {
	_, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.RequeueDead(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "requeued %d dead-lettered events\n", n)
	return nil
}
