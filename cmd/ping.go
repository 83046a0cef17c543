package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Verify store connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		pool, err := storePool(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		fmt.Println("Store reachable")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
