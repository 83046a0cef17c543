package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ipeds-etl/internal/etl/endpoint"
)

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "List registered endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := endpoint.Builtin()
		if err != nil {
			return eris.Wrap(err, "endpoints: build registry")
		}

		fmt.Printf("%-14s %-40s %-30s %s\n", "NAME", "PATH", "CORE TABLE", "KEY")
		for _, d := range reg.All() {
			fmt.Printf("%-14s %-40s %-30s %s\n",
				d.Name, d.Path, d.CoreTable, strings.Join(d.PrimaryKey, ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(endpointsCmd)
}
