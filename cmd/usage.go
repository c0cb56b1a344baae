// Handles the "dstore usage" command

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// usageCmd represents the usage command
var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Report how full the store is",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("%.1f%%\n", storeManager.Store.UsagePercent())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(usageCmd)
}
