// Handles the "dstore exists" command

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// existsCmd represents the exists command
var existsCmd = &cobra.Command{
	Use:   "exists",
	Short: "Report whether an object has a representation in the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		obj, spec := target()
		ok, err := storeManager.Store.Exists(obj, spec)
		if err != nil {
			return err
		}
		fmt.Println(ok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(existsCmd)
}
