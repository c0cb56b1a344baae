// Handles the "dstore delete" command

package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var deleteEntireDir bool

// deleteCmd represents the delete command
var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove an object from the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		obj, spec := target()
		spec.EntireDir = deleteEntireDir
		if !storeManager.Store.Delete(obj, spec) {
			return errors.New("Delete failed")
		}
		storeManager.Logger.Info("Object deleted")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)

	deleteCmd.Flags().BoolVar(&deleteEntireDir, "entire-dir", false, "remove the whole directory subtree (needs --extra-dir or --obj-dir)")
}
