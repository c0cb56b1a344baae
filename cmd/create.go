// Handles the "dstore create" command

package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// createCmd represents the create command
var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Allocate backing storage for an object",
	Long: `Create is idempotent: an object that already exists is left
untouched. On a distributed store this is the call that picks (and
prints) the backend the object will live on.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		obj, spec := target()
		if err := storeManager.Store.Create(obj, spec); err != nil {
			return errors.Wrap(err, "Create failed")
		}
		if obj.StoreID() != "" {
			storeManager.Logger.Info("Object placed on backend: " + obj.StoreID())
		}
		storeManager.Logger.Info("Object created")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
}
