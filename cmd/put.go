// Handles the "dstore put" command

package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var putCmdConfig struct {
	source string
	create bool
}

// putCmd represents the put command
var putCmd = &cobra.Command{
	Use:   "put",
	Short: "Copy a local file into the store as an object's content",
	Long: `For remote-backed stores the file lands in the local cache and is
then pushed out to the remote backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		obj, spec := target()
		if err := storeManager.Store.UpdateFromFile(obj, spec, putCmdConfig.source, putCmdConfig.create); err != nil {
			return errors.Wrap(err, "Put failed")
		}
		storeManager.Logger.Info("Object updated from: " + putCmdConfig.source)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(putCmd)

	putCmd.Flags().StringVarP(&putCmdConfig.source, "source", "s", "", "source file")
	putCmd.Flags().BoolVar(&putCmdConfig.create, "create", false, "create the object if it does not exist")
	putCmd.MarkFlagRequired("source")
}
