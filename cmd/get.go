// Handles the "dstore get" command. For remote-backed stores this pulls
// the object into the local cache first.

package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/scidata/dstore/pkg/dstore"
)

var getOutput string

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Copy an object's bytes to a local file",
	RunE: func(cmd *cobra.Command, args []string) error {
		obj, spec := target()
		path, err := storeManager.Store.Filename(obj, spec)
		if err != nil {
			return errors.Wrap(err, "Get failed")
		}
		if getOutput == "" {
			storeManager.Logger.Info("Object is at: " + path)
			return nil
		}
		if err := dstore.CopyFile(path, getOutput); err != nil {
			return errors.Wrap(err, "Copying object failed")
		}
		storeManager.Logger.Info("Object copied to: " + getOutput)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().StringVarP(&getOutput, "output", "o", "", "destination file (default: just print the local path)")
}
