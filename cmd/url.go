// Handles the "dstore url" command

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// urlCmd represents the url command
var urlCmd = &cobra.Command{
	Use:   "url",
	Short: "Print a direct-access URL for an object, if the backend has one",
	RunE: func(cmd *cobra.Command, args []string) error {
		obj, spec := target()
		url := storeManager.Store.ObjectURL(obj, spec)
		if url == "" {
			storeManager.Logger.Info("Backend provides no direct-access URLs")
			return nil
		}
		fmt.Println(url)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(urlCmd)
}
