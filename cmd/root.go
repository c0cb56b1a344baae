// Root of command-line argument parsing.
// This file was based off the standard cobra template, see
// https://github.com/spf13/cobra
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scidata/dstore/pkg/dstore"
	"github.com/scidata/dstore/pkg/storemgr"
)

var cfgFile string

var storeManager *storemgr.Manager

// objArgs are the object-selection flags shared by every subcommand.
var objArgs struct {
	id       int64
	uuid     string
	backend  string
	baseDir  string
	extraDir string
	altName  string
	objDir   bool
	dirOnly  bool
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dstore",
	Short: "The scientific dataset storage kit",
	Long: `Inspect and exercise a configured dataset object store: check or
create objects, move bytes in and out, and report backend usage.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		mgrArgs := map[string]interface{}{}
		if cfgFile != "" {
			mgrArgs["config-file"] = cfgFile
		}

		var err error
		storeManager, err = storemgr.NewManager(mgrArgs)
		if err != nil {
			fmt.Printf("Failed to initialize store manager: %v\n", err)
			os.Exit(1)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		storeManager.Destroy()
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main(). It only needs to happen once
// to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if storeManager == nil || storeManager.Logger == nil {
			fmt.Printf("%v\n", err)
		} else {
			storeManager.Logger.Error(err)
		}
		os.Exit(1)
	}
}

// target builds the object reference and path spec from the shared flags.
func target() (dstore.Object, dstore.PathSpec) {
	obj := &dstore.Dataset{
		NumericID: objArgs.id,
		UID:       objArgs.uuid,
		Backend:   objArgs.backend,
	}
	spec := dstore.PathSpec{
		BaseDir:  objArgs.baseDir,
		ExtraDir: objArgs.extraDir,
		AltName:  objArgs.altName,
		ObjDir:   objArgs.objDir,
		DirOnly:  objArgs.dirOnly,
	}
	return obj, spec
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is configs/dstore.yaml)")
	rootCmd.PersistentFlags().Int64VarP(&objArgs.id, "id", "i", 0, "numeric object id")
	rootCmd.PersistentFlags().StringVar(&objArgs.uuid, "uuid", "", "object uuid (for store_by uuid backends)")
	rootCmd.PersistentFlags().StringVar(&objArgs.backend, "backend", "", "preferred backend id within a composite store")
	rootCmd.PersistentFlags().StringVar(&objArgs.baseDir, "base-dir", "", "named alternate root (e.g. job_work)")
	rootCmd.PersistentFlags().StringVar(&objArgs.extraDir, "extra-dir", "", "additional path segment")
	rootCmd.PersistentFlags().StringVar(&objArgs.altName, "alt-name", "", "override the default file name")
	rootCmd.PersistentFlags().BoolVar(&objArgs.objDir, "obj-dir", false, "insert an id-named directory level")
	rootCmd.PersistentFlags().BoolVar(&objArgs.dirOnly, "dir-only", false, "operate on the containing directory")
}
