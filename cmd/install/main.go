package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	rootDir     string
	packageFile string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Unpack the built dock package into the notes workspace",
		Long: `install reads the target directory from the install.path file in the project
root and extracts package.zip into it. Without an install.path file nothing is done.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Install(rootDir, packageFile, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&rootDir, "root", "r", ".", "Project root containing install.path")
	cmd.Flags().StringVarP(&packageFile, "package", "p", "package.zip", "Package archive, relative to the project root")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
