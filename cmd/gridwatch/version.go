package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/gridwatch/internal/version"
)

var versionVerbose bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		if versionVerbose {
			fmt.Printf("gridwatch version %s\n", version.Full())
			return
		}
		fmt.Printf("gridwatch version %s\n", version.Get())
	},
}

func init() {
	versionCmd.Flags().BoolVarP(&versionVerbose, "verbose", "v", false, "Include Go version and platform")
}
