package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshp123/electrolux-bridge/internal/version"
)

var _versionAsJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display the version number of the bridge",

	// the root pre-run reads the config file, which version never needs
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },

	RunE: func(cmd *cobra.Command, args []string) error {
		return doVersion()
	},
}

func init() {
	versionCmd.Flags().BoolVar(&_versionAsJSON, "json", false, "Return version as JSON")
	rootCmd.AddCommand(versionCmd)
}

type versionResult struct {
	Version string `json:"version"`
}

func doVersion() error {
	if _versionAsJSON {
		b, err := json.MarshalIndent(versionResult{Version: version.Version}, "", "    ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	}
	fmt.Printf("elxbridge version %s\n", version.Version)
	return nil
}
