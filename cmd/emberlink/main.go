package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "emberlink",
		Short: "Control daemon for the Ember particle-animation engine",
	}

	var gf GlobalFlags
	root.PersistentFlags().StringVar(&gf.APIUrl, "api-url", "http://127.0.0.1:7817/api", "daemon API base URL")
	root.PersistentFlags().DurationVar(&gf.APITimeout, "api-timeout", 0, "daemon API request timeout")

	root.AddCommand(newServeCmd())
	root.AddCommand(newEngineCmd(&gf))
	root.AddCommand(newAnimationCmd(&gf))
	root.AddCommand(newImageCmd(&gf))
	root.AddCommand(newSettingsCmd(&gf))
	root.AddCommand(newPresetCmd(&gf))
	return root
}
