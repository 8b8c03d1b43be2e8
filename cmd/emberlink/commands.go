package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newEngineCmd(gf *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engine",
		Short: "Engine lifecycle commands",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Start the engine process",
			RunE: func(c *cobra.Command, args []string) error {
				res, err := gf.apiClient().StartEngine(c.Context())
				if err != nil {
					return err
				}
				printJSON(res)
				return nil
			},
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the engine process",
			RunE: func(c *cobra.Command, args []string) error {
				return gf.apiClient().StopEngine(c.Context())
			},
		},
		&cobra.Command{
			Use:   "restart",
			Short: "Restart the engine process",
			RunE: func(c *cobra.Command, args []string) error {
				res, err := gf.apiClient().RestartEngine(c.Context())
				if err != nil {
					return err
				}
				printJSON(res)
				return nil
			},
		},
		&cobra.Command{
			Use:   "health",
			Short: "Show the engine health snapshot",
			RunE: func(c *cobra.Command, args []string) error {
				h, err := gf.apiClient().Health(c.Context())
				if err != nil {
					return err
				}
				printJSON(h)
				return nil
			},
		},
	)
	return cmd
}

func newAnimationCmd(gf *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "anim",
		Short: "Animation control commands",
	}
	for _, action := range []string{"start", "pause", "resume", "stop", "skip"} {
		action := action
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("Send the %s animation command", action),
			RunE: func(c *cobra.Command, args []string) error {
				return gf.apiClient().Animation(c.Context(), action)
			},
		})
	}
	return cmd
}

func newImageCmd(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "image <path>",
		Short: "Load a source image into the engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return gf.apiClient().LoadImage(c.Context(), args[0])
		},
	}
}

func newSettingsCmd(gf *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Inspect or update animation settings",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Print the current settings",
			RunE: func(c *cobra.Command, args []string) error {
				s, err := gf.apiClient().GetSettings(c.Context())
				if err != nil {
					return err
				}
				printJSON(s)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set key=value [key=value ...]",
			Short: "Update settings fields",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				partial, err := parseKeyValues(args)
				if err != nil {
					return err
				}
				s, err := gf.apiClient().UpdateSettings(c.Context(), partial)
				if err != nil {
					return err
				}
				printJSON(s)
				return nil
			},
		},
	)
	return cmd
}

func newPresetCmd(gf *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Manage settings presets",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List saved presets",
			RunE: func(c *cobra.Command, args []string) error {
				out, err := gf.apiClient().ListPresets(c.Context())
				if err != nil {
					return err
				}
				printJSON(out)
				return nil
			},
		},
		&cobra.Command{
			Use:   "save <name>",
			Short: "Save the current settings as a preset",
			Args:  cobra.ExactArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				return gf.apiClient().SavePreset(c.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "apply <name>",
			Short: "Apply a preset to the live settings",
			Args:  cobra.ExactArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				return gf.apiClient().ApplyPreset(c.Context(), args[0])
			},
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "Delete a preset",
			Args:  cobra.ExactArgs(1),
			RunE: func(c *cobra.Command, args []string) error {
				return gf.apiClient().DeletePreset(c.Context(), args[0])
			},
		},
	)
	return cmd
}

// parseKeyValues turns key=value pairs into a nested partial-settings map;
// dotted keys address nested fields (watermark.opacity=0.5).
func parseKeyValues(args []string) (map[string]any, error) {
	out := map[string]any{}
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		m := out
		parts := strings.Split(k, ".")
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = map[string]any{}
				m[p] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = coerce(v)
	}
	return out, nil
}

// coerce guesses the JSON type of a CLI value.
func coerce(v string) any {
	var out any
	if err := json.Unmarshal([]byte(v), &out); err == nil {
		return out
	}
	return v
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
