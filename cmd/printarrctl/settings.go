package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AdamA817/printarr-sub001/internal/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Inspect and change the typed settings schema",
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every setting with its effective value",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		svc := settings.NewService(store)
		entries, err := svc.List()
		if err != nil {
			return err
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
		for _, e := range entries {
			fmt.Printf("%-40s %-8s %v\n", e.Key, e.Type, e.Value)
		}
		return nil
	},
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting's effective value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		svc := settings.NewService(store)
		v, err := svc.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	},
}

var settingsPutCmd = &cobra.Command{
	Use:   "put <key> <value>",
	Short: "Validate and persist a setting, or clear it if value equals the default",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, ok := settings.Schema[args[0]]
		if !ok {
			return fmt.Errorf("unknown setting %q", args[0])
		}
		value, err := parseSettingValue(def, args[1])
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		svc := settings.NewService(store)
		if err := svc.Put(args[0], value); err != nil {
			return err
		}
		fmt.Printf("%s = %v\n", args[0], value)
		return nil
	},
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove every custom setting and revert to schema defaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		svc := settings.NewService(store)
		defaults := svc.ResetToDefaults()
		keys := make([]string, 0, len(defaults))
		for k := range defaults {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%-40s %v\n", k, defaults[k])
		}
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsListCmd, settingsGetCmd, settingsPutCmd, settingsResetCmd)
}

// parseSettingValue converts a CLI string argument to the type Service.Put
// expects, per the setting's schema definition.
func parseSettingValue(def settings.Definition, raw string) (any, error) {
	switch def.Type {
	case settings.TypeInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer: %w", raw, err)
		}
		return n, nil
	case settings.TypeBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%q is not a bool: %w", raw, err)
		}
		return b, nil
	default:
		return raw, nil
	}
}
