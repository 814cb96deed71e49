package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/qsplit/internal/api"
	"github.com/jackzampolin/qsplit/internal/config"
	"github.com/jackzampolin/qsplit/internal/home"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the qsplit configuration",
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write the default configuration to --config, or to config.yaml in the
home directory. API keys are written as ${ENV_VAR} references.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			h, err := home.New(homeDir)
			if err != nil {
				return err
			}
			path = h.ConfigPath()
		}
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print every config key with its effective value",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cm, _, err := setup()
		if err != nil {
			return err
		}
		entries := cm.Entries()
		for i := range entries {
			if strings.HasSuffix(entries[i].Key, "api_key") {
				if s, ok := entries[i].Value.(string); ok && s != "" && !strings.HasPrefix(s, "${") {
					entries[i].Value = "********"
				}
			}
		}
		if f := cm.FileUsed(); f != "" {
			fmt.Fprintf(os.Stderr, "# config file: %s\n", f)
		}
		return api.Output(entries)
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the effective value of one key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cm, _, err := setup()
		if err != nil {
			return err
		}
		v, err := cm.Value(args[0])
		if err != nil {
			return err
		}
		return api.Output(map[string]any{args[0]: v})
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	rootCmd.AddCommand(configCmd)
}
