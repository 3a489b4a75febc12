package main

import (
	"github.com/spf13/cobra"

	"github.com/galzu/leadfinder/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config.yaml with default values",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteDefault("config.yaml"); err != nil {
			return err
		}
		cmd.Println("wrote config.yaml")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
