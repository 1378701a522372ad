package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stockpilot/stockpilot/config"
	srv "github.com/stockpilot/stockpilot/internal/server"
)

func main() {
	root := &cobra.Command{Use: "stockpilotd"}
	root.AddCommand(serveCMD(), versionCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCMD() *cobra.Command {
	var cfgPath string
	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the advisory HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}
			return srv.Run(cfg)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config.yaml)")
	return serve
}

var version = "dev"

func versionCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}
