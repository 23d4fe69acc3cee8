// Command imoocdb is the engine's entry point: serve starts the PostgreSQL
// wire-protocol listener, checkpoint truncates the redo log offline, client
// is a terminal REPL, grounded on original_source's main.py argument parsing
// (--config/--serve/--client), rebuilt on cobra the way the teacher's own
// CLI entry points are (spec.md §2, §4.8).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/imoocdb/imoocdb/logger"
	"github.com/imoocdb/imoocdb/server/conf"
)

var version = "dev"

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "imoocdb",
		Short: "a small SQL engine speaking the PostgreSQL wire protocol",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to an imoocdb.ini config file")

	root.AddCommand(newServeCommand())
	root.AddCommand(newCheckpointCommand())
	root.AddCommand(newClientCommand())
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*conf.Cfg, error) {
	cfg, err := conf.NewCfg().Load(&conf.CommandLineArgs{ConfigPath: configPath})
	if err != nil {
		return nil, err
	}
	if err := logger.InitLogger(logger.LogConfig{
		LogLevel:     cfg.LogLevel,
		InfoLogPath:  cfg.InfoLogPath,
		ErrorLogPath: cfg.ErrorLogPath,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}
