package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/imoocdb/imoocdb/server/engine"
)

func newCheckpointCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint",
		Short: "truncate the redo log offline and print the checkpoint LSN",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := engine.Open(afero.NewOsFs(), cfg)
			if err != nil {
				return err
			}

			lsn, err := db.Txn.Checkpoint()
			if err != nil {
				return err
			}
			fmt.Printf("checkpoint lsn=%d\n", lsn)
			return nil
		},
	}
}
