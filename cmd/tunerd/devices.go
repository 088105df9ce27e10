// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ManuGH/tunerpool/internal/daemon"
)

func newDevicesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the tuner devices in the catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			_, cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			store, err := daemon.OpenCatalog(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			recs, err := store.ListDevices(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tKIND\tADAPTER\tFRONTEND\tSOURCE")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", r.ID, r.Name, r.Kind.DisplayName(), r.Adapter, r.Frontend, r.Source)
			}
			return tw.Flush()
		},
	}
}
