package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/visibility-cli/internal/store"
)

var purgeAll bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the provider answer cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired cached answers (or all with --all)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("cache"); err != nil {
			return err
		}
		ctx := cmd.Context()
		c, err := store.Open(ctx, cfg.Cache)
		if err != nil {
			return err
		}
		if c == nil {
			return eris.New("cache: no cache driver configured (set cache.driver)")
		}
		defer c.Close()

		n, err := c.Purge(ctx, purgeAll)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "purged %d cached answers\n", n)
		return nil
	},
}

func init() {
	cachePurgeCmd.Flags().BoolVar(&purgeAll, "all", false, "delete every cached answer, not only expired ones")
	cacheCmd.AddCommand(cachePurgeCmd)
	rootCmd.AddCommand(cacheCmd)
}
