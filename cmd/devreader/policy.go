package main

import (
	"errors"
	"fmt"

	"github.com/Hara602/devreader/internal/config"
	"github.com/Hara602/devreader/internal/policy"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var errNoPolicyDB = errors.New("policy.db is not configured (use --policy-db)")

func newPolicyCmd(v *viper.Viper, cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage devices that must not be captured",
	}

	// 打开配置中的数据库, 调用方负责关闭
	openStore := func() (*policy.Store, error) {
		cfg, err := config.Load(v, *cfgFile)
		if err != nil {
			return nil, err
		}
		if cfg.Policy.DB == "" {
			return nil, errNoPolicyDB
		}
		return policy.Open(cfg.Policy.DB)
	}

	var vid, pid, serial, reason string
	addIdentity := func(c *cobra.Command) {
		c.Flags().StringVar(&vid, "vid", "", "USB vendor id (hex, e.g. 2341)")
		c.Flags().StringVar(&pid, "pid", "", "USB product id (hex)")
		c.Flags().StringVar(&serial, "serial", policy.AnySerial, "serial number, * matches all")
		_ = c.MarkFlagRequired("vid")
		_ = c.MarkFlagRequired("pid")
	}

	block := &cobra.Command{
		Use:   "block",
		Short: "Refuse to capture a device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Block(vid, pid, serial, reason); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "blocked %s:%s serial=%s\n", vid, pid, serial)
			return nil
		},
	}
	addIdentity(block)
	block.Flags().StringVar(&reason, "reason", "", "note stored with the rule")

	unblock := &cobra.Command{
		Use:   "unblock",
		Short: "Remove a block rule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			removed, err := store.Unblock(vid, pid, serial)
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no rule for %s:%s serial=%s", vid, pid, serial)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unblocked %s:%s serial=%s\n", vid, pid, serial)
			return nil
		},
	}
	addIdentity(unblock)

	list := &cobra.Command{
		Use:   "list",
		Short: "Show block rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			rules, err := store.List()
			if err != nil {
				return err
			}
			if len(rules) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No rules")
				return nil
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("VID", "PID", "Serial", "Reason", "Created")
			for _, r := range rules {
				table.Append([]string{
					r.VendorID,
					r.ProductID,
					r.Serial,
					r.Reason,
					r.CreatedAt.Format("2006-01-02 15:04:05"),
				})
			}
			return table.Render()
		},
	}

	cmd.AddCommand(block, unblock, list)
	return cmd
}
