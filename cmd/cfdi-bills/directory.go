package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cfdi-bills/constants"
	"github.com/joseph-ayodele/cfdi-bills/internal/app"
	"github.com/joseph-ayodele/cfdi-bills/internal/common"
	"github.com/joseph-ayodele/cfdi-bills/internal/entity"
)

func newVendorsCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "vendors",
		Short: "List QuickBooks vendors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.load(cmd.Context(), app.Options{SkipDatabase: true})
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Directory == nil {
				return common.InvalidInputErrorf("QuickBooks credentials are not configured")
			}
			refs, err := a.Directory.ListVendors(cmd.Context())
			if err != nil {
				return err
			}
			return printRefs(cmd, refs)
		},
	}
}

func newAccountsCmd(root *rootFlags) *cobra.Command {
	var accountType string
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List QuickBooks accounts of one type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.load(cmd.Context(), app.Options{SkipDatabase: true})
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Directory == nil {
				return common.InvalidInputErrorf("QuickBooks credentials are not configured")
			}
			refs, err := a.Directory.ListAccounts(cmd.Context(), accountType)
			if err != nil {
				return err
			}
			return printRefs(cmd, refs)
		},
	}
	cmd.Flags().StringVar(&accountType, "type", constants.DefaultAccountType, "QuickBooks AccountType")
	return cmd
}

func newRunsCmd(root *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent reconciliation runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.load(cmd.Context(), app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Runs == nil {
				return common.InvalidInputErrorf("DB_URL is not configured")
			}
			runs, err := a.Runs.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tSTATUS\tINVOICE\tBILL\tSOURCE")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					r.StartedAt.Format("2006-01-02 15:04:05"), r.Status, r.InvoiceNumber, r.BillID, r.SourcePath)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}

func printRefs(cmd *cobra.Command, refs []entity.NamedRef) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME")
	for _, r := range refs {
		fmt.Fprintf(tw, "%s\t%s\n", r.ID, r.Name)
	}
	return tw.Flush()
}
