package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cfdi-bills/constants"
	"github.com/joseph-ayodele/cfdi-bills/internal/app"
	"github.com/joseph-ayodele/cfdi-bills/internal/common"
	"github.com/joseph-ayodele/cfdi-bills/internal/pipeline"
)

type reconcileFlags struct {
	vendor  string
	account string
	mode    string
	date    string
	catalog string
	submit  bool
	asJSON  bool
}

func newReconcileCmd(root *rootFlags) *cobra.Command {
	f := &reconcileFlags{}
	cmd := &cobra.Command{
		Use:   "reconcile FILE",
		Short: "Preview (or submit) the bill for one CFDI XML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.load(cmd.Context(), app.Options{CatalogFile: f.catalog})
			if err != nil {
				return err
			}
			defer a.Close()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			req, err := f.request(data, args[0])
			if err != nil {
				return err
			}

			out, procErr := a.Processor.Process(cmd.Context(), req)
			if f.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(out); err != nil {
					return err
				}
			} else {
				printOutcome(cmd.OutOrStdout(), out)
			}
			return procErr
		},
	}
	cmd.Flags().StringVar(&f.vendor, "vendor", "", "QuickBooks vendor id (defaults to DEFAULT_VENDOR_ID)")
	cmd.Flags().StringVar(&f.account, "account", "", "fallback expense account id (defaults to DEFAULT_ACCOUNT_ID)")
	cmd.Flags().StringVar(&f.mode, "mode", "", "item or account (defaults to RECONCILE_MODE)")
	cmd.Flags().StringVar(&f.date, "date", "", "transaction date YYYY-MM-DD (defaults to today)")
	cmd.Flags().StringVar(&f.catalog, "catalog", "", "offline YAML item catalog")
	cmd.Flags().BoolVar(&f.submit, "submit", false, "post the bill to QuickBooks")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print the full outcome as JSON")
	return cmd
}

func (f *reconcileFlags) request(data []byte, path string) (pipeline.Request, error) {
	req := pipeline.Request{
		Document:   data,
		SourcePath: path,
		VendorID:   f.vendor,
		AccountID:  f.account,
		Submit:     f.submit,
	}
	if f.mode != "" {
		mode, ok := constants.ParseMode(f.mode)
		if !ok {
			return req, common.InvalidInputErrorf("--mode %q is not item or account", f.mode)
		}
		req.Mode = mode
	}
	if f.date != "" {
		d, err := time.Parse(time.DateOnly, f.date)
		if err != nil {
			return req, common.InvalidInputErrorf("--date must be YYYY-MM-DD")
		}
		req.TxnDate = d
	}
	return req, nil
}

func printOutcome(w io.Writer, out *pipeline.Outcome) {
	if out == nil {
		return
	}
	fmt.Fprintf(w, "Run:     %s\n", out.RunID)
	fmt.Fprintf(w, "Invoice: %s\n", out.InvoiceNumber)
	fmt.Fprintf(w, "Status:  %s\n", out.Status)
	if out.Degraded {
		fmt.Fprintln(w, "Catalog: unavailable, all lines fell back to the default account")
	}
	for _, warn := range out.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warn)
	}
	if out.Draft != nil {
		fmt.Fprintf(w, "Vendor:  %s  Date: %s\n", out.Draft.VendorID, out.Draft.TransactionDate.Format(time.DateOnly))
		for i, l := range out.Draft.Lines {
			target := "item " + l.ItemID
			if !l.IsItemBased() {
				target = "account " + l.AccountID
			}
			fmt.Fprintf(w, "  %2d. %-48s %-14s %12s\n", i+1, truncate(l.Description, 48), target, l.Amount.StringFixed(2))
		}
		fmt.Fprintf(w, "Total:   %s\n", out.Draft.Total().StringFixed(2))
		if len(out.Draft.UnmatchedProducts) > 0 {
			fmt.Fprintf(w, "Unmatched: %s\n", strings.Join(out.Draft.UnmatchedProducts, "; "))
		}
		for _, d := range out.Draft.Dropped {
			fmt.Fprintf(w, "Dropped: %s (%s): %s\n", d.Description, d.Amount.StringFixed(2), d.Reason)
		}
	}
	if out.Submission != nil && out.Submission.BillID != "" {
		fmt.Fprintf(w, "Bill ID: %s\n", out.Submission.BillID)
	}
	if out.Error != "" {
		fmt.Fprintf(w, "Error:   %s\n", out.Error)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
