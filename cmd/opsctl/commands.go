package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"filmtrack/backend/internal/client"
	"filmtrack/backend/internal/domain"
)

type rootOptions struct {
	server  string
	token   string
	timeout time.Duration
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "opsctl",
		Short:         "Operator CLI for the filmtrack backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.server, "server", envOr("OPSCTL_SERVER", "http://127.0.0.1:8080"), "API base URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("OPSCTL_TOKEN"), "bearer token printed by the login command")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "request timeout")

	root.AddCommand(
		newLoginCmd(opts),
		newMaterialsCmd(opts),
		newStockCmd(opts),
		newCostsCmd(opts),
		newStatsCmd(opts),
	)
	return root
}

// session returns a client carrying the --token session.
func (o *rootOptions) session() (*client.Client, error) {
	c := client.New(o.server, o.timeout)
	if strings.TrimSpace(o.token) == "" {
		return nil, errors.New("no token: run `opsctl login` and export OPSCTL_TOKEN")
	}
	c.Resume(o.token)
	return c, nil
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print a bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := client.New(opts.server, opts.timeout)
			session, err := c.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), session.Token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newMaterialsCmd(opts *rootOptions) *cobra.Command {
	var lowOnly bool
	cmd := &cobra.Command{
		Use:   "materials",
		Short: "List raw materials and their stock",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.session()
			if err != nil {
				return err
			}
			var materials []domain.Material
			if lowOnly {
				materials, err = c.LowStockMaterials(cmd.Context())
			} else {
				materials, err = c.Materials(cmd.Context())
			}
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCODE\tNAME\tSTOCK\tMIN\tUNIT\tLOW")
			for _, m := range materials {
				low := ""
				if m.LowStock {
					low = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", m.ID, m.Code, m.Name, m.CurrentStock, m.MinStockLevel, m.Unit, low)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&lowOnly, "low", false, "only materials at or below their minimum")
	return cmd
}

func newStockCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Record stock movements",
	}
	cmd.AddCommand(
		newStockMoveCmd(opts, domain.TransactionIn, "Receive material into stock"),
		newStockMoveCmd(opts, domain.TransactionOut, "Issue material from stock"),
	)
	return cmd
}

func newStockMoveCmd(opts *rootOptions, txType domain.TransactionType, short string) *cobra.Command {
	var reference, notes string
	cmd := &cobra.Command{
		Use:   string(txType) + " MATERIAL_ID QUANTITY",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("quantity %q is not a number", args[1])
			}
			c, err := opts.session()
			if err != nil {
				return err
			}
			tx, err := c.AppendStockTransaction(cmd.Context(), domain.StockTransactionRequest{
				MaterialID:      args[0],
				TransactionType: txType,
				Quantity:        qty,
				Reference:       reference,
				Notes:           notes,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s %s\n", tx.ID, tx.MaterialID, tx.TransactionType, tx.Quantity)
			return nil
		},
	}
	cmd.Flags().StringVar(&reference, "reference", "", "document or batch reference")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	return cmd
}

func newCostsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "costs",
		Short: "Show the material cost breakdown",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.session()
			if err != nil {
				return err
			}
			analysis, err := c.CostAnalysis(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MATERIAL\tQUANTITY\tUNIT PRICE\tTOTAL\tSHARE %")
			for _, row := range analysis.Rows {
				fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\t%s\n", row.MaterialName, row.TotalQuantity, row.Unit, row.UnitPrice.StringFixed(2), row.TotalCost.StringFixed(2), row.Percentage.StringFixed(2))
			}
			fmt.Fprintf(w, "TOTAL\t\t\t%s\t\n", analysis.GrandTotal.StringFixed(2))
			return w.Flush()
		},
	}
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show dashboard counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.session()
			if err != nil {
				return err
			}
			stats, err := c.DashboardStats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "raw materials:      %d\n", stats.TotalRawMaterials)
			fmt.Fprintf(out, "products:           %d\n", stats.TotalProducts)
			fmt.Fprintf(out, "active productions: %d\n", stats.ActiveProductions)
			fmt.Fprintf(out, "pending shipments:  %d\n", stats.PendingShipments)
			fmt.Fprintf(out, "low stock:          %d\n", stats.LowStockMaterials)
			return nil
		},
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
