package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/flyer-quote/internal/areas"
	"github.com/noah-isme/flyer-quote/internal/obs"
	"github.com/noah-isme/flyer-quote/internal/order"
	"github.com/noah-isme/flyer-quote/internal/pricetable"
	"github.com/noah-isme/flyer-quote/internal/remote"
	"github.com/noah-isme/flyer-quote/internal/schedule"
)

func priceCmd(g *globalFlags) *cobra.Command {
	var (
		prices    string
		areasPath string
		orderPath string
		format    string
		at        string
		timeout   time.Duration
	)

	c := &cobra.Command{
		Use:   "price",
		Short: "Price an order file against a price table and area directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := obs.NewLoggerTo(cmd.ErrOrStderr(), "console", g.logLevel)
			cal, err := schedule.NewCalendar(g.timezone, g.leadDays)
			if err != nil {
				return err
			}
			now, err := parseNow(at)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			// The order is reduced while the price table loads; the table is
			// pushed into the coordinator once it arrives.
			provider := pricetable.NewProvider(remote.Open(prices, remote.Options{Timeout: timeout, Logger: logger}), logger)
			loaded := make(chan error, 1)
			go func() {
				_, err := provider.Load(ctx)
				loaded <- err
			}()

			dir, err := areas.Load(ctx, remote.Open(areasPath, remote.Options{Timeout: timeout, Logger: logger}), logger)
			if err != nil {
				return fmt.Errorf("load areas: %w", err)
			}
			of, err := readOrderFile(orderPath)
			if err != nil {
				return err
			}
			cmds, lookupErr := of.commands(dir)
			if lookupErr != nil {
				logger.Warn().Err(lookupErr).Msg("order file lookups failed")
			}

			coord := order.New(order.Options{
				Calendar: cal,
				Clock:    func() time.Time { return now },
				Logger:   logger,
			})
			updates, unsubscribe := coord.Subscribe()
			defer unsubscribe()
			if _, cmdErr := coord.Dispatch(ctx, cmds...); cmdErr != nil {
				logger.Warn().Err(cmdErr).Msg("order commands rejected")
			}

			if err := <-loaded; err != nil {
				return fmt.Errorf("load price table: %w", err)
			}
			table, err := provider.Wait(ctx)
			if err != nil {
				return err
			}
			coord.SetPriceTable(ctx, table)
			snap := <-updates
			return printSnapshot(cmd.OutOrStdout(), snap, format)
		},
	}

	c.Flags().StringVar(&prices, "prices", "", "Price table file or URL (required)")
	c.Flags().StringVar(&areasPath, "areas", "", "Area directory file or URL (required)")
	c.Flags().StringVarP(&orderPath, "order", "o", "", "Order file in YAML (required)")
	c.Flags().StringVar(&format, "format", "pretty", "Output format: pretty|json")
	c.Flags().StringVar(&at, "now", "", "Evaluate as of this RFC 3339 time (defaults to now)")
	c.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Timeout for loading reference data")

	_ = c.MarkFlagRequired("prices")
	_ = c.MarkFlagRequired("areas")
	_ = c.MarkFlagRequired("order")
	return c
}

func parseNow(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --now %q: %w", value, err)
	}
	return t, nil
}

func printSnapshot(w io.Writer, snap order.Snapshot, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case "pretty", "":
		return printPrettySnapshot(w, snap)
	default:
		return fmt.Errorf("unsupported format %q (expected pretty|json)", format)
	}
}

func printPrettySnapshot(w io.Writer, snap order.Snapshot) error {
	cost := snap.Cost
	d := snap.Distribution

	fmt.Fprintf(w, "Audience:     %s\n", d.Audience)
	fmt.Fprintf(w, "Flyers:       %d in %d area(s)\n", d.TotalFlyers, len(d.Units))
	fmt.Fprintf(w, "Start date:   %s (standard %s, earliest %s)\n", orDash(d.StartDate.String()), d.StandardDate, d.MinDate)
	if d.ExpressApplicable {
		fmt.Fprintf(w, "Express:      applicable, confirmed=%t\n", d.ExpressConfirmed)
	}
	fmt.Fprintln(w)

	if cost.Degraded {
		fmt.Fprintln(w, "No price table available: prices are not shown.")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ITEM\tQTY\tUNIT PRICE\tAMOUNT")
		for _, l := range cost.Lines {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", l.Label, l.Units, l.UnitPrice.StringFixed(2), l.Amount.StringFixed(2))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Distribution: %s %s\n", cost.DistributionSubtotal.StringFixed(2), cost.Currency)
		fmt.Fprintf(w, "Surcharges:   %s %s\n", cost.SurchargeTotal.StringFixed(2), cost.Currency)
		fmt.Fprintf(w, "Production:   %s %s\n", cost.ProductionSubtotal.StringFixed(2), cost.Currency)
		fmt.Fprintf(w, "Net:          %s %s\n", cost.NetSubtotal.StringFixed(2), cost.Currency)
		fmt.Fprintf(w, "Tax %s%%:     %s %s\n", cost.TaxRate.Shift(2).String(), cost.Tax.StringFixed(2), cost.Currency)
		fmt.Fprintf(w, "Total:        %s %s\n", cost.GrandTotal.StringFixed(2), cost.Currency)
		for _, n := range cost.Notes {
			fmt.Fprintf(w, "Note: %s\n", n)
		}
		if len(cost.MissingRates) > 0 {
			fmt.Fprintf(w, "Missing rates for categories: %s\n", strings.Join(cost.MissingRates, ", "))
		}
	}
	fmt.Fprintln(w)

	steps := snap.Steps()
	fmt.Fprintf(w, "Steps:        distribution=%s production=%s contact=%s\n", steps.Distribution, steps.Production, steps.Contact)
	if snap.Validation.Valid {
		fmt.Fprintln(w, "Order:        ready to submit")
	} else {
		fmt.Fprintln(w, "Order:        incomplete")
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
