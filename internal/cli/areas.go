package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/flyer-quote/internal/areas"
	"github.com/noah-isme/flyer-quote/internal/distribution"
	"github.com/noah-isme/flyer-quote/internal/obs"
	"github.com/noah-isme/flyer-quote/internal/remote"
)

func areasCmd(g *globalFlags) *cobra.Command {
	var (
		areasPath string
		place     string
		canton    string
		query     string
		from, to  int
		limit     int
		format    string
	)

	c := &cobra.Command{
		Use:   "areas",
		Short: "Search the postal code area directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := obs.NewLoggerTo(cmd.ErrOrStderr(), "console", g.logLevel)
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			dir, err := areas.Load(ctx, remote.Open(areasPath, remote.Options{Logger: logger}), logger)
			if err != nil {
				return fmt.Errorf("load areas: %w", err)
			}

			var units []distribution.Unit
			switch {
			case from != 0 || to != 0:
				units, err = dir.ByPostalRange(from, to)
				if err != nil {
					return err
				}
			case place != "":
				units = dir.ByPlace(place, canton)
			case query != "":
				units = dir.Search(query, limit)
			default:
				return errors.New("one of --place, --from/--to or --query is required")
			}
			if limit > 0 && len(units) > limit {
				units = units[:limit]
			}
			return printUnits(cmd.OutOrStdout(), units, format)
		},
	}

	c.Flags().StringVar(&areasPath, "areas", "", "Area directory file or URL (required)")
	c.Flags().StringVar(&place, "place", "", "Place name")
	c.Flags().StringVar(&canton, "canton", "", "Canton code restricting --place")
	c.Flags().StringVarP(&query, "query", "q", "", "Postal code or place prefix")
	c.Flags().IntVar(&from, "from", 0, "First postal code of a range")
	c.Flags().IntVar(&to, "to", 0, "Last postal code of a range")
	c.Flags().IntVar(&limit, "limit", 50, "Maximum number of results")
	c.Flags().StringVar(&format, "format", "pretty", "Output format: pretty|json")

	_ = c.MarkFlagRequired("areas")
	return c
}

func printUnits(w io.Writer, units []distribution.Unit, format string) error {
	switch format {
	case "json":
		if units == nil {
			units = []distribution.Unit{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(units)
	case "pretty", "":
		if len(units) == 0 {
			fmt.Fprintln(w, "No postal code areas found.")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tPOSTAL CODE\tPLACE\tCANTON\tCATEGORY\tALL\tMFH\tEFH")
		for _, u := range units {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
				u.ID, u.PostalCode, u.Place, u.Canton, u.PriceCategory,
				u.Households.All, u.Households.MultiFamily, u.Households.SingleFamily)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported format %q (expected pretty|json)", format)
	}
}
