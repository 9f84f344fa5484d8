package cmd

import (
	"fmt"
	"os"
	"time"

	"landmash/services/listings"
	"landmash/services/store"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	listingDate   string
	listingMarket string
	listingJSON   bool
	listingCached bool
)

func init() {
	listingCmd.Flags().StringVar(&listingDate, "date", "", "Day of the listing as YYYY-MM-DD, defaults to today.")
	listingCmd.Flags().StringVar(&listingMarket, "market", "", "Market of the listing, defaults to the configured default market.")
	listingCmd.Flags().BoolVar(&listingJSON, "json", false, "Print the listing as json.")
	listingCmd.Flags().BoolVar(&listingCached, "cached", false, "Only print a listing that was already built.")
	rootCmd.AddCommand(listingCmd)
}

func parseDate(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return store.Day(now), nil
	}
	date, err := time.Parse(store.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return date, nil
}

func renderListing(listing store.Listing) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("%s, %s", listing.Market, listing.Date.Format("Monday January 2, 2006")))
	t.AppendHeader(table.Row{"#", "Film", "Rank", "Reviews", "Location", "Time", "Setting"})

	for i, showing := range listing.Showings {
		t.AppendRow(table.Row{
			i + 1,
			showing.Film.Title,
			formatRank(listings.Rank(showing)),
			formatReviews(showing.Film.Reviews),
			showing.LocationName,
			showing.TimeString,
			showing.CSetting,
		})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}

var listingCmd = &cobra.Command{
	Use:   "listing",
	Short: "Prints the showings of a market on a day, ranked by critic ratings.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := parseDate(listingDate, time.Now())
		if err != nil {
			return err
		}
		market := listingMarket
		if market == "" {
			market = current.config.DefaultMarket
		}

		var listing store.Listing
		if listingCached {
			listing, err = current.listings.Listing(cmd.Context(), date, market)
		} else {
			listing, err = current.listings.GetListing(cmd.Context(), date, market)
		}
		if err != nil {
			return err
		}

		if listingJSON {
			return writeJSON(os.Stdout, listing)
		}
		renderListing(listing)
		return nil
	},
}
