package commands

import (
	"fmt"
	"os"
	"strings"

	"ticketwatch/lib/configutil"
	"ticketwatch/lib/pricehistory"
	"ticketwatch/lib/serviceutil"

	"github.com/antzucaro/matchr"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var historyVendor *string

func init() {
	historyVendor = historyCmd.Flags().String("vendor", "", "Only show entries for this vendor.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [--vendor <name>]",
	Short: "Prints the tracked price history.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := configutil.ReadConfig[Config]("config.json5")
		if err != nil && !os.IsNotExist(err) {
			serviceutil.Fatal("failed to read config", err)
		}

		store := pricehistory.Load(cfg.historyPath())
		entries := store.Entries()

		if *historyVendor != "" {
			filter := pricehistory.Vendor(strings.ToUpper(*historyVendor))
			var kept []pricehistory.Entry
			for _, entry := range entries {
				if entry.Vendor == filter {
					kept = append(kept, entry)
				}
			}
			if len(kept) == 0 {
				fmt.Fprintf(os.Stderr, "no history for vendor %q", filter)
				if suggestion := nearestVendor(string(filter), entries); suggestion != "" {
					fmt.Fprintf(os.Stderr, ", did you mean %q?", suggestion)
				}
				fmt.Fprintln(os.Stderr)
				os.Exit(1)
			}
			entries = kept
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"Vendor", "Date", "All-Time Low", "Low Seen At", "Last Price", "Last Seen At"})
		for _, entry := range entries {
			row := table.Row{string(entry.Vendor), entry.Date, "", "", "", ""}
			if entry.AllTimeLow != nil {
				row[2] = entry.AllTimeLow.Price.String()
				row[3] = entry.AllTimeLow.ObservedAt.Format("2006-01-02 15:04")
			}
			if entry.LastObservation != nil {
				row[4] = entry.LastObservation.Price.String()
				row[5] = entry.LastObservation.ObservedAt.Format("2006-01-02 15:04")
			}
			tw.AppendRow(row)
		}
		tw.Render()
	},
}

func nearestVendor(name string, entries []pricehistory.Entry) string {
	best := ""
	bestDistance := len(name)
	for _, entry := range entries {
		distance := matchr.DamerauLevenshtein(name, string(entry.Vendor))
		if distance < bestDistance {
			best = string(entry.Vendor)
			bestDistance = distance
		}
	}
	return best
}
