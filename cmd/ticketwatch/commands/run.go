package commands

import (
	"log/slog"
	"os"
	"time"

	"ticketwatch/lib/configutil"
	"ticketwatch/lib/restyutil"
	"ticketwatch/lib/serviceutil"
	"ticketwatch/services/tracker"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var dumpHttp *string

func init() {
	dumpHttp = runCmd.Flags().String("dump-http", "", "Directory to dump fetched HTTP exchanges to, for debugging.")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs one tracking pass over every configured vendor and date.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := configutil.ReadConfig[Config]("config.json5")
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		targets, err := tracker.BuildTargets(cfg.Dates, cfg.Vendors)
		if err != nil {
			serviceutil.Fatal("failed to build targets", err)
		}
		minPrice, err := cfg.minPrice()
		if err != nil {
			serviceutil.Fatal("invalid min_price", err)
		}

		var instrument restyutil.InstrumentOutput
		if *dumpHttp != "" {
			instrument = restyutil.NewFilesystemOutput(*dumpHttp)
		}
		fetcher, err := tracker.NewPageFetcher(tracker.FetcherOptions{
			InstrumentOutput: instrument,
		})
		if err != nil {
			serviceutil.Fatal("failed to initialize fetcher", err)
		}
		notifier := tracker.NewMailer(cfg.Smtp, cfg.EmailTo)

		service := tracker.NewService(fetcher, notifier, tracker.Options{
			Targets:     targets,
			HistoryPath: cfg.historyPath(),
			MinPrice:    minPrice,
			Party:       cfg.Party,
		})

		t1 := time.Now()
		report, err := service.Run(cmd.Context())
		if err != nil {
			serviceutil.Fatal("run did not complete", err)
		}
		t2 := time.Now()

		printReport(report)
		slog.Info("run complete",
			"run_id", report.RunID,
			"targets", len(report.Results),
			"failures", len(report.Failures()),
			"new_lows", len(report.NewLows),
			"seconds", t2.Sub(t1).Seconds(),
		)
	},
}

func printReport(report tracker.Report) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Vendor", "Date", "Outcome", "Price"})
	for _, res := range report.Results {
		price := ""
		if res.Observation != nil {
			price = res.Observation.Price.String()
		}
		tw.AppendRow(table.Row{
			string(res.Target.Vendor),
			res.Target.Date,
			string(res.Outcome),
			price,
		})
	}
	tw.Render()
}
