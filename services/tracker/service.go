// Package tracker runs one tracking pass: fetch every configured
// (vendor, date) page, extract the lowest plausible price, merge it
// into the price history and mail out alerts for new all-time lows
// plus a daily snapshot.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"ticketwatch/lib/pricehistory"
	"ticketwatch/lib/priceparse"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("ticketwatch.services.tracker")

// Fetcher returns the rendered text of the page at url. Implemented
// by PageFetcher in production; failures cover network, navigation
// and the fetcher's own timeout alike.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Notifier delivers one alert. Implemented by Mailer in production.
type Notifier interface {
	Send(ctx context.Context, subject, htmlBody string) error
}

// Target is one (vendor, date) page to check, with the date already
// substituted into the vendor's URL template.
type Target struct {
	Vendor pricehistory.Vendor
	Date   string
	URL    string
}

const datePlaceholder = "{DATE}"

// BuildTargets expands date × vendor into the fixed, deterministic
// target order a run processes: dates in config order, vendors sorted
// by name within each date. Vendor names are uppercased to keep
// history keys stable regardless of config casing.
func BuildTargets(dates []string, vendors map[string]string) ([]Target, error) {
	names := make([]string, 0, len(vendors))
	for name, template := range vendors {
		if !strings.Contains(template, datePlaceholder) {
			return nil, fmt.Errorf("vendor %q: url template is missing the %s placeholder", name, datePlaceholder)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var targets []Target
	for _, date := range dates {
		date = strings.TrimSpace(date)
		if date == "" {
			continue
		}
		_, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("date %q: %w", date, err)
		}
		for _, name := range names {
			targets = append(targets, Target{
				Vendor: pricehistory.Vendor(strings.ToUpper(name)),
				Date:   date,
				URL:    strings.ReplaceAll(vendors[name], datePlaceholder, date),
			})
		}
	}
	return targets, nil
}

type Options struct {
	Targets     []Target
	HistoryPath string
	// MinPrice is the extraction plausibility floor.
	MinPrice decimal.Decimal
	// Party is a free-text summary of who the tickets are for,
	// included in every alert mail.
	Party string
}

type Service struct {
	fetcher  Fetcher
	notifier Notifier
	options  Options
}

func NewService(fetcher Fetcher, notifier Notifier, options Options) Service {
	return Service{
		fetcher:  fetcher,
		notifier: notifier,
		options:  options,
	}
}

type Outcome string

const (
	// OutcomeNewLow means the extracted price is a new all-time low.
	OutcomeNewLow Outcome = "new_low"
	// OutcomeObserved means a price was extracted and recorded but
	// did not beat the stored low.
	OutcomeObserved Outcome = "observed"
	// OutcomeNoPrice means the page fetched fine but contained no
	// plausible amount token. Not an error.
	OutcomeNoPrice Outcome = "no_price"
	// OutcomeFetchFailed means the page could not be fetched.
	OutcomeFetchFailed Outcome = "fetch_failed"
)

type TargetResult struct {
	Target      Target
	Outcome     Outcome
	Observation *pricehistory.Observation
	Err         error
}

// Report summarizes one run. A run with fetch or parse failures still
// completes; only a history save failure aborts it.
type Report struct {
	RunID   string
	Results []TargetResult
	NewLows []pricehistory.Observation
}

func (r Report) Failures() []TargetResult {
	var out []TargetResult
	for _, res := range r.Results {
		if res.Outcome == OutcomeFetchFailed {
			out = append(out, res)
		}
	}
	return out
}

// Fetched returns every result whose page fetch succeeded, whether or
// not a price was extracted from it.
func (r Report) Fetched() []TargetResult {
	var out []TargetResult
	for _, res := range r.Results {
		if res.Outcome != OutcomeFetchFailed {
			out = append(out, res)
		}
	}
	return out
}

// Run executes one tracking pass. Per-target failures are isolated:
// a dead vendor page never blocks the remaining targets. The history
// snapshot is written exactly once, after every target is processed,
// so a run's updates land all-or-nothing. Mail goes out only after a
// successful save and is best-effort.
func (s Service) Run(ctx context.Context) (Report, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	report := Report{RunID: uuid.NewString()}
	log := slog.With("run_id", report.RunID)

	store := pricehistory.Load(s.options.HistoryPath)
	log.InfoContext(ctx, "history loaded", "path", s.options.HistoryPath, "keys", store.Len())

	for _, target := range s.options.Targets {
		result := s.processTarget(ctx, log, store, target)
		report.Results = append(report.Results, result)
		if result.Outcome == OutcomeNewLow {
			report.NewLows = append(report.NewLows, *result.Observation)
		}
	}

	err := store.Save(s.options.HistoryPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to save history")
		return report, fmt.Errorf("save price history: %w", err)
	}
	log.InfoContext(ctx, "history saved", "path", s.options.HistoryPath, "keys", store.Len())

	s.notify(ctx, log, report)
	return report, nil
}

func (s Service) processTarget(ctx context.Context, log *slog.Logger, store *pricehistory.Store, target Target) TargetResult {
	ctx, span := tracer.Start(ctx, "processTarget", trace.WithAttributes(
		attribute.String("vendor", string(target.Vendor)),
		attribute.String("date", target.Date),
		attribute.String("url", target.URL),
	))
	defer span.End()

	text, err := s.fetcher.Fetch(ctx, target.URL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		log.WarnContext(ctx, "failed to fetch page",
			"vendor", target.Vendor, "date", target.Date, "err", err)
		return TargetResult{Target: target, Outcome: OutcomeFetchFailed, Err: err}
	}

	candidate, ok := priceparse.Extract(text, priceparse.Options{MinPrice: s.options.MinPrice})
	if !ok {
		span.AddEvent("no plausible price on page")
		log.InfoContext(ctx, "no price found",
			"vendor", target.Vendor, "date", target.Date)
		return TargetResult{Target: target, Outcome: OutcomeNoPrice}
	}

	obs := pricehistory.Observation{
		Vendor:     target.Vendor,
		Date:       target.Date,
		Price:      candidate.Price,
		ObservedAt: time.Now().UTC(),
		URL:        target.URL,
		Snippet:    candidate.Raw,
	}
	isNewLow := store.Merge(obs)

	outcome := OutcomeObserved
	if isNewLow {
		outcome = OutcomeNewLow
		log.InfoContext(ctx, "new all-time low",
			"vendor", target.Vendor, "date", target.Date, "price", obs.Price)
	} else {
		log.InfoContext(ctx, "price observed",
			"vendor", target.Vendor, "date", target.Date, "price", obs.Price)
	}
	span.SetAttributes(
		attribute.String("price", obs.Price.String()),
		attribute.Bool("new_low", isNewLow),
	)
	return TargetResult{Target: target, Outcome: outcome, Observation: &obs}
}

func (s Service) notify(ctx context.Context, log *slog.Logger, report Report) {
	ctx, span := tracer.Start(ctx, "notify")
	defer span.End()

	for _, low := range report.NewLows {
		subject, body := newLowEmail(low, s.options.Party)
		err := s.notifier.Send(ctx, subject, body)
		if err != nil {
			log.WarnContext(ctx, "failed to send new low alert",
				"vendor", low.Vendor, "date", low.Date, "err", err)
		}
	}

	fetched := report.Fetched()
	if len(fetched) == 0 {
		log.InfoContext(ctx, "no page fetched this run, skipping snapshot mail")
		return
	}
	subject, body := snapshotEmail(fetched, report.Failures(), s.options.Party)
	err := s.notifier.Send(ctx, subject, body)
	if err != nil {
		log.WarnContext(ctx, "failed to send snapshot mail", "err", err)
	}
}
