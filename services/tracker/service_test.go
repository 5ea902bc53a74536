package tracker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ticketwatch/lib/pricehistory"
	"ticketwatch/lib/telemetry"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	pages map[string]string
	errs  map[string]error
}

func (f fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err, ok := f.errs[url]; ok {
		return "", err
	}
	page, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("no fixture for %s", url)
	}
	return page, nil
}

type sentMail struct {
	subject string
	body    string
}

type fakeNotifier struct {
	sent []sentMail
	err  error
}

func (n *fakeNotifier) Send(ctx context.Context, subject, body string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMail{subject: subject, body: body})
	return nil
}

func setup(t testing.TB, fetcher Fetcher, notifier Notifier, targets []Target, historyPath string) Service {
	cleanup := telemetry.SetupForTesting(t, "test:services/tracker")
	t.Cleanup(cleanup)

	return NewService(fetcher, notifier, Options{
		Targets:     targets,
		HistoryPath: historyPath,
		MinPrice:    decimal.NewFromInt(5),
		Party:       "2 adults + child (22 months; check policy)",
	})
}

func TestBuildTargets(t *testing.T) {
	targets, err := BuildTargets(
		[]string{"2025-09-01", "2025-09-02"},
		map[string]string{
			"tripcom": "https://trip.example.com/tickets?date={DATE}",
			"klook":   "https://klook.example.com/activity?start={DATE}",
		},
	)
	require.NoError(t, err)
	require.Equal(t, []Target{
		{Vendor: "KLOOK", Date: "2025-09-01", URL: "https://klook.example.com/activity?start=2025-09-01"},
		{Vendor: "TRIPCOM", Date: "2025-09-01", URL: "https://trip.example.com/tickets?date=2025-09-01"},
		{Vendor: "KLOOK", Date: "2025-09-02", URL: "https://klook.example.com/activity?start=2025-09-02"},
		{Vendor: "TRIPCOM", Date: "2025-09-02", URL: "https://trip.example.com/tickets?date=2025-09-02"},
	}, targets)
}

func TestBuildTargetsRejectsBadInput(t *testing.T) {
	_, err := BuildTargets([]string{"09/01/2025"}, map[string]string{
		"klook": "https://klook.example.com/?date={DATE}",
	})
	require.Error(t, err)

	_, err = BuildTargets([]string{"2025-09-01"}, map[string]string{
		"klook": "https://klook.example.com/no-placeholder",
	})
	require.Error(t, err)
}

func TestBuildTargetsSkipsBlankDates(t *testing.T) {
	targets, err := BuildTargets([]string{" ", "2025-09-01", ""}, map[string]string{
		"klook": "https://klook.example.com/?date={DATE}",
	})
	require.NoError(t, err)
	require.Len(t, targets, 1)
}

func TestLowDetectionAcrossRuns(t *testing.T) {
	historyPath := filepath.Join(t.TempDir(), "history.json")
	targets := []Target{
		{Vendor: pricehistory.VendorKlook, Date: "2025-09-01", URL: "https://k/1"},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	// first run: empty history, any price is a new low
	{
		notifier := &fakeNotifier{}
		service := setup(t, fakeFetcher{pages: map[string]string{
			"https://k/1": "Adult ticket $120",
		}}, notifier, targets, historyPath)

		report, err := service.Run(ctx)
		require.NoError(t, err)
		require.Len(t, report.NewLows, 1)
		require.True(t, report.NewLows[0].Price.Equal(decimal.NewFromInt(120)))

		entry, ok := pricehistory.Load(historyPath).Lookup(pricehistory.VendorKlook, "2025-09-01")
		require.True(t, ok)
		require.True(t, entry.AllTimeLow.Price.Equal(decimal.NewFromInt(120)))
	}

	// second run: higher price, no new low, last observation moves
	{
		notifier := &fakeNotifier{}
		service := setup(t, fakeFetcher{pages: map[string]string{
			"https://k/1": "Adult ticket $150",
		}}, notifier, targets, historyPath)

		report, err := service.Run(ctx)
		require.NoError(t, err)
		require.Empty(t, report.NewLows)

		entry, _ := pricehistory.Load(historyPath).Lookup(pricehistory.VendorKlook, "2025-09-01")
		require.True(t, entry.AllTimeLow.Price.Equal(decimal.NewFromInt(120)))
		require.True(t, entry.LastObservation.Price.Equal(decimal.NewFromInt(150)))

		// snapshot mail only, no low alert
		require.Len(t, notifier.sent, 1)
		require.Equal(t, "Daily price snapshot", notifier.sent[0].subject)
	}

	// third run: strictly lower, both fields move
	{
		notifier := &fakeNotifier{}
		service := setup(t, fakeFetcher{pages: map[string]string{
			"https://k/1": "Flash sale! Adult ticket $99",
		}}, notifier, targets, historyPath)

		report, err := service.Run(ctx)
		require.NoError(t, err)
		require.Len(t, report.NewLows, 1)

		entry, _ := pricehistory.Load(historyPath).Lookup(pricehistory.VendorKlook, "2025-09-01")
		require.True(t, entry.AllTimeLow.Price.Equal(decimal.NewFromInt(99)))
		require.True(t, entry.LastObservation.Price.Equal(decimal.NewFromInt(99)))

		require.Len(t, notifier.sent, 2)
		require.Equal(t, "New lowest price: KLOOK 2025-09-01", notifier.sent[0].subject)
	}
}

func TestPartialFetchFailure(t *testing.T) {
	historyPath := filepath.Join(t.TempDir(), "history.json")
	targets := []Target{
		{Vendor: pricehistory.VendorKlook, Date: "2025-09-01", URL: "https://k/1"},
		{Vendor: pricehistory.VendorTripcom, Date: "2025-09-01", URL: "https://t/1"},
	}
	notifier := &fakeNotifier{}
	service := setup(t, fakeFetcher{
		pages: map[string]string{"https://t/1": "from $95"},
		errs:  map[string]error{"https://k/1": errors.New("navigation timeout")},
	}, notifier, targets, historyPath)

	report, err := service.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Failures(), 1)
	require.Equal(t, pricehistory.VendorKlook, report.Failures()[0].Target.Vendor)

	// the save still happened and holds the surviving key
	store := pricehistory.Load(historyPath)
	require.Equal(t, 1, store.Len())
	_, ok := store.Lookup(pricehistory.VendorTripcom, "2025-09-01")
	require.True(t, ok)

	// failure count surfaces in the snapshot mail
	require.Len(t, notifier.sent, 2)
	require.Contains(t, notifier.sent[1].body, "1 page(s) could not be fetched")
}

func TestNoPriceIsNotAFailure(t *testing.T) {
	historyPath := filepath.Join(t.TempDir(), "history.json")
	targets := []Target{
		{Vendor: pricehistory.VendorKlook, Date: "2025-09-01", URL: "https://k/1"},
	}
	notifier := &fakeNotifier{}
	service := setup(t, fakeFetcher{pages: map[string]string{
		"https://k/1": "tickets are sold out, check back later",
	}}, notifier, targets, historyPath)

	report, err := service.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Failures())
	require.Equal(t, OutcomeNoPrice, report.Results[0].Outcome)

	// nothing merged: history stays empty, but the fetch succeeded
	// so the key still shows up in the snapshot mail as N/A
	require.Equal(t, 0, pricehistory.Load(historyPath).Len())
	require.Len(t, notifier.sent, 1)
	require.Equal(t, "Daily price snapshot", notifier.sent[0].subject)
	require.Contains(t, notifier.sent[0].body, "N/A")
}

func TestSnapshotIncludesNoPriceRows(t *testing.T) {
	historyPath := filepath.Join(t.TempDir(), "history.json")
	targets := []Target{
		{Vendor: pricehistory.VendorKlook, Date: "2025-09-01", URL: "https://k/1"},
		{Vendor: pricehistory.VendorTripcom, Date: "2025-09-01", URL: "https://t/1"},
	}
	notifier := &fakeNotifier{}
	service := setup(t, fakeFetcher{pages: map[string]string{
		"https://k/1": "Adult ticket $120",
		"https://t/1": "tickets are sold out, check back later",
	}}, notifier, targets, historyPath)

	_, err := service.Run(context.Background())
	require.NoError(t, err)

	var snapshot sentMail
	for _, mail := range notifier.sent {
		if mail.subject == "Daily price snapshot" {
			snapshot = mail
		}
	}
	require.NotEmpty(t, snapshot.subject)
	require.Contains(t, snapshot.body, "KLOOK")
	require.Contains(t, snapshot.body, "120")
	// the fetch for TRIPCOM succeeded, so its key is summarized even
	// though no plausible price was on the page
	require.Contains(t, snapshot.body, "TRIPCOM")
	require.Contains(t, snapshot.body, "N/A")
}

func TestSaveFailureAbortsRun(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	// parent "directory" is a regular file, the save cannot succeed
	historyPath := filepath.Join(blocker, "history.json")
	targets := []Target{
		{Vendor: pricehistory.VendorKlook, Date: "2025-09-01", URL: "https://k/1"},
	}
	notifier := &fakeNotifier{}
	service := setup(t, fakeFetcher{pages: map[string]string{
		"https://k/1": "Adult ticket $120",
	}}, notifier, targets, historyPath)

	_, err := service.Run(context.Background())
	require.Error(t, err)
	// no mail goes out when history could not be saved
	require.Empty(t, notifier.sent)
}

func TestNotifyFailureDoesNotAbort(t *testing.T) {
	historyPath := filepath.Join(t.TempDir(), "history.json")
	targets := []Target{
		{Vendor: pricehistory.VendorKlook, Date: "2025-09-01", URL: "https://k/1"},
	}
	notifier := &fakeNotifier{err: errors.New("smtp: connection refused")}
	service := setup(t, fakeFetcher{pages: map[string]string{
		"https://k/1": "Adult ticket $120",
	}}, notifier, targets, historyPath)

	report, err := service.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.NewLows, 1)

	// history survived even though delivery failed
	require.Equal(t, 1, pricehistory.Load(historyPath).Len())
}

func TestSnapshotMailListsObservedTargets(t *testing.T) {
	historyPath := filepath.Join(t.TempDir(), "history.json")
	targets := []Target{
		{Vendor: pricehistory.VendorKlook, Date: "2025-09-01", URL: "https://k/1"},
		{Vendor: pricehistory.VendorTripcom, Date: "2025-09-01", URL: "https://t/1"},
	}
	notifier := &fakeNotifier{}
	service := setup(t, fakeFetcher{pages: map[string]string{
		"https://k/1": "Adult $120",
		"https://t/1": "Adult $110",
	}}, notifier, targets, historyPath)

	_, err := service.Run(context.Background())
	require.NoError(t, err)

	var snapshot sentMail
	for _, mail := range notifier.sent {
		if mail.subject == "Daily price snapshot" {
			snapshot = mail
		}
	}
	require.NotEmpty(t, snapshot.subject)
	require.Contains(t, snapshot.body, "KLOOK")
	require.Contains(t, snapshot.body, "TRIPCOM")
	require.Contains(t, snapshot.body, "120")
	require.Contains(t, snapshot.body, "110")
}
