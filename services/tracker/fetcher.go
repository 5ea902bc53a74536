package tracker

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"time"

	"ticketwatch/lib/htmlutil"
	"ticketwatch/lib/restyutil"
	"ticketwatch/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

type FetcherOptions struct {
	// Timeout bounds a single page fetch. Defaults to 45s, which is
	// how long a slow vendor page is worth waiting for before the
	// run moves on to the next target.
	Timeout time.Duration
	// InstrumentOutput, when set, dumps every HTTP exchange to disk
	// for debugging. nil disables dumping.
	InstrumentOutput restyutil.InstrumentOutput
}

// PageFetcher fetches vendor pages over plain HTTP. Vendor pages are
// server-rendered enough for amount tokens to appear in the document;
// a headless-browser fetcher can be substituted through the Fetcher
// interface without touching the rest of the run.
type PageFetcher struct {
	http *resty.Client
}

func NewPageFetcher(opts FetcherOptions) (PageFetcher, error) {
	client := resty.New()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return PageFetcher{}, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Second * 45
	}
	client.SetTimeout(timeout)

	telemetry.InstrumentResty(client, "tracker/http")
	restyutil.InstrumentClient(client, opts.InstrumentOutput)

	return PageFetcher{http: client}, nil
}

// Fetch returns the rendered text of the page at url.
func (f PageFetcher) Fetch(ctx context.Context, url string) (string, error) {
	res, err := f.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", err
	}
	if res.StatusCode() != 200 {
		return "", fmt.Errorf("fetch %s: unexpected status %d", url, res.StatusCode())
	}

	text, err := htmlutil.DocumentText(res.String())
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", url, err)
	}
	return text, nil
}
