package commands

import (
	"ticketwatch/services/tracker"

	"github.com/shopspring/decimal"
)

type Config struct {
	// Dates is the set of ISO calendar dates to track.
	Dates []string `json:"dates"`
	// Vendors maps vendor name to a URL template containing the
	// {DATE} placeholder.
	Vendors map[string]string `json:"vendors"`
	// MinPrice is the extraction plausibility floor. Defaults to 5.
	MinPrice    string `json:"min_price"`
	HistoryPath string `json:"history_path"`
	// Party is included verbatim in alert mails, e.g.
	// "2 adults + child (22 months; check policy)".
	Party   string             `json:"party"`
	EmailTo string             `json:"email_to"`
	Smtp    tracker.SmtpConfig `json:"smtp"`
}

func (c Config) historyPath() string {
	if c.HistoryPath == "" {
		return "data/history.json"
	}
	return c.HistoryPath
}

func (c Config) minPrice() (decimal.Decimal, error) {
	if c.MinPrice == "" {
		return decimal.NewFromInt(5), nil
	}
	return decimal.NewFromString(c.MinPrice)
}
