package tracker

import (
	"fmt"
	"html"

	"ticketwatch/lib/pricehistory"

	"github.com/jedib0t/go-pretty/v6/table"
)

func newLowEmail(obs pricehistory.Observation, party string) (subject, body string) {
	subject = fmt.Sprintf("New lowest price: %s %s", obs.Vendor, obs.Date)
	body = fmt.Sprintf(`<h3>New Lowest Price Found</h3>
<p><strong>Vendor:</strong> %s<br/>
<strong>Date:</strong> %s<br/>
<strong>Price:</strong> %s<br/>
<strong>Party:</strong> %s<br/>
<strong>Link:</strong> <a href="%s">Open</a></p>`,
		html.EscapeString(string(obs.Vendor)),
		html.EscapeString(obs.Date),
		html.EscapeString(obs.Price.String()),
		html.EscapeString(party),
		html.EscapeString(obs.URL),
	)
	return subject, body
}

// snapshotEmail summarizes every target whose fetch succeeded this
// run; pages that parsed to no plausible price show as N/A rows.
func snapshotEmail(fetched, failures []TargetResult, party string) (subject, body string) {
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Vendor", "Date", "Min Price", "Link"})
	for _, res := range fetched {
		price := "N/A"
		if res.Observation != nil {
			price = res.Observation.Price.String()
		}
		tw.AppendRow(table.Row{
			string(res.Target.Vendor),
			res.Target.Date,
			price,
			res.Target.URL,
		})
	}

	footer := ""
	if len(failures) > 0 {
		footer = fmt.Sprintf("<p>%d page(s) could not be fetched this run.</p>", len(failures))
	}

	subject = "Daily price snapshot"
	body = fmt.Sprintf("<h3>Daily Snapshot</h3><p>%s</p>%s%s",
		html.EscapeString(party), tw.RenderHTML(), footer)
	return subject, body
}
