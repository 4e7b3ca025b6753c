package templates

import (
	"context"
	"fmt"
	"io"
	"strings"

	"commerce-insights/internal/models"
	"github.com/a-h/templ"
	"github.com/shopspring/decimal"
)

const datastarScript = "https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.6/bundles/datastar.js"

// Dashboard is the page shell. Every panel is filled by /sse/refresh once the
// page loads; filter changes post the bound signals to /sse/filters.
func Dashboard() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Commerce Insights</title>
<script type="module" src="` + datastarScript + `"></script>
</head>
<body data-signals='{"filters":{"year":"all","region":"all","category":"all","product":"all"},"snapshot":{},"reset":[]}' data-init="@get('/sse/refresh')">
<header><h1>Commerce Insights</h1></header>
<form id="filters" data-on:change="@post('/sse/filters')">
`)
		for _, d := range models.Dimensions {
			fmt.Fprintf(&b, `<label>%s <select id="filter-%s" data-bind="filters.%s"><option value="all">All</option></select></label>
`, strings.ToUpper(string(d[:1]))+string(d[1:]), d, d)
		}
		b.WriteString(`<button type="button" data-on:click="@post('/api/filters/reset').then(() => @get('/sse/refresh'))">Reset</button>
</form>
<main>
<div id="kpi-panel"></div>
<div id="status"></div>
</main>
</body>
</html>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// FilterOptions renders the option list of one dimension with the current
// selection marked. An empty list gets a disabled placeholder after "All".
func FilterOptions(d models.Dimension, options []string, selected string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		fmt.Fprintf(&b, `<select id="filter-%s" data-bind="filters.%s"><option value="all">All</option>`, d, d)
		if len(options) == 0 {
			b.WriteString(`<option value="" disabled>No values available</option>`)
		}
		for _, o := range options {
			attr := ""
			if strings.EqualFold(o, selected) {
				attr = " selected"
			}
			fmt.Fprintf(&b, `<option value="%s"%s>%s</option>`, templ.EscapeString(o), attr, templ.EscapeString(o))
		}
		b.WriteString(`</select>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// KPIPanel renders the headline numbers of a snapshot.
func KPIPanel(s models.Snapshot) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		k := s.KPIs
		var b strings.Builder
		b.WriteString(`<div id="kpi-panel" class="kpis">`)
		if s.Empty {
			b.WriteString(`<p class="notice">No records match the current filters; figures show the overall dataset.</p>`)
		}
		rows := []struct{ label, value string }{
			{"Orders", fmt.Sprintf("%d", k.TotalOrders)},
			{"Revenue", money(k.TotalRevenue)},
			{"Average price", money(k.AverageProductPrice)},
			{"Average price per category", money(k.AveragePricePerCategory)},
			{"Average shipping", money(k.AverageShippingCost)},
			{"Average delivery (days)", fixed(k.AverageDeliveryTime, 1)},
			{"Late deliveries", fixed(k.PercentLateDeliveries, 1) + "%"},
			{"Average rating", fixed(k.AverageCustomerRating, 2)},
			{"Negative reviews", fmt.Sprintf("%d", k.NegativeReviews)},
			{"Profit ratio", fixed(k.AverageProfitRatio*100, 1) + "%"},
			{"Profit per weight unit", money(k.AverageWeightProfitRatio)},
		}
		for _, r := range rows {
			fmt.Fprintf(&b, `<div class="kpi"><span class="label">%s</span><strong>%s</strong></div>`,
				templ.EscapeString(r.label), templ.EscapeString(r.value))
		}
		fmt.Fprintf(&b, `<p class="meta">%d records</p></div>`, s.RecordCount)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// Status renders the status line, including guard resets and load errors.
func Status(message string, isError bool) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		class := "info"
		if isError {
			class = "error"
		}
		_, err := fmt.Fprintf(w, `<div id="status" class="%s">%s</div>`, class, templ.EscapeString(message))
		return err
	})
}

func money(v float64) string {
	return "$" + decimal.NewFromFloat(v).StringFixed(2)
}

func fixed(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}
