package templates

import (
	"context"
	"strings"
	"testing"

	"commerce-insights/internal/models"
	"github.com/a-h/templ"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var b strings.Builder
	if err := c.Render(context.Background(), &b); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return b.String()
}

func TestDashboard(t *testing.T) {
	html := render(t, Dashboard())

	for _, want := range []string{
		"<!DOCTYPE html>",
		datastarScript,
		`data-init="@get('/sse/refresh')"`,
		`data-on:change="@post('/sse/filters')"`,
		`data-bind="filters.year"`,
		`data-bind="filters.product"`,
		`id="kpi-panel"`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
}

func TestFilterOptions(t *testing.T) {
	html := render(t, FilterOptions(models.DimensionRegion, []string{"RJ", "<SP>"}, "rj"))

	if !strings.Contains(html, `<option value="RJ" selected>RJ</option>`) {
		t.Errorf("selected option not marked: %s", html)
	}
	if strings.Contains(html, "<SP>") || !strings.Contains(html, "&lt;SP&gt;") {
		t.Errorf("option value not escaped: %s", html)
	}
}

func TestFilterOptionsEmpty(t *testing.T) {
	html := render(t, FilterOptions(models.DimensionProduct, nil, ""))

	for _, want := range []string{
		`<option value="all">All</option>`,
		`<option value="" disabled>No values available</option>`,
	} {
		if !strings.Contains(html, want) {
			t.Errorf("empty list missing %q: %s", want, html)
		}
	}
}

func TestKPIPanel(t *testing.T) {
	s := models.Snapshot{
		Empty:       true,
		RecordCount: 0,
		KPIs: models.KPIs{
			TotalOrders:           12,
			TotalRevenue:          1234.5,
			PercentLateDeliveries: 8.333,
			AverageProfitRatio:    0.25,
		},
	}
	html := render(t, KPIPanel(s))

	for _, want := range []string{
		`id="kpi-panel"`,
		"No records match",
		"$1234.50",
		"8.3%",
		"25.0%",
		"<strong>12</strong>",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("panel missing %q:\n%s", want, html)
		}
	}
}

func TestStatus(t *testing.T) {
	html := render(t, Status(`load failed: <bad> "file"`, true))
	if !strings.Contains(html, `class="error"`) || strings.Contains(html, "<bad>") {
		t.Errorf("status = %s", html)
	}
}
