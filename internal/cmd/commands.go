package cmd

import (
	"fmt"

	"commerce-insights/internal/models"
	"github.com/spf13/cobra"
)

func newSnapshotCmd(opts *rootOptions) *cobra.Command {
	var kpisOnly bool

	c := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the dashboard snapshot for the given filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, snapshot, _, err := opts.selected(cmd)
			if err != nil {
				return err
			}
			if kpisOnly {
				return writeJSON(cmd.OutOrStdout(), snapshot.KPIs)
			}
			return writeJSON(cmd.OutOrStdout(), snapshot)
		},
	}
	c.Flags().BoolVar(&kpisOnly, "kpis", false, "Print only the KPI block")
	return c
}

func newOptionsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "options <dimension>",
		Short:     "List the values of one dimension reachable under the given filters",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"year", "region", "category", "product"},
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := models.ParseDimension(args[0])
			if err != nil {
				return err
			}
			analytics, _, _, err := opts.selected(cmd)
			if err != nil {
				return err
			}
			options, err := analytics.Options(d)
			if err != nil {
				return fmt.Errorf("resolve %s options: %w", d, err)
			}
			return writeJSON(cmd.OutOrStdout(), options)
		},
	}
}

type guardResult struct {
	Filters     models.Filters     `json:"filters"`
	Reset       []models.Dimension `json:"reset"`
	RecordCount int                `json:"record_count"`
	Empty       bool               `json:"empty"`
}

func newGuardCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "guard",
		Short: "Show which filters the consistency guard keeps or resets",
		Long: `guard applies the filter flags in one step and reports the selection the
consistency guard settles on, along with the dimensions it reset to "all".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, snapshot, reset, err := opts.selected(cmd)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), guardResult{
				Filters:     snapshot.Filters,
				Reset:       reset,
				RecordCount: snapshot.RecordCount,
				Empty:       snapshot.Empty,
			})
		},
	}
}
