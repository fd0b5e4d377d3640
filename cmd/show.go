package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
	"github.com/JakeFAU/keiba-crawler/internal/extract"
	"github.com/JakeFAU/keiba-crawler/internal/report"
)

// newShowCmd prints a cached race result as tables.
func newShowCmd() *cobra.Command {
	var raceID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Prints a cached race result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			key := crawler.RaceResultKey(raceID)
			if err := key.Validate(); err != nil {
				return err
			}
			markup, err := a.Cache().Read(cmd.Context(), key)
			if errors.Is(err, crawler.ErrNotFound) {
				return fmt.Errorf("race %s is not cached; crawl it first", raceID)
			}
			if err != nil {
				return err
			}
			doc, err := extract.ParseDocument(markup)
			if err != nil {
				return err
			}
			res, err := extract.RaceResult(doc, raceID)
			if err != nil {
				a.Logger().Warn("race header partially extracted", zap.String("race_id", raceID), zap.Error(err))
			}
			return report.Print(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&raceID, "race-id", "", "netkeiba race id, e.g. 202406010111")
	_ = cmd.MarkFlagRequired("race-id")
	return cmd
}
