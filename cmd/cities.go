package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dealerwatch/dealercrawl/internal/catalog"
)

func newCitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cities",
		Short: "Refreshes the location catalog and prints its entries",
		RunE: func(_ *cobra.Command, _ []string) error {
			cat := catalog.New(cfg.CatalogConfigFor(), logger.Named("catalog"))
			if err := cat.Load(); err != nil {
				return fmt.Errorf("load location catalog: %w", err)
			}
			entries := cat.Entries()
			logger.Info("location catalog loaded", zap.Int("entries", len(entries)))
			for _, e := range entries {
				if e.Region != "" {
					fmt.Printf("%s\t%s\n", e.Name, e.Region)
					continue
				}
				fmt.Println(e.Name)
			}
			return nil
		},
	}
}
