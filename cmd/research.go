package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/pricing-research/internal/api"
)

func newResearchCmd() *cobra.Command {
	var (
		req    api.Request
		cached bool
	)
	cmd := &cobra.Command{
		Use:   "research",
		Short: "Runs one pricing research and prints the sellers as JSON",
		Long: `Collects the sellers of one product and prints them. With --cached the
stored research is printed when it has not expired yet.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			handler, err := api.NewHandler(req, appInstance.HandlerDeps())
			if err != nil {
				return fmt.Errorf("research request: %w", err)
			}
			run := handler.Post
			if cached {
				run = handler.Get
			}
			sellers, err := run(cmd.Context())
			if err != nil {
				return fmt.Errorf("research: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(map[string]any{"result": sellers}); err != nil {
				return fmt.Errorf("write result: %w", err)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.URL, "url", "", "product url")
	flags.StringVar(&req.Marketplace, "marketplace", "", "marketplace name (BELEZA_NA_WEB, AMAZON, MERCADO_LIVRE)")
	flags.StringVar(&req.MarketplaceID, "marketplace-id", "", "product id within the marketplace")
	flags.StringVar(&req.SKU, "sku", "", "caller's own product sku")
	flags.IntVar(&req.CollectorOption, "collector-option", 0, "collection strategy (0 web scraping)")
	flags.BoolVar(&req.StoreResult, "store", false, "store the research snapshot")
	flags.BoolVar(&cached, "cached", false, "serve stored research when it is still fresh")
	return cmd
}
