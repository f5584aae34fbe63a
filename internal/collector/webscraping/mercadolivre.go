package webscraping

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricing-research/internal/collector/fetch"
	"github.com/JakeFAU/pricing-research/internal/research"
)

// Mercado Livre serves a degraded page to these agents.
const ubuntuAgentPrefix = "Mozilla/5.0 (X11; Ubuntu;"

const (
	mlTitle        = "h1.ui-pdp-title"
	mlResultLink   = "section.ui-search-results a.ui-search-item__group__element.ui-search-link"
	mlPriceBox     = "span.andes-money-amount.ui-pdp-price__part"
	mlPriceSymbol  = "span.andes-money-amount__currency-symbol"
	mlPriceWhole   = "span.andes-money-amount__fraction"
	mlPriceCents   = "span.andes-money-amount__cents"
	mlSellerHeader = "div.ui-pdp-seller__header"
)

var mlSellerLinks = []string{"#seller_info a", "#seller_data a"}

// MercadoLivre finds the listings selling the same product by searching for
// its title, then reads the seller of each matching listing.
type MercadoLivre struct {
	kit    *Toolkit
	url    string
	agents *fetch.UserAgents
}

// Execute implements research.Collector.
func (c *MercadoLivre) Execute(ctx context.Context) (research.Collection, error) {
	if err := requireURL(research.MarketplaceMercadoLivre, c.url); err != nil {
		return research.Collection{}, err
	}
	logger := c.kit.Logger.With(zap.String("url", c.url))
	s := c.kit.session(c.agents)

	listings, err := c.listings(ctx, s)
	if err != nil {
		return research.Collection{}, err
	}
	if c.kit.MaxSellers > 0 && len(listings) > c.kit.MaxSellers {
		logger.Debug("capping mercado livre listings", zap.Int("found", len(listings)), zap.Int("max", c.kit.MaxSellers))
		listings = listings[:c.kit.MaxSellers]
	}

	var sellers []research.SellerOffer
	for _, listing := range listings {
		if err := ctx.Err(); err != nil {
			return research.Collection{}, fmt.Errorf("mercado livre collection canceled: %w", err)
		}
		doc, _, err := s.render(ctx, fetch.Request{URL: listing})
		if err != nil {
			logger.Warn("skipping listing", zap.String("listing", listing), zap.Error(err))
			continue
		}
		offer, err := parseMercadoLivreListing(doc, listing)
		if err != nil {
			logger.Warn("skipping listing", zap.String("listing", listing), zap.Error(err))
			continue
		}
		sellers = append(sellers, offer)
	}
	return research.Collection{Sellers: sellers, Pages: s.pages}, nil
}

// listings returns the search results whose title has the same words as the product's.
func (c *MercadoLivre) listings(ctx context.Context, s *session) ([]string, error) {
	doc, _, err := s.render(ctx, fetch.Request{URL: c.url})
	if err != nil {
		return nil, fmt.Errorf("render product page: %w", err)
	}
	title := text(doc.Find(mlTitle).First())
	if title == "" {
		return nil, fmt.Errorf("product title not found on %s", c.url)
	}

	searchURL := c.searchURL(title)
	results, page, err := s.render(ctx, fetch.Request{URL: searchURL})
	if err != nil {
		return nil, fmt.Errorf("render search %s: %w", searchURL, err)
	}
	return matchingListings(results, page.URL, title), nil
}

func (c *MercadoLivre) searchURL(title string) string {
	base := c.kit.MercadoLivreSearchURL
	if base == "" {
		base = DefaultMercadoLivreSearchURL
	}
	return strings.TrimRight(base, "/") + "/" + searchSlug(title)
}

// searchSlug turns a product title into the path segment of a listing search.
func searchSlug(title string) string {
	return strings.ReplaceAll(cleanTitle(title), " ", "-")
}

func matchingListings(doc *goquery.Document, pageURL, title string) []string {
	want := wordSet(title)
	seen := make(map[string]struct{})
	var out []string
	doc.Find(mlResultLink).Each(func(_ int, a *goquery.Selection) {
		linkTitle, _ := a.Attr("title")
		if !sameWords(want, wordSet(linkTitle)) {
			return
		}
		href, _ := a.Attr("href")
		listing := resolveURL(pageURL, href)
		if listing == "" {
			return
		}
		if _, dup := seen[listing]; dup {
			return
		}
		seen[listing] = struct{}{}
		out = append(out, listing)
	})
	return out
}

func parseMercadoLivreListing(doc *goquery.Document, listing string) (research.SellerOffer, error) {
	sellerURL := ""
	for _, sel := range mlSellerLinks {
		if href, ok := doc.Find(sel).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
			sellerURL = resolveURL(listing, href)
			break
		}
	}
	if sellerURL == "" {
		return research.SellerOffer{}, fmt.Errorf("seller link not found")
	}
	price := mercadoLivrePrice(doc.Find(mlPriceBox).First())
	if price == "" {
		return research.SellerOffer{}, fmt.Errorf("price not found")
	}
	return research.SellerOffer{
		ProductURL:    listing,
		MarketplaceID: queryParam(sellerURL, "item_id"),
		Brand:         labeledValue(doc, "span", "Marca:", "span"),
		Description:   text(doc.Find(mlTitle).First()),
		Price:         price,
		SellerID:      queryParam(sellerURL, "seller_id"),
		SellerName:    text(doc.Find(mlSellerHeader).First().Find("span").Eq(1)),
		SellerURL:     sellerURL,
	}, nil
}

// mercadoLivrePrice formats the price box as symbol, whole part and, when
// present, a comma followed by the cents.
func mercadoLivrePrice(box *goquery.Selection) string {
	whole := text(box.Find(mlPriceWhole).First())
	if whole == "" {
		return ""
	}
	price := text(box.Find(mlPriceSymbol).First()) + whole
	if cents := text(box.Find(mlPriceCents).First()); cents != "" {
		price += "," + cents
	}
	return price
}
