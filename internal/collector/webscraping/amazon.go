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

// Selectors of the "other sellers" panel on Amazon product pages.
const (
	amazonOffersToggle = "div.daodi-content a.a-link-normal"
	amazonOfferList    = "#aod-offer-list"
	amazonOffer        = "#aod-offer-list #aod-offer"
	amazonOfferPrice   = "span.a-offscreen"
	amazonOfferSeller  = "a.a-size-small.a-link-normal"
)

// Amazon opens the offers panel of a product page and reads one offer per seller.
type Amazon struct {
	kit *Toolkit
	url string
}

// Execute implements research.Collector.
func (c *Amazon) Execute(ctx context.Context) (research.Collection, error) {
	if err := requireURL(research.MarketplaceAmazon, c.url); err != nil {
		return research.Collection{}, err
	}
	s := c.kit.session(nil)
	doc, page, err := s.render(ctx, fetch.Request{
		URL:     c.url,
		Click:   amazonOffersToggle,
		WaitFor: amazonOfferList,
	})
	if err != nil {
		return research.Collection{}, fmt.Errorf("render offers panel: %w", err)
	}
	sellers := parseAmazon(doc, c.url, page.URL, c.kit.Logger.With(zap.String("url", c.url)))
	return research.Collection{Sellers: sellers, Pages: s.pages}, nil
}

func parseAmazon(doc *goquery.Document, productURL, pageURL string, logger *zap.Logger) []research.SellerOffer {
	asin := labeledValue(doc, "th", "ASIN", "td")
	brand := labeledValue(doc, "th", "Fabricante", "td")
	description := text(doc.Find("#title").First())
	if asin == "" || description == "" {
		logger.Warn("amazon product details incomplete",
			zap.Bool("asin", asin != ""),
			zap.Bool("title", description != ""),
		)
	}

	var sellers []research.SellerOffer
	doc.Find(amazonOffer).Each(func(i int, offer *goquery.Selection) {
		price := strings.TrimSpace(offer.Find(amazonOfferPrice).First().Text())
		if price == "" {
			logger.Debug("skipping amazon offer without price", zap.Int("offer", i))
			return
		}
		link := offer.Find(amazonOfferSeller).First()
		href, _ := link.Attr("href")
		sellerURL := resolveURL(pageURL, href)
		sellers = append(sellers, research.SellerOffer{
			ProductURL:    productURL,
			MarketplaceID: asin,
			Brand:         brand,
			Description:   description,
			Price:         price,
			SellerID:      queryParam(sellerURL, "seller"),
			SellerName:    text(link),
			SellerURL:     sellerURL,
		})
	})
	return sellers
}
