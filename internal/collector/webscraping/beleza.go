package webscraping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricing-research/internal/collector/fetch"
	"github.com/JakeFAU/pricing-research/internal/research"
)

const belezaOfferSelector = "a.js-add-to-cart[data-sku]"

// BelezaNaWeb reads seller offers from the add-to-cart buttons of a
// server-rendered product page.
type BelezaNaWeb struct {
	kit *Toolkit
	url string
}

// Execute implements research.Collector.
func (c *BelezaNaWeb) Execute(ctx context.Context) (research.Collection, error) {
	if err := requireURL(research.MarketplaceBelezaNaWeb, c.url); err != nil {
		return research.Collection{}, err
	}
	s := c.kit.session(nil)
	doc, page, err := s.static(ctx, fetch.Request{URL: c.url})
	if err != nil {
		return research.Collection{}, fmt.Errorf("fetch product page: %w", err)
	}
	sellers, err := parseBelezaNaWeb(doc, page.URL)
	if err != nil {
		return research.Collection{}, err
	}
	c.kit.Logger.Debug("beleza na web offers parsed", zap.String("url", c.url), zap.Int("sellers", len(sellers)))
	return research.Collection{Sellers: sellers, Pages: s.pages}, nil
}

// belezaSKU is one entry of the data-sku JSON array.
type belezaSKU struct {
	SKU      flexString `json:"sku"`
	Brand    flexString `json:"brand"`
	Category flexString `json:"category"`
	Name     flexString `json:"name"`
	Price    flexString `json:"price"`
	Seller   struct {
		ID   flexString `json:"id"`
		Name flexString `json:"name"`
	} `json:"seller"`
}

func parseBelezaNaWeb(doc *goquery.Document, productURL string) ([]research.SellerOffer, error) {
	var (
		sellers  []research.SellerOffer
		parseErr error
	)
	doc.Find(belezaOfferSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw, _ := s.Attr("data-sku")
		var rows []belezaSKU
		if err := json.Unmarshal([]byte(raw), &rows); err != nil {
			parseErr = fmt.Errorf("decode data-sku: %w", err)
			return false
		}
		if len(rows) == 0 {
			return true
		}
		row := rows[0]
		sellers = append(sellers, research.SellerOffer{
			ProductURL:    productURL,
			MarketplaceID: string(row.SKU),
			SKU:           string(row.SKU),
			Brand:         string(row.Brand),
			Category:      string(row.Category),
			Description:   string(row.Name),
			Price:         string(row.Price),
			SellerID:      string(row.Seller.ID),
			SellerName:    string(row.Seller.Name),
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return sellers, nil
}

// flexString accepts JSON strings and numbers. Numbers keep their shortest
// decimal form.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*f = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode string: %w", err)
		}
		*f = flexString(s)
	default:
		n, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("decode number %s: %w", data, err)
		}
		*f = flexString(strconv.FormatFloat(n, 'f', -1, 64))
	}
	return nil
}
