package webscraping

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricing-research/internal/collector"
	"github.com/JakeFAU/pricing-research/internal/collector/fetch"
	"github.com/JakeFAU/pricing-research/internal/research"
)

const (
	mlProductURL = "https://produto.mercadolivre.com.br/MLB-123"
	mlSearchBase = "https://lista.test"
	mlSearchURL  = mlSearchBase + "/furadeira-de-impacto-bosch-500w-eletrica"
)

func TestBelezaNaWebOverHTTP(t *testing.T) {
	t.Parallel()

	body := fixture(t, "beleza_product.html")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	gate := &countingGate{}
	kit := &Toolkit{
		Static: fetch.NewStatic(fetch.StaticConfig{Timeout: time.Second}, nil),
		Gate:   gate,
		Logger: zap.NewNop(),
	}
	productURL := srv.URL + "/shampoo-anticaspa-300ml"
	got, err := (&BelezaNaWeb{kit: kit, url: productURL}).Execute(context.Background())
	require.NoError(t, err)

	require.Equal(t, []research.SellerOffer{
		{
			ProductURL:    productURL,
			MarketplaceID: "MP10004",
			SKU:           "MP10004",
			Brand:         "Natura",
			Category:      "Cabelos",
			Description:   "Shampoo Anticaspa 300ml",
			Price:         "29.9",
			SellerID:      "9876",
			SellerName:    "Beleza na Web",
		},
		{
			ProductURL:    productURL,
			MarketplaceID: "MP10004",
			SKU:           "MP10004",
			Brand:         "Natura",
			Category:      "Cabelos",
			Description:   "Shampoo Anticaspa 300ml",
			Price:         "R$ 31,50",
			SellerID:      "11",
			SellerName:    "Loja Parceira",
		},
	}, got.Sellers)
	require.Len(t, got.Pages, 1)
	require.Equal(t, productURL, got.Pages[0].URL)
	require.Equal(t, []string{productURL}, gate.urls())
}

func TestBelezaNaWebErrors(t *testing.T) {
	t.Parallel()

	kit := &Toolkit{Static: newFakeFetcher(map[string]string{
		"https://www.belezanaweb.com.br/bad": `<a class="js-add-to-cart" data-sku='{not json'>x</a>`,
	}), Logger: zap.NewNop()}

	_, err := (&BelezaNaWeb{kit: kit}).Execute(context.Background())
	require.ErrorIs(t, err, research.ErrMissingRequiredInput)

	_, err = (&BelezaNaWeb{kit: kit, url: "https://www.belezanaweb.com.br/bad"}).Execute(context.Background())
	require.ErrorContains(t, err, "decode data-sku")

	_, err = (&BelezaNaWeb{kit: kit, url: "https://www.belezanaweb.com.br/missing"}).Execute(context.Background())
	require.ErrorContains(t, err, "fetch product page")
}

func TestBelezaNaWebWithoutOffers(t *testing.T) {
	t.Parallel()

	kit := &Toolkit{Static: newFakeFetcher(map[string]string{
		"https://www.belezanaweb.com.br/sold-out": `<html><body><a class="js-add-to-cart" data-sku="[]">x</a></body></html>`,
	}), Logger: zap.NewNop()}
	got, err := (&BelezaNaWeb{kit: kit, url: "https://www.belezanaweb.com.br/sold-out"}).Execute(context.Background())
	require.NoError(t, err)
	require.Empty(t, got.Sellers)
	require.Len(t, got.Pages, 1)
}

func TestAmazonOffersPanel(t *testing.T) {
	t.Parallel()

	const productURL = "https://www.amazon.com.br/dp/B07GYX8QRJ"
	renderer := newFakeFetcher(map[string]string{productURL: string(fixture(t, "amazon_product.html"))})
	kit := &Toolkit{Renderer: renderer, UserAgents: fetch.NewUserAgents("agent-a"), Logger: zap.NewNop()}

	got, err := (&Amazon{kit: kit, url: productURL}).Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, []research.SellerOffer{
		{
			ProductURL:    productURL,
			MarketplaceID: "B07GYX8QRJ",
			Brand:         "Bosch",
			Description:   "Furadeira de Impacto 500W",
			Price:         "R$\u00a0299,90",
			SellerID:      "A1B2C3",
			SellerName:    "Loja Um",
			SellerURL:     "https://www.amazon.com.br/gp/aag/main?ie=UTF8&seller=A1B2C3",
		},
		{
			ProductURL:    productURL,
			MarketplaceID: "B07GYX8QRJ",
			Brand:         "Bosch",
			Description:   "Furadeira de Impacto 500W",
			Price:         "R$\u00a0310,00",
			SellerID:      "Z9Y8",
			SellerName:    "Loja Dois",
			SellerURL:     "https://www.amazon.com.br/gp/aag/main?seller=Z9Y8",
		},
	}, got.Sellers)

	reqs := renderer.requests()
	require.Len(t, reqs, 1)
	require.Equal(t, amazonOffersToggle, reqs[0].Click)
	require.Equal(t, amazonOfferList, reqs[0].WaitFor)
	require.Equal(t, "agent-a", reqs[0].UserAgent)
}

func TestAmazonNeedsRenderer(t *testing.T) {
	t.Parallel()

	kit := &Toolkit{Logger: zap.NewNop()}
	_, err := (&Amazon{kit: kit, url: "https://www.amazon.com.br/dp/B07GYX8QRJ"}).Execute(context.Background())
	require.ErrorIs(t, err, errNoRenderer)
}

func TestMercadoLivreMatchesListingsByTitleWords(t *testing.T) {
	t.Parallel()

	renderer := newFakeFetcher(map[string]string{
		mlProductURL: string(fixture(t, "ml_product.html")),
		mlSearchURL:  string(fixture(t, "ml_search.html")),
		"https://produto.mercadolivre.com.br/MLB-1": string(fixture(t, "ml_listing.html")),
		"https://produto.mercadolivre.com.br/MLB-3": string(fixture(t, "ml_listing_whole_price.html")),
	})
	gate := &countingGate{}
	kit := &Toolkit{
		Renderer: renderer,
		Gate:     gate,
		UserAgents: fetch.NewUserAgents(
			"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:109.0)",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
		),
		MercadoLivreSearchURL: mlSearchBase,
		Logger:                zap.NewNop(),
	}
	sel := collector.NewSelector(nil)
	require.NoError(t, Register(sel, kit))
	c, err := sel.Select(research.StrategyWebScraping, mlProductURL, "")
	require.NoError(t, err)

	got, err := c.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, []research.SellerOffer{
		{
			ProductURL:    "https://produto.mercadolivre.com.br/MLB-1",
			MarketplaceID: "MLB1",
			Brand:         "Bosch",
			Description:   "Furadeira De Impacto 500W Bosch Eletrica",
			Price:         "R$289,90",
			SellerID:      "777",
			SellerName:    "LOJA FERRAMENTAS",
			SellerURL:     "https://www.mercadolivre.com.br/perfil/LOJA?item_id=MLB1&seller_id=777",
		},
		{
			ProductURL:    "https://produto.mercadolivre.com.br/MLB-3",
			MarketplaceID: "MLB3",
			Description:   "Furadeira de impacto bosch 500w elétrica",
			Price:         "R$300",
			SellerID:      "888",
			SellerName:    "OUTRA LOJA",
			SellerURL:     "https://produto.mercadolivre.com.br/perfil/OUTRA?item_id=MLB3&seller_id=888",
		},
	}, got.Sellers)

	// product, search, three listings (one of which fails) in visiting order
	require.Equal(t, []string{
		mlProductURL,
		mlSearchURL,
		"https://produto.mercadolivre.com.br/MLB-1",
		"https://produto.mercadolivre.com.br/MLB-3",
		mlSearchBase + "/MLB-4",
	}, gate.urls())
	require.Len(t, got.Pages, 4, "failed fetches are not archived")
	for _, req := range renderer.requests() {
		require.False(t, strings.Contains(req.UserAgent, "Ubuntu"), req.UserAgent)
	}
}

func TestMercadoLivreCapsListings(t *testing.T) {
	t.Parallel()

	renderer := newFakeFetcher(map[string]string{
		mlProductURL: string(fixture(t, "ml_product.html")),
		mlSearchURL:  string(fixture(t, "ml_search.html")),
		"https://produto.mercadolivre.com.br/MLB-1": string(fixture(t, "ml_listing.html")),
	})
	kit := &Toolkit{Renderer: renderer, MaxSellers: 1, MercadoLivreSearchURL: mlSearchBase, Logger: zap.NewNop()}
	got, err := (&MercadoLivre{kit: kit, url: mlProductURL}).Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Sellers, 1)
	require.Len(t, renderer.requests(), 3)
}

func TestMercadoLivreProductWithoutTitle(t *testing.T) {
	t.Parallel()

	renderer := newFakeFetcher(map[string]string{mlProductURL: "<html><body></body></html>"})
	kit := &Toolkit{Renderer: renderer, Logger: zap.NewNop()}
	_, err := (&MercadoLivre{kit: kit, url: mlProductURL}).Execute(context.Background())
	require.ErrorContains(t, err, "product title not found")
}

func TestMercadoLivreGateErrorStopsCollection(t *testing.T) {
	t.Parallel()

	kit := &Toolkit{
		Renderer: newFakeFetcher(nil),
		Gate:     &countingGate{err: context.Canceled},
		Logger:   zap.NewNop(),
	}
	_, err := (&MercadoLivre{kit: kit, url: mlProductURL}).Execute(context.Background())
	require.ErrorIs(t, err, context.Canceled)
}

func TestSearchSlugAndCleanTitle(t *testing.T) {
	t.Parallel()

	require.Equal(t, "escova-secadora-eletrica-110v", searchSlug("Escova Secadora Elétrica (110V)"))
	require.Equal(t, "furadeira de impacto 500w", cleanTitle("  Furadeira   de Impacto - 500W!! "))
	require.True(t, sameWords(wordSet("Bosch Furadeira"), wordSet("furadeira BOSCH")))
	require.False(t, sameWords(wordSet("Bosch Furadeira"), wordSet("Bosch Furadeira Kit")))
	require.False(t, sameWords(wordSet(""), wordSet("")))
}

func TestLabeledValuePicksInnermostLabel(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<p><span><span>Marca:</span> <span>Bosch</span></span><span>Outro</span></p>`,
	))
	require.NoError(t, err)
	require.Equal(t, "Bosch", labeledValue(doc, "span", "Marca:", "span"))
	require.Equal(t, "", labeledValue(doc, "span", "Modelo:", "span"))
}

func TestFlexString(t *testing.T) {
	t.Parallel()

	var row belezaSKU
	require.NoError(t, json.Unmarshal([]byte(`{"sku":123,"price":49.90,"name":null,"brand":"Natura"}`), &row))
	require.Equal(t, flexString("123"), row.SKU)
	require.Equal(t, flexString("49.9"), row.Price)
	require.Equal(t, flexString(""), row.Name)
	require.Error(t, json.Unmarshal([]byte(`{"sku":true}`), &row))
}

func TestRegisterBindsEveryMarketplace(t *testing.T) {
	t.Parallel()

	sel := collector.NewSelector(nil)
	require.NoError(t, Register(sel, &Toolkit{}))
	require.Equal(t, []string{
		research.MarketplaceBelezaNaWeb,
		research.MarketplaceAmazon,
		research.MarketplaceMercadoLivre,
	}, sel.Marketplaces())

	c, err := sel.Select(research.StrategyWebScraping, "https://www.belezanaweb.com.br/x", "")
	require.NoError(t, err)
	require.IsType(t, &BelezaNaWeb{}, c)
	c, err = sel.Select(research.StrategyWebScraping, "", research.MarketplaceAmazon)
	require.NoError(t, err)
	require.IsType(t, &Amazon{}, c)
}

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	body, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return body
}

// --- fakes ---

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	reqs  []fetch.Request
}

func newFakeFetcher(pages map[string]string) *fakeFetcher {
	return &fakeFetcher{pages: pages}
}

func (f *fakeFetcher) Fetch(_ context.Context, req fetch.Request) (fetch.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	body, ok := f.pages[req.URL]
	if !ok {
		return fetch.Page{}, errors.New("404 Not Found")
	}
	return fetch.Page{URL: req.URL, StatusCode: http.StatusOK, Body: []byte(body), Rendered: true}, nil
}

func (f *fakeFetcher) requests() []fetch.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetch.Request(nil), f.reqs...)
}

type countingGate struct {
	mu   sync.Mutex
	seen []string
	err  error
}

func (g *countingGate) Wait(_ context.Context, url string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen = append(g.seen, url)
	return g.err
}

func (g *countingGate) urls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.seen...)
}
