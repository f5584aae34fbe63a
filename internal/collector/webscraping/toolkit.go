// Package webscraping implements the marketplace collectors that scrape
// seller offers from product pages.
package webscraping

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/JakeFAU/pricing-research/internal/collector"
	"github.com/JakeFAU/pricing-research/internal/collector/fetch"
	"github.com/JakeFAU/pricing-research/internal/research"
)

// DefaultMercadoLivreSearchURL is the listing host used to find competing offers.
const DefaultMercadoLivreSearchURL = "https://lista.mercadolivre.com.br"

var errNoRenderer = errors.New("browser renderer not configured")

// Waiter blocks until a url may be fetched.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Toolkit holds what every marketplace collector shares.
type Toolkit struct {
	// Static fetches server-rendered pages.
	Static fetch.Fetcher
	// Renderer fetches pages that need a browser.
	Renderer fetch.Fetcher
	// Gate enforces the per-host crawl delay. Optional.
	Gate Waiter
	// UserAgents is rotated across fetches. Optional.
	UserAgents *fetch.UserAgents
	// MaxSellers caps the per-seller pages visited for one product. Zero means no cap.
	MaxSellers int
	// MercadoLivreSearchURL overrides DefaultMercadoLivreSearchURL.
	MercadoLivreSearchURL string
	Logger                *zap.Logger
}

// Register binds the collectors of every supported marketplace on sel.
func Register(sel *collector.Selector, kit *Toolkit) error {
	if kit.Logger == nil {
		kit.Logger = zap.NewNop()
	}
	constructors := map[string]collector.Constructor{
		research.MarketplaceBelezaNaWeb: func(u string) research.Collector {
			return &BelezaNaWeb{kit: kit, url: u}
		},
		research.MarketplaceAmazon: func(u string) research.Collector {
			return &Amazon{kit: kit, url: u}
		},
		research.MarketplaceMercadoLivre: func(u string) research.Collector {
			return &MercadoLivre{kit: kit, url: u, agents: kit.UserAgents.Without(ubuntuAgentPrefix)}
		},
	}
	for name, c := range constructors {
		if err := sel.Register(name, c); err != nil {
			return fmt.Errorf("register %s collector: %w", name, err)
		}
	}
	return nil
}

// session records the pages fetched during one collector execution.
type session struct {
	kit    *Toolkit
	agents *fetch.UserAgents
	pages  []research.RawPage
}

func (k *Toolkit) session(agents *fetch.UserAgents) *session {
	if agents == nil {
		agents = k.UserAgents
	}
	return &session{kit: k, agents: agents}
}

func (s *session) static(ctx context.Context, req fetch.Request) (*goquery.Document, fetch.Page, error) {
	return s.get(ctx, s.kit.Static, req)
}

func (s *session) render(ctx context.Context, req fetch.Request) (*goquery.Document, fetch.Page, error) {
	if s.kit.Renderer == nil {
		return nil, fetch.Page{}, errNoRenderer
	}
	return s.get(ctx, s.kit.Renderer, req)
}

func (s *session) get(ctx context.Context, f fetch.Fetcher, req fetch.Request) (*goquery.Document, fetch.Page, error) {
	if f == nil {
		return nil, fetch.Page{}, fmt.Errorf("fetcher not configured")
	}
	if s.kit.Gate != nil {
		if err := s.kit.Gate.Wait(ctx, req.URL); err != nil {
			return nil, fetch.Page{}, err
		}
	}
	if req.UserAgent == "" {
		req.UserAgent = s.agents.Pick()
	}
	page, err := f.Fetch(ctx, req)
	if err != nil {
		return nil, fetch.Page{}, err
	}
	if page.URL == "" {
		page.URL = req.URL
	}
	s.pages = append(s.pages, page.Raw())
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fetch.Page{}, fmt.Errorf("parse %s: %w", page.URL, err)
	}
	return doc, page, nil
}

func requireURL(marketplace, u string) error {
	if strings.TrimSpace(u) == "" {
		return fmt.Errorf("%w: %s collector needs a product url", research.ErrMissingRequiredInput, marketplace)
	}
	return nil
}

// text returns the whitespace-collapsed text of the selection.
func text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

// labeledValue finds the first label element containing label and returns
// the text of its first following sibling matching value.
func labeledValue(doc *goquery.Document, labelSel, label, valueSel string) string {
	contains := func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), label)
	}
	// Innermost match only: an enclosing element also contains the label text.
	match := doc.Find(labelSel).FilterFunction(func(i int, s *goquery.Selection) bool {
		return contains(i, s) && s.Find(labelSel).FilterFunction(contains).Length() == 0
	}).First()
	if match.Length() == 0 {
		return ""
	}
	return text(match.NextAllFiltered(valueSel).First())
}

// resolveURL makes href absolute against base.
func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

// queryParam returns the first value of key in rawURL's query string.
func queryParam(rawURL, key string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get(key)
}

// cleanTitle lower-cases s, folds accents, drops everything but letters,
// digits and spaces and collapses runs of whitespace.
func cleanTitle(s string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, cases.Lower(language.BrazilianPortuguese).String(s))
	if err != nil {
		folded = strings.ToLower(s)
	}
	kept := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, folded)
	return strings.Join(strings.Fields(kept), " ")
}

// wordSet returns the set of words of the cleaned title.
func wordSet(title string) map[string]struct{} {
	words := strings.Fields(cleanTitle(title))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func sameWords(a, b map[string]struct{}) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	for w := range a {
		if _, ok := b[w]; !ok {
			return false
		}
	}
	return true
}
