package research

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Canonical marketplace names.
const (
	MarketplaceBelezaNaWeb  = "BELEZA_NA_WEB"
	MarketplaceAmazon       = "AMAZON"
	MarketplaceMercadoLivre = "MERCADO_LIVRE"
)

const idPlaceholder = "{marketplace_id}"

// Marketplace describes how one marketplace identifies its products.
type Marketplace struct {
	// Name is the canonical upper-case name persisted with each snapshot.
	Name string
	// Aliases are additional case-insensitive names accepted from callers.
	Aliases []string
	// Signature is matched against URL hosts to infer the marketplace.
	Signature string
	// URLTemplate builds a product URL from a marketplace id. Empty when the
	// marketplace has no id-addressable product page.
	URLTemplate string
	// IDPrefix is the canonical prefix of marketplace ids, if any.
	IDPrefix string
	// IDPatterns are tried after the template when extracting an id from a URL.
	// The first capture group holds the id.
	IDPatterns []*regexp.Regexp
	// RequiresURL marks marketplaces whose products can only be collected from a stored or supplied URL.
	RequiresURL bool

	templatePattern *regexp.Regexp
}

// NormalizeID coerces a raw marketplace id into its canonical form.
func (m Marketplace) NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || m.IDPrefix == "" || strings.HasPrefix(id, m.IDPrefix) {
		return id
	}
	bare := strings.TrimRight(m.IDPrefix, "-_")
	if bare != m.IDPrefix && strings.HasPrefix(id, bare) {
		return m.IDPrefix + strings.TrimPrefix(id, bare)
	}
	return m.IDPrefix + id
}

// BuildURL formats the product URL for id. It reports false when the
// marketplace has no URL template.
func (m Marketplace) BuildURL(id string) (string, bool) {
	if m.URLTemplate == "" {
		return "", false
	}
	return strings.Replace(m.URLTemplate, idPlaceholder, m.NormalizeID(id), 1), true
}

// ExtractID pulls the marketplace id out of rawURL using the template first
// and then the extra patterns.
func (m Marketplace) ExtractID(rawURL string) (string, bool) {
	patterns := make([]*regexp.Regexp, 0, len(m.IDPatterns)+1)
	if m.templatePattern != nil {
		patterns = append(patterns, m.templatePattern)
	}
	patterns = append(patterns, m.IDPatterns...)
	for _, pattern := range patterns {
		match := pattern.FindStringSubmatch(rawURL)
		if len(match) > 1 && match[1] != "" {
			return m.NormalizeID(match[1]), true
		}
	}
	return "", false
}

// MatchTemplate extracts the id only when rawURL has the exact shape of the
// marketplace's URL template.
func (m Marketplace) MatchTemplate(rawURL string) (string, bool) {
	if m.templatePattern == nil {
		return "", false
	}
	match := m.templatePattern.FindStringSubmatch(rawURL)
	if len(match) < 2 || match[1] == "" {
		return "", false
	}
	return m.NormalizeID(match[1]), true
}

// Addressable reports whether ids can be extracted from URLs of this marketplace.
func (m Marketplace) Addressable() bool {
	return m.templatePattern != nil || len(m.IDPatterns) > 0
}

func (m Marketplace) matchesName(name string) bool {
	if strings.EqualFold(m.Name, name) {
		return true
	}
	for _, alias := range m.Aliases {
		if strings.EqualFold(alias, name) {
			return true
		}
	}
	return false
}

// Registry is the ordered set of known marketplaces. Order is the priority
// used when matching URLs.
type Registry struct {
	marketplaces []Marketplace
}

// NewRegistry validates the marketplaces and compiles their URL templates.
func NewRegistry(marketplaces ...Marketplace) (*Registry, error) {
	seen := make(map[string]struct{}, len(marketplaces))
	out := make([]Marketplace, 0, len(marketplaces))
	for _, m := range marketplaces {
		name := strings.ToUpper(strings.TrimSpace(m.Name))
		if name == "" {
			return nil, fmt.Errorf("marketplace name is required")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate marketplace %q", name)
		}
		if strings.TrimSpace(m.Signature) == "" {
			return nil, fmt.Errorf("marketplace %s: signature is required", name)
		}
		seen[name] = struct{}{}
		m.Name = name
		m.Signature = strings.ToLower(m.Signature)
		if m.URLTemplate != "" {
			pattern, err := compileTemplate(m.URLTemplate)
			if err != nil {
				return nil, fmt.Errorf("marketplace %s: %w", name, err)
			}
			m.templatePattern = pattern
		}
		out = append(out, m)
	}
	return &Registry{marketplaces: out}, nil
}

// DefaultRegistry returns the marketplaces supported out of the box.
func DefaultRegistry() *Registry {
	registry, err := NewRegistry(
		Marketplace{
			Name:        MarketplaceBelezaNaWeb,
			Aliases:     []string{"beleza_na_web", "belezanaweb"},
			Signature:   "belezanaweb",
			RequiresURL: true,
		},
		Marketplace{
			Name:        MarketplaceAmazon,
			Aliases:     []string{"amazon"},
			Signature:   "amazon",
			URLTemplate: "https://www.amazon.com.br/dp/" + idPlaceholder,
			IDPatterns: []*regexp.Regexp{
				regexp.MustCompile(`/dp/([A-Z0-9]{10})`),
				regexp.MustCompile(`/gp/product/([A-Z0-9]{10})`),
			},
		},
		Marketplace{
			Name:        MarketplaceMercadoLivre,
			Aliases:     []string{"mercado_livre", "mercadolivre", "mercado_libre"},
			Signature:   "mercadolivre",
			URLTemplate: "https://produto.mercadolivre.com.br/" + idPlaceholder,
			IDPrefix:    "MLB-",
			IDPatterns: []*regexp.Regexp{
				regexp.MustCompile(`/p/(MLB-?\d+)`),
				regexp.MustCompile(`(MLB-?\d+)`),
			},
		},
	)
	if err != nil {
		panic(fmt.Sprintf("default marketplace registry: %v", err))
	}
	return registry
}

// Lookup finds a marketplace by canonical name or alias.
func (r *Registry) Lookup(name string) (Marketplace, bool) {
	name = strings.TrimSpace(name)
	if r == nil || name == "" {
		return Marketplace{}, false
	}
	for _, m := range r.marketplaces {
		if m.matchesName(name) {
			return m, true
		}
	}
	return Marketplace{}, false
}

// Match infers the marketplace of rawURL by testing its host against each
// signature in priority order. Unparseable URLs are tested as raw strings.
func (r *Registry) Match(rawURL string) (Marketplace, bool) {
	if r == nil {
		return Marketplace{}, false
	}
	host := hostOf(rawURL)
	for _, m := range r.marketplaces {
		if strings.Contains(host, m.Signature) {
			return m, true
		}
	}
	return Marketplace{}, false
}

// All returns the registered marketplaces in priority order.
func (r *Registry) All() []Marketplace {
	if r == nil {
		return nil
	}
	out := make([]Marketplace, len(r.marketplaces))
	copy(out, r.marketplaces)
	return out
}

func compileTemplate(template string) (*regexp.Regexp, error) {
	before, after, ok := strings.Cut(template, idPlaceholder)
	if !ok {
		return nil, fmt.Errorf("url template %q lacks %s", template, idPlaceholder)
	}
	pattern := "^" + regexp.QuoteMeta(before) + `([^/?#]+)` + regexp.QuoteMeta(after)
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile url template: %w", err)
	}
	return compiled, nil
}

func hostOf(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	candidate := raw
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}
	if u, err := url.Parse(candidate); err == nil && u.Hostname() != "" {
		return strings.ToLower(u.Hostname())
	}
	return strings.ToLower(raw)
}
