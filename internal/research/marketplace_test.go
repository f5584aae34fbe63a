package research

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistryMatchUsesHostInPriorityOrder(t *testing.T) {
	t.Parallel()

	registry := DefaultRegistry()
	cases := map[string]string{
		"https://www.belezanaweb.com.br/perfume-x":       MarketplaceBelezaNaWeb,
		"https://www.amazon.com.br/dp/B07GYX8QRJ":        MarketplaceAmazon,
		"https://produto.mercadolivre.com.br/MLB-1":      MarketplaceMercadoLivre,
		"www.amazon.com.br/dp/B07GYX8QRJ":                MarketplaceAmazon,
		"https://www.belezanaweb.com.br/?ref=amazon.com": MarketplaceBelezaNaWeb,
	}
	for raw, want := range cases {
		m, ok := registry.Match(raw)
		require.True(t, ok, raw)
		require.Equal(t, want, m.Name, raw)
	}

	_, ok := registry.Match("https://example.com/?next=amazon")
	require.False(t, ok, "signatures match hosts, not query strings")
}

func TestRegistryLookupIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	registry := DefaultRegistry()
	for _, name := range []string{"AMAZON", "amazon", "Amazon"} {
		m, ok := registry.Lookup(name)
		require.True(t, ok)
		require.Equal(t, MarketplaceAmazon, m.Name)
	}
	m, ok := registry.Lookup("Beleza_Na_Web")
	require.True(t, ok)
	require.True(t, m.RequiresURL)

	_, ok = registry.Lookup("")
	require.False(t, ok)
}

func TestNewRegistryValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry(Marketplace{Name: "", Signature: "x"})
	require.Error(t, err)

	_, err = NewRegistry(Marketplace{Name: "A", Signature: "a"}, Marketplace{Name: "a", Signature: "b"})
	require.ErrorContains(t, err, "duplicate")

	_, err = NewRegistry(Marketplace{Name: "A", Signature: "a", URLTemplate: "https://a.example/item"})
	require.ErrorContains(t, err, "{marketplace_id}")

	_, err = NewRegistry(Marketplace{Name: "A"})
	require.ErrorContains(t, err, "signature")
}

func TestNormalizeID(t *testing.T) {
	t.Parallel()

	m, ok := DefaultRegistry().Lookup(MarketplaceMercadoLivre)
	require.True(t, ok)
	require.Equal(t, "MLB-1", m.NormalizeID("1"))
	require.Equal(t, "MLB-1", m.NormalizeID("MLB1"))
	require.Equal(t, "MLB-1", m.NormalizeID(" MLB-1 "))
	require.Equal(t, "", m.NormalizeID(""))
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	s, err := ParseStrategy(0)
	require.NoError(t, err)
	require.Equal(t, StrategyWebScraping, s)
	require.Equal(t, "WEB_SCRAPING", s.String())

	s, err = ParseStrategy(1)
	require.NoError(t, err)
	require.Equal(t, "GOOGLE_SHOPPING", s.String())

	_, err = ParseStrategy(7)
	require.ErrorIs(t, err, ErrInvalidStrategy)
}

func TestParseStorageMode(t *testing.T) {
	t.Parallel()

	mode, err := ParseStorageMode("0")
	require.NoError(t, err)
	require.Equal(t, StorageSQLite, mode)

	mode, err = ParseStorageMode("plsql")
	require.NoError(t, err)
	require.Equal(t, StorageOracle, mode)

	_, err = ParseStorageMode("mongodb")
	require.ErrorIs(t, err, ErrUnsupportedStorageMode)
}

func TestCriteriaAndChanges(t *testing.T) {
	t.Parallel()

	cols, err := Criteria{"url": "u", "marketplace": "AMAZON"}.Columns(false)
	require.NoError(t, err)
	require.Equal(t, []string{"marketplace", "url"}, cols)

	_, err = Criteria{}.Columns(false)
	require.ErrorIs(t, err, ErrInvalidInput)

	cols, err = Criteria{}.Columns(true)
	require.NoError(t, err)
	require.Empty(t, cols)

	_, err = Criteria{"price": "1"}.Columns(true)
	require.ErrorIs(t, err, ErrInvalidInput)

	snap := Snapshot{ID: "1", URL: "u"}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err = Changes{
		"brand":        "Acme",
		"sellers":      []SellerOffer{{Price: "R$ 1,00"}},
		"conducted_at": now,
	}.Apply(&snap)
	require.NoError(t, err)
	require.Equal(t, "Acme", snap.Brand)
	require.Len(t, snap.Sellers, 1)
	require.Equal(t, now, snap.ConductedAt)
	require.True(t, Criteria{"url": "u", "id": "1"}.Matches(snap))
	require.False(t, Criteria{"url": "other"}.Matches(snap))

	require.ErrorIs(t, Changes{"brand": 1}.Apply(&snap), ErrInvalidInput)
	_, err = Changes{"id": "2"}.Columns()
	require.ErrorIs(t, err, ErrInvalidInput)
}
