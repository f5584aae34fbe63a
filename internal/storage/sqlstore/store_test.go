package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricing-research/internal/research"
)

func newMemoryStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	store, err := New(db, SQLite, "research", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func snapshotAt(id string, ts time.Time) research.Snapshot {
	return research.Snapshot{
		ID:            id,
		URL:           "https://produto.mercadolivre.com.br/MLB-123",
		Marketplace:   research.MarketplaceMercadoLivre,
		MarketplaceID: "MLB-123",
		Description:   "Furadeira",
		Strategy:      research.StrategyWebScraping.String(),
		Sellers: []research.SellerOffer{
			{Price: "R$ 199,90", SellerName: "Loja A", SellerID: "1"},
			{Price: "R$ 205,00", SellerName: "Loja B", SellerID: "2"},
		},
		ConductedAt: ts,
	}
}

func TestStoreRoundTripNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemoryStore(t)
	base := time.Date(2026, 4, 10, 8, 30, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, snapshotAt("old", base)))
	require.NoError(t, store.Save(ctx, snapshotAt("new", base.Add(2*time.Hour))))
	require.Error(t, store.Save(ctx, snapshotAt("old", base)), "primary key must reject duplicates")

	rows, err := store.Retrieve(ctx, research.Criteria{
		"marketplace":    research.MarketplaceMercadoLivre,
		"marketplace_id": "MLB-123",
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "new", rows[0].ID)
	require.Equal(t, "old", rows[1].ID)
	require.True(t, rows[0].ConductedAt.Equal(base.Add(2*time.Hour)))
	require.Equal(t, snapshotAt("x", base).Sellers, rows[0].Sellers)
	require.Equal(t, "Furadeira", rows[0].Description)
	require.Empty(t, rows[0].SKU)

	all, err := store.Retrieve(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	none, err := store.Retrieve(ctx, research.Criteria{"url": "https://elsewhere"})
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestStoreUpdateAndDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newMemoryStore(t)
	base := time.Date(2026, 4, 10, 8, 30, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, snapshotAt("a", base)))
	require.NoError(t, store.Save(ctx, snapshotAt("b", base.Add(time.Minute))))

	later := base.Add(48 * time.Hour)
	n, err := store.Update(ctx, research.Criteria{"id": "a"}, research.Changes{
		"brand":        "Bosch",
		"sellers":      []research.SellerOffer{{Price: "R$ 1,00"}},
		"conducted_at": later,
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	rows, err := store.Retrieve(ctx, research.Criteria{"url": "https://produto.mercadolivre.com.br/MLB-123"})
	require.NoError(t, err)
	require.Equal(t, "a", rows[0].ID, "updated row is now the newest")
	require.Equal(t, "Bosch", rows[0].Brand)
	require.Equal(t, []research.SellerOffer{{Price: "R$ 1,00"}}, rows[0].Sellers)

	_, err = store.Update(ctx, research.Criteria{"id": "a"}, research.Changes{"price": "x"})
	require.ErrorIs(t, err, research.ErrInvalidInput)

	n, err = store.Delete(ctx, research.Criteria{"marketplace": research.MarketplaceMercadoLivre})
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	_, err = store.Delete(ctx, research.Criteria{})
	require.ErrorIs(t, err, research.ErrInvalidInput)
}

func TestOpenCreatesFileDatabase(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "research.db")
	store, err := Open(ctx, SQLite, path, "", Options{MaxOpenConns: 1, EnsureSchema: true}, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()

	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Save(ctx, snapshotAt("a", time.Now().UTC())))
	rows, err := store.Retrieve(ctx, research.Criteria{"id": "a"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestOpenValidation(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), SQLite, "", "research", Options{}, nil)
	require.ErrorContains(t, err, "dsn is required")

	_, err = New(nil, SQLite, "research", nil)
	require.Error(t, err)
}

func TestOracleDialectAliasesColumns(t *testing.T) {
	t.Parallel()

	require.Nil(t, Oracle.Schema)
	require.Contains(t, Oracle.SelectList, `marketplace_id AS "marketplace_id"`)
	require.Equal(t, sqlx.NAMED, sqlx.BindType("oracle"))
	require.Equal(t, sqlx.AT, sqlx.BindType(SQLServer.Driver))
}
