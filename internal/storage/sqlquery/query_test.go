package sqlquery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pricing-research/internal/research"
)

func TestTable(t *testing.T) {
	t.Parallel()

	name, err := Table("")
	require.NoError(t, err)
	require.Equal(t, DefaultTable, name)

	name, err = Table("research_v2")
	require.NoError(t, err)
	require.Equal(t, "research_v2", name)

	_, err = Table("research; DROP TABLE x")
	require.Error(t, err)
}

func TestSelectOrdersNewestFirst(t *testing.T) {
	t.Parallel()

	query, args, err := Select("research", "", research.Criteria{"url": "u", "marketplace": "AMAZON"})
	require.NoError(t, err)
	require.Equal(t,
		"SELECT id, sku, url, marketplace, marketplace_id, description, brand, category, strategy, sellers, conducted_at"+
			" FROM research WHERE marketplace = ? AND url = ? ORDER BY conducted_at DESC",
		query)
	require.Equal(t, []any{"AMAZON", "u"}, args)

	query, args, err = Select("research", "id", nil)
	require.NoError(t, err)
	require.Equal(t, "SELECT id FROM research ORDER BY conducted_at DESC", query)
	require.Empty(t, args)
}

func TestUpdateAndDeleteRequireCriteria(t *testing.T) {
	t.Parallel()

	_, _, err := Update("research", nil, research.Changes{"brand": "x"})
	require.ErrorIs(t, err, research.ErrInvalidInput)

	_, _, err = Delete("research", research.Criteria{})
	require.ErrorIs(t, err, research.ErrInvalidInput)

	_, _, err = Update("research", research.Criteria{"id": "1"}, research.Changes{"brand": 3})
	require.ErrorIs(t, err, research.ErrInvalidInput)
}

func TestUpdateEncodesValues(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	query, args, err := Update("research", research.Criteria{"id": "1"}, research.Changes{
		"sellers":      []research.SellerOffer{{Price: "R$ 9,90"}},
		"conducted_at": ts,
		"brand":        "Acme",
	})
	require.NoError(t, err)
	require.Equal(t, "UPDATE research SET brand = ?, conducted_at = ?, sellers = ? WHERE id = ?", query)
	require.Equal(t, "Acme", args[0])
	require.Equal(t, ts, args[1])
	require.JSONEq(t, `[{"product_url":"","marketplace_id":"","brand":"","description":"","price":"R$ 9,90","seller_id":"","seller_name":"","seller_url":""}]`, args[2].(string))
	require.Equal(t, "1", args[3])
}

func TestInsertEncodesNilSellersAsEmptyArray(t *testing.T) {
	t.Parallel()

	query, args, err := Insert("research", research.Snapshot{ID: "abc"})
	require.NoError(t, err)
	require.Contains(t, query, "INSERT INTO research (id, sku")
	require.Len(t, args, len(Columns))
	require.Equal(t, "[]", args[9])

	_, _, err = Insert("research", research.Snapshot{})
	require.Error(t, err)
}

func TestDecodeSellers(t *testing.T) {
	t.Parallel()

	sellers, err := DecodeSellers(nil)
	require.NoError(t, err)
	require.Nil(t, sellers)

	sellers, err = DecodeSellers([]byte(`[{"price":"R$ 1,00","seller_name":"Loja"}]`))
	require.NoError(t, err)
	require.Equal(t, []research.SellerOffer{{Price: "R$ 1,00", SellerName: "Loja"}}, sellers)

	_, err = DecodeSellers([]byte(`{`))
	require.Error(t, err)
}
