package recalc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/money"
)

func TestRecompute_ScenarioB(t *testing.T) {
	parent := &models.OrderLine{
		ClientID: "p",
		Quantity: 5,
		Items:    []*models.OrderLine{leaf(2, 2, "4.0000"), leaf(3, 3, "6.0000")},
	}

	Recompute(parent)

	assert.Equal(t, "8.0000", money.Fixed(parent.Items[0].TotalPrice))
	assert.Equal(t, "18.0000", money.Fixed(parent.Items[1].TotalPrice))
	assert.Equal(t, "26.0000", money.Fixed(parent.TotalPrice))
	assert.Equal(t, "5.2000", money.Fixed(parent.Price))
}

func TestRecompute_ZeroQuantityBundle(t *testing.T) {
	parent := &models.OrderLine{
		ClientID: "p",
		Quantity: 0,
		Price:    d("4"),
		Items:    []*models.OrderLine{leaf(2, 2, "4")},
	}

	Recompute(parent)

	assert.True(t, parent.TotalPrice.IsZero())
	assert.True(t, parent.Price.IsZero())
}

func TestRecompute_Idempotent(t *testing.T) {
	root := bundle(1, 3,
		bundle(2, 7, leaf(3, 2, "1.1111"), leaf(4, 5, "0.0007")),
		leaf(5, 1, "9.99"),
	)

	snapshot := func() []string {
		var out []string
		root.Walk(func(l *models.OrderLine) {
			out = append(out, money.Fixed(l.Price), money.Fixed(l.TotalPrice))
		})
		return out
	}

	before := snapshot()
	Recompute(root)
	assert.Equal(t, before, snapshot())
}

func TestAggregate_OnlyRootsContainingDirtyLine(t *testing.T) {
	stale := &models.OrderLine{ClientID: "s", Quantity: 1, Price: d("1"), TotalPrice: d("1"),
		Items: []*models.OrderLine{{ClientID: "s1", Quantity: 1, Price: d("5"), TotalPrice: d("5")}}}
	dirty := &models.OrderLine{ClientID: "d1", Quantity: 2, Price: d("5"), TotalPrice: d("10")}
	owner := &models.OrderLine{ClientID: "o", Quantity: 2, Items: []*models.OrderLine{
		{ClientID: "wrap", Quantity: 1, Items: []*models.OrderLine{dirty}},
	}}
	forest := []*models.OrderLine{stale, owner}

	require.NoError(t, Aggregate(context.Background(), forest, dirty, nil))

	assert.Equal(t, "1.0000", money.Fixed(stale.TotalPrice))
	assert.Equal(t, "10.0000", money.Fixed(owner.Items[0].TotalPrice))
	assert.Equal(t, "10.0000", money.Fixed(owner.TotalPrice))
	assert.Equal(t, "5.0000", money.Fixed(owner.Price))
}

func TestSplice(t *testing.T) {
	t.Run("nested match", func(t *testing.T) {
		inner := &models.OrderLine{ClientID: "b", Quantity: 1}
		forest := []*models.OrderLine{{ClientID: "a", Items: []*models.OrderLine{inner}}}
		dirty := &models.OrderLine{ClientID: "b", Quantity: 9}

		assert.True(t, Splice(forest, dirty))
		assert.Same(t, dirty, forest[0].Items[0])
	})

	t.Run("root match by id", func(t *testing.T) {
		forest := []*models.OrderLine{leaf(1, 1, "1"), leaf(2, 1, "1")}
		dirty := leaf(2, 5, "1")

		assert.True(t, Splice(forest, dirty))
		assert.Same(t, dirty, forest[1])
	})

	t.Run("no match", func(t *testing.T) {
		inner := &models.OrderLine{ClientID: "b"}
		forest := []*models.OrderLine{{ClientID: "a", Items: []*models.OrderLine{inner}}}

		assert.False(t, Splice(forest, &models.OrderLine{ClientID: "z"}))
		assert.Same(t, inner, forest[0].Items[0])
	})
}
