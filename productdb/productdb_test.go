package productdb_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealframe/localdb/client"
	"github.com/mealframe/localdb/config"
	"github.com/mealframe/localdb/productdb"
	"github.com/mealframe/localdb/worker"
)

// testLogger returns a logger for tests. By default it discards all output.
// Set LOCALDB_TEST_VERBOSE=1 to enable logging.
func testLogger() *slog.Logger {
	if os.Getenv("LOCALDB_TEST_VERBOSE") != "" {
		return slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) (*productdb.Store, *client.Client) {
	t.Helper()

	dirs, err := config.NewStorageDirs(t.TempDir())
	require.NoError(t, err)

	w := worker.New(dirs, worker.Options{Logger: testLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	c := client.New(w, testLogger())
	store, err := productdb.Open(context.Background(), c, "")
	require.NoError(t, err)
	return store, c
}

func sampleProduct() productdb.Product {
	return productdb.Product{
		Name:  "Rolled Oats",
		Brand: "Acme",
		Macros: map[productdb.MacroElement]float64{
			productdb.Fat:           7,
			productdb.SaturatedFat:  1.25,
			productdb.Carbohydrates: 60,
			productdb.Sugar:         1,
			productdb.Protein:       13.5,
		},
		Micros: map[productdb.MicroNutrient]float64{
			productdb.Fiber: 10,
		},
		Units: map[productdb.Unit]productdb.UnitData{
			productdb.UnitGram: {Amount: 1, Divider: 1},
			productdb.UnitCup:  {Amount: 90, Divider: 1},
		},
	}
}

func TestAddAndSearchRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	want := sampleProduct()
	require.NoError(t, store.Add(ctx, "p1", want))

	got, err := store.Search(ctx, "Rolled")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, want, got["p1"])
}

func TestSearchPrefixFilters(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	p := sampleProduct()
	require.NoError(t, store.Add(ctx, "p1", p))

	p.Name = "Wheat Flour"
	require.NoError(t, store.Add(ctx, "p2", p))

	got, err := store.Search(ctx, "Wheat")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got, "p2")

	all, err := store.Search(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAddWithoutBrandOrGram(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	p := sampleProduct()
	p.Brand = ""
	delete(p.Units, productdb.UnitGram)
	require.NoError(t, store.Add(ctx, "p1", p))

	got, err := store.Search(ctx, "")
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Empty(t, got["p1"].Brand)
	// Gram falls back to the 1/1 identity.
	assert.Equal(t, productdb.UnitData{Amount: 1, Divider: 1}, got["p1"].Units[productdb.UnitGram])
}

func TestUpdateRewritesProduct(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	p := sampleProduct()
	require.NoError(t, store.Add(ctx, "p1", p))

	p.Name = "Steel Cut Oats"
	p.Macros[productdb.Protein] = 14
	delete(p.Micros, productdb.Fiber)
	require.NoError(t, store.Update(ctx, "p1", p))

	got, err := store.Search(ctx, "Steel")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, p, got["p1"])
}

func TestSetUnit(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "p1", sampleProduct()))
	require.NoError(t, store.SetUnit(ctx, "p1", productdb.UnitTablespoon, productdb.UnitData{Amount: 15, Divider: 1}))

	got, err := store.Search(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, productdb.UnitData{Amount: 15, Divider: 1}, got["p1"].Units[productdb.UnitTablespoon])
}

func TestDeleteCascades(t *testing.T) {
	store, c := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "p1", sampleProduct()))
	require.NoError(t, store.Delete(ctx, "p1"))

	got, err := store.Search(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, got)

	// The nutrient rows must be gone too, not just the product row.
	for _, table := range []string{"macro_elements", "micronutrients", "allowed_units"} {
		rows, err := c.Query(ctx, "", "SELECT COUNT(*) AS n FROM "+table, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(0), rows[0][0].Value, table)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	store, c := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "p1", sampleProduct()))

	// Re-opening over the same worker must keep existing data.
	store2, err := productdb.Open(ctx, c, "")
	require.NoError(t, err)

	got, err := store2.Search(ctx, "")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
