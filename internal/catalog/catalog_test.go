package catalog

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewMemoryCatalogReturnsSeedProducts(t *testing.T) {
	t.Parallel()

	cat := NewMemoryCatalog()

	got, err := cat.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := DefaultProducts()
	if len(got) != len(want) {
		t.Fatalf("expected %d seed products, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i].ID || !got[i].RetailPrice.Equal(want[i].RetailPrice) {
			t.Fatalf("seed product %d mismatch: got %+v want %+v", i, got[i], want[i])
		}
	}

	// ensure mutation safety
	got[0].TokenPrice = 999
	again, err := cat.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again[0].TokenPrice == 999 {
		t.Fatalf("expected defensive copy, got %+v", again[0])
	}
}

func TestReplaceUpdatesState(t *testing.T) {
	t.Parallel()

	cat := NewMemoryCatalog()
	products := []Product{
		{ID: "a", Name: "Item A", RetailPrice: decimal.NewFromInt(100), InitialStock: 2},
		{ID: "b", Name: "Item B", RetailPrice: decimal.NewFromInt(250), InitialStock: 1},
	}

	if err := cat.Replace(products); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := cat.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("unexpected catalog contents: %+v", got)
	}
}

func TestReplaceRejectsInvalidProducts(t *testing.T) {
	t.Parallel()

	testCases := [][]Product{
		nil,
		{},
		{{ID: "", RetailPrice: decimal.NewFromInt(10), InitialStock: 1}},
		{{ID: "   ", RetailPrice: decimal.NewFromInt(10), InitialStock: 1}},
		{
			{ID: "dup", RetailPrice: decimal.NewFromInt(10), InitialStock: 1},
			{ID: "dup", RetailPrice: decimal.NewFromInt(20), InitialStock: 1},
		},
		{{ID: "neg-price", RetailPrice: decimal.NewFromInt(-5), InitialStock: 1}},
		{{ID: "neg-stock", RetailPrice: decimal.NewFromInt(5), InitialStock: -1}},
	}

	for idx, tc := range testCases {
		tc := tc
		t.Run(fmt.Sprintf("case_%d", idx), func(t *testing.T) {
			cat := NewMemoryCatalog()
			if err := cat.Replace(tc); !errors.Is(err, ErrInvalidProducts) {
				t.Fatalf("expected ErrInvalidProducts for %+v, got %v", tc, err)
			}
		})
	}
}

func TestReplaceAllowsZeroPriceAndStock(t *testing.T) {
	t.Parallel()

	cat := NewMemoryCatalog()
	products := []Product{
		{ID: "free", RetailPrice: decimal.Zero, InitialStock: 0},
		{ID: "priced", RetailPrice: decimal.NewFromInt(100), InitialStock: 4},
	}

	if err := cat.Replace(products); err != nil {
		t.Fatalf("zero price/stock should be storable, got %v", err)
	}
}

func TestApplyPricesWritesPriceAndCurrency(t *testing.T) {
	t.Parallel()

	cat := NewMemoryCatalog()
	if err := cat.Replace([]Product{
		{ID: "a", RetailPrice: decimal.NewFromInt(100), InitialStock: 2},
		{ID: "b", RetailPrice: decimal.NewFromInt(200), InitialStock: 3},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	updated, err := cat.ApplyPrices(map[string]int64{"a": 4, "b": 7}, "token")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated != 2 {
		t.Fatalf("expected 2 updated products, got %d", updated)
	}

	got, err := cat.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range got {
		if p.Currency != "token" {
			t.Fatalf("expected currency tag on %s, got %q", p.ID, p.Currency)
		}
	}
	if got[0].TokenPrice != 4 || got[1].TokenPrice != 7 {
		t.Fatalf("unexpected token prices: %+v", got)
	}
}

func TestApplyPricesRejectsUnknownIDWithoutPartialWrite(t *testing.T) {
	t.Parallel()

	cat := NewMemoryCatalog()
	if err := cat.Replace([]Product{
		{ID: "a", RetailPrice: decimal.NewFromInt(100), InitialStock: 2},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := cat.ApplyPrices(map[string]int64{"a": 4, "ghost": 9}, "token"); !errors.Is(err, ErrUnknownProduct) {
		t.Fatalf("expected ErrUnknownProduct, got %v", err)
	}

	got, err := cat.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].TokenPrice != 0 {
		t.Fatalf("expected no partial write, got %+v", got[0])
	}
}

func TestEligibleFiltersMalformedRecords(t *testing.T) {
	t.Parallel()

	products := []Product{
		{ID: "ok", RetailPrice: decimal.NewFromInt(100), InitialStock: 2},
		{ID: "zero-price", RetailPrice: decimal.Zero, InitialStock: 2},
		{ID: "zero-stock", RetailPrice: decimal.NewFromInt(50), InitialStock: 0},
	}

	eligible := Eligible(products)
	if len(eligible) != 1 || eligible[0].ID != "ok" {
		t.Fatalf("unexpected eligible set: %+v", eligible)
	}
}

func TestMemoryCatalogConcurrentAccess(t *testing.T) {
	cat := NewMemoryCatalog()
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(2)

		go func(offset int) {
			defer wg.Done()
			products := []Product{
				{ID: fmt.Sprintf("p-%d", offset), RetailPrice: decimal.NewFromInt(int64(100 + offset)), InitialStock: 1},
			}
			if err := cat.Replace(products); err != nil {
				t.Errorf("Replace failed: %v", err)
			}
		}(i)

		go func() {
			defer wg.Done()
			if _, err := cat.List(); err != nil {
				t.Errorf("List failed: %v", err)
			}
		}()
	}

	wg.Wait()

	// final read should succeed
	if _, err := cat.List(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
