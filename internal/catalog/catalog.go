package catalog

import (
	"errors"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidProducts indicates the provided products violate validation rules.
	ErrInvalidProducts = errors.New("products must have unique non-empty ids and non-negative retail price and stock")
	// ErrUnknownProduct indicates a price update referenced a product id that is not in the catalog.
	ErrUnknownProduct = errors.New("unknown product id")
)

// Product is one priced entity in the catalog. RetailPrice is kept as a
// decimal so the money value survives round-trips untouched; TokenPrice is
// zero until an allocation has been applied.
type Product struct {
	ID           string
	Name         string
	RetailPrice  decimal.Decimal
	InitialStock int
	TokenPrice   int64
	Currency     string
}

// Catalog provides access to the products being priced. It is both the
// record source feeding allocations and the sink the resulting token
// prices are written back to.
type Catalog interface {
	List() ([]Product, error)
	Replace(products []Product) error
	ApplyPrices(prices map[string]int64, currency string) (int, error)
}

// MemoryCatalog keeps products in-memory and guards access with a RWMutex.
type MemoryCatalog struct {
	mu       sync.RWMutex
	products []Product
}

// NewMemoryCatalog initialises the catalog with a copy of the seed products.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		products: cloneProducts(defaultProducts()),
	}
}

// DefaultProducts returns a copy of the seed product list.
func DefaultProducts() []Product {
	return cloneProducts(defaultProducts())
}

// List returns a defensive copy of the current products.
func (c *MemoryCatalog) List() ([]Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return cloneProducts(c.products), nil
}

// Replace validates and stores the provided products, discarding the
// previous catalog contents.
func (c *MemoryCatalog) Replace(products []Product) error {
	if err := validateProducts(products); err != nil {
		return err
	}

	c.mu.Lock()
	c.products = cloneProducts(products)
	c.mu.Unlock()

	return nil
}

// ApplyPrices writes the assigned token price and the uniform currency tag
// back onto the referenced products. Every id in prices must exist; on any
// unknown id nothing is written. It returns the number of updated products.
func (c *MemoryCatalog) ApplyPrices(prices map[string]int64, currency string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	index := make(map[string]int, len(c.products))
	for i, p := range c.products {
		index[p.ID] = i
	}
	for id := range prices {
		if _, ok := index[id]; !ok {
			return 0, ErrUnknownProduct
		}
	}

	for id, price := range prices {
		i := index[id]
		c.products[i].TokenPrice = price
		c.products[i].Currency = currency
	}

	return len(prices), nil
}

// Eligible selects the products that can participate in an allocation: a
// positive retail price and a positive initial stock. Filtering malformed
// records here keeps the allocator's preconditions intact.
func Eligible(products []Product) []Product {
	eligible := make([]Product, 0, len(products))
	for _, p := range products {
		if p.RetailPrice.IsPositive() && p.InitialStock > 0 {
			eligible = append(eligible, p)
		}
	}
	return eligible
}

func validateProducts(products []Product) error {
	if len(products) == 0 {
		return ErrInvalidProducts
	}

	seen := make(map[string]struct{}, len(products))
	for _, p := range products {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return ErrInvalidProducts
		}
		if _, dup := seen[id]; dup {
			return ErrInvalidProducts
		}
		seen[id] = struct{}{}
		if p.RetailPrice.IsNegative() || p.InitialStock < 0 {
			return ErrInvalidProducts
		}
	}
	return nil
}

func cloneProducts(src []Product) []Product {
	if len(src) == 0 {
		return []Product{}
	}

	out := make([]Product, len(src))
	copy(out, src)
	return out
}

func defaultProducts() []Product {
	return []Product{
		{ID: "sku-0001", Name: "Espresso Machine", RetailPrice: decimal.NewFromInt(89990), InitialStock: 3},
		{ID: "sku-0002", Name: "Mechanical Keyboard", RetailPrice: decimal.NewFromInt(59990), InitialStock: 5},
		{ID: "sku-0003", Name: "Insulated Bottle", RetailPrice: decimal.NewFromInt(14990), InitialStock: 12},
		{ID: "sku-0004", Name: "Canvas Backpack", RetailPrice: decimal.NewFromInt(29990), InitialStock: 8},
		{ID: "sku-0005", Name: "Desk Lamp", RetailPrice: decimal.NewFromInt(9990), InitialStock: 15},
	}
}
