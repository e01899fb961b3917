package catalog

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aluiziolira/go-scrape-shop/models"
)

// PricedProduct pairs a product with its parsed price.
type PricedProduct struct {
	models.Product
	Value decimal.Decimal
}

// Summary holds every statistic computed over one snapshot.
type Summary struct {
	Max        PricedProduct
	Min        PricedProduct
	Average    decimal.Decimal
	Total      int
	Priced     int
	Unparsable []*ParseError
}

// Summarize computes max, min, average and counts in a single pass.
// Products whose price does not parse are excluded and listed in Unparsable.
func Summarize(snapshot models.Snapshot) (*Summary, error) {
	products, bad, err := pricedProducts(snapshot)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Max:        products[0],
		Min:        products[0],
		Total:      len(snapshot),
		Priced:     len(products),
		Unparsable: bad,
	}
	sum := decimal.Zero
	for _, p := range products {
		if p.Value.GreaterThan(summary.Max.Value) {
			summary.Max = p
		}
		if p.Value.LessThan(summary.Min.Value) {
			summary.Min = p
		}
		sum = sum.Add(p.Value)
	}
	summary.Average = average(sum, len(products))
	return summary, nil
}

// MaxPrice returns the product with the greatest parsed price. Ties go to
// the lexicographically first name.
func MaxPrice(snapshot models.Snapshot) (PricedProduct, error) {
	summary, err := Summarize(snapshot)
	if err != nil {
		return PricedProduct{}, err
	}
	return summary.Max, nil
}

// MinPrice returns the product with the smallest parsed price. Ties go to
// the lexicographically first name.
func MinPrice(snapshot models.Snapshot) (PricedProduct, error) {
	summary, err := Summarize(snapshot)
	if err != nil {
		return PricedProduct{}, err
	}
	return summary.Min, nil
}

// AveragePrice returns the mean parsed price rounded to two decimal places.
func AveragePrice(snapshot models.Snapshot) (decimal.Decimal, error) {
	summary, err := Summarize(snapshot)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return summary.Average, nil
}

// TotalCount returns the number of products in the snapshot.
func TotalCount(snapshot models.Snapshot) int {
	return len(snapshot)
}

// Unparsable lists the products whose price text does not parse, by name.
func Unparsable(snapshot models.Snapshot) []*ParseError {
	_, bad := parseAll(snapshot)
	return bad
}

// Prices returns the parsed prices in name order, skipping unparsable ones.
func Prices(snapshot models.Snapshot) []float64 {
	products, _ := parseAll(snapshot)
	prices := make([]float64, 0, len(products))
	for _, p := range products {
		prices = append(prices, p.Value.InexactFloat64())
	}
	return prices
}

func pricedProducts(snapshot models.Snapshot) ([]PricedProduct, []*ParseError, error) {
	if len(snapshot) == 0 {
		return nil, nil, ErrEmptyCatalog
	}
	products, bad := parseAll(snapshot)
	if len(products) == 0 {
		return nil, bad, fmt.Errorf("%w: all %d prices unparsable", ErrEmptyCatalog, len(bad))
	}
	return products, bad, nil
}

func parseAll(snapshot models.Snapshot) ([]PricedProduct, []*ParseError) {
	var products []PricedProduct
	var bad []*ParseError
	for _, name := range snapshot.Names() {
		p := snapshot[name]
		value, err := ParsePrice(p.Price)
		if err != nil {
			bad = append(bad, &ParseError{Name: name, Text: p.Price, Err: err})
			continue
		}
		products = append(products, PricedProduct{Product: p, Value: value})
	}
	return products, bad
}

func average(sum decimal.Decimal, count int) decimal.Decimal {
	return sum.Div(decimal.NewFromInt(int64(count))).Round(2)
}
