// Package catalog holds the immutable reference data loaded at startup:
// the product list (SKU, expected weight, price, EPC range) and the customer
// registry. Read-only after Load.
package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Product is one row of the product list.
type Product struct {
	SKU      string
	Name     string
	WeightG  float64
	Price    float64
	EPCRange string // "E280...-E280...", hex interval
}

// Customer is one row of the customer registry.
type Customer struct {
	ID   string
	Name string
}

// Catalog is the read-only lookup handed to the detection engine.
type Catalog struct {
	products  map[string]Product
	customers map[string]Customer
}

// Empty returns a catalog with no reference data. Lookups miss, EPC
// validation returns false; detection still runs.
func Empty() *Catalog {
	return &Catalog{
		products:  make(map[string]Product),
		customers: make(map[string]Customer),
	}
}

// Load reads the products and customers CSV files. Either path may be empty,
// in which case that side of the catalog stays empty.
func Load(productsPath, customersPath string) (*Catalog, error) {
	c := Empty()
	if productsPath != "" {
		if err := c.loadProducts(productsPath); err != nil {
			return nil, err
		}
	}
	if customersPath != "" {
		if err := c.loadCustomers(customersPath); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) loadProducts(path string) error {
	rows, header, err := readCSV(path)
	if err != nil {
		return fmt.Errorf("load products %s: %w", path, err)
	}
	col := columnIndex(header)
	for _, row := range rows {
		sku := field(row, col, "SKU")
		if sku == "" {
			continue
		}
		weight, _ := strconv.ParseFloat(field(row, col, "weight"), 64)
		price, _ := strconv.ParseFloat(field(row, col, "price"), 64)
		c.products[sku] = Product{
			SKU:      sku,
			Name:     field(row, col, "product_name"),
			WeightG:  weight,
			Price:    price,
			EPCRange: field(row, col, "EPC_range"),
		}
	}
	return nil
}

func (c *Catalog) loadCustomers(path string) error {
	rows, header, err := readCSV(path)
	if err != nil {
		return fmt.Errorf("load customers %s: %w", path, err)
	}
	col := columnIndex(header)
	for _, row := range rows {
		id := field(row, col, "Customer_ID")
		if id == "" {
			continue
		}
		c.customers[id] = Customer{ID: id, Name: field(row, col, "Name")}
	}
	return nil
}

// Product returns the catalog entry for sku.
func (c *Catalog) Product(sku string) (Product, bool) {
	p, ok := c.products[sku]
	return p, ok
}

// Customer returns the registry entry for id.
func (c *Catalog) Customer(id string) (Customer, bool) {
	cu, ok := c.customers[id]
	return cu, ok
}

// Products returns the number of loaded products.
func (c *Catalog) Products() int { return len(c.products) }

// Customers returns the number of loaded customers.
func (c *Catalog) Customers() int { return len(c.customers) }

// ValidateEPC reports whether epc falls inside the claimed SKU's catalog EPC
// range. EPC codes are hex strings too wide for uint64, so the comparison
// works on normalized hex digits. Unknown SKUs, missing ranges, and non-hex
// codes all validate false; this function never errors.
func (c *Catalog) ValidateEPC(epc, sku string) bool {
	p, ok := c.products[sku]
	if !ok {
		return false
	}
	start, end, ok := strings.Cut(p.EPCRange, "-")
	if !ok {
		return false
	}
	e, ok1 := hexDigits(epc)
	lo, ok2 := hexDigits(start)
	hi, ok3 := hexDigits(end)
	if !ok1 || !ok2 || !ok3 {
		return false
	}
	return hexCmp(lo, e) <= 0 && hexCmp(e, hi) <= 0
}

// hexDigits normalizes a hex string: trimmed, uppercased, leading zeros
// dropped. Returns false for empty or non-hex input.
func hexDigits(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'A' || r > 'F') {
			return "", false
		}
	}
	if t := strings.TrimLeft(s, "0"); t != "" {
		return t, true
	}
	return "0", true
}

// hexCmp compares two zero-trimmed hex strings numerically.
func hexCmp(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func readCSV(path string) ([][]string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, header, nil
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func field(row []string, col map[string]int, name string) string {
	i, ok := col[strings.ToLower(name)]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
