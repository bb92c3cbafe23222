package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	products := writeFile(t, "products_list.csv",
		"SKU,product_name,weight,price,EPC_range\n"+
			"PRD_F_01,Organic Apples,150,148,E28011606000000000000001-E28011606000000000000064\n"+
			"PRD_F_03,Olive Oil,680,425,E280116060000000000000C8-E2801160600000000000012C\n")
	customers := writeFile(t, "customer_data.csv",
		"Customer_ID,Name\nC001,Ayesha Perera\nC004,Nimal Silva\n")

	c, err := Load(products, customers)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Products())
	assert.Equal(t, 2, c.Customers())

	p, ok := c.Product("PRD_F_03")
	require.True(t, ok)
	assert.Equal(t, "Olive Oil", p.Name)
	assert.Equal(t, 680.0, p.WeightG)
	assert.Equal(t, 425.0, p.Price)

	cu, ok := c.Customer("C001")
	require.True(t, ok)
	assert.Equal(t, "Ayesha Perera", cu.Name)

	_, ok = c.Product("PRD_MISSING")
	assert.False(t, ok)
}

func TestValidateEPC(t *testing.T) {
	products := writeFile(t, "products_list.csv",
		"SKU,product_name,weight,price,EPC_range\n"+
			"PRD_F_01,Apples,150,148,E10-E20\n"+
			"PRD_F_02,Bread,400,180,\n"+
			"PRD_F_03,Olive Oil,680,425,E28011606000000000000001-E28011606000000000000064\n")
	c, err := Load(products, "")
	require.NoError(t, err)

	cases := []struct {
		name string
		epc  string
		sku  string
		want bool
	}{
		{"inside range", "E15", "PRD_F_01", true},
		{"lower bound", "E10", "PRD_F_01", true},
		{"upper bound", "E20", "PRD_F_01", true},
		{"below range", "E0F", "PRD_F_01", false},
		{"above range", "E21", "PRD_F_01", false},
		{"unknown sku", "E15", "PRD_X_99", false},
		{"no range on sku", "E15", "PRD_F_02", false},
		{"garbage epc", "not-hex", "PRD_F_01", false},
		{"wide code inside", "E28011606000000000000032", "PRD_F_03", true},
		{"wide code above", "E280116060000000000000A1", "PRD_F_03", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, c.ValidateEPC(tc.epc, tc.sku))
		})
	}
}

func TestEmptyCatalog(t *testing.T) {
	c := Empty()
	_, ok := c.Product("PRD_F_01")
	assert.False(t, ok)
	assert.False(t, c.ValidateEPC("E15", "PRD_F_01"))
}
