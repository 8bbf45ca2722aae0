package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnitPriceWholesaleTierIsPerLine(t *testing.T) {
	p := Product{ID: 1, Price: 100, WholesalePrice: 80, WholesaleMinQty: 10}

	price, wholesale := p.UnitPrice(9)
	assert.Equal(t, 100.0, price)
	assert.False(t, wholesale)

	price, wholesale = p.UnitPrice(10)
	assert.Equal(t, 80.0, price)
	assert.True(t, wholesale)
}

func TestUnitPriceNeedsBothWholesaleTerms(t *testing.T) {
	noMin := Product{Price: 100, WholesalePrice: 80}
	price, wholesale := noMin.UnitPrice(500)
	assert.Equal(t, 100.0, price)
	assert.False(t, wholesale)

	noPrice := Product{Price: 100, WholesaleMinQty: 3}
	price, _ = noPrice.UnitPrice(500)
	assert.Equal(t, 100.0, price)
}
