package sales

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paintstock/paintstock/internal/catalog"
	"github.com/paintstock/paintstock/internal/catalog/catalogtest"
	"github.com/paintstock/paintstock/internal/discount"
	"github.com/paintstock/paintstock/internal/inventory"
	"github.com/paintstock/paintstock/internal/inventory/inventorytest"
	"github.com/paintstock/paintstock/internal/shared"
)

const (
	branchCentro   = int64(1)
	branchNorte    = int64(2)
	branchInactive = int64(3)

	productVinyl  = int64(10)
	productEnamel = int64(11)
	productBrush  = int64(12)
)

type fixture struct {
	svc    *Service
	repo   *memoryRepo
	ledger *inventorytest.Ledger
}

func newFixture() fixture {
	return newFixtureWith(Config{TaxRate: DefaultTaxRate})
}

func newFixtureWith(cfg Config) fixture {
	cat := catalogtest.New().
		AddBranch(catalog.Branch{ID: branchCentro, Name: "Centro"}).
		AddBranch(catalog.Branch{ID: branchNorte, Name: "Norte"}).
		AddBranch(catalog.Branch{ID: branchInactive, Name: "Closed", Status: catalog.BranchStatusInactive}).
		AddProduct(catalog.Product{ID: productVinyl, SKU: "VIN-19", Name: "Vinyl 19L", Price: 100, WholesalePrice: 80, WholesaleMinQty: 10}).
		AddProduct(catalog.Product{ID: productEnamel, SKU: "ENA-1", Name: "Enamel 1L", Price: 100}).
		AddProduct(catalog.Product{ID: productBrush, SKU: "BRU-2", Name: "Brush 2in", Price: 35.5})
	ledger := inventorytest.NewLedger()
	repo := newMemoryRepo(ledger)
	return fixture{
		svc:    NewService(repo, cat, nil, nil, nil, cfg),
		repo:   repo,
		ledger: ledger,
	}
}

func cashSale(branchID int64, lines ...LineInput) SaleInput {
	return SaleInput{BranchID: branchID, Items: lines, PaymentMethod: PaymentCash, PaymentType: PaymentTypeCash, CashierID: 5}
}

func TestComputeTotals(t *testing.T) {
	items := []Item{{LineTotal: 1000}}
	cases := []struct {
		name     string
		typ      discount.Type
		amount   float64
		expected Totals
	}{
		{"no discount", "", 0, Totals{Subtotal: 1000, Discount: 0, Tax: 160, Total: 1160}},
		{"ten percent", discount.TypePercentage, 10, Totals{Subtotal: 1000, Discount: 100, Tax: 144, Total: 1044}},
		{"fixed fifty", discount.TypeFixed, 50, Totals{Subtotal: 1000, Discount: 50, Tax: 152, Total: 1102}},
		{"fixed above subtotal clamps", discount.TypeFixed, 5000, Totals{Subtotal: 1000, Discount: 1000, Tax: 0, Total: 0}},
		{"full percentage", discount.TypePercentage, 100, Totals{Subtotal: 1000, Discount: 1000, Tax: 0, Total: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeTotals(items, tc.typ, tc.amount, DefaultTaxRate)
			assert.InDelta(t, tc.expected.Subtotal, got.Subtotal, 0.001)
			assert.InDelta(t, tc.expected.Discount, got.Discount, 0.001)
			assert.InDelta(t, tc.expected.Tax, got.Tax, 0.001)
			assert.InDelta(t, tc.expected.Total, got.Total, 0.001)
		})
	}
}

func TestRoundCentsHalfAwayFromZero(t *testing.T) {
	assert.Equal(t, 0.13, RoundCents(0.125))
	assert.Equal(t, -0.13, RoundCents(-0.125))
	assert.Equal(t, 10.0, RoundCents(9.999))
}

func TestProcessSaleTotals(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ledger.Set(productEnamel, branchCentro, 20)

	input := cashSale(branchCentro, LineInput{ProductID: productEnamel, Quantity: 10})
	input.Discount = &DiscountInput{Type: discount.TypePercentage, Amount: 10}
	receipt, err := f.svc.ProcessSale(ctx, input)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, receipt.Subtotal, 0.001)
	assert.InDelta(t, 100.0, receipt.DiscountAmount, 0.001)
	assert.InDelta(t, 144.0, receipt.Tax, 0.001)
	assert.InDelta(t, 1044.0, receipt.Total, 0.001)
	assert.Equal(t, int64(10), receipt.Quantities[productEnamel])
	assert.Equal(t, int64(1), receipt.Folio)

	input.Discount = &DiscountInput{Type: discount.TypeFixed, Amount: 50}
	receipt, err = f.svc.ProcessSale(ctx, input)
	require.NoError(t, err)
	assert.InDelta(t, 950.0, receipt.Subtotal-receipt.DiscountAmount, 0.001)
	assert.InDelta(t, 152.0, receipt.Tax, 0.001)
	assert.InDelta(t, 1102.0, receipt.Total, 0.001)
	assert.Equal(t, int64(0), receipt.Quantities[productEnamel])
	assert.Equal(t, int64(2), receipt.Folio)

	sale, err := f.svc.GetSale(ctx, receipt.SaleID)
	require.NoError(t, err)
	assert.InDelta(t, 1102.0, sale.Total, 0.001)
	require.Len(t, sale.Items, 1)
	assert.Equal(t, "Enamel 1L", sale.Items[0].ProductName)
}

func TestProcessSalePriceTiering(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ledger.Set(productVinyl, branchCentro, 50)

	receipt, err := f.svc.ProcessSale(ctx, cashSale(branchCentro, LineInput{ProductID: productVinyl, Quantity: 9}))
	require.NoError(t, err)
	assert.Equal(t, 100.0, receipt.Items[0].UnitPrice)
	assert.False(t, receipt.Items[0].Wholesale)
	assert.False(t, receipt.IsWholesale)

	receipt, err = f.svc.ProcessSale(ctx, cashSale(branchCentro, LineInput{ProductID: productVinyl, Quantity: 10}))
	require.NoError(t, err)
	assert.Equal(t, 80.0, receipt.Items[0].UnitPrice)
	assert.True(t, receipt.Items[0].Wholesale)
	assert.True(t, receipt.IsWholesale)
	assert.InDelta(t, 800.0, receipt.Subtotal, 0.001)
}

func TestProcessSaleMergesDuplicateLines(t *testing.T) {
	f := newFixture()
	f.ledger.Set(productVinyl, branchCentro, 50)

	receipt, err := f.svc.ProcessSale(context.Background(), cashSale(branchCentro,
		LineInput{ProductID: productVinyl, Quantity: 6},
		LineInput{ProductID: productVinyl, Quantity: 4}))
	require.NoError(t, err)
	require.Len(t, receipt.Items, 1)
	assert.Equal(t, int64(10), receipt.Items[0].Quantity)
	assert.True(t, receipt.Items[0].Wholesale)
	assert.Equal(t, int64(40), f.ledger.Quantity(productVinyl, branchCentro))
}

func TestProcessSaleIsAtomic(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ledger.Set(productVinyl, branchCentro, 5).Set(productEnamel, branchCentro, 1)

	_, err := f.svc.ProcessSale(ctx, cashSale(branchCentro,
		LineInput{ProductID: productVinyl, Quantity: 2},
		LineInput{ProductID: productEnamel, Quantity: 3}))
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	var stockErr *shared.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, productEnamel, stockErr.ProductID)

	assert.Equal(t, int64(5), f.ledger.Quantity(productVinyl, branchCentro))
	assert.Equal(t, int64(1), f.ledger.Quantity(productEnamel, branchCentro))
	assert.Empty(t, f.ledger.Movements())
	sales, err := f.svc.ListSales(ctx, SaleFilter{BranchID: branchCentro})
	require.NoError(t, err)
	assert.Empty(t, sales)

	// The rolled back folio is not consumed.
	receipt, err := f.svc.ProcessSale(ctx, cashSale(branchCentro, LineInput{ProductID: productVinyl, Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), receipt.Folio)
}

func TestProcessSalePersistenceFailureRollsBack(t *testing.T) {
	f := newFixture()
	f.ledger.Set(productVinyl, branchCentro, 5)
	f.ledger.FailNextMovement(errors.New("connection reset by peer"))

	_, err := f.svc.ProcessSale(context.Background(), cashSale(branchCentro, LineInput{ProductID: productVinyl, Quantity: 2}))
	require.ErrorIs(t, err, shared.ErrPersistence)
	assert.Equal(t, int64(5), f.ledger.Quantity(productVinyl, branchCentro))
	assert.Empty(t, f.repo.sales)
}

func TestProcessSaleCancelledContextLeavesLedger(t *testing.T) {
	f := newFixture()
	f.ledger.Set(productVinyl, branchCentro, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.ProcessSale(ctx, cashSale(branchCentro, LineInput{ProductID: productVinyl, Quantity: 2}))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(5), f.ledger.Quantity(productVinyl, branchCentro))
}

func TestProcessSaleValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ledger.Set(productVinyl, branchCentro, 5)
	line := LineInput{ProductID: productVinyl, Quantity: 1}

	invalid := []SaleInput{
		cashSale(branchCentro),
		cashSale(branchCentro, LineInput{ProductID: productVinyl, Quantity: 0}),
		cashSale(branchCentro, LineInput{ProductID: productVinyl, Quantity: -2}),
		cashSale(0, line),
		{BranchID: branchCentro, Items: []LineInput{line}, PaymentMethod: "bitcoin", PaymentType: PaymentTypeCash},
		{BranchID: branchCentro, Items: []LineInput{line}, PaymentMethod: PaymentCard, PaymentType: "layaway"},
		cashSale(branchInactive, line),
	}
	withDiscount := cashSale(branchCentro, line)
	withDiscount.Discount = &DiscountInput{Type: discount.TypePercentage, Amount: 101}
	invalid = append(invalid, withDiscount)
	negative := cashSale(branchCentro, line)
	negative.Discount = &DiscountInput{Type: discount.TypeFixed, Amount: -1}
	invalid = append(invalid, negative)

	for i, input := range invalid {
		_, err := f.svc.ProcessSale(ctx, input)
		require.ErrorIs(t, err, shared.ErrInvalidInput, "case %d", i)
	}

	_, err := f.svc.ProcessSale(ctx, cashSale(branchCentro, LineInput{ProductID: 999, Quantity: 1}))
	require.ErrorIs(t, err, shared.ErrNotFound)
	assert.Equal(t, int64(5), f.ledger.Quantity(productVinyl, branchCentro))
}

func TestProcessSaleIdempotentReplay(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ledger.Set(productBrush, branchCentro, 10)

	input := cashSale(branchCentro, LineInput{ProductID: productBrush, Quantity: 3})
	input.IdempotencyKey = "pos-7-000123"
	first, err := f.svc.ProcessSale(ctx, input)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := f.svc.ProcessSale(ctx, input)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.SaleID, second.SaleID)
	assert.Equal(t, first.Folio, second.Folio)
	assert.InDelta(t, first.Total, second.Total, 0.001)
	assert.Equal(t, int64(7), second.Quantities[productBrush])
	assert.Equal(t, int64(7), f.ledger.Quantity(productBrush, branchCentro))
	assert.Len(t, f.repo.sales, 1)
}

func TestProcessSaleIdempotencyKeyForDifferentSale(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ledger.Set(productBrush, branchCentro, 10).Set(productEnamel, branchNorte, 10).Set(productEnamel, branchCentro, 10)

	input := cashSale(branchCentro, LineInput{ProductID: productBrush, Quantity: 3})
	input.IdempotencyKey = "k1"
	_, err := f.svc.ProcessSale(ctx, input)
	require.NoError(t, err)

	reused := []SaleInput{
		cashSale(branchNorte, LineInput{ProductID: productEnamel, Quantity: 4}),
		cashSale(branchNorte, LineInput{ProductID: productBrush, Quantity: 3}),
		cashSale(branchCentro, LineInput{ProductID: productBrush, Quantity: 2}),
		cashSale(branchCentro, LineInput{ProductID: productBrush, Quantity: 3}, LineInput{ProductID: productEnamel, Quantity: 1}),
	}
	for i, other := range reused {
		other.IdempotencyKey = "k1"
		_, err := f.svc.ProcessSale(ctx, other)
		require.ErrorIs(t, err, shared.ErrConflict, "case %d", i)
	}
	assert.Equal(t, int64(7), f.ledger.Quantity(productBrush, branchCentro))
	assert.Equal(t, int64(10), f.ledger.Quantity(productEnamel, branchNorte))
	assert.Equal(t, int64(10), f.ledger.Quantity(productEnamel, branchCentro))
	assert.Len(t, f.repo.sales, 1)

	split := cashSale(branchCentro, LineInput{ProductID: productBrush, Quantity: 1}, LineInput{ProductID: productBrush, Quantity: 2})
	split.IdempotencyKey = "k1"
	replayed, err := f.svc.ProcessSale(ctx, split)
	require.NoError(t, err)
	assert.True(t, replayed.Replayed)
}

func TestProcessSaleZeroTaxRate(t *testing.T) {
	f := newFixtureWith(Config{TaxRate: 0})
	f.ledger.Set(productEnamel, branchCentro, 5)

	receipt, err := f.svc.ProcessSale(context.Background(), cashSale(branchCentro, LineInput{ProductID: productEnamel, Quantity: 1}))
	require.NoError(t, err)
	assert.InDelta(t, 100.0, receipt.Subtotal, 0.001)
	assert.Zero(t, receipt.Tax)
	assert.InDelta(t, 100.0, receipt.Total, 0.001)
}

func TestOversellRace(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ledger.Set(productVinyl, branchCentro, 5)

	var (
		wg    sync.WaitGroup
		errs  = make([]error, 2)
		sizes = []int64{5, 1}
	)
	for i, qty := range sizes {
		wg.Add(1)
		go func(i int, qty int64) {
			defer wg.Done()
			_, errs[i] = f.svc.ProcessSale(ctx, cashSale(branchCentro, LineInput{ProductID: productVinyl, Quantity: qty}))
		}(i, qty)
	}
	wg.Wait()

	succeeded := 0
	var sold int64
	for i, err := range errs {
		if err == nil {
			succeeded++
			sold += sizes[i]
			continue
		}
		require.ErrorIs(t, err, shared.ErrInsufficientStock)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 5-sold, f.ledger.Quantity(productVinyl, branchCentro))
	assert.GreaterOrEqual(t, f.ledger.Quantity(productVinyl, branchCentro), int64(0))
}

func TestManyConcurrentSalesKeepFoliosUnique(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ledger.Set(productBrush, branchNorte, 5)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		folios = map[int64]bool{}
		failed int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			receipt, err := f.svc.ProcessSale(ctx, cashSale(branchNorte, LineInput{ProductID: productBrush, Quantity: 1}))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, shared.ErrInsufficientStock)
				failed++
				return
			}
			folios[receipt.Folio] = true
		}()
	}
	wg.Wait()
	assert.Len(t, folios, 5)
	for n := int64(1); n <= 5; n++ {
		assert.True(t, folios[n], "folio %d missing", n)
	}
	assert.Equal(t, 15, failed)
	assert.Zero(t, f.ledger.Quantity(productBrush, branchNorte))
}

func TestProcessSaleConsumesApprovedDiscountOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ledger.Set(productEnamel, branchCentro, 30)

	approved := discount.Request{ID: uuid.New(), BranchID: branchCentro, Amount: 10, Type: discount.TypePercentage, Status: discount.StatusApproved}
	f.repo.addDiscount(approved)

	input := cashSale(branchCentro, LineInput{ProductID: productEnamel, Quantity: 10})
	// The caller's values are ignored in favour of the approved request.
	input.Discount = &DiscountInput{Type: discount.TypeFixed, Amount: 999, RequestID: approved.ID}
	receipt, err := f.svc.ProcessSale(ctx, input)
	require.NoError(t, err)
	assert.InDelta(t, 1044.0, receipt.Total, 0.001)

	stored := f.repo.discountByID(approved.ID)
	require.NotNil(t, stored.AppliedSaleID)
	assert.Equal(t, receipt.SaleID, *stored.AppliedSaleID)

	_, err = f.svc.ProcessSale(ctx, input)
	require.ErrorIs(t, err, shared.ErrConflict)
	assert.Equal(t, int64(20), f.ledger.Quantity(productEnamel, branchCentro))

	pending := discount.Request{ID: uuid.New(), BranchID: branchCentro, Amount: 5, Type: discount.TypeFixed, Status: discount.StatusPending}
	f.repo.addDiscount(pending)
	input.Discount = &DiscountInput{RequestID: pending.ID}
	_, err = f.svc.ProcessSale(ctx, input)
	require.ErrorIs(t, err, shared.ErrConflict)

	input.Discount = &DiscountInput{RequestID: uuid.New()}
	_, err = f.svc.ProcessSale(ctx, input)
	require.ErrorIs(t, err, shared.ErrNotFound)
	assert.Equal(t, int64(20), f.ledger.Quantity(productEnamel, branchCentro))
}

func TestProcessSaleAttachesClient(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.ledger.Set(productBrush, branchCentro, 5)

	input := cashSale(branchCentro, LineInput{ProductID: productBrush, Quantity: 1})
	input.ClientID = 42
	receipt, err := f.svc.ProcessSale(ctx, input)
	require.NoError(t, err)
	assert.Empty(t, receipt.ClientAttachError)

	sale, err := f.svc.GetSale(ctx, receipt.SaleID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), sale.ClientID)

	_, err = f.svc.AttachClient(ctx, receipt.SaleID, 42)
	require.NoError(t, err)
	_, err = f.svc.AttachClient(ctx, receipt.SaleID, 43)
	require.ErrorIs(t, err, shared.ErrConflict)
	_, err = f.svc.AttachClient(ctx, uuid.New(), 42)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSaleMovementsReferenceSale(t *testing.T) {
	f := newFixture()
	f.ledger.Set(productBrush, branchCentro, 5)

	receipt, err := f.svc.ProcessSale(context.Background(), cashSale(branchCentro, LineInput{ProductID: productBrush, Quantity: 2}))
	require.NoError(t, err)
	movements := f.ledger.Movements()
	require.Len(t, movements, 1)
	assert.Equal(t, inventory.ReasonSale, movements[0].Reason)
	assert.Equal(t, receipt.SaleID.String(), movements[0].RefID)
	assert.Equal(t, int64(-2), movements[0].Delta)
	assert.Equal(t, int64(5), movements[0].ActorID)
}
