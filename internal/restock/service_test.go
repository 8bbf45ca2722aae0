package restock

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paintstock/paintstock/internal/catalog"
	"github.com/paintstock/paintstock/internal/catalog/catalogtest"
	"github.com/paintstock/paintstock/internal/inventory"
	"github.com/paintstock/paintstock/internal/inventory/inventorytest"
	"github.com/paintstock/paintstock/internal/shared"
)

const (
	warehouse  = int64(100)
	storeA     = int64(1)
	storeB     = int64(2)
	closedShop = int64(3)

	productPrimer = int64(10)
	productRoller = int64(11)
)

type fixture struct {
	svc    *Service
	repo   *memoryRepo
	ledger *inventorytest.Ledger
}

func newFixture(reserveOnShip bool) fixture {
	cat := catalogtest.New().
		AddBranch(catalog.Branch{ID: warehouse, Name: "CEDIS", Type: catalog.BranchTypeWarehouse}).
		AddBranch(catalog.Branch{ID: storeA, Name: "Centro"}).
		AddBranch(catalog.Branch{ID: storeB, Name: "Norte"}).
		AddBranch(catalog.Branch{ID: closedShop, Name: "Closed", Status: catalog.BranchStatusInactive}).
		AddProduct(catalog.Product{ID: productPrimer, SKU: "PRI-4", Name: "Primer 4L", Price: 320, CostPrice: 210}).
		AddProduct(catalog.Product{ID: productRoller, SKU: "ROL-9", Name: "Roller 9in", Price: 90, CostPrice: 45})
	ledger := inventorytest.NewLedger()
	repo := newMemoryRepo(ledger)
	return fixture{
		svc:    NewService(repo, cat, nil, nil, nil, Config{ReserveOnShip: reserveOnShip}),
		repo:   repo,
		ledger: ledger,
	}
}

func (f fixture) sheet(t *testing.T, lines ...LineInput) Order {
	t.Helper()
	order, err := f.svc.Create(context.Background(), CreateInput{Kind: KindRestockSheet, DestBranchID: storeA, Items: lines, ActorID: 7})
	require.NoError(t, err)
	return order
}

func (f fixture) advance(t *testing.T, id uuid.UUID, actions ...Action) AdvanceResult {
	t.Helper()
	var (
		result AdvanceResult
		err    error
	)
	for _, a := range actions {
		result, err = f.svc.Advance(context.Background(), AdvanceInput{OrderID: id, Action: a, ActorID: 7})
		require.NoError(t, err, "action %s", a)
	}
	return result
}

func TestNextTransitions(t *testing.T) {
	cases := []struct {
		from   Status
		action Action
		to     Status
		ok     bool
	}{
		{StatusPending, ActionApprove, StatusApproved, true},
		{StatusApproved, ActionShip, StatusShipped, true},
		{StatusShipped, ActionConfirmArrival, StatusCompleted, true},
		{StatusPending, ActionCancel, StatusCancelled, true},
		{StatusApproved, ActionReject, StatusRejected, true},
		{StatusShipped, ActionCancel, StatusCancelled, true},
		{StatusPending, ActionShip, "", false},
		{StatusShipped, ActionReject, "", false},
		{StatusApproved, ActionApprove, "", false},
		{StatusCompleted, ActionConfirmArrival, "", false},
		{StatusCancelled, ActionApprove, "", false},
		{StatusRejected, ActionCancel, "", false},
		{StatusPending, Action("teleport"), "", false},
	}
	for _, tc := range cases {
		to, ok := Next(tc.from, tc.action)
		assert.Equal(t, tc.ok, ok, "%s + %s", tc.from, tc.action)
		assert.Equal(t, tc.to, to, "%s + %s", tc.from, tc.action)
	}
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "pending_admin", Label(KindRestockRequest, StatusPending))
	assert.Equal(t, "approved_warehouse", Label(KindRestockRequest, StatusApproved))
	assert.Equal(t, "shipped", Label(KindRestockRequest, StatusShipped))
	assert.Equal(t, "pending", Label(KindRestockSheet, StatusPending))
}

func TestCreateDefaultsAndFolios(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()

	first := f.sheet(t, LineInput{ProductID: productPrimer, Quantity: 4}, LineInput{ProductID: productRoller, Quantity: 10, UnitCost: 40})
	assert.Equal(t, warehouse, first.SourceBranchID)
	assert.Equal(t, StatusPending, first.Status)
	assert.Equal(t, int64(1), first.Folio)
	require.Len(t, first.Lines, 2)
	assert.Equal(t, 210.0, first.Lines[0].UnitCost)
	assert.Equal(t, 40.0, first.Lines[1].UnitCost)
	assert.InDelta(t, 4*210.0+10*40.0, first.TotalAmount(), 0.001)
	assert.NotZero(t, first.Lines[0].ID)

	second := f.sheet(t, LineInput{ProductID: productPrimer, Quantity: 1})
	assert.Equal(t, int64(2), second.Folio)

	transfer, err := f.svc.Create(ctx, CreateInput{Kind: KindTransfer, SourceBranchID: storeB, DestBranchID: storeA,
		Items: []LineInput{{ProductID: productPrimer, Quantity: 1}}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), transfer.Folio)
	assert.Equal(t, storeB, transfer.FolioBranch())

	assert.Empty(t, f.ledger.Movements())
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	line := []LineInput{{ProductID: productPrimer, Quantity: 1}}

	invalid := []CreateInput{
		{Kind: "pallet", DestBranchID: storeA, Items: line},
		{Kind: KindRestockSheet, Items: line},
		{Kind: KindRestockSheet, DestBranchID: storeA},
		{Kind: KindRestockSheet, DestBranchID: storeA, Items: []LineInput{{ProductID: productPrimer, Quantity: 0}}},
		{Kind: KindRestockSheet, DestBranchID: storeA, Items: []LineInput{{ProductID: productPrimer, Quantity: 1, UnitCost: -1}}},
		{Kind: KindRestockSheet, DestBranchID: warehouse, Items: line},
		{Kind: KindTransfer, DestBranchID: storeA, Items: line},
		{Kind: KindTransfer, SourceBranchID: storeA, DestBranchID: storeA, Items: line},
		{Kind: KindTransfer, SourceBranchID: closedShop, DestBranchID: storeA, Items: line},
	}
	for i, input := range invalid {
		_, err := f.svc.Create(ctx, input)
		require.ErrorIs(t, err, shared.ErrInvalidInput, "case %d", i)
	}

	_, err := f.svc.Create(ctx, CreateInput{Kind: KindRestockSheet, DestBranchID: 404, Items: line})
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.svc.Create(ctx, CreateInput{Kind: KindRestockSheet, DestBranchID: storeA, Items: []LineInput{{ProductID: 999, Quantity: 1}}})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestLifecycleReservesAtShip(t *testing.T) {
	f := newFixture(true)
	f.ledger.Set(productPrimer, warehouse, 10).Set(productPrimer, storeA, 2)
	order := f.sheet(t, LineInput{ProductID: productPrimer, Quantity: 6})

	approved := f.advance(t, order.ID, ActionApprove)
	assert.Equal(t, StatusApproved, approved.Order.Status)
	assert.NotNil(t, approved.Order.ApprovedAt)
	assert.Zero(t, f.ledger.Entry(productPrimer, warehouse).Reserved)

	shipped := f.advance(t, order.ID, ActionShip)
	assert.Equal(t, StatusShipped, shipped.Order.Status)
	assert.True(t, shipped.Order.Lines[0].Reserved)
	src := f.ledger.Entry(productPrimer, warehouse)
	assert.Equal(t, int64(10), src.Quantity)
	assert.Equal(t, int64(6), src.Reserved)
	assert.Equal(t, int64(4), src.Available())

	completed := f.advance(t, order.ID, ActionConfirmArrival)
	assert.Equal(t, StatusCompleted, completed.Order.Status)
	assert.NotNil(t, completed.Order.CompletedAt)
	require.Len(t, completed.Lines, 1)
	assert.Equal(t, OutcomeConfirmed, completed.Lines[0].Outcome)
	assert.Equal(t, int64(4), completed.Lines[0].SourceQuantity)
	assert.Equal(t, int64(8), completed.Lines[0].DestQuantity)

	src = f.ledger.Entry(productPrimer, warehouse)
	assert.Equal(t, int64(4), src.Quantity)
	assert.Zero(t, src.Reserved)
	assert.Equal(t, int64(8), f.ledger.Quantity(productPrimer, storeA))
}

func TestShipWithoutStockStaysApproved(t *testing.T) {
	f := newFixture(true)
	f.ledger.Set(productPrimer, warehouse, 3).Set(productRoller, warehouse, 50)
	order := f.sheet(t, LineInput{ProductID: productRoller, Quantity: 5}, LineInput{ProductID: productPrimer, Quantity: 4})
	f.advance(t, order.ID, ActionApprove)

	_, err := f.svc.Advance(context.Background(), AdvanceInput{OrderID: order.ID, Action: ActionShip})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	stored, err := f.svc.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, stored.Status)
	assert.Zero(t, f.ledger.Entry(productRoller, warehouse).Reserved)
	assert.False(t, stored.Lines[0].Reserved)
}

func TestShipWithoutReservationLeavesLedger(t *testing.T) {
	f := newFixture(false)
	f.ledger.Set(productPrimer, warehouse, 3)
	order := f.sheet(t, LineInput{ProductID: productPrimer, Quantity: 3})
	f.advance(t, order.ID, ActionApprove, ActionShip)

	assert.Empty(t, f.ledger.Movements())
	assert.Equal(t, int64(3), f.ledger.Entry(productPrimer, warehouse).Available())
}

func TestPartialConfirmationStaysShipped(t *testing.T) {
	f := newFixture(false)
	ctx := context.Background()
	f.ledger.Set(productPrimer, warehouse, 10).Set(productRoller, warehouse, 5)
	order := f.sheet(t, LineInput{ProductID: productPrimer, Quantity: 4}, LineInput{ProductID: productRoller, Quantity: 8})
	f.advance(t, order.ID, ActionApprove, ActionShip)

	result := f.advance(t, order.ID, ActionConfirmArrival)
	assert.Equal(t, StatusShipped, result.Order.Status)
	require.Len(t, result.Lines, 2)
	assert.Equal(t, OutcomeConfirmed, result.Lines[0].Outcome)
	assert.Equal(t, OutcomeInsufficientStock, result.Lines[1].Outcome)
	assert.NotEmpty(t, result.Lines[1].Error)
	assert.Equal(t, int64(5), result.Lines[1].SourceQuantity)
	assert.Zero(t, result.Lines[1].DestQuantity)

	assert.Equal(t, int64(6), f.ledger.Quantity(productPrimer, warehouse))
	assert.Equal(t, int64(4), f.ledger.Quantity(productPrimer, storeA))
	assert.Equal(t, int64(5), f.ledger.Quantity(productRoller, warehouse))
	assert.Zero(t, f.ledger.Quantity(productRoller, storeA))

	f.ledger.Set(productRoller, warehouse, 8)
	result, err := f.svc.Advance(ctx, AdvanceInput{OrderID: order.ID, Action: ActionConfirmArrival})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Order.Status)
	assert.Equal(t, OutcomeAlreadyConfirmed, result.Lines[0].Outcome)
	assert.Equal(t, OutcomeConfirmed, result.Lines[1].Outcome)
	assert.Equal(t, int64(4), f.ledger.Quantity(productPrimer, storeA))
	assert.Equal(t, int64(8), f.ledger.Quantity(productRoller, storeA))
	assert.Zero(t, f.ledger.Quantity(productRoller, warehouse))
}

func TestConfirmationStoreFailureIsReportedPerLine(t *testing.T) {
	f := newFixture(true)
	f.ledger.Set(productPrimer, warehouse, 10).Set(productRoller, warehouse, 10)
	order := f.sheet(t, LineInput{ProductID: productPrimer, Quantity: 2}, LineInput{ProductID: productRoller, Quantity: 3})
	f.advance(t, order.ID, ActionApprove, ActionShip)
	f.repo.failLine[order.Lines[0].ID] = errors.New("connection reset by peer")

	result := f.advance(t, order.ID, ActionConfirmArrival)
	assert.Equal(t, StatusShipped, result.Order.Status)
	assert.Equal(t, OutcomeError, result.Lines[0].Outcome)
	assert.Equal(t, OutcomeConfirmed, result.Lines[1].Outcome)

	src := f.ledger.Entry(productPrimer, warehouse)
	assert.Equal(t, int64(10), src.Quantity)
	assert.Equal(t, int64(2), src.Reserved)
	assert.Zero(t, f.ledger.Quantity(productPrimer, storeA))
	assert.Equal(t, int64(3), f.ledger.Quantity(productRoller, storeA))
}

func TestTerminalOrdersAreImmutable(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	f.ledger.Set(productPrimer, warehouse, 10)

	completed := f.sheet(t, LineInput{ProductID: productPrimer, Quantity: 1})
	f.advance(t, completed.ID, ActionApprove, ActionShip, ActionConfirmArrival)
	cancelled := f.sheet(t, LineInput{ProductID: productPrimer, Quantity: 1})
	f.advance(t, cancelled.ID, ActionCancel)
	rejected := f.sheet(t, LineInput{ProductID: productPrimer, Quantity: 1})
	f.advance(t, rejected.ID, ActionApprove, ActionReject)

	before := f.ledger.Movements()
	for _, id := range []uuid.UUID{completed.ID, cancelled.ID, rejected.ID} {
		for _, a := range []Action{ActionApprove, ActionShip, ActionConfirmArrival, ActionCancel, ActionReject} {
			_, err := f.svc.Advance(ctx, AdvanceInput{OrderID: id, Action: a})
			require.ErrorIs(t, err, shared.ErrConflict, "order %s action %s", id, a)
		}
	}
	assert.Equal(t, before, f.ledger.Movements())

	shipped := f.sheet(t, LineInput{ProductID: productPrimer, Quantity: 1})
	f.advance(t, shipped.ID, ActionApprove, ActionShip)
	_, err := f.svc.Advance(ctx, AdvanceInput{OrderID: shipped.ID, Action: ActionReject})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCancelShippedReleasesReservation(t *testing.T) {
	f := newFixture(true)
	f.ledger.Set(productPrimer, warehouse, 10).Set(productRoller, warehouse, 4)
	order := f.sheet(t, LineInput{ProductID: productPrimer, Quantity: 6}, LineInput{ProductID: productRoller, Quantity: 4})
	f.advance(t, order.ID, ActionApprove, ActionShip)
	assert.Equal(t, int64(6), f.ledger.Entry(productPrimer, warehouse).Reserved)

	cancelled := f.advance(t, order.ID, ActionCancel)
	assert.Equal(t, StatusCancelled, cancelled.Order.Status)
	assert.NotNil(t, cancelled.Order.CancelledAt)
	for _, l := range cancelled.Order.Lines {
		assert.False(t, l.Reserved)
	}

	primer := f.ledger.Entry(productPrimer, warehouse)
	assert.Equal(t, int64(10), primer.Quantity)
	assert.Zero(t, primer.Reserved)
	roller := f.ledger.Entry(productRoller, warehouse)
	assert.Equal(t, int64(4), roller.Quantity)
	assert.Zero(t, roller.Reserved)
	assert.Zero(t, f.ledger.Quantity(productPrimer, storeA))

	var releases int
	for _, m := range f.ledger.Movements() {
		if m.Reason == inventory.ReasonRelease {
			releases++
			assert.Equal(t, order.ID.String(), m.RefID)
		}
	}
	assert.Equal(t, 2, releases)
}

func TestCancelShippedWithoutReservation(t *testing.T) {
	f := newFixture(false)
	f.ledger.Set(productPrimer, warehouse, 5)
	order := f.sheet(t, LineInput{ProductID: productPrimer, Quantity: 5})
	f.advance(t, order.ID, ActionApprove, ActionShip)

	cancelled := f.advance(t, order.ID, ActionCancel)
	assert.Equal(t, StatusCancelled, cancelled.Order.Status)
	assert.Empty(t, f.ledger.Movements())
	assert.Equal(t, int64(5), f.ledger.Entry(productPrimer, warehouse).Available())
}

func TestCancelPartiallyReceivedOrderConflicts(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	f.ledger.Set(productPrimer, warehouse, 10).Set(productRoller, warehouse, 10)
	order := f.sheet(t, LineInput{ProductID: productPrimer, Quantity: 2}, LineInput{ProductID: productRoller, Quantity: 3})
	f.advance(t, order.ID, ActionApprove, ActionShip)
	f.repo.failLine[order.Lines[1].ID] = errors.New("connection reset by peer")
	partial := f.advance(t, order.ID, ActionConfirmArrival)
	require.Equal(t, StatusShipped, partial.Order.Status)

	_, err := f.svc.Advance(ctx, AdvanceInput{OrderID: order.ID, Action: ActionCancel})
	require.ErrorIs(t, err, shared.ErrConflict)

	stored, err := f.svc.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, stored.Status)
	assert.Equal(t, int64(3), f.ledger.Entry(productRoller, warehouse).Reserved)
	assert.Equal(t, int64(8), f.ledger.Quantity(productPrimer, warehouse))
}

func TestSupplyOrderIncrementsDestinationOnly(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	f.ledger.Set(productPrimer, warehouse, 10).Set(productPrimer, storeA, 1)

	order, err := f.svc.Create(ctx, CreateInput{Kind: KindSupplyOrder, DestBranchID: storeA,
		Items: []LineInput{{ProductID: productPrimer, Quantity: 12, UnitCost: 190}}})
	require.NoError(t, err)
	assert.Zero(t, order.SourceBranchID)
	assert.Equal(t, int64(1), order.Folio)
	assert.Equal(t, storeA, order.FolioBranch())

	sheet := f.sheet(t, LineInput{ProductID: productPrimer, Quantity: 1})
	assert.Equal(t, int64(1), sheet.Folio)

	shipped := f.advance(t, order.ID, ActionApprove, ActionShip)
	assert.False(t, shipped.Order.Lines[0].Reserved)
	assert.Empty(t, f.ledger.Movements())

	done := f.advance(t, order.ID, ActionConfirmArrival)
	assert.Equal(t, StatusCompleted, done.Order.Status)
	require.Len(t, done.Lines, 1)
	assert.Equal(t, OutcomeConfirmed, done.Lines[0].Outcome)
	assert.Zero(t, done.Lines[0].SourceQuantity)
	assert.Equal(t, int64(13), done.Lines[0].DestQuantity)

	assert.Equal(t, int64(10), f.ledger.Quantity(productPrimer, warehouse))
	assert.Equal(t, int64(13), f.ledger.Quantity(productPrimer, storeA))
	movements := f.ledger.Movements()
	require.Len(t, movements, 1)
	assert.Equal(t, inventory.ReasonRestock, movements[0].Reason)
	assert.Equal(t, storeA, movements[0].BranchID)
	assert.Equal(t, int64(12), movements[0].Delta)
}

func TestSupplyOrderValidation(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	line := []LineInput{{ProductID: productPrimer, Quantity: 1}}

	_, err := f.svc.Create(ctx, CreateInput{Kind: KindSupplyOrder, SourceBranchID: warehouse, DestBranchID: storeA, Items: line})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	_, err = f.svc.Create(ctx, CreateInput{Kind: KindSupplyOrder, DestBranchID: closedShop, Items: line})
	require.ErrorIs(t, err, shared.ErrInvalidInput)

	order, err := f.svc.Create(ctx, CreateInput{Kind: KindSupplyOrder, DestBranchID: warehouse, Items: line})
	require.NoError(t, err)
	f.advance(t, order.ID, ActionApprove, ActionShip)
	cancelled := f.advance(t, order.ID, ActionCancel)
	assert.Equal(t, StatusCancelled, cancelled.Order.Status)
	assert.Empty(t, f.ledger.Movements())
}

func TestAdvanceValidation(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()

	_, err := f.svc.Advance(ctx, AdvanceInput{Action: ActionApprove})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	_, err = f.svc.Advance(ctx, AdvanceInput{OrderID: uuid.New(), Action: "teleport"})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
	_, err = f.svc.Advance(ctx, AdvanceInput{OrderID: uuid.New(), Action: ActionApprove})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAdvanceIdempotencyKeyReplays(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	f.ledger.Set(productPrimer, warehouse, 10)
	order := f.sheet(t, LineInput{ProductID: productPrimer, Quantity: 3})

	approve := AdvanceInput{OrderID: order.ID, Action: ActionApprove, IdempotencyKey: "approve-" + order.ID.String()}
	first, err := f.svc.Advance(ctx, approve)
	require.NoError(t, err)
	assert.False(t, first.Replayed)
	again, err := f.svc.Advance(ctx, approve)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, StatusApproved, again.Order.Status)

	_, err = f.svc.Advance(ctx, AdvanceInput{OrderID: order.ID, Action: ActionApprove})
	require.ErrorIs(t, err, shared.ErrConflict)

	f.advance(t, order.ID, ActionShip)
	confirm := AdvanceInput{OrderID: order.ID, Action: ActionConfirmArrival, IdempotencyKey: "arrival-1"}
	done, err := f.svc.Advance(ctx, confirm)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Order.Status)

	replayed, err := f.svc.Advance(ctx, confirm)
	require.NoError(t, err)
	assert.True(t, replayed.Replayed)
	require.Len(t, replayed.Lines, 1)
	assert.Equal(t, OutcomeConfirmed, replayed.Lines[0].Outcome)
	assert.Equal(t, int64(7), f.ledger.Quantity(productPrimer, warehouse))
	assert.Equal(t, int64(3), f.ledger.Quantity(productPrimer, storeA))

	other := f.sheet(t, LineInput{ProductID: productPrimer, Quantity: 1})
	_, err = f.svc.Advance(ctx, AdvanceInput{OrderID: other.ID, Action: ActionApprove, IdempotencyKey: "arrival-1"})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestTransferMovesBetweenStores(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	f.ledger.Set(productRoller, storeB, 6)

	order, err := f.svc.Create(ctx, CreateInput{Kind: KindTransfer, SourceBranchID: storeB, DestBranchID: storeA,
		Items: []LineInput{{ProductID: productRoller, Quantity: 6}}})
	require.NoError(t, err)
	f.advance(t, order.ID, ActionApprove, ActionShip, ActionConfirmArrival)

	assert.Zero(t, f.ledger.Quantity(productRoller, storeB))
	assert.Equal(t, int64(6), f.ledger.Quantity(productRoller, storeA))
	var transfers int
	for _, m := range f.ledger.Movements() {
		if m.Reason == inventory.ReasonTransfer {
			transfers++
			assert.Equal(t, order.ID.String(), m.RefID)
		}
	}
	assert.Equal(t, 2, transfers)
}

func TestList(t *testing.T) {
	f := newFixture(true)
	ctx := context.Background()
	sheet := f.sheet(t, LineInput{ProductID: productPrimer, Quantity: 1})
	_, err := f.svc.Create(ctx, CreateInput{Kind: KindRestockRequest, DestBranchID: storeB, Items: []LineInput{{ProductID: productRoller, Quantity: 2}}})
	require.NoError(t, err)
	f.advance(t, sheet.ID, ActionCancel)

	orders, err := f.svc.List(ctx, ListFilter{BranchID: storeA})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, sheet.ID, orders[0].ID)

	orders, err = f.svc.List(ctx, ListFilter{Kind: KindRestockRequest, Statuses: []Status{StatusPending}})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, storeB, orders[0].DestBranchID)

	orders, err = f.svc.List(ctx, ListFilter{BranchID: warehouse})
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	_, err = f.svc.List(ctx, ListFilter{Statuses: []Status{"lost"}})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}
