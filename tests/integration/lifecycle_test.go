package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/thalir/agrimarket/internal/models"
	"github.com/thalir/agrimarket/internal/store"
)

func TestOrderLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	mkt := models.MarketplaceFertilizer
	provider := createUser(t, db, "provider_lifecycle", models.RoleProvider)
	admin := createUser(t, db, "admin_lifecycle", models.RoleAdmin)

	placeOrder := func(t *testing.T, buyerID, productID int64, qty int) *models.Order {
		t.Helper()
		addItem(t, db, mkt, buyerID, productID, qty)
		return checkout(t, db, mkt, buyerID)
	}

	t.Run("cancel restores the deducted stock", func(t *testing.T) {
		farmer := createUser(t, db, "farmer_cancel", models.RoleFarmer)
		product := createProduct(t, db, mkt, provider.ID, "Seaweed Extract", 35, 10)
		order := placeOrder(t, farmer.ID, product.ID, 4)

		if got := productStock(t, db, product.ID); got != 6 {
			t.Fatalf("Expected stock 6 after checkout, got %d", got)
		}

		cancelled, err := store.CancelOrder(ctx, db, mkt, farmer.ID, order.ID)
		if err != nil {
			t.Fatalf("Cancel order: %v", err)
		}
		if cancelled.Status != models.OrderStatusCancelled {
			t.Errorf("Expected status CANCELLED, got %s", cancelled.Status)
		}
		if got := productStock(t, db, product.ID); got != 10 {
			t.Errorf("Expected stock restored to 10, got %d", got)
		}
	})

	t.Run("cancelling twice does not restock twice", func(t *testing.T) {
		farmer := createUser(t, db, "farmer_double_cancel", models.RoleFarmer)
		product := createProduct(t, db, mkt, provider.ID, "Rock Phosphate", 45, 10)
		order := placeOrder(t, farmer.ID, product.ID, 3)

		if _, err := store.CancelOrder(ctx, db, mkt, farmer.ID, order.ID); err != nil {
			t.Fatalf("First cancel: %v", err)
		}

		_, err := store.CancelOrder(ctx, db, mkt, farmer.ID, order.ID)
		var invalid *store.InvalidStateError
		if !errors.As(err, &invalid) {
			t.Fatalf("Expected InvalidStateError on second cancel, got %v", err)
		}

		if got := productStock(t, db, product.ID); got != 10 {
			t.Errorf("Expected stock 10 after a single restock, got %d", got)
		}
	})

	t.Run("only the buyer may cancel", func(t *testing.T) {
		farmer := createUser(t, db, "farmer_owner", models.RoleFarmer)
		other := createUser(t, db, "farmer_other", models.RoleFarmer)
		product := createProduct(t, db, mkt, provider.ID, "Neem Cake", 55, 10)
		order := placeOrder(t, farmer.ID, product.ID, 2)

		_, err := store.CancelOrder(ctx, db, mkt, other.ID, order.ID)
		var forbidden *store.ForbiddenError
		if !errors.As(err, &forbidden) {
			t.Errorf("Expected ForbiddenError for another buyer, got %v", err)
		}
	})

	t.Run("cancel is rejected once the seller confirmed", func(t *testing.T) {
		farmer := createUser(t, db, "farmer_confirmed", models.RoleFarmer)
		product := createProduct(t, db, mkt, provider.ID, "Vermicompost", 28, 10)
		order := placeOrder(t, farmer.ID, product.ID, 2)

		if _, err := store.UpdateOrderStatus(ctx, db, mkt, provider, order.ID, models.OrderStatusConfirmed); err != nil {
			t.Fatalf("Confirm order: %v", err)
		}

		_, err := store.CancelOrder(ctx, db, mkt, farmer.ID, order.ID)
		var invalid *store.InvalidStateError
		if !errors.As(err, &invalid) {
			t.Fatalf("Expected InvalidStateError after confirmation, got %v", err)
		}
		if got := productStock(t, db, product.ID); got != 8 {
			t.Errorf("Expected stock unchanged by rejected cancel, got %d", got)
		}
	})

	t.Run("seller advances the order along the forward path", func(t *testing.T) {
		farmer := createUser(t, db, "farmer_forward", models.RoleFarmer)
		product := createProduct(t, db, mkt, provider.ID, "Gypsum", 18, 10)
		order := placeOrder(t, farmer.ID, product.ID, 2)

		for _, next := range []models.OrderStatus{
			models.OrderStatusConfirmed,
			models.OrderStatusShipped,
			models.OrderStatusDelivered,
		} {
			updated, err := store.UpdateOrderStatus(ctx, db, mkt, provider, order.ID, next)
			if err != nil {
				t.Fatalf("Advance to %s: %v", next, err)
			}
			if updated.Status != next {
				t.Fatalf("Expected status %s, got %s", next, updated.Status)
			}
		}

		_, err := store.UpdateOrderStatus(ctx, db, mkt, provider, order.ID, models.OrderStatusConfirmed)
		var invalid *store.InvalidStateError
		if !errors.As(err, &invalid) {
			t.Errorf("Expected InvalidStateError for a DELIVERED order, got %v", err)
		}
	})

	t.Run("skipping a step is rejected", func(t *testing.T) {
		farmer := createUser(t, db, "farmer_skip", models.RoleFarmer)
		product := createProduct(t, db, mkt, provider.ID, "Sulphur Dust", 22, 10)
		order := placeOrder(t, farmer.ID, product.ID, 1)

		_, err := store.UpdateOrderStatus(ctx, db, mkt, provider, order.ID, models.OrderStatusShipped)
		var invalid *store.InvalidStateError
		if !errors.As(err, &invalid) {
			t.Errorf("Expected InvalidStateError for PENDING -> SHIPPED, got %v", err)
		}
	})

	t.Run("seller cannot cancel through the status update", func(t *testing.T) {
		farmer := createUser(t, db, "farmer_seller_cancel", models.RoleFarmer)
		product := createProduct(t, db, mkt, provider.ID, "Humic Acid", 60, 10)
		order := placeOrder(t, farmer.ID, product.ID, 3)

		_, err := store.UpdateOrderStatus(ctx, db, mkt, provider, order.ID, models.OrderStatusCancelled)
		var invalid *store.InvalidStateError
		if !errors.As(err, &invalid) {
			t.Fatalf("Expected InvalidStateError for seller-side cancel, got %v", err)
		}
		if got := productStock(t, db, product.ID); got != 7 {
			t.Errorf("Expected stock unchanged, got %d", got)
		}
	})

	t.Run("concurrent cancel and confirm admit exactly one winner", func(t *testing.T) {
		farmer := createUser(t, db, "farmer_cancel_race", models.RoleFarmer)
		product := createProduct(t, db, mkt, provider.ID, "Perlite", 8, 10)
		order := placeOrder(t, farmer.ID, product.ID, 4)

		results := make(chan error, 2)
		go func() {
			_, err := store.CancelOrder(ctx, db, mkt, farmer.ID, order.ID)
			results <- err
		}()
		go func() {
			_, err := store.UpdateOrderStatus(ctx, db, mkt, provider, order.ID, models.OrderStatusConfirmed)
			results <- err
		}()

		var succeeded, rejected int
		for i := 0; i < 2; i++ {
			err := <-results
			if err == nil {
				succeeded++
				continue
			}
			var invalid *store.InvalidStateError
			if !errors.As(err, &invalid) {
				t.Errorf("Expected InvalidStateError from the losing operation, got %v", err)
			}
			rejected++
		}
		if succeeded != 1 || rejected != 1 {
			t.Fatalf("Expected exactly one winner, got %d successes and %d rejections", succeeded, rejected)
		}

		final, err := store.GetOrder(ctx, db, mkt, order.ID)
		if err != nil {
			t.Fatalf("Get order: %v", err)
		}
		stock := productStock(t, db, product.ID)
		switch final.Status {
		case models.OrderStatusCancelled:
			if stock != 10 {
				t.Errorf("Expected stock restored to 10 after cancel won, got %d", stock)
			}
		case models.OrderStatusConfirmed:
			if stock != 6 {
				t.Errorf("Expected stock still 6 after confirm won, got %d", stock)
			}
		default:
			t.Fatalf("Expected CANCELLED or CONFIRMED, got %s", final.Status)
		}
	})

	t.Run("only the order's seller or an admin may advance it", func(t *testing.T) {
		farmer := createUser(t, db, "farmer_seller_scope", models.RoleFarmer)
		stranger := createUser(t, db, "provider_stranger", models.RoleProvider)
		product := createProduct(t, db, mkt, provider.ID, "Epsom Salt", 12, 10)
		order := placeOrder(t, farmer.ID, product.ID, 1)

		_, err := store.UpdateOrderStatus(ctx, db, mkt, stranger, order.ID, models.OrderStatusConfirmed)
		var forbidden *store.ForbiddenError
		if !errors.As(err, &forbidden) {
			t.Fatalf("Expected ForbiddenError for another seller, got %v", err)
		}

		if _, err := store.UpdateOrderStatus(ctx, db, mkt, admin, order.ID, models.OrderStatusConfirmed); err != nil {
			t.Errorf("Expected admin to advance the order, got %v", err)
		}
	})

	t.Run("order reads are scoped to the buyer", func(t *testing.T) {
		farmer := createUser(t, db, "farmer_read_scope", models.RoleFarmer)
		other := createUser(t, db, "farmer_read_other", models.RoleFarmer)
		product := createProduct(t, db, mkt, provider.ID, "Kelp Meal", 38, 10)
		order := placeOrder(t, farmer.ID, product.ID, 1)

		if _, err := store.GetOrderForBuyer(ctx, db, mkt, farmer.ID, order.ID); err != nil {
			t.Fatalf("Owner read: %v", err)
		}

		_, err := store.GetOrderForBuyer(ctx, db, mkt, other.ID, order.ID)
		var forbidden *store.ForbiddenError
		if !errors.As(err, &forbidden) {
			t.Errorf("Expected ForbiddenError for another buyer's read, got %v", err)
		}
	})

	t.Run("buyer feed pages with a keyset cursor", func(t *testing.T) {
		farmer := createUser(t, db, "farmer_cursor", models.RoleFarmer)
		product := createProduct(t, db, mkt, provider.ID, "Azomite", 15, 100)

		orderIDs := make(map[int64]bool)
		for i := 0; i < 3; i++ {
			order := placeOrder(t, farmer.ID, product.ID, 1)
			orderIDs[order.ID] = true
		}

		first, err := store.ListOrdersForBuyerCursor(ctx, db, mkt, farmer.ID, "", 2)
		if err != nil {
			t.Fatalf("First cursor page: %v", err)
		}
		firstOrders := first.Items.([]models.Order)
		if len(firstOrders) != 2 || !first.HasMore || first.NextCursor == "" {
			t.Fatalf("Expected a full first page with a next cursor, got %d items, hasMore=%v", len(firstOrders), first.HasMore)
		}

		second, err := store.ListOrdersForBuyerCursor(ctx, db, mkt, farmer.ID, first.NextCursor, 2)
		if err != nil {
			t.Fatalf("Second cursor page: %v", err)
		}
		secondOrders := second.Items.([]models.Order)
		if len(secondOrders) != 1 || second.HasMore {
			t.Fatalf("Expected a final page of 1, got %d items, hasMore=%v", len(secondOrders), second.HasMore)
		}

		seen := make(map[int64]bool)
		for _, o := range append(firstOrders, secondOrders...) {
			if seen[o.ID] {
				t.Errorf("Order %d returned twice across pages", o.ID)
			}
			seen[o.ID] = true
			if !orderIDs[o.ID] {
				t.Errorf("Unexpected order %d in buyer feed", o.ID)
			}
		}
	})

	t.Run("buyer and seller listings are filtered and newest first", func(t *testing.T) {
		farmer := createUser(t, db, "farmer_listing", models.RoleFarmer)
		seller := createUser(t, db, "provider_listing", models.RoleProvider)
		product := createProduct(t, db, mkt, seller.ID, "Worm Castings", 26, 100)

		var last *models.Order
		for i := 0; i < 3; i++ {
			last = placeOrder(t, farmer.ID, product.ID, 1)
		}

		buyerPage, err := store.ListOrdersForBuyer(ctx, db, mkt, farmer.ID, 1, 10)
		if err != nil {
			t.Fatalf("List buyer orders: %v", err)
		}
		buyerOrders := buyerPage.Items.([]models.Order)
		if buyerPage.Total != 3 || len(buyerOrders) != 3 {
			t.Fatalf("Expected 3 buyer orders, got total=%d len=%d", buyerPage.Total, len(buyerOrders))
		}
		if buyerOrders[0].ID != last.ID {
			t.Errorf("Expected newest order first, got %d", buyerOrders[0].ID)
		}
		if len(buyerOrders[0].Items) != 1 {
			t.Errorf("Expected items attached to listed orders, got %d", len(buyerOrders[0].Items))
		}

		sellerPage, err := store.ListOrdersForSeller(ctx, db, mkt, seller.ID, 1, 10)
		if err != nil {
			t.Fatalf("List seller orders: %v", err)
		}
		if sellerPage.Total != 3 {
			t.Errorf("Expected 3 seller orders, got %d", sellerPage.Total)
		}
	})
}
