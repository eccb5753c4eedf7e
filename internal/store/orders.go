package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/thalir/agrimarket/internal/database"
	"github.com/thalir/agrimarket/internal/models"
)

// CheckoutRequest carries the delivery details supplied at checkout.
// DeliveryAddress is required; the rest is optional.
type CheckoutRequest struct {
	DeliveryAddress string
	DeliveryPhone   string
	Notes           string
}

func generateOrderNumber() string {
	return "ORD-" + uuid.NewString()
}

const orderColumns = `id, marketplace, order_number, buyer_id, seller_id, status, total_amount,
	delivery_address, delivery_phone, notes, created_at, updated_at, version`

// querier is satisfied by both *sql.DB and *sql.Tx so orders can be read
// inside and outside transactions.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Checkout converts the buyer's cart into a PENDING order in one atomic
// transaction: it locks the cart and its product rows, re-validates every
// line against live stock, deducts stock, snapshots the lines into order
// items at their captured add-time prices and drains the cart. On any
// validation failure nothing is persisted.
func Checkout(ctx context.Context, db *sql.DB, mkt models.Marketplace, buyerID int64, req CheckoutRequest) (*models.Order, error) {
	var order *models.Order

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		var cartID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM carts WHERE marketplace = $1 AND buyer_id = $2 FOR UPDATE`,
			mkt, buyerID).Scan(&cartID)
		if err != nil {
			if err == sql.ErrNoRows {
				return ErrEmptyCart
			}
			return fmt.Errorf("lock cart: %w", err)
		}

		lines, err := lockCheckoutLines(ctx, tx, cartID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return ErrEmptyCart
		}

		sellerID := lines[0].sellerID
		total := decimal.Zero
		for _, line := range lines {
			if line.sellerID != sellerID {
				return &InvalidStateError{Reason: "cart contains items from multiple sellers"}
			}
			if !line.isActive {
				return &ProductUnavailableError{Product: line.productName}
			}
			if line.stock < line.quantity {
				return &InsufficientStockError{Product: line.productName, Available: line.stock}
			}
			total = total.Add(line.subtotal())
		}

		var orderID int64
		err = tx.QueryRowContext(ctx,
			`INSERT INTO orders (marketplace, order_number, buyer_id, seller_id, status, total_amount,
			                     delivery_address, delivery_phone, notes, created_at, updated_at, version)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW(), 1)
			 RETURNING id`,
			mkt, generateOrderNumber(), buyerID, sellerID, models.OrderStatusPending, total,
			req.DeliveryAddress, req.DeliveryPhone, req.Notes).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for _, line := range lines {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO order_items (order_id, product_id, product_name, unit, quantity,
				                          price_at_order, subtotal, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
				orderID, line.productID, line.productName, line.unit, line.quantity,
				line.priceAtAddition, line.subtotal())
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
		}

		for _, line := range lines {
			ok, err := decrementStock(ctx, tx, line.productID, line.quantity)
			if err != nil {
				return err
			}
			if !ok {
				return &InsufficientStockError{Product: line.productName, Available: line.stock}
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
			return fmt.Errorf("drain cart: %w", err)
		}
		if err := touchCart(ctx, tx, cartID); err != nil {
			return err
		}

		order, err = fetchOrder(ctx, tx, mkt, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// CancelOrder is the buyer's inverse of checkout: it restores exactly the
// quantities the order deducted, to the same products, and marks the order
// CANCELLED. Only the buyer may cancel, and only from PENDING.
func CancelOrder(ctx context.Context, db *sql.DB, mkt models.Marketplace, buyerID, orderID int64) (*models.Order, error) {
	var order *models.Order

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		current, err := lockOrder(ctx, tx, mkt, orderID)
		if err != nil {
			return err
		}

		if current.buyerID != buyerID {
			return &ForbiddenError{Reason: "order belongs to another buyer"}
		}
		if current.status != models.OrderStatusPending {
			return &InvalidStateError{Reason: "only PENDING orders can be cancelled"}
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT product_id, quantity FROM order_items WHERE order_id = $1`, orderID)
		if err != nil {
			return fmt.Errorf("load order items: %w", err)
		}
		defer rows.Close()

		type restock struct {
			productID int64
			quantity  int
		}
		var restocks []restock
		for rows.Next() {
			var r restock
			if err := rows.Scan(&r.productID, &r.quantity); err != nil {
				return fmt.Errorf("scan order item: %w", err)
			}
			restocks = append(restocks, r)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		for _, r := range restocks {
			if err := incrementStock(ctx, tx, r.productID, r.quantity); err != nil {
				return err
			}
		}

		if err := setOrderStatus(ctx, tx, orderID, models.OrderStatusCancelled); err != nil {
			return err
		}

		order, err = fetchOrder(ctx, tx, mkt, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// UpdateOrderStatus advances an order along the forward transition table.
// Only the order's seller or an admin may call it. CANCELLED is not a valid
// target here: cancellation goes through CancelOrder so stock is restored.
func UpdateOrderStatus(ctx context.Context, db *sql.DB, mkt models.Marketplace, requester *models.User, orderID int64, newStatus models.OrderStatus) (*models.Order, error) {
	var order *models.Order

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		current, err := lockOrder(ctx, tx, mkt, orderID)
		if err != nil {
			return err
		}

		if requester.Role != models.RoleAdmin && current.sellerID != requester.ID {
			return &ForbiddenError{Reason: "this order is not for your products"}
		}
		if current.status.IsTerminal() {
			return &InvalidStateError{Reason: fmt.Sprintf("cannot update a %s order", current.status)}
		}
		if newStatus == models.OrderStatusCancelled {
			return &InvalidStateError{Reason: "orders are cancelled by the buyer"}
		}
		if !models.CanTransition(current.status, newStatus) {
			return &InvalidStateError{Reason: fmt.Sprintf("cannot move order from %s to %s", current.status, newStatus)}
		}

		if err := setOrderStatus(ctx, tx, orderID, newStatus); err != nil {
			return err
		}

		order, err = fetchOrder(ctx, tx, mkt, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// GetOrder reads an order with its items, without ownership checks.
func GetOrder(ctx context.Context, db *sql.DB, mkt models.Marketplace, orderID int64) (*models.Order, error) {
	return fetchOrder(ctx, db, mkt, orderID)
}

// GetOrderForBuyer reads an order, verifying it belongs to the buyer.
func GetOrderForBuyer(ctx context.Context, db *sql.DB, mkt models.Marketplace, buyerID, orderID int64) (*models.Order, error) {
	order, err := fetchOrder(ctx, db, mkt, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, &ForbiddenError{Reason: "order belongs to another buyer"}
	}
	return order, nil
}

func ListOrdersForBuyer(ctx context.Context, db *sql.DB, mkt models.Marketplace, buyerID int64, page, pageSize int) (*OffsetPage, error) {
	return listOrdersPage(ctx, db, mkt,
		`buyer_id = $2`, []interface{}{mkt, buyerID}, page, pageSize)
}

func ListOrdersForSeller(ctx context.Context, db *sql.DB, mkt models.Marketplace, sellerID int64, page, pageSize int) (*OffsetPage, error) {
	return listOrdersPage(ctx, db, mkt,
		`seller_id = $2`, []interface{}{mkt, sellerID}, page, pageSize)
}

// ListAllOrders is the admin view over one marketplace.
func ListAllOrders(ctx context.Context, db *sql.DB, mkt models.Marketplace, page, pageSize int) (*OffsetPage, error) {
	return listOrdersPage(ctx, db, mkt, ``, []interface{}{mkt}, page, pageSize)
}

// ListOrdersForBuyerCursor is the keyset variant of the buyer feed, for
// clients paging with an opaque cursor instead of page numbers.
func ListOrdersForBuyerCursor(ctx context.Context, db *sql.DB, mkt models.Marketplace, buyerID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeOrderCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE marketplace = $1
		  AND buyer_id = $2
		  AND (created_at, id) < ($3, $4)
		ORDER BY created_at DESC, id DESC
		LIMIT $5`

	rows, err := db.QueryContext(ctx, query, mkt, buyerID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders, err := collectOrders(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	if err := attachOrderItems(ctx, db, orders); err != nil {
		return nil, err
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		nextCursor = OrderCursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// checkoutLine is a cart line joined with its locked product row.
type checkoutLine struct {
	productID       int64
	productName     string
	unit            string
	sellerID        int64
	quantity        int
	priceAtAddition decimal.Decimal
	stock           int
	isActive        bool
}

func (l *checkoutLine) subtotal() decimal.Decimal {
	return l.priceAtAddition.Mul(decimal.NewFromInt(int64(l.quantity)))
}

// lockCheckoutLines loads the cart's lines in cart order, taking FOR UPDATE
// locks on the product rows so concurrent checkouts of the same products
// serialize on the stock check.
func lockCheckoutLines(ctx context.Context, tx *sql.Tx, cartID int64) ([]checkoutLine, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT ci.product_id, p.name, p.unit, p.seller_id, ci.quantity,
		        ci.price_at_addition, p.stock_quantity, p.is_active
		 FROM cart_items ci
		 JOIN products p ON p.id = ci.product_id
		 WHERE ci.cart_id = $1
		 ORDER BY ci.id
		 FOR UPDATE OF p`,
		cartID)
	if err != nil {
		return nil, fmt.Errorf("lock cart lines: %w", err)
	}
	defer rows.Close()

	var lines []checkoutLine
	for rows.Next() {
		var line checkoutLine
		err := rows.Scan(
			&line.productID,
			&line.productName,
			&line.unit,
			&line.sellerID,
			&line.quantity,
			&line.priceAtAddition,
			&line.stock,
			&line.isActive,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return lines, nil
}

type lockedOrder struct {
	buyerID  int64
	sellerID int64
	status   models.OrderStatus
}

// lockOrder takes the order's row lock so the status check is evaluated
// against a fresh read, serializing concurrent cancel and advance calls.
func lockOrder(ctx context.Context, tx *sql.Tx, mkt models.Marketplace, orderID int64) (*lockedOrder, error) {
	current := &lockedOrder{}
	err := tx.QueryRowContext(ctx,
		`SELECT buyer_id, seller_id, status
		 FROM orders
		 WHERE id = $1 AND marketplace = $2
		 FOR UPDATE`,
		orderID, mkt).Scan(&current.buyerID, &current.sellerID, &current.status)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &NotFoundError{Resource: "order"}
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	return current, nil
}

func setOrderStatus(ctx context.Context, tx *sql.Tx, orderID int64, status models.OrderStatus) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1, updated_at = NOW(), version = version + 1
		 WHERE id = $2`,
		status, orderID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	return nil
}

func scanOrder(row interface{ Scan(...interface{}) error }) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(
		&order.ID,
		&order.Marketplace,
		&order.OrderNumber,
		&order.BuyerID,
		&order.SellerID,
		&order.Status,
		&order.TotalAmount,
		&order.DeliveryAddress,
		&order.DeliveryPhone,
		&order.Notes,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		return nil, err
	}
	return order, nil
}

func fetchOrder(ctx context.Context, q querier, mkt models.Marketplace, orderID int64) (*models.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE id = $1 AND marketplace = $2`

	order, err := scanOrder(q.QueryRowContext(ctx, query, orderID, mkt))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &NotFoundError{Resource: "order"}
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	orders := []models.Order{*order}
	if err := attachOrderItems(ctx, q, orders); err != nil {
		return nil, err
	}

	return &orders[0], nil
}

func listOrdersPage(ctx context.Context, db *sql.DB, mkt models.Marketplace, filter string, args []interface{}, page, pageSize int) (*OffsetPage, error) {
	where := `WHERE marketplace = $1`
	if filter != `` {
		where += ` AND ` + filter
	}

	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	offset := (page - 1) * pageSize
	query := fmt.Sprintf(`SELECT `+orderColumns+`
		FROM orders %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)

	rows, err := db.QueryContext(ctx, query, append(args, pageSize, offset)...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders, err := collectOrders(rows)
	if err != nil {
		return nil, err
	}

	if err := attachOrderItems(ctx, db, orders); err != nil {
		return nil, err
	}

	return newOffsetPage(orders, total, page, pageSize), nil
}

func collectOrders(rows *sql.Rows) ([]models.Order, error) {
	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// attachOrderItems bulk-loads the items for a batch of orders in one query.
func attachOrderItems(ctx context.Context, q querier, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(orders))
	index := make(map[int64]*models.Order, len(orders))
	for i := range orders {
		ids = append(ids, orders[i].ID)
		index[orders[i].ID] = &orders[i]
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, product_id, product_name, unit, quantity, price_at_order, subtotal, created_at
		 FROM order_items
		 WHERE order_id = ANY($1)
		 ORDER BY order_id, id`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Unit,
			&item.Quantity,
			&item.PriceAtOrder,
			&item.Subtotal,
			&item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if order, ok := index[item.OrderID]; ok {
			order.Items = append(order.Items, item)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	return nil
}
