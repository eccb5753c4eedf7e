package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/thalir/agrimarket/internal/database"
	"github.com/thalir/agrimarket/internal/models"
)

// GetOrCreateCart returns the buyer's cart for the marketplace, creating an
// empty one on first access.
func GetOrCreateCart(ctx context.Context, db *sql.DB, mkt models.Marketplace, buyerID int64) (*models.Cart, error) {
	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		_, err := lockCart(ctx, tx, mkt, buyerID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return loadCartForBuyer(ctx, db, mkt, buyerID)
}

// AddCartItem adds quantity of a product to the cart, merging with an
// existing line for the same product. The product price is captured at this
// moment and does not track later catalog changes. Adding a product sold by a
// different seller than the items already in the cart is rejected: an order is
// always fulfilled by a single seller.
func AddCartItem(ctx context.Context, db *sql.DB, mkt models.Marketplace, buyerID, productID int64, quantity int) (*models.Cart, error) {
	if quantity <= 0 {
		return nil, &InvalidStateError{Reason: "quantity must be positive"}
	}

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		cartID, err := lockCart(ctx, tx, mkt, buyerID)
		if err != nil {
			return err
		}

		var (
			name     string
			sellerID int64
			price    decimal.Decimal
			stock    int
			isActive bool
		)
		err = tx.QueryRowContext(ctx,
			`SELECT name, seller_id, price, stock_quantity, is_active
			 FROM products
			 WHERE id = $1 AND marketplace = $2`,
			productID, mkt).Scan(&name, &sellerID, &price, &stock, &isActive)
		if err != nil {
			if err == sql.ErrNoRows {
				return &NotFoundError{Resource: "product"}
			}
			return fmt.Errorf("load product: %w", err)
		}

		if !isActive {
			return &ProductUnavailableError{Product: name}
		}

		var foreignLines int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*)
			 FROM cart_items ci
			 JOIN products p ON p.id = ci.product_id
			 WHERE ci.cart_id = $1 AND p.seller_id <> $2`,
			cartID, sellerID).Scan(&foreignLines)
		if err != nil {
			return fmt.Errorf("check cart seller: %w", err)
		}
		if foreignLines > 0 {
			return &InvalidStateError{Reason: "cart already contains items from another seller"}
		}

		var (
			itemID      int64
			existingQty int
		)
		err = tx.QueryRowContext(ctx,
			`SELECT id, quantity FROM cart_items WHERE cart_id = $1 AND product_id = $2`,
			cartID, productID).Scan(&itemID, &existingQty)
		switch {
		case err == sql.ErrNoRows:
			if stock < quantity {
				return &InsufficientStockError{Product: name, Available: stock}
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO cart_items (cart_id, product_id, quantity, price_at_addition, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, NOW(), NOW())`,
				cartID, productID, quantity, price)
			if err != nil {
				return fmt.Errorf("insert cart item: %w", err)
			}
		case err != nil:
			return fmt.Errorf("load cart item: %w", err)
		default:
			newQty := existingQty + quantity
			if stock < newQty {
				return &InsufficientStockError{Product: name, Available: stock}
			}
			_, err = tx.ExecContext(ctx,
				`UPDATE cart_items SET quantity = $1, updated_at = NOW() WHERE id = $2`,
				newQty, itemID)
			if err != nil {
				return fmt.Errorf("update cart item: %w", err)
			}
		}

		return touchCart(ctx, tx, cartID)
	})
	if err != nil {
		return nil, err
	}

	return loadCartForBuyer(ctx, db, mkt, buyerID)
}

// UpdateCartItem sets a line's quantity; zero or negative removes the line.
func UpdateCartItem(ctx context.Context, db *sql.DB, mkt models.Marketplace, buyerID, itemID int64, quantity int) (*models.Cart, error) {
	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		line, err := lockCartItem(ctx, tx, mkt, buyerID, itemID)
		if err != nil {
			return err
		}

		if quantity <= 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID); err != nil {
				return fmt.Errorf("delete cart item: %w", err)
			}
			return touchCart(ctx, tx, line.cartID)
		}

		if line.stock < quantity {
			return &InsufficientStockError{Product: line.productName, Available: line.stock}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE cart_items SET quantity = $1, updated_at = NOW() WHERE id = $2`,
			quantity, itemID)
		if err != nil {
			return fmt.Errorf("update cart item: %w", err)
		}

		return touchCart(ctx, tx, line.cartID)
	})
	if err != nil {
		return nil, err
	}

	return loadCartForBuyer(ctx, db, mkt, buyerID)
}

func RemoveCartItem(ctx context.Context, db *sql.DB, mkt models.Marketplace, buyerID, itemID int64) (*models.Cart, error) {
	return UpdateCartItem(ctx, db, mkt, buyerID, itemID, 0)
}

// ClearCart drains the cart's lines; the cart row itself is kept.
func ClearCart(ctx context.Context, db *sql.DB, mkt models.Marketplace, buyerID int64) error {
	return database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var cartID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM carts WHERE marketplace = $1 AND buyer_id = $2 FOR UPDATE`,
			mkt, buyerID).Scan(&cartID)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return fmt.Errorf("load cart: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
			return fmt.Errorf("clear cart items: %w", err)
		}

		return touchCart(ctx, tx, cartID)
	})
}

// lockCart creates the cart row if needed and takes its row lock, serializing
// all mutations of the cart and its lines.
func lockCart(ctx context.Context, tx *sql.Tx, mkt models.Marketplace, buyerID int64) (int64, error) {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO carts (marketplace, buyer_id, created_at, updated_at)
		 VALUES ($1, $2, NOW(), NOW())
		 ON CONFLICT (buyer_id, marketplace) DO NOTHING`,
		mkt, buyerID)
	if err != nil {
		return 0, fmt.Errorf("create cart: %w", err)
	}

	var cartID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM carts WHERE marketplace = $1 AND buyer_id = $2 FOR UPDATE`,
		mkt, buyerID).Scan(&cartID)
	if err != nil {
		return 0, fmt.Errorf("lock cart: %w", err)
	}

	return cartID, nil
}

type cartLine struct {
	cartID      int64
	productName string
	stock       int
}

// lockCartItem resolves a line by id, verifies the caller owns the enclosing
// cart and takes the cart row lock.
func lockCartItem(ctx context.Context, tx *sql.Tx, mkt models.Marketplace, buyerID, itemID int64) (*cartLine, error) {
	var (
		line    cartLine
		ownerID int64
	)
	err := tx.QueryRowContext(ctx,
		`SELECT ci.cart_id, c.buyer_id, p.name, p.stock_quantity
		 FROM cart_items ci
		 JOIN carts c ON c.id = ci.cart_id
		 JOIN products p ON p.id = ci.product_id
		 WHERE ci.id = $1 AND c.marketplace = $2
		 FOR UPDATE OF c`,
		itemID, mkt).Scan(&line.cartID, &ownerID, &line.productName, &line.stock)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &NotFoundError{Resource: "cart item"}
		}
		return nil, fmt.Errorf("lock cart item: %w", err)
	}

	if ownerID != buyerID {
		return nil, &ForbiddenError{Reason: "cart item belongs to another buyer"}
	}

	return &line, nil
}

func touchCart(ctx context.Context, tx *sql.Tx, cartID int64) error {
	if _, err := tx.ExecContext(ctx, `UPDATE carts SET updated_at = NOW() WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("touch cart: %w", err)
	}
	return nil
}

func loadCartForBuyer(ctx context.Context, db *sql.DB, mkt models.Marketplace, buyerID int64) (*models.Cart, error) {
	cart := &models.Cart{}

	err := db.QueryRowContext(ctx,
		`SELECT id, marketplace, buyer_id, created_at, updated_at
		 FROM carts
		 WHERE marketplace = $1 AND buyer_id = $2`,
		mkt, buyerID).Scan(&cart.ID, &cart.Marketplace, &cart.BuyerID, &cart.CreatedAt, &cart.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &NotFoundError{Resource: "cart"}
		}
		return nil, fmt.Errorf("load cart: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT ci.id, ci.cart_id, ci.product_id, p.name, p.unit, p.image_url,
		        ci.quantity, ci.price_at_addition, ci.created_at, ci.updated_at
		 FROM cart_items ci
		 JOIN products p ON p.id = ci.product_id
		 WHERE ci.cart_id = $1
		 ORDER BY ci.id`,
		cart.ID)
	if err != nil {
		return nil, fmt.Errorf("load cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.CartItem
		err := rows.Scan(
			&item.ID,
			&item.CartID,
			&item.ProductID,
			&item.ProductName,
			&item.Unit,
			&item.ImageURL,
			&item.Quantity,
			&item.PriceAtAddition,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return cart, nil
}
