package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/thalir/agrimarket/internal/database"
	"github.com/thalir/agrimarket/internal/models"
)

// ProductInput carries the seller-editable product fields.
type ProductInput struct {
	Name          string
	Description   string
	Brand         string
	Category      string
	Unit          string
	ImageURL      string
	Price         decimal.Decimal
	StockQuantity int
}

const productColumns = `id, marketplace, seller_id, name, description, brand, category, unit,
	image_url, price, stock_quantity, is_active, created_at, updated_at, version`

func scanProduct(row interface{ Scan(...interface{}) error }) (*models.Product, error) {
	product := &models.Product{}
	err := row.Scan(
		&product.ID,
		&product.Marketplace,
		&product.SellerID,
		&product.Name,
		&product.Description,
		&product.Brand,
		&product.Category,
		&product.Unit,
		&product.ImageURL,
		&product.Price,
		&product.StockQuantity,
		&product.IsActive,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
	if err != nil {
		return nil, err
	}
	return product, nil
}

func CreateProduct(ctx context.Context, db *sql.DB, mkt models.Marketplace, sellerID int64, in ProductInput) (*models.Product, error) {
	query := `
		INSERT INTO products (marketplace, seller_id, name, description, brand, category, unit,
			image_url, price, stock_quantity, is_active, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	product, err := scanProduct(db.QueryRowContext(ctx, query,
		mkt, sellerID, in.Name, in.Description, in.Brand, in.Category, in.Unit,
		in.ImageURL, in.Price, in.StockQuantity))
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func UpdateProduct(ctx context.Context, db *sql.DB, mkt models.Marketplace, sellerID, productID int64, in ProductInput) (*models.Product, error) {
	if err := checkProductOwner(ctx, db, mkt, productID, sellerID); err != nil {
		return nil, err
	}

	query := `
		UPDATE products
		SET name = $1, description = $2, brand = $3, category = $4, unit = $5,
		    image_url = $6, price = $7, stock_quantity = $8,
		    updated_at = NOW(), version = version + 1
		WHERE id = $9
		RETURNING ` + productColumns

	product, err := scanProduct(db.QueryRowContext(ctx, query,
		in.Name, in.Description, in.Brand, in.Category, in.Unit,
		in.ImageURL, in.Price, in.StockQuantity, productID))
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}

	return product, nil
}

// DeactivateProduct soft-deletes: the product stops being sellable but stays
// referenced by existing carts and orders.
func DeactivateProduct(ctx context.Context, db *sql.DB, mkt models.Marketplace, sellerID, productID int64) error {
	if err := checkProductOwner(ctx, db, mkt, productID, sellerID); err != nil {
		return err
	}

	_, err := db.ExecContext(ctx,
		`UPDATE products
		 SET is_active = FALSE, updated_at = NOW(), version = version + 1
		 WHERE id = $1`,
		productID)
	if err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}

	return nil
}

// DeleteProduct removes a product outright. Products referenced by cart lines
// or past orders cannot be deleted; those are deactivated instead.
func DeleteProduct(ctx context.Context, db *sql.DB, mkt models.Marketplace, sellerID, productID int64) error {
	if err := checkProductOwner(ctx, db, mkt, productID, sellerID); err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID); err != nil {
		if database.IsForeignKeyViolation(err) {
			return &InvalidStateError{Reason: "product is referenced by existing carts or orders; deactivate it instead"}
		}
		return fmt.Errorf("delete product: %w", err)
	}

	return nil
}

// GetActiveProduct is the public catalog read; deactivated products behave as
// missing.
func GetActiveProduct(ctx context.Context, db *sql.DB, mkt models.Marketplace, id int64) (*models.Product, error) {
	query := `SELECT ` + productColumns + `
		FROM products
		WHERE id = $1 AND marketplace = $2 AND is_active = TRUE`

	product, err := scanProduct(db.QueryRowContext(ctx, query, id, mkt))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &NotFoundError{Resource: "product"}
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

// GetProduct reads a product regardless of active flag or marketplace.
func GetProduct(ctx context.Context, db *sql.DB, id int64) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, &NotFoundError{Resource: "product"}
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

var productSortColumns = map[string]string{
	"name":       "name",
	"price":      "price",
	"created_at": "created_at",
}

func ListActiveProducts(ctx context.Context, db *sql.DB, mkt models.Marketplace, page, pageSize int, sortBy string) (*OffsetPage, error) {
	column, ok := productSortColumns[sortBy]
	if !ok {
		column = "name"
	}

	where := `WHERE marketplace = $1 AND is_active = TRUE`
	query := `SELECT ` + productColumns + `
		FROM products ` + where + `
		ORDER BY ` + column + ` ASC, id ASC
		LIMIT $2 OFFSET $3`

	return listProductPage(ctx, db, query, `SELECT COUNT(*) FROM products `+where,
		[]interface{}{mkt}, page, pageSize)
}

func ListProductsByCategory(ctx context.Context, db *sql.DB, mkt models.Marketplace, category string, page, pageSize int) (*OffsetPage, error) {
	where := `WHERE marketplace = $1 AND is_active = TRUE AND LOWER(category) = LOWER($2)`
	query := `SELECT ` + productColumns + `
		FROM products ` + where + `
		ORDER BY name ASC, id ASC
		LIMIT $3 OFFSET $4`

	return listProductPage(ctx, db, query, `SELECT COUNT(*) FROM products `+where,
		[]interface{}{mkt, category}, page, pageSize)
}

// SearchProducts matches keyword against name and description, active only.
func SearchProducts(ctx context.Context, db *sql.DB, mkt models.Marketplace, keyword string, page, pageSize int) (*OffsetPage, error) {
	where := `WHERE marketplace = $1 AND is_active = TRUE
		AND (name ILIKE '%' || $2 || '%' OR description ILIKE '%' || $2 || '%')`
	query := `SELECT ` + productColumns + `
		FROM products ` + where + `
		ORDER BY name ASC, id ASC
		LIMIT $3 OFFSET $4`

	return listProductPage(ctx, db, query, `SELECT COUNT(*) FROM products `+where,
		[]interface{}{mkt, keyword}, page, pageSize)
}

// ListSellerProducts returns a seller's own listings, inactive ones included.
func ListSellerProducts(ctx context.Context, db *sql.DB, mkt models.Marketplace, sellerID int64) ([]models.Product, error) {
	query := `SELECT ` + productColumns + `
		FROM products
		WHERE marketplace = $1 AND seller_id = $2
		ORDER BY created_at DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, mkt, sellerID)
	if err != nil {
		return nil, fmt.Errorf("list seller products: %w", err)
	}
	defer rows.Close()

	return collectProducts(rows)
}

func listProductPage(ctx context.Context, db *sql.DB, query, countQuery string, args []interface{}, page, pageSize int) (*OffsetPage, error) {
	var total int64
	if err := db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	rows, err := db.QueryContext(ctx, query, append(args, pageSize, offset)...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products, err := collectProducts(rows)
	if err != nil {
		return nil, err
	}

	return newOffsetPage(products, total, page, pageSize), nil
}

func collectProducts(rows *sql.Rows) ([]models.Product, error) {
	var products []models.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

func checkProductOwner(ctx context.Context, db *sql.DB, mkt models.Marketplace, productID, sellerID int64) error {
	var ownerID int64
	err := db.QueryRowContext(ctx,
		`SELECT seller_id FROM products WHERE id = $1 AND marketplace = $2`,
		productID, mkt).Scan(&ownerID)
	if err != nil {
		if err == sql.ErrNoRows {
			return &NotFoundError{Resource: "product"}
		}
		return fmt.Errorf("check product owner: %w", err)
	}

	if ownerID != sellerID {
		return &ForbiddenError{Reason: "you can only manage your own products"}
	}

	return nil
}

// decrementStock is checkout's guarded deduction: the predicate re-checks
// availability so stock can never go negative even if the pre-read was stale.
func decrementStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) (bool, error) {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock_quantity >= $1`,
		quantity, productID)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// incrementStock is the unconditional inverse used by order cancellation.
func incrementStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity + $1,
		     updated_at = NOW()
		 WHERE id = $2`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}

	return nil
}
