package integration

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/thalir/agrimarket/internal/database"
	"github.com/thalir/agrimarket/internal/models"
	"github.com/thalir/agrimarket/internal/store"
)

func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:14-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	if err := database.Migrate(db, "../../migrations"); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close database: %v", err)
		}
		if err := postgres.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return db, cleanup
}

func createUser(t *testing.T, db *sql.DB, username string, role models.Role) *models.User {
	t.Helper()

	user, err := store.CreateUser(context.Background(), db, username, username+"@example.com", role)
	if err != nil {
		t.Fatalf("Create user %s: %v", username, err)
	}
	return user
}

func createProduct(t *testing.T, db *sql.DB, mkt models.Marketplace, sellerID int64, name string, price int64, stock int) *models.Product {
	t.Helper()

	product, err := store.CreateProduct(context.Background(), db, mkt, sellerID, store.ProductInput{
		Name:          name,
		Category:      "GENERAL",
		Unit:          "kg",
		Price:         decimal.NewFromInt(price),
		StockQuantity: stock,
	})
	if err != nil {
		t.Fatalf("Create product %s: %v", name, err)
	}
	return product
}

func addItem(t *testing.T, db *sql.DB, mkt models.Marketplace, buyerID, productID int64, qty int) *models.Cart {
	t.Helper()

	cart, err := store.AddCartItem(context.Background(), db, mkt, buyerID, productID, qty)
	if err != nil {
		t.Fatalf("Add cart item: %v", err)
	}
	return cart
}

func productStock(t *testing.T, db *sql.DB, productID int64) int {
	t.Helper()

	product, err := store.GetProduct(context.Background(), db, productID)
	if err != nil {
		t.Fatalf("Get product %d: %v", productID, err)
	}
	return product.StockQuantity
}

func checkout(t *testing.T, db *sql.DB, mkt models.Marketplace, buyerID int64) *models.Order {
	t.Helper()

	order, err := store.Checkout(context.Background(), db, mkt, buyerID, store.CheckoutRequest{
		DeliveryAddress: "12 Field Lane",
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	return order
}
