package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"remit/internal/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	connectAttempts = 5
	connectDelay    = 2 * time.Second
)

// Open connects to Postgres, waiting for the server to accept connections.
func Open(cfg config.DBConfig, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	for i := 0; i < connectAttempts; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = db.PingContext(ctx)
		cancel()
		if err == nil {
			break
		}
		logger.Warn("waiting for database",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", connectAttempts),
			zap.Error(err))
		time.Sleep(connectDelay)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	return db, nil
}

// InitDB opens the database and makes sure the schema exists.
func InitDB(cfg config.DBConfig, logger *zap.Logger) (*sql.DB, error) {
	db, err := Open(cfg, logger)
	if err != nil {
		return nil, err
	}

	if err = CreateTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	return db, nil
}

// CreateTables is idempotent.
func CreateTables(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username VARCHAR(100) NOT NULL UNIQUE,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		first_name VARCHAR(100) NOT NULL DEFAULT '',
		last_name VARCHAR(100) NOT NULL DEFAULT '',
		phone VARCHAR(50) NOT NULL DEFAULT '',
		role VARCHAR(20) NOT NULL DEFAULT 'user',
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS admins (
		id BIGSERIAL PRIMARY KEY,
		username VARCHAR(100) NOT NULL UNIQUE,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(20) NOT NULL DEFAULT 'admin',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS categories (
		id BIGSERIAL PRIMARY KEY,
		slug VARCHAR(150) NOT NULL UNIQUE,
		name_fr VARCHAR(255) NOT NULL DEFAULT '',
		name_en VARCHAR(255) NOT NULL DEFAULT '',
		description_fr TEXT NOT NULL DEFAULT '',
		description_en TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		category_id BIGINT REFERENCES categories(id) ON DELETE SET NULL,
		slug VARCHAR(150) NOT NULL UNIQUE,
		name_fr VARCHAR(255) NOT NULL DEFAULT '',
		name_en VARCHAR(255) NOT NULL DEFAULT '',
		description_fr TEXT NOT NULL DEFAULT '',
		description_en TEXT NOT NULL DEFAULT '',
		price NUMERIC(14,2) NOT NULL CHECK (price >= 0),
		currency CHAR(3) NOT NULL DEFAULT 'CAD',
		image_url TEXT NOT NULL DEFAULT '',
		in_stock BOOLEAN NOT NULL DEFAULT TRUE,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS services (
		id BIGSERIAL PRIMARY KEY,
		slug VARCHAR(150) NOT NULL UNIQUE,
		name_fr VARCHAR(255) NOT NULL DEFAULT '',
		name_en VARCHAR(255) NOT NULL DEFAULT '',
		description_fr TEXT NOT NULL DEFAULT '',
		description_en TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS exchange_rates (
		id BIGSERIAL PRIMARY KEY,
		from_currency CHAR(3) NOT NULL,
		to_currency CHAR(3) NOT NULL,
		rate NUMERIC(20,8) NOT NULL CHECK (rate > 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS transfers (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		amount NUMERIC(14,2) NOT NULL CHECK (amount > 0),
		currency CHAR(3) NOT NULL,
		recipient_name VARCHAR(255) NOT NULL,
		recipient_phone VARCHAR(50) NOT NULL,
		destination_country VARCHAR(100) NOT NULL,
		destination_currency CHAR(3) NOT NULL,
		exchange_rate NUMERIC(20,8) NOT NULL,
		fees NUMERIC(14,2) NOT NULL DEFAULT 0,
		received_amount NUMERIC(20,2) NOT NULL,
		delivery_method VARCHAR(20) NOT NULL,
		bank_name VARCHAR(255),
		account_number VARCHAR(100),
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		payment_id VARCHAR(255),
		settling_at TIMESTAMPTZ,
		settle_key VARCHAR(64),
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT valid_transfer_status CHECK (status IN ('pending', 'completed', 'failed')),
		CONSTRAINT valid_delivery_method CHECK (delivery_method IN ('mobile', 'bank'))
	);

	CREATE TABLE IF NOT EXISTS orders (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id),
		total NUMERIC(14,2) NOT NULL CHECK (total >= 0),
		currency CHAR(3) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		shipping_address JSONB NOT NULL DEFAULT '{}',
		payment_id VARCHAR(255),
		settling_at TIMESTAMPTZ,
		settle_key VARCHAR(64),
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT valid_order_status CHECK (status IN ('pending', 'processing', 'completed', 'failed'))
	);

	CREATE TABLE IF NOT EXISTS order_items (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id BIGINT NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		price NUMERIC(14,2) NOT NULL CHECK (price >= 0)
	);

	ALTER TABLE transfers ADD COLUMN IF NOT EXISTS settle_key VARCHAR(64);
	ALTER TABLE orders ADD COLUMN IF NOT EXISTS settle_key VARCHAR(64);

	CREATE INDEX IF NOT EXISTS idx_exchange_rates_pair ON exchange_rates(from_currency, to_currency, updated_at DESC);
	CREATE INDEX IF NOT EXISTS idx_transfers_user ON transfers(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id);
	CREATE INDEX IF NOT EXISTS idx_products_category ON products(category_id);
`
