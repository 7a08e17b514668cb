package store

import (
	"context"
	"database/sql"

	"remit/internal/models"
)

const categoryColumns = `id, slug, name_fr, name_en, description_fr, description_en, image_url, active, created_at, updated_at`

func scanCategory(row rowScanner) (*models.Category, error) {
	var c models.Category
	err := row.Scan(&c.ID, &c.Slug, &c.Name.FR, &c.Name.EN, &c.Description.FR, &c.Description.EN,
		&c.ImageURL, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &c, nil
}

func (s *PostgresStore) CreateCategory(ctx context.Context, c *models.Category) error {
	query := `
		INSERT INTO categories (slug, name_fr, name_en, description_fr, description_en, image_url, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query, c.Slug, c.Name.FR, c.Name.EN,
		c.Description.FR, c.Description.EN, c.ImageURL, c.Active,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	return mapError(err)
}

func (s *PostgresStore) UpdateCategory(ctx context.Context, c *models.Category) error {
	query := `
		UPDATE categories
		SET slug = $2, name_fr = $3, name_en = $4, description_fr = $5, description_en = $6,
			image_url = $7, active = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query, c.ID, c.Slug, c.Name.FR, c.Name.EN,
		c.Description.FR, c.Description.EN, c.ImageURL, c.Active,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	return mapError(err)
}

func (s *PostgresStore) DeleteCategory(ctx context.Context, id int64) (bool, error) {
	return deleted(s.db.ExecContext(ctx, "DELETE FROM categories WHERE id = $1", id))
}

func (s *PostgresStore) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	return scanCategory(s.db.QueryRowContext(ctx,
		"SELECT "+categoryColumns+" FROM categories WHERE id = $1", id))
}

func (s *PostgresStore) ListCategories(ctx context.Context, activeOnly bool) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+categoryColumns+" FROM categories WHERE ($1 = FALSE OR active) ORDER BY id", activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, *c)
	}
	return categories, rows.Err()
}

const productColumns = `id, category_id, slug, name_fr, name_en, description_fr, description_en,
	price, currency, image_url, in_stock, active, created_at, updated_at`

func scanProduct(row rowScanner) (*models.Product, error) {
	var (
		p          models.Product
		categoryID sql.NullInt64
	)
	err := row.Scan(&p.ID, &categoryID, &p.Slug, &p.Name.FR, &p.Name.EN, &p.Description.FR, &p.Description.EN,
		&p.Price, &p.Currency, &p.ImageURL, &p.InStock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	if categoryID.Valid {
		p.CategoryID = &categoryID.Int64
	}
	return &p, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func (s *PostgresStore) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (category_id, slug, name_fr, name_en, description_fr, description_en,
			price, currency, image_url, in_stock, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query, nullInt64(p.CategoryID), p.Slug, p.Name.FR, p.Name.EN,
		p.Description.FR, p.Description.EN, p.Price, p.Currency, p.ImageURL, p.InStock, p.Active,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return mapError(err)
}

func (s *PostgresStore) UpdateProduct(ctx context.Context, p *models.Product) error {
	query := `
		UPDATE products
		SET category_id = $2, slug = $3, name_fr = $4, name_en = $5, description_fr = $6,
			description_en = $7, price = $8, currency = $9, image_url = $10, in_stock = $11,
			active = $12, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query, p.ID, nullInt64(p.CategoryID), p.Slug, p.Name.FR, p.Name.EN,
		p.Description.FR, p.Description.EN, p.Price, p.Currency, p.ImageURL, p.InStock, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return mapError(err)
}

// DeleteProduct fails with ErrInvalidReference while order items point at it.
func (s *PostgresStore) DeleteProduct(ctx context.Context, id int64) (bool, error) {
	return deleted(s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id))
}

func (s *PostgresStore) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	return scanProduct(s.db.QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id))
}

func (s *PostgresStore) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE ($1 = FALSE OR active)
			AND ($2::BIGINT IS NULL OR category_id = $2)
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, f.ActiveOnly, nullInt64(f.CategoryID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

const serviceColumns = `id, slug, name_fr, name_en, description_fr, description_en, image_url, active, sort_order, created_at, updated_at`

func scanService(row rowScanner) (*models.Service, error) {
	var svc models.Service
	err := row.Scan(&svc.ID, &svc.Slug, &svc.Name.FR, &svc.Name.EN, &svc.Description.FR, &svc.Description.EN,
		&svc.ImageURL, &svc.Active, &svc.SortOrder, &svc.CreatedAt, &svc.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &svc, nil
}

func (s *PostgresStore) CreateService(ctx context.Context, svc *models.Service) error {
	query := `
		INSERT INTO services (slug, name_fr, name_en, description_fr, description_en, image_url, active, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query, svc.Slug, svc.Name.FR, svc.Name.EN,
		svc.Description.FR, svc.Description.EN, svc.ImageURL, svc.Active, svc.SortOrder,
	).Scan(&svc.ID, &svc.CreatedAt, &svc.UpdatedAt)
	return mapError(err)
}

func (s *PostgresStore) UpdateService(ctx context.Context, svc *models.Service) error {
	query := `
		UPDATE services
		SET slug = $2, name_fr = $3, name_en = $4, description_fr = $5, description_en = $6,
			image_url = $7, active = $8, sort_order = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query, svc.ID, svc.Slug, svc.Name.FR, svc.Name.EN,
		svc.Description.FR, svc.Description.EN, svc.ImageURL, svc.Active, svc.SortOrder,
	).Scan(&svc.CreatedAt, &svc.UpdatedAt)
	return mapError(err)
}

func (s *PostgresStore) DeleteService(ctx context.Context, id int64) (bool, error) {
	return deleted(s.db.ExecContext(ctx, "DELETE FROM services WHERE id = $1", id))
}

func (s *PostgresStore) GetService(ctx context.Context, id int64) (*models.Service, error) {
	return scanService(s.db.QueryRowContext(ctx,
		"SELECT "+serviceColumns+" FROM services WHERE id = $1", id))
}

func (s *PostgresStore) ListServices(ctx context.Context, activeOnly bool) ([]models.Service, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+serviceColumns+" FROM services WHERE ($1 = FALSE OR active) ORDER BY sort_order, id", activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	services := []models.Service{}
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, *svc)
	}
	return services, rows.Err()
}
