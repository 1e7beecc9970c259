package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"posengine/backend/internal/domain"
	"posengine/backend/internal/store"
	"posengine/backend/internal/store/seed"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate applies the embedded schema on its own connection.
func Migrate(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return err
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("open migrations: %w", err)
	}
	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{MigrationsTable: "pos_schema_migrations"})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Seed inserts data, leaving existing rows alone.
func (s *Store) Seed(ctx context.Context, data seed.Data) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, b := range data.Businesses {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO businesses (id, name, handle, category, currency, timezone, logo_url)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO NOTHING
		`, b.ID, b.Name, b.Handle, nullIfEmpty(b.Category), b.Currency, b.Timezone, nullIfEmpty(b.LogoURL)); err != nil {
			return fmt.Errorf("seed business %s: %w", b.ID, err)
		}
	}
	for _, p := range data.Products {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO products (id, business_id, sku, name, price_cents, stock, active)
			VALUES ($1,$2,$3,$4,$5,$6,true)
			ON CONFLICT (id) DO NOTHING
		`, p.ID, p.BusinessID, nullIfEmpty(p.SKU), p.Name, p.PriceCents, p.Stock); err != nil {
			return fmt.Errorf("seed product %s: %w", p.ID, err)
		}
	}
	for _, u := range data.Users {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO app_users (username, password, user_id, business_id, display_name, role, active, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (username) DO NOTHING
		`, strings.ToLower(u.Username), u.Password, u.UserID, u.BusinessID, nullIfEmpty(u.DisplayName), u.Role, u.Active, u.CreatedAt); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Username, err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListActiveProducts(ctx context.Context, businessID string) ([]domain.ProductSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, business_id, COALESCE(sku, ''), name, price_cents, stock
		FROM products
		WHERE business_id = $1 AND active = true
		ORDER BY name, id
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.ProductSnapshot, 0, 64)
	for rows.Next() {
		var p domain.ProductSnapshot
		if err := rows.Scan(&p.ID, &p.BusinessID, &p.SKU, &p.Name, &p.PriceCents, &p.Stock); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetStockLevels(ctx context.Context, businessID string, productIDs []string) (map[string]int, error) {
	levels := make(map[string]int, len(productIDs))
	if len(productIDs) == 0 {
		return levels, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stock
		FROM products
		WHERE business_id = $1 AND id = ANY($2)
	`, businessID, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var stock int
		if err := rows.Scan(&id, &stock); err != nil {
			return nil, err
		}
		levels[id] = stock
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range productIDs {
		if _, ok := levels[id]; !ok {
			levels[id] = 0
		}
	}
	return levels, nil
}

func (s *Store) SetStock(ctx context.Context, businessID string, productID string, qty int) error {
	if productID == "" || qty < 0 {
		return store.ErrInvalid
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET stock = $3, updated_at = now()
		WHERE business_id = $1 AND id = $2
	`, businessID, productID, qty)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (s *Store) DecrementStock(ctx context.Context, businessID string, productID string, qty int) (int, error) {
	if productID == "" || qty < 0 {
		return 0, store.ErrInvalid
	}

	var left int
	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock = GREATEST(0, stock - $3), updated_at = now()
		WHERE business_id = $1 AND id = $2
		RETURNING stock
	`, businessID, productID, qty).Scan(&left)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return left, nil
}

func (s *Store) InsertSale(ctx context.Context, header domain.Sale) (domain.Sale, error) {
	if header.BusinessID == "" {
		return domain.Sale{}, store.ErrInvalid
	}
	if header.Status == "" {
		header.Status = domain.SaleStatusPaid
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sales (
			id, business_id, created_by, created_by_name, status, payment_method,
			subtotal_cents, discount_cents, tax_cents, total_cents, note, created_at
		)
		VALUES (COALESCE($1, gen_random_uuid()::text), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12, now()))
		RETURNING id, created_at
	`,
		nullIfEmpty(header.ID), header.BusinessID, nullIfEmpty(header.CreatedBy), nullIfEmpty(header.CreatedByName),
		header.Status, string(header.PaymentMethod), header.SubtotalCents, header.DiscountCents,
		header.TaxCents, header.TotalCents, nullIfEmpty(header.Note), nullTime(header.CreatedAt),
	).Scan(&header.ID, &header.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Sale{}, store.ErrDuplicate
		}
		return domain.Sale{}, err
	}
	header.CreatedAt = header.CreatedAt.UTC()
	header.Items = nil
	return header, nil
}

func (s *Store) InsertSaleItems(ctx context.Context, items []domain.SaleItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sale_items (sale_id, product_id, name, qty, unit_price_cents, line_total_cents)
		VALUES ($1,$2,$3,$4,$5,$6)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, item := range items {
		if _, err := stmt.ExecContext(ctx, item.SaleID, nullIfEmpty(item.ProductID), nullIfEmpty(item.Name),
			item.Quantity, item.UnitPriceCents, item.LineTotalCents); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListSales(ctx context.Context, query domain.SaleQuery) ([]domain.Sale, error) {
	conditions := []string{"business_id = $1"}
	args := []any{query.BusinessID}
	if !query.From.IsZero() {
		args = append(args, query.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !query.ToExclusive.IsZero() {
		args = append(args, query.ToExclusive)
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if query.PaymentMethod != "" {
		spellings := domain.StoredSpellings(query.PaymentMethod)
		marks := make([]string, 0, len(spellings))
		for _, spelling := range spellings {
			args = append(args, spelling)
			marks = append(marks, fmt.Sprintf("$%d", len(args)))
		}
		conditions = append(conditions, storedMethodExpr+" IN ("+strings.Join(marks, ",")+")")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE `+strings.Join(conditions, " AND ")+`
		ORDER BY created_at ASC, id ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 128)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) GetSale(ctx context.Context, businessID string, saleID string) (domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE business_id = $1 AND id = $2
	`, businessID, saleID)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Sale{}, store.ErrNotFound
		}
		return domain.Sale{}, err
	}
	sales := []domain.Sale{sale}
	if err := s.attachItems(ctx, sales); err != nil {
		return domain.Sale{}, err
	}
	return sales[0], nil
}

func (s *Store) InsertReceiptLink(ctx context.Context, link domain.ReceiptLink) error {
	if link.Token == "" || link.SaleID == "" {
		return store.ErrInvalid
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO receipt_links (token, sale_id, business_id, created_by, created_at)
		VALUES ($1,$2,$3,$4,COALESCE($5, now()))
	`, link.Token, link.SaleID, link.BusinessID, nullIfEmpty(link.CreatedBy), nullTime(link.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) FindReceiptLink(ctx context.Context, token string) (domain.ReceiptLink, error) {
	var link domain.ReceiptLink
	err := s.db.QueryRowContext(ctx, `
		SELECT token, sale_id, business_id, COALESCE(created_by, ''), created_at
		FROM receipt_links
		WHERE token = $1
	`, token).Scan(&link.Token, &link.SaleID, &link.BusinessID, &link.CreatedBy, &link.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ReceiptLink{}, store.ErrNotFound
		}
		return domain.ReceiptLink{}, err
	}
	link.CreatedAt = link.CreatedAt.UTC()
	return link, nil
}

func (s *Store) GetBusiness(ctx context.Context, businessID string) (domain.Business, error) {
	var b domain.Business
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, handle, COALESCE(category, ''), COALESCE(currency, 'MXN'),
		       COALESCE(timezone, 'UTC'), COALESCE(logo_url, '')
		FROM businesses
		WHERE id = $1
	`, businessID).Scan(&b.ID, &b.Name, &b.Handle, &b.Category, &b.Currency, &b.Timezone, &b.LogoURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Business{}, store.ErrNotFound
		}
		return domain.Business{}, err
	}
	return b, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, user_id, business_id, COALESCE(display_name, ''), role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.UserID, &u.BusinessID, &u.DisplayName, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// storedMethodExpr matches domain.StoredPaymentMethod: blanks read as cash,
// spellings compare lower-cased.
const storedMethodExpr = `COALESCE(NULLIF(LOWER(TRIM(payment_method)), ''), 'cash')`

const saleColumns = `id, business_id, COALESCE(created_by, ''), COALESCE(created_by_name, ''), created_at,
	COALESCE(payment_method, ''), subtotal_cents, discount_cents, tax_cents, total_cents,
	COALESCE(note, ''), status`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var method string
	if err := row.Scan(&sale.ID, &sale.BusinessID, &sale.CreatedBy, &sale.CreatedByName, &sale.CreatedAt,
		&method, &sale.SubtotalCents, &sale.DiscountCents, &sale.TaxCents, &sale.TotalCents,
		&sale.Note, &sale.Status); err != nil {
		return domain.Sale{}, err
	}
	sale.PaymentMethod = domain.StoredPaymentMethod(method)
	sale.CreatedAt = sale.CreatedAt.UTC()
	sale.Items = []domain.SaleItem{}
	return sale, nil
}

func (s *Store) attachItems(ctx context.Context, sales []domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]string, 0, len(sales))
	index := make(map[string]int, len(sales))
	for i, sale := range sales {
		ids = append(ids, sale.ID)
		index[sale.ID] = i
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, COALESCE(product_id, ''), COALESCE(name, ''), qty, unit_price_cents, line_total_cents
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY id ASC
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.SaleID, &item.ProductID, &item.Name, &item.Quantity, &item.UnitPriceCents, &item.LineTotalCents); err != nil {
			return err
		}
		i := index[item.SaleID]
		sales[i].Items = append(sales[i].Items, item)
	}
	return rows.Err()
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val.UTC()
}
