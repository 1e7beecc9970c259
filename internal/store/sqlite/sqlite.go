// Package sqlite is the local-only store used when no remote database is
// configured. It keeps the same schema as the postgres adapter in one file.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"posengine/backend/internal/domain"
	"posengine/backend/internal/store"
	"posengine/backend/internal/store/seed"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := migrateUp(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func dsn(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
}

func migrateUp(path string) error {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return err
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("open migrations: %w", err)
	}
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
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

// Seed inserts data, leaving existing rows alone.
func (s *Store) Seed(ctx context.Context, data seed.Data) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, b := range data.Businesses {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO businesses (id, name, handle, category, currency, timezone, logo_url)
			VALUES (?,?,?,?,?,?,?)
		`, b.ID, b.Name, b.Handle, nullIfEmpty(b.Category), b.Currency, b.Timezone, nullIfEmpty(b.LogoURL)); err != nil {
			return fmt.Errorf("seed business %s: %w", b.ID, err)
		}
	}
	for _, p := range data.Products {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO products (id, business_id, sku, name, price_cents, stock, active)
			VALUES (?,?,?,?,?,?,1)
		`, p.ID, p.BusinessID, nullIfEmpty(p.SKU), p.Name, p.PriceCents, p.Stock); err != nil {
			return fmt.Errorf("seed product %s: %w", p.ID, err)
		}
	}
	for _, u := range data.Users {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO app_users (username, password, user_id, business_id, display_name, role, active, created_at_ns)
			VALUES (?,?,?,?,?,?,?,?)
		`, strings.ToLower(u.Username), u.Password, u.UserID, u.BusinessID, nullIfEmpty(u.DisplayName), u.Role, u.Active, u.CreatedAt.UnixNano()); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Username, err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListActiveProducts(ctx context.Context, businessID string) ([]domain.ProductSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, business_id, COALESCE(sku, ''), name, price_cents, stock
		FROM products
		WHERE business_id = ? AND active = 1
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
	return products, rows.Err()
}

func (s *Store) GetStockLevels(ctx context.Context, businessID string, productIDs []string) (map[string]int, error) {
	levels := make(map[string]int, len(productIDs))
	if len(productIDs) == 0 {
		return levels, nil
	}

	args := make([]any, 0, len(productIDs)+1)
	args = append(args, businessID)
	for _, id := range productIDs {
		args = append(args, id)
		levels[id] = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stock
		FROM products
		WHERE business_id = ? AND id IN (`+placeholders(len(productIDs))+`)
	`, args...)
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
	return levels, rows.Err()
}

func (s *Store) SetStock(ctx context.Context, businessID string, productID string, qty int) error {
	if productID == "" || qty < 0 {
		return store.ErrInvalid
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET stock = ? WHERE business_id = ? AND id = ?
	`, qty, businessID, productID)
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
		UPDATE products SET stock = MAX(0, stock - ?)
		WHERE business_id = ? AND id = ?
		RETURNING stock
	`, qty, businessID, productID).Scan(&left)
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
	if header.ID == "" {
		header.ID = uuid.NewString()
	}
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now()
	}
	header.CreatedAt = header.CreatedAt.UTC()
	if header.Status == "" {
		header.Status = domain.SaleStatusPaid
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sales (
			id, business_id, created_by, created_by_name, status, payment_method,
			subtotal_cents, discount_cents, tax_cents, total_cents, note, created_at_ns
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	`, header.ID, header.BusinessID, nullIfEmpty(header.CreatedBy), nullIfEmpty(header.CreatedByName),
		header.Status, string(header.PaymentMethod), header.SubtotalCents, header.DiscountCents,
		header.TaxCents, header.TotalCents, nullIfEmpty(header.Note), header.CreatedAt.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Sale{}, store.ErrDuplicate
		}
		return domain.Sale{}, err
	}
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

	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, name, qty, unit_price_cents, line_total_cents)
			VALUES (?,?,?,?,?,?)
		`, item.SaleID, nullIfEmpty(item.ProductID), nullIfEmpty(item.Name), item.Quantity,
			item.UnitPriceCents, item.LineTotalCents); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListSales(ctx context.Context, query domain.SaleQuery) ([]domain.Sale, error) {
	conditions := []string{"business_id = ?"}
	args := []any{query.BusinessID}
	if !query.From.IsZero() {
		conditions = append(conditions, "created_at_ns >= ?")
		args = append(args, query.From.UnixNano())
	}
	if !query.ToExclusive.IsZero() {
		conditions = append(conditions, "created_at_ns < ?")
		args = append(args, query.ToExclusive.UnixNano())
	}
	if query.PaymentMethod != "" {
		spellings := domain.StoredSpellings(query.PaymentMethod)
		conditions = append(conditions, storedMethodExpr+" IN ("+placeholders(len(spellings))+")")
		for _, spelling := range spellings {
			args = append(args, spelling)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE `+strings.Join(conditions, " AND ")+`
		ORDER BY created_at_ns ASC, id ASC
	`, args...)
	if err != nil {
		return nil, err
	}
	sales := make([]domain.Sale, 0, 128)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	// One connection: the cursor must be closed before loading items.
	_ = rows.Close()

	if err := s.attachItems(ctx, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) GetSale(ctx context.Context, businessID string, saleID string) (domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE business_id = ? AND id = ?
	`, businessID, saleID))
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
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO receipt_links (token, sale_id, business_id, created_by, created_at_ns)
		VALUES (?,?,?,?,?)
	`, link.Token, link.SaleID, link.BusinessID, nullIfEmpty(link.CreatedBy), link.CreatedAt.UnixNano())
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
	var createdNs int64
	err := s.db.QueryRowContext(ctx, `
		SELECT token, sale_id, business_id, COALESCE(created_by, ''), created_at_ns
		FROM receipt_links
		WHERE token = ?
	`, token).Scan(&link.Token, &link.SaleID, &link.BusinessID, &link.CreatedBy, &createdNs)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ReceiptLink{}, store.ErrNotFound
		}
		return domain.ReceiptLink{}, err
	}
	link.CreatedAt = time.Unix(0, createdNs).UTC()
	return link, nil
}

func (s *Store) GetBusiness(ctx context.Context, businessID string) (domain.Business, error) {
	var b domain.Business
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, handle, COALESCE(category, ''), COALESCE(currency, 'MXN'),
		       COALESCE(timezone, 'UTC'), COALESCE(logo_url, '')
		FROM businesses
		WHERE id = ?
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
		SELECT username, password, user_id, business_id, COALESCE(display_name, ''), role, active, created_at_ns
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
		var createdNs int64
		if err := rows.Scan(&u.Username, &u.Password, &u.UserID, &u.BusinessID, &u.DisplayName, &u.Role, &u.Active, &createdNs); err != nil {
			return nil, err
		}
		u.CreatedAt = time.Unix(0, createdNs).UTC()
		users = append(users, u)
	}
	return users, rows.Err()
}

// storedMethodExpr matches domain.StoredPaymentMethod: blanks read as cash,
// spellings compare lower-cased.
const storedMethodExpr = `COALESCE(NULLIF(LOWER(TRIM(payment_method)), ''), 'cash')`

const saleColumns = `id, business_id, COALESCE(created_by, ''), COALESCE(created_by_name, ''), created_at_ns,
	COALESCE(payment_method, ''), subtotal_cents, discount_cents, tax_cents, total_cents,
	COALESCE(note, ''), status`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var method string
	var createdNs int64
	if err := row.Scan(&sale.ID, &sale.BusinessID, &sale.CreatedBy, &sale.CreatedByName, &createdNs,
		&method, &sale.SubtotalCents, &sale.DiscountCents, &sale.TaxCents, &sale.TotalCents,
		&sale.Note, &sale.Status); err != nil {
		return domain.Sale{}, err
	}
	sale.CreatedAt = time.Unix(0, createdNs).UTC()
	sale.PaymentMethod = domain.StoredPaymentMethod(method)
	sale.Items = []domain.SaleItem{}
	return sale, nil
}

func (s *Store) attachItems(ctx context.Context, sales []domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	index := make(map[string]int, len(sales))
	args := make([]any, 0, len(sales))
	for i, sale := range sales {
		index[sale.ID] = i
		args = append(args, sale.ID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, COALESCE(product_id, ''), COALESCE(name, ''), qty, unit_price_cents, line_total_cents
		FROM sale_items
		WHERE sale_id IN (`+placeholders(len(args))+`)
		ORDER BY id ASC
	`, args...)
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

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
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
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
