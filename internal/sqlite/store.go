// Package sqlite is the single-file backend used for local development and
// the admin CLI when STORE_DRIVER=sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/grupo-shop/orderflow/internal/catalog"
	"github.com/grupo-shop/orderflow/internal/orders"
)

const maxNumberAttempts = 5

// Store holds orders and products in one SQLite database.
type Store struct {
	db        *sql.DB
	nowFunc   func() time.Time
	newID     func() string
	newNumber func(time.Time) string
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:        db,
		nowFunc:   time.Now,
		newID:     uuid.NewString,
		newNumber: orders.NewOrderNumber,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			order_number TEXT NOT NULL UNIQUE,
			product_id TEXT NOT NULL,
			product_name TEXT NOT NULL,
			product_image TEXT,
			variations TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			tier TEXT NOT NULL,
			unit_price REAL NOT NULL,
			total_amount REAL NOT NULL,
			amount_in_minor_units INTEGER NOT NULL,
			currency TEXT NOT NULL,
			customer_name TEXT NOT NULL,
			customer_email TEXT NOT NULL,
			customer_phone TEXT NOT NULL,
			customer_company TEXT,
			address TEXT NOT NULL,
			city TEXT NOT NULL,
			state TEXT NOT NULL,
			pincode TEXT NOT NULL,
			status TEXT NOT NULL,
			payment_status TEXT NOT NULL,
			payment_locked INTEGER NOT NULL DEFAULT 0,
			failure_reason TEXT,
			gateway_order_id TEXT,
			gateway_payment_id TEXT,
			gateway_signature TEXT,
			payment_method TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT NOT NULL,
			description TEXT,
			image TEXT,
			images TEXT,
			colors TEXT,
			sizes TEXT,
			bulk_pricing TEXT NOT NULL,
			manufacturing_time INTEGER NOT NULL DEFAULT 7,
			in_stock INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status, payment_status, created_at);
		CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at);
		CREATE INDEX IF NOT EXISTS idx_products_category ON products(category);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

const orderColumns = `id, order_number, product_id, product_name, product_image, variations,
	quantity, tier, unit_price, total_amount, amount_in_minor_units, currency,
	customer_name, customer_email, customer_phone, customer_company, address, city, state, pincode,
	status, payment_status, payment_locked, failure_reason,
	gateway_order_id, gateway_payment_id, gateway_signature, payment_method,
	created_at, updated_at`

// Create inserts a new order, drawing a fresh order number on collision.
func (s *Store) Create(ctx context.Context, o *orders.Order) error {
	now := s.nowFunc().UTC().Truncate(time.Second)
	if o.ID == "" {
		o.ID = s.newID()
	}
	if o.Status == "" {
		o.Status = orders.StatusPending
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = orders.PaymentPending
	}
	o.CreatedAt = now
	o.UpdatedAt = now

	variations, err := json.Marshal(o.Variations)
	if err != nil {
		return fmt.Errorf("marshal variations: %w", err)
	}

	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		o.OrderNumber = s.newNumber(now)
		_, err = s.db.ExecContext(ctx, `INSERT INTO orders (`+orderColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.ID, o.OrderNumber, o.ProductID, o.ProductName, o.ProductImage, string(variations),
			o.Quantity, o.Tier, o.UnitPrice, o.TotalAmount, o.AmountMinor, o.Currency,
			o.Customer.Name, o.Customer.Email, o.Customer.Phone, o.Customer.Company,
			o.Customer.Address, o.Customer.City, o.Customer.State, o.Customer.Pincode,
			string(o.Status), string(o.PaymentStatus), o.PaymentLocked, o.FailureReason,
			o.GatewayOrderID, o.GatewayPaymentID, o.GatewaySignature, o.PaymentMethod,
			now.Unix(), now.Unix(),
		)
		if err == nil {
			return nil
		}
		if !isUniqueViolation(err) || !strings.Contains(err.Error(), "order_number") {
			return fmt.Errorf("insert order: %w", err)
		}
	}
	return orders.ErrNumberExhausted
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// Get fetches an order by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*orders.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, orderID)
	return scanOrderRow(row)
}

// GetByNumber fetches an order by order number. Returns (nil, nil) if not found.
func (s *Store) GetByNumber(ctx context.Context, orderNumber string) (*orders.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = ?`, orderNumber)
	return scanOrderRow(row)
}

// Update applies u in a single guarded UPDATE and returns the stored row.
func (s *Store) Update(ctx context.Context, orderID string, u orders.Update) (*orders.Order, error) {
	sets := []string{"updated_at = ?"}
	args := []any{s.nowFunc().UTC().Unix()}
	set := func(col, value string) {
		if value == "" {
			return
		}
		sets = append(sets, col+" = ?")
		args = append(args, value)
	}
	set("status", string(u.Status))
	set("payment_status", string(u.PaymentStatus))
	set("gateway_order_id", u.GatewayOrderID)
	set("gateway_payment_id", u.GatewayPaymentID)
	set("gateway_signature", u.GatewaySignature)
	set("payment_method", u.PaymentMethod)
	set("failure_reason", u.FailureReason)
	if u.Lock {
		sets = append(sets, "payment_locked = 1")
	}

	where := "id = ?"
	args = append(args, orderID)
	switch u.Guard {
	case orders.GuardNotPaid:
		where += " AND payment_status <> ?"
		args = append(args, string(orders.PaymentPaid))
	case orders.GuardPayable:
		where += " AND payment_status <> ? AND payment_locked = 0"
		args = append(args, string(orders.PaymentPaid))
	}

	res, err := s.db.ExecContext(ctx, `UPDATE orders SET `+strings.Join(sets, ", ")+` WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}

	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, orders.ErrNotFound
	}
	if n == 0 {
		return nil, orders.ErrConditionFailed
	}
	return o, nil
}

// List returns one page of orders, newest first.
func (s *Store) List(ctx context.Context, q orders.ListQuery) (*orders.Page, error) {
	q = q.Normalize()
	where, args := "1 = 1", []any{}
	if q.Status != "" {
		where = "status = ?"
		args = append(args, string(q.Status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE `+where+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		append(args, q.Limit, q.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	list, err := scanOrderRows(rows)
	if err != nil {
		return nil, err
	}
	return &orders.Page{
		Orders:     list,
		Total:      total,
		Page:       q.Page,
		TotalPages: (total + q.Limit - 1) / q.Limit,
	}, nil
}

// ListExpired returns unpaid payment_pending orders created before cutoff.
func (s *Store) ListExpired(ctx context.Context, cutoff time.Time) ([]orders.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE status = ? AND payment_status = ? AND created_at < ?
		 ORDER BY created_at DESC`,
		string(orders.StatusPaymentPending), string(orders.PaymentPending), cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("list expired orders: %w", err)
	}
	return scanOrderRows(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(sc scanner) (*orders.Order, error) {
	var (
		o                                              orders.Order
		variations                                     string
		image, company, reason, gOrder, gPay, gSig, pm sql.NullString
		status, payStatus                              string
		locked                                         bool
		created, updated                               int64
	)
	err := sc.Scan(
		&o.ID, &o.OrderNumber, &o.ProductID, &o.ProductName, &image, &variations,
		&o.Quantity, &o.Tier, &o.UnitPrice, &o.TotalAmount, &o.AmountMinor, &o.Currency,
		&o.Customer.Name, &o.Customer.Email, &o.Customer.Phone, &company,
		&o.Customer.Address, &o.Customer.City, &o.Customer.State, &o.Customer.Pincode,
		&status, &payStatus, &locked, &reason,
		&gOrder, &gPay, &gSig, &pm,
		&created, &updated,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(variations), &o.Variations); err != nil {
		return nil, fmt.Errorf("unmarshal variations: %w", err)
	}
	o.ProductImage = image.String
	o.Customer.Company = company.String
	o.Status = orders.Status(status)
	o.PaymentStatus = orders.PaymentStatus(payStatus)
	o.PaymentLocked = locked
	o.FailureReason = reason.String
	o.GatewayOrderID = gOrder.String
	o.GatewayPaymentID = gPay.String
	o.GatewaySignature = gSig.String
	o.PaymentMethod = pm.String
	o.CreatedAt = time.Unix(created, 0).UTC()
	o.UpdatedAt = time.Unix(updated, 0).UTC()
	return &o, nil
}

func scanOrderRow(row *sql.Row) (*orders.Order, error) {
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func scanOrderRows(rows *sql.Rows) ([]orders.Order, error) {
	defer rows.Close()
	var list []orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		list = append(list, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return list, nil
}

// PutProduct inserts or replaces a product. Used to seed local databases.
func (s *Store) PutProduct(ctx context.Context, p catalog.Product) error {
	if p.ID == "" {
		p.ID = s.newID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.nowFunc()
	}
	images, _ := json.Marshal(p.Images)
	colors, _ := json.Marshal(p.Colors)
	sizes, _ := json.Marshal(p.Sizes)
	pricing, err := json.Marshal(p.BulkPricing)
	if err != nil {
		return fmt.Errorf("marshal bulk pricing: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO products
		(id, name, category, description, image, images, colors, sizes, bulk_pricing, manufacturing_time, in_stock, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Category, p.Description, p.Image, string(images), string(colors), string(sizes),
		string(pricing), p.ManufacturingTime, p.InStock, p.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("put product: %w", err)
	}
	return nil
}

const productColumns = `id, name, category, description, image, images, colors, sizes,
	bulk_pricing, manufacturing_time, in_stock, created_at`

// GetProduct fetches a product by id. Returns (nil, nil) if not found.
func (s *Store) GetProduct(ctx context.Context, productID string) (*catalog.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, productID)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// ListProducts filters and pages in SQL; the price filter runs afterwards on
// the returned page only.
func (s *Store) ListProducts(ctx context.Context, q catalog.ProductQuery) (*catalog.ProductPage, error) {
	q = q.Normalize()
	where := []string{"1 = 1"}
	var args []any
	if q.Search != "" {
		like := "%" + strings.ToLower(q.Search) + "%"
		where = append(where, "(LOWER(name) LIKE ? OR LOWER(category) LIKE ? OR LOWER(description) LIKE ?)")
		args = append(args, like, like, like)
	}
	if q.Category != "" {
		where = append(where, "category = ?")
		args = append(args, q.Category)
	}
	if q.InStock != nil {
		where = append(where, "in_stock = ?")
		args = append(args, *q.InStock)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	// Sort and Order are whitelisted by Normalize.
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE `+cond+
			` ORDER BY `+q.Sort+` `+strings.ToUpper(q.Order)+`, id LIMIT ? OFFSET ?`,
		append(args, q.Limit, (q.Page-1)*q.Limit)...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var list []catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		list = append(list, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &catalog.ProductPage{
		Products:   q.FilterPrice(list),
		Total:      total,
		Page:       q.Page,
		TotalPages: (total + q.Limit - 1) / q.Limit,
	}, nil
}

func (s *Store) ProductCategories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT category FROM products ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()
	cats := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func scanProduct(sc scanner) (*catalog.Product, error) {
	var (
		p                                  catalog.Product
		desc, image, images, colors, sizes sql.NullString
		pricing                            string
		created                            int64
	)
	err := sc.Scan(&p.ID, &p.Name, &p.Category, &desc, &image, &images, &colors, &sizes,
		&pricing, &p.ManufacturingTime, &p.InStock, &created)
	if err != nil {
		return nil, err
	}
	p.Description = desc.String
	p.Image = image.String
	if err := json.Unmarshal([]byte(pricing), &p.BulkPricing); err != nil {
		return nil, fmt.Errorf("unmarshal bulk pricing: %w", err)
	}
	for _, f := range []struct {
		raw sql.NullString
		dst *[]string
	}{{images, &p.Images}, {colors, &p.Colors}, {sizes, &p.Sizes}} {
		if f.raw.Valid && f.raw.String != "" {
			_ = json.Unmarshal([]byte(f.raw.String), f.dst)
		}
	}
	p.CreatedAt = time.Unix(created, 0).UTC()
	return &p, nil
}

// Catalog adapts the product half of Store to the catalog read surface.
type Catalog struct{ *Store }

func (c Catalog) Get(ctx context.Context, id string) (*catalog.Product, error) {
	return c.GetProduct(ctx, id)
}

func (c Catalog) List(ctx context.Context, q catalog.ProductQuery) (*catalog.ProductPage, error) {
	return c.ListProducts(ctx, q)
}

func (c Catalog) Categories(ctx context.Context) ([]string, error) {
	return c.ProductCategories(ctx)
}

func (c Catalog) Options(context.Context) (catalog.Options, error) {
	return catalog.DefaultOptions(), nil
}
