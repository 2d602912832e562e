package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/errors"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/models"
)

// Schema creates the tables used by PostgresOrderRepository.
const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	id            BIGSERIAL PRIMARY KEY,
	order_date    DATE,
	confirm_date  DATE,
	confirmed     BOOLEAN NOT NULL DEFAULT FALSE,
	status        TEXT NOT NULL DEFAULT 'draft',
	amount        NUMERIC(20,4) NOT NULL DEFAULT 0,
	tax_amount    NUMERIC(20,4) NOT NULL DEFAULT 0,
	total_amount  NUMERIC(20,4) NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS order_lines (
	id           BIGSERIAL PRIMARY KEY,
	order_id     BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	parent_id    BIGINT REFERENCES order_lines(id) ON DELETE CASCADE,
	cid          TEXT,
	position     INT NOT NULL DEFAULT 0,
	quantity     INT NOT NULL DEFAULT 0,
	price        NUMERIC(20,4) NOT NULL DEFAULT 0,
	total_price  NUMERIC(20,4) NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_order_lines_parent ON order_lines(parent_id);
CREATE INDEX IF NOT EXISTS idx_order_lines_order ON order_lines(order_id);

CREATE TABLE IF NOT EXISTS order_line_taxes (
	line_id  BIGINT NOT NULL REFERENCES order_lines(id) ON DELETE CASCADE,
	code     TEXT NOT NULL,
	rate     NUMERIC(10,4) NOT NULL,
	PRIMARY KEY (line_id, code)
);
`

// PostgresOrderRepository implements OrderRepository using PostgreSQL.
type PostgresOrderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresOrderRepository creates a new PostgreSQL order repository.
func NewPostgresOrderRepository(db *sql.DB, logger *zap.Logger) *PostgresOrderRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresOrderRepository{
		db:     db,
		logger: logger,
	}
}

// Migrate creates the schema if it does not exist yet.
func (r *PostgresOrderRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks the database connection. Used by the readiness probe.
func (r *PostgresOrderRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// lineRow is one order_lines row before it is assembled into a tree.
type lineRow struct {
	id       int64
	parentID sql.NullInt64
	cid      sql.NullString
	quantity int
	price    decimal.Decimal
	total    decimal.Decimal
}

func (row lineRow) toLine() *models.OrderLine {
	line := &models.OrderLine{
		ID:         models.Int64Ptr(row.id),
		Quantity:   row.quantity,
		Price:      row.price,
		TotalPrice: row.total,
	}
	if row.cid.Valid {
		line.ClientID = row.cid.String
	}
	return line
}

// assemble links rows into a forest. Rows whose parent is root (or NULL when
// root is nil) become the returned top level. Rows must be ordered so that
// siblings appear in position order.
func assemble(rows []lineRow, root *int64) ([]*models.OrderLine, map[int64]*models.OrderLine) {
	byID := make(map[int64]*models.OrderLine, len(rows))
	for _, row := range rows {
		byID[row.id] = row.toLine()
	}

	top := make([]*models.OrderLine, 0)
	for _, row := range rows {
		line := byID[row.id]
		isTop := (root == nil && !row.parentID.Valid) ||
			(root != nil && row.parentID.Valid && row.parentID.Int64 == *root)
		if isTop {
			top = append(top, line)
			continue
		}
		if !row.parentID.Valid {
			continue
		}
		if parent, ok := byID[row.parentID.Int64]; ok {
			parent.Items = append(parent.Items, line)
		}
	}

	for _, line := range top {
		line.SnapshotCurrent()
	}
	return top, byID
}

func scanLineRows(rows *sql.Rows) ([]lineRow, error) {
	defer rows.Close()

	out := make([]lineRow, 0)
	for rows.Next() {
		var row lineRow
		if err := rows.Scan(&row.id, &row.parentID, &row.cid, &row.quantity, &row.price, &row.total); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// FetchChildren loads the whole stored subtree below a line.
func (r *PostgresOrderRepository) FetchChildren(ctx context.Context, lineID int64) ([]*models.OrderLine, error) {
	r.logger.Debug("Fetching stored children", zap.Int64("line_id", lineID))

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM order_lines WHERE id = $1)`, lineID,
	).Scan(&exists); err != nil {
		r.logger.Error("Failed to check order line", zap.Int64("line_id", lineID), zap.Error(err))
		return nil, err
	}
	if !exists {
		return nil, errors.ErrNotFound
	}

	query := `
		WITH RECURSIVE subtree AS (
			SELECT id, parent_id, cid, position, quantity, price, total_price
			FROM order_lines
			WHERE parent_id = $1
			UNION ALL
			SELECT l.id, l.parent_id, l.cid, l.position, l.quantity, l.price, l.total_price
			FROM order_lines l
			JOIN subtree s ON l.parent_id = s.id
		)
		SELECT id, parent_id, cid, quantity, price, total_price
		FROM subtree
		ORDER BY parent_id, position, id
	`

	rows, err := r.db.QueryContext(ctx, query, lineID)
	if err != nil {
		r.logger.Error("Failed to fetch stored children", zap.Int64("line_id", lineID), zap.Error(err))
		return nil, err
	}
	lineRows, err := scanLineRows(rows)
	if err != nil {
		return nil, err
	}

	children, _ := assemble(lineRows, &lineID)
	return children, nil
}

// GetByID retrieves an order with its line forest and line taxes.
func (r *PostgresOrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	r.logger.Debug("Fetching order by ID", zap.Int64("order_id", id))

	query := `
		SELECT id, order_date, confirm_date, confirmed, status,
		       amount, tax_amount, total_amount, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	var order models.Order
	var orderDate, confirmDate sql.NullTime
	var status string

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&orderDate,
		&confirmDate,
		&order.Confirmed,
		&status,
		&order.Amount,
		&order.TaxAmount,
		&order.TotalAmount,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to fetch order", zap.Int64("order_id", id), zap.Error(err))
		return nil, err
	}

	order.Status = models.OrderStatus(status)
	if orderDate.Valid {
		order.OrderDate = models.NewDate(orderDate.Time)
	}
	if confirmDate.Valid {
		order.ConfirmDate = models.NewDate(confirmDate.Time)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, parent_id, cid, quantity, price, total_price
		FROM order_lines
		WHERE order_id = $1
		ORDER BY parent_id NULLS FIRST, position, id
	`, id)
	if err != nil {
		return nil, err
	}
	lineRows, err := scanLineRows(rows)
	if err != nil {
		return nil, err
	}

	var byID map[int64]*models.OrderLine
	order.Items, byID = assemble(lineRows, nil)

	if err := r.loadTaxes(ctx, id, byID); err != nil {
		return nil, err
	}

	r.logger.Info("Order fetched successfully",
		zap.Int64("order_id", order.ID),
		zap.Int("lines", len(lineRows)),
	)
	return &order, nil
}

func (r *PostgresOrderRepository) loadTaxes(ctx context.Context, orderID int64, byID map[int64]*models.OrderLine) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.line_id, t.code, t.rate
		FROM order_line_taxes t
		JOIN order_lines l ON l.id = t.line_id
		WHERE l.order_id = $1
		ORDER BY t.line_id, t.code
	`, orderID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var lineID int64
		var tax models.Tax
		if err := rows.Scan(&lineID, &tax.Code, &tax.Rate); err != nil {
			return err
		}
		if line, ok := byID[lineID]; ok {
			line.Taxes = append(line.Taxes, tax)
		}
	}
	return rows.Err()
}

// SaveLines writes every line of the order and its totals in one transaction.
// Lines without an id are inserted and receive one.
func (r *PostgresOrderRepository) SaveLines(ctx context.Context, order *models.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for i, line := range order.Items {
		if err := saveLine(ctx, tx, order.ID, nil, i, line); err != nil {
			r.logger.Error("Failed to save order line",
				zap.Int64("order_id", order.ID),
				zap.Error(err),
			)
			return err
		}
	}

	if err := updateTotals(ctx, tx, order); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	r.logger.Info("Order lines saved",
		zap.Int64("order_id", order.ID),
		zap.String("total_amount", order.TotalAmount.StringFixed(4)),
	)
	return nil
}

func saveLine(ctx context.Context, tx *sql.Tx, orderID int64, parentID *int64, position int, line *models.OrderLine) error {
	cid := sql.NullString{String: line.ClientID, Valid: line.ClientID != ""}

	if line.ID == nil {
		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO order_lines (order_id, parent_id, cid, position, quantity, price, total_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, orderID, parentID, cid, position, line.Quantity, line.Price, line.TotalPrice).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert line: %w", err)
		}
		line.ID = models.Int64Ptr(id)
	} else {
		res, err := tx.ExecContext(ctx, `
			UPDATE order_lines
			SET parent_id = $3, position = $4, quantity = $5, price = $6, total_price = $7
			WHERE id = $1 AND order_id = $2
		`, *line.ID, orderID, parentID, position, line.Quantity, line.Price, line.TotalPrice)
		if err != nil {
			return fmt.Errorf("update line %d: %w", *line.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("update line %d: %w", *line.ID, errors.ErrNotFound)
		}
	}

	for i, child := range line.Items {
		if err := saveLine(ctx, tx, orderID, line.ID, i, child); err != nil {
			return err
		}
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func updateTotals(ctx context.Context, db execer, order *models.Order) error {
	res, err := db.ExecContext(ctx, `
		UPDATE orders
		SET amount = $2, tax_amount = $3, total_amount = $4, updated_at = $5
		WHERE id = $1
	`, order.ID, order.Amount, order.TaxAmount, order.TotalAmount, time.Now())
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrNotFound
	}
	return nil
}

// UpdateTotals persists the order's computed totals.
func (r *PostgresOrderRepository) UpdateTotals(ctx context.Context, order *models.Order) error {
	if err := updateTotals(ctx, r.db, order); err != nil {
		if !errors.IsNotFound(err) {
			r.logger.Error("Failed to update order totals", zap.Int64("order_id", order.ID), zap.Error(err))
		}
		return err
	}

	r.logger.Info("Order totals updated",
		zap.Int64("order_id", order.ID),
		zap.String("amount", order.Amount.StringFixed(4)),
		zap.String("total_amount", order.TotalAmount.StringFixed(4)),
	)
	return nil
}
