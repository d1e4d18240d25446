package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/checkout-engine/internal/core/domain"
	"github.com/rl1809/checkout-engine/internal/port"
)

// ticketCodeAttempts bounds the regenerate-on-collision loop for ticket codes.
const ticketCodeAttempts = 3

// MySQLStore implements port.CartRepository and port.TicketRepository on top
// of MySQL. Carts are mutable (full item replace); tickets are append-only.
type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// EnsureSchema creates the tables when they do not exist yet.
func (m *MySQLStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS carts (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cart_items (
			cart_id VARCHAR(64) NOT NULL,
			position INT NOT NULL,
			product_id VARCHAR(64) NOT NULL,
			quantity INT NOT NULL,
			PRIMARY KEY (cart_id, position)
		)`,
		`CREATE TABLE IF NOT EXISTS tickets (
			id CHAR(36) PRIMARY KEY,
			code VARCHAR(32) NOT NULL UNIQUE,
			user_id VARCHAR(64) NOT NULL,
			total DECIMAL(18,4) NOT NULL,
			created_at DATETIME(6) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ticket_items (
			ticket_id CHAR(36) NOT NULL,
			position INT NOT NULL,
			product_id VARCHAR(64) NOT NULL,
			quantity INT NOT NULL,
			unit_price DECIMAL(18,4) NOT NULL,
			PRIMARY KEY (ticket_id, position)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (m *MySQLStore) GetCart(ctx context.Context, cartID string) (*domain.Cart, error) {
	var userID sql.NullString
	err := m.db.QueryRowContext(ctx,
		`SELECT user_id FROM carts WHERE id = ?`, cartID,
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cart %s: %w", cartID, err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT product_id, quantity FROM cart_items
		WHERE cart_id = ? ORDER BY position`, cartID,
	)
	if err != nil {
		return nil, fmt.Errorf("query cart items %s: %w", cartID, err)
	}
	defer rows.Close()

	cart := domain.Cart{ID: cartID, UserID: userID.String}
	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(&item.ProductID, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart items: %w", err)
	}

	return &cart, nil
}

func (m *MySQLStore) ReplaceItems(ctx context.Context, cartID string, items []domain.LineItem) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM carts WHERE id = ? FOR UPDATE`, cartID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return port.ErrCartNotFound
	}
	if err != nil {
		return fmt.Errorf("lock cart %s: %w", cartID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cart_items WHERE cart_id = ?`, cartID,
	); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}

	for i, item := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cart_items (cart_id, position, product_id, quantity)
			VALUES (?, ?, ?, ?)`,
			cartID, i, item.ProductID, item.Quantity,
		); err != nil {
			return fmt.Errorf("insert cart item: %w", err)
		}
	}

	return tx.Commit()
}

func (m *MySQLStore) PutCart(ctx context.Context, cart domain.Cart) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO carts (id, user_id) VALUES (?, NULLIF(?, ''))
		ON DUPLICATE KEY UPDATE user_id = NULLIF(?, '')`,
		cart.ID, cart.UserID, cart.UserID,
	); err != nil {
		return fmt.Errorf("upsert cart: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cart_items WHERE cart_id = ?`, cart.ID,
	); err != nil {
		return fmt.Errorf("clear cart items: %w", err)
	}

	for i, item := range cart.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cart_items (cart_id, position, product_id, quantity)
			VALUES (?, ?, ?, ?)`,
			cart.ID, i, item.ProductID, item.Quantity,
		); err != nil {
			return fmt.Errorf("insert cart item: %w", err)
		}
	}

	return tx.Commit()
}

func (m *MySQLStore) CreateTicket(ctx context.Context, userID string, items []domain.TicketItem, total decimal.Decimal) (*domain.Ticket, error) {
	for attempt := 0; attempt < ticketCodeAttempts; attempt++ {
		code, err := domain.NewTicketCode()
		if err != nil {
			return nil, err
		}

		ticket, err := m.insertTicket(ctx, code, userID, items, total)
		if isDuplicateKey(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return ticket, nil
	}
	return nil, fmt.Errorf("ticket code collision after %d attempts", ticketCodeAttempts)
}

func (m *MySQLStore) insertTicket(ctx context.Context, code, userID string, items []domain.TicketItem, total decimal.Decimal) (*domain.Ticket, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ticket := domain.Ticket{
		ID:        uuid.New().String(),
		Code:      code,
		UserID:    userID,
		Items:     items,
		Total:     total,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tickets (id, code, user_id, total, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		ticket.ID, ticket.Code, ticket.UserID, ticket.Total, ticket.CreatedAt,
	); err != nil {
		return nil, err
	}

	for i, item := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ticket_items (ticket_id, position, product_id, quantity, unit_price)
			VALUES (?, ?, ?, ?, ?)`,
			ticket.ID, i, item.ProductID, item.Quantity, item.UnitPrice,
		); err != nil {
			return nil, fmt.Errorf("insert ticket item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit ticket: %w", err)
	}
	return &ticket, nil
}

func (m *MySQLStore) GetTicketByCode(ctx context.Context, code string) (*domain.Ticket, error) {
	var t domain.Ticket
	err := m.db.QueryRowContext(ctx, `
		SELECT id, code, user_id, total, created_at
		FROM tickets WHERE code = ?`, code,
	).Scan(&t.ID, &t.Code, &t.UserID, &t.Total, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query ticket %s: %w", code, err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price FROM ticket_items
		WHERE ticket_id = ? ORDER BY position`, t.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("query ticket items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.TicketItem
		if err := rows.Scan(&item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan ticket item: %w", err)
		}
		t.Items = append(t.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ticket items: %w", err)
	}

	return &t, nil
}

func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
