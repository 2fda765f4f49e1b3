package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/xavierca1/lead-relay/internal/entity"
)

const maxErrorLen = 1024

const deliveryColumns = "id, lead_id, channel, status, attempts, last_error, updated_at"

// LeadRepository is the record store for leads and their deliveries.
type LeadRepository struct {
	DB          *sql.DB
	Dialect     Dialect
	MaxAttempts int
	Now         func() time.Time
}

func NewLeadRepository(db *sql.DB, dialect Dialect, maxAttempts int) *LeadRepository {
	if maxAttempts <= 0 {
		maxAttempts = entity.DefaultMaxAttempts
	}
	return &LeadRepository{
		DB:          db,
		Dialect:     dialect,
		MaxAttempts: maxAttempts,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (r *LeadRepository) q(query string) string {
	return rebind(r.Dialect, query)
}

// CreateLeadWithDeliveries stores the lead and one PENDING delivery per channel in one transaction.
func (r *LeadRepository) CreateLeadWithDeliveries(ctx context.Context, lead *entity.Lead, channels []entity.Channel) ([]entity.Delivery, error) {
	now := r.Now()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx: %w", entity.ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, r.q(`
		INSERT INTO leads (id, full_name, phone, email, preferred_class, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), lead.ID, lead.FullName, lead.Phone, lead.Email, lead.PreferredClass, lead.CreatedAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: insert lead: %v", entity.ErrStorage, describe(err))
	}

	deliveries := make([]entity.Delivery, 0, len(channels))
	for _, ch := range channels {
		d := entity.NewDelivery(lead.ID, ch, now)
		_, err := tx.ExecContext(ctx, r.q(`
			INSERT INTO deliveries (id, lead_id, channel, status, attempts, last_error, updated_at)
			VALUES (?, ?, ?, ?, ?, NULL, ?)
		`), d.ID, d.LeadID, string(d.Channel), string(d.Status), d.Attempts, d.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: insert delivery %s: %v", entity.ErrStorage, ch, describe(err))
		}
		deliveries = append(deliveries, d)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", entity.ErrStorage, err)
	}

	return deliveries, nil
}

func (r *LeadRepository) GetLead(ctx context.Context, id string) (*entity.Lead, error) {
	if !isID(id) {
		return nil, entity.ErrLeadNotFound
	}

	var lead entity.Lead
	err := r.DB.QueryRowContext(ctx, r.q(`
		SELECT id, full_name, phone, email, preferred_class, created_at
		FROM leads
		WHERE id = ?
	`), id).Scan(
		&lead.ID,
		&lead.FullName,
		&lead.Phone,
		&lead.Email,
		&lead.PreferredClass,
		&lead.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrLeadNotFound
		}
		return nil, fmt.Errorf("%w: get lead %s: %w", entity.ErrStorage, id, err)
	}
	lead.CreatedAt = lead.CreatedAt.UTC()
	return &lead, nil
}

func (r *LeadRepository) GetDelivery(ctx context.Context, id string) (*entity.Delivery, error) {
	if !isID(id) {
		return nil, entity.ErrDeliveryNotFound
	}

	row := r.DB.QueryRowContext(ctx, r.q(`SELECT `+deliveryColumns+` FROM deliveries WHERE id = ?`), id)
	d, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("%w: get delivery %s: %w", entity.ErrStorage, id, err)
	}
	return d, nil
}

// ListDeliveriesByStatus returns deliveries in the given status, oldest update first.
func (r *LeadRepository) ListDeliveriesByStatus(ctx context.Context, status entity.DeliveryStatus) ([]entity.Delivery, error) {
	return r.listDeliveries(ctx, r.q(`
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE status = ?
		ORDER BY updated_at ASC, id ASC
	`), string(status))
}

func (r *LeadRepository) ListDeliveriesByLead(ctx context.Context, leadID string) ([]entity.Delivery, error) {
	if !isID(leadID) {
		return []entity.Delivery{}, nil
	}
	return r.listDeliveries(ctx, r.q(`
		SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE lead_id = ?
		ORDER BY channel ASC
	`), leadID)
}

func (r *LeadRepository) listDeliveries(ctx context.Context, query string, args ...any) ([]entity.Delivery, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list deliveries: %w", entity.ErrStorage, err)
	}
	defer rows.Close()

	out := make([]entity.Delivery, 0)
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan delivery: %w", entity.ErrStorage, err)
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %w", entity.ErrStorage, err)
	}
	return out, nil
}

// UpdateDeliveryStatus overwrites status, last error and updated_at of a non-terminal delivery.
// A delivery never moves back to PENDING.
func (r *LeadRepository) UpdateDeliveryStatus(ctx context.Context, id string, status entity.DeliveryStatus, lastErr *string) error {
	if !status.Valid() || status == entity.StatusPending {
		return fmt.Errorf("%w: %s", entity.ErrInvalidTransition, status)
	}
	if !isID(id) {
		return entity.ErrDeliveryNotFound
	}

	var errText any
	if lastErr != nil {
		errText = truncateError(*lastErr)
	}

	res, err := r.DB.ExecContext(ctx, r.q(`
		UPDATE deliveries
		SET status = ?, last_error = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`), string(status), errText, r.Now(), id, string(entity.StatusPending), string(entity.StatusFailed))
	if err != nil {
		return fmt.Errorf("%w: update delivery %s: %w", entity.ErrStorage, id, err)
	}

	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	return r.explainNoop(ctx, id, entity.ErrTerminalState)
}

// IncrementAttempts records a failed attempt in a single conditional write. attempts, status,
// last_error and updated_at change together, and only if the row still has expectedAttempts and
// a retryable status. A lost race yields entity.ErrConcurrentUpdate.
func (r *LeadRepository) IncrementAttempts(ctx context.Context, id string, expectedAttempts int, lastErr string) (*entity.Delivery, error) {
	if !isID(id) {
		return nil, entity.ErrDeliveryNotFound
	}

	res, err := r.DB.ExecContext(ctx, r.q(`
		UPDATE deliveries
		SET attempts = attempts + 1,
			status = CASE WHEN attempts + 1 >= ? THEN ? ELSE ? END,
			last_error = ?,
			updated_at = ?
		WHERE id = ? AND attempts = ? AND status IN (?, ?)
	`),
		r.MaxAttempts,
		string(entity.StatusGaveUp),
		string(entity.StatusFailed),
		truncateError(lastErr),
		r.Now(),
		id,
		expectedAttempts,
		string(entity.StatusPending),
		string(entity.StatusFailed),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: increment attempts %s: %w", entity.ErrStorage, id, err)
	}

	if n, _ := res.RowsAffected(); n != 1 {
		return nil, r.explainNoop(ctx, id, entity.ErrConcurrentUpdate)
	}
	return r.GetDelivery(ctx, id)
}

// explainNoop turns a zero-row conditional update into NotFound, terminal or the given conflict error.
func (r *LeadRepository) explainNoop(ctx context.Context, id string, conflict error) error {
	current, err := r.GetDelivery(ctx, id)
	if err != nil {
		return err
	}
	if current.Status.IsTerminal() {
		return entity.ErrTerminalState
	}
	return conflict
}

// CountByStatus returns how many deliveries sit in each status. Every status is present.
func (r *LeadRepository) CountByStatus(ctx context.Context) (map[entity.DeliveryStatus]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM deliveries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("%w: count deliveries: %w", entity.ErrStorage, err)
	}
	defer rows.Close()

	counts := make(map[entity.DeliveryStatus]int, 4)
	for _, s := range entity.AllStatuses() {
		counts[s] = 0
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("%w: scan count: %w", entity.ErrStorage, err)
		}
		counts[entity.DeliveryStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %w", entity.ErrStorage, err)
	}
	return counts, nil
}

// Ping is used by the health check.
func (r *LeadRepository) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(row rowScanner) (*entity.Delivery, error) {
	var (
		d         entity.Delivery
		channel   string
		status    string
		lastError sql.NullString
	)
	if err := row.Scan(&d.ID, &d.LeadID, &channel, &status, &d.Attempts, &lastError, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Channel = entity.Channel(channel)
	d.Status = entity.DeliveryStatus(status)
	if lastError.Valid {
		msg := lastError.String
		d.LastError = &msg
	}
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &d, nil
}

// isID rejects ids that cannot exist. Postgres would fail the uuid cast instead of finding no row.
func isID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// describe keeps Postgres constraint details, which lib/pq leaves out of Error().
func describe(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == "23505" {
			return fmt.Sprintf("unique violation on %s: %s", pqErr.Constraint, pqErr.Message)
		}
		return fmt.Sprintf("%s (%s)", pqErr.Message, pqErr.Code)
	}
	return err.Error()
}

func truncateError(msg string) string {
	if utf8.RuneCountInString(msg) <= maxErrorLen {
		return msg
	}
	return string([]rune(msg)[:maxErrorLen])
}
