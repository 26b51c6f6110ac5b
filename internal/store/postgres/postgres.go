// Package postgres is the Store backed by PostgreSQL through the pgx stdlib
// driver and sqlx.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"storecal/internal/model"
	"storecal/internal/store"
)

//go:embed schema.sql
var schemaSQL string

const eventColumns = `id, business_id, title, description, type, start_datetime, end_datetime, all_day, timezone, status, priority, is_public, color, emoji, is_recurring, recurrence, cultural, contact, max_bookings, current_bookings, created_at, updated_at`

type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Connect opens a pool for dsn and checks it answers.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db, nil), nil
}

// New wraps an existing handle. now stamps created_at/updated_at; nil means
// time.Now.
func New(db *sqlx.DB, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Stats reports the connection pool statistics.
func (s *Store) Stats() sql.DBStats {
	return s.db.Stats()
}

func (s *Store) Ready(ctx context.Context) error {
	var one int
	return s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	return nil
}

type eventRow struct {
	ID              string     `db:"id"`
	BusinessID      string     `db:"business_id"`
	Title           string     `db:"title"`
	Description     string     `db:"description"`
	Type            string     `db:"type"`
	Start           time.Time  `db:"start_datetime"`
	End             *time.Time `db:"end_datetime"`
	AllDay          bool       `db:"all_day"`
	Timezone        string     `db:"timezone"`
	Status          string     `db:"status"`
	Priority        int        `db:"priority"`
	IsPublic        bool       `db:"is_public"`
	Color           string     `db:"color"`
	Emoji           string     `db:"emoji"`
	IsRecurring     bool       `db:"is_recurring"`
	Recurrence      []byte     `db:"recurrence"`
	Cultural        []byte     `db:"cultural"`
	Contact         []byte     `db:"contact"`
	MaxBookings     int        `db:"max_bookings"`
	CurrentBookings int        `db:"current_bookings"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

// contact is the JSONB shape of the booking customer fields; the counters
// live in their own columns so they can be incremented in SQL.
type contact struct {
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerPhone string `json:"customer_phone,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	OrderID       string `json:"order_id,omitempty"`
}

func (r eventRow) toModel() (model.Event, error) {
	e := model.Event{
		ID:          r.ID,
		BusinessID:  r.BusinessID,
		Title:       r.Title,
		Description: r.Description,
		Type:        model.EventType(r.Type),
		Start:       r.Start,
		End:         r.End,
		AllDay:      r.AllDay,
		Timezone:    r.Timezone,
		Status:      model.EventStatus(r.Status),
		Priority:    r.Priority,
		IsPublic:    r.IsPublic,
		Color:       r.Color,
		Emoji:       r.Emoji,
		IsRecurring: r.IsRecurring,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if len(r.Recurrence) > 0 {
		var rule model.Rule
		if err := json.Unmarshal(r.Recurrence, &rule); err != nil {
			return e, fmt.Errorf("event %s: decode recurrence: %w", r.ID, err)
		}
		e.Recurrence = &rule
	}
	if len(r.Cultural) > 0 {
		var c model.CulturalDetails
		if err := json.Unmarshal(r.Cultural, &c); err != nil {
			return e, fmt.Errorf("event %s: decode cultural: %w", r.ID, err)
		}
		e.Cultural = &c
	}
	if len(r.Contact) > 0 || r.MaxBookings > 0 || r.CurrentBookings > 0 {
		var c contact
		if len(r.Contact) > 0 {
			if err := json.Unmarshal(r.Contact, &c); err != nil {
				return e, fmt.Errorf("event %s: decode contact: %w", r.ID, err)
			}
		}
		e.Booking = &model.BookingDetails{
			CustomerName:    c.CustomerName,
			CustomerPhone:   c.CustomerPhone,
			CustomerEmail:   c.CustomerEmail,
			OrderID:         c.OrderID,
			MaxBookings:     r.MaxBookings,
			CurrentBookings: r.CurrentBookings,
		}
	}
	return e, nil
}

func rowFromModel(e model.Event) (eventRow, error) {
	r := eventRow{
		ID:          e.ID,
		BusinessID:  e.BusinessID,
		Title:       e.Title,
		Description: e.Description,
		Type:        string(e.Type),
		Start:       e.Start,
		End:         e.End,
		AllDay:      e.AllDay,
		Timezone:    e.Timezone,
		Status:      string(e.Status),
		Priority:    e.Priority,
		IsPublic:    e.IsPublic,
		Color:       e.Color,
		Emoji:       e.Emoji,
		IsRecurring: e.IsRecurring,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
	var err error
	if e.Recurrence != nil {
		if r.Recurrence, err = json.Marshal(e.Recurrence); err != nil {
			return r, err
		}
	}
	if e.Cultural != nil {
		if r.Cultural, err = json.Marshal(e.Cultural); err != nil {
			return r, err
		}
	}
	if b := e.Booking; b != nil {
		c := contact{CustomerName: b.CustomerName, CustomerPhone: b.CustomerPhone, CustomerEmail: b.CustomerEmail, OrderID: b.OrderID}
		if r.Contact, err = json.Marshal(c); err != nil {
			return r, err
		}
		r.MaxBookings = b.MaxBookings
		r.CurrentBookings = b.CurrentBookings
	}
	if r.Status == "" {
		r.Status = string(model.StatusScheduled)
	}
	return r, nil
}

func (r eventRow) args() []any {
	return []any{
		r.ID, r.BusinessID, r.Title, r.Description, r.Type, r.Start, r.End, r.AllDay, r.Timezone,
		r.Status, r.Priority, r.IsPublic, r.Color, r.Emoji, r.IsRecurring,
		nullJSON(r.Recurrence), nullJSON(r.Cultural), nullJSON(r.Contact),
		r.MaxBookings, r.CurrentBookings, r.CreatedAt, r.UpdatedAt,
	}
}

// nullJSON sends absent payloads as SQL NULL rather than an empty string,
// which JSONB would reject.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// buildEventQuery renders the filter as a parameterized SELECT. Placeholders
// are numbered as they are added.
func buildEventQuery(f store.EventFilter) (string, []any) {
	var sb strings.Builder
	args := []any{f.BusinessID}
	sb.WriteString("SELECT " + eventColumns + " FROM calendar_events WHERE business_id = $1")

	if len(f.Types) > 0 {
		ph := make([]string, 0, len(f.Types))
		for _, t := range f.Types {
			args = append(args, string(t))
			ph = append(ph, "$"+strconv.Itoa(len(args)))
		}
		sb.WriteString(" AND type IN (" + strings.Join(ph, ",") + ")")
	}
	if !f.StartFrom.IsZero() {
		args = append(args, f.StartFrom)
		sb.WriteString(" AND start_datetime >= $" + strconv.Itoa(len(args)))
	}
	if !f.StartBefore.IsZero() {
		args = append(args, f.StartBefore)
		sb.WriteString(" AND start_datetime < $" + strconv.Itoa(len(args)))
	}
	if f.Recurring != nil {
		args = append(args, *f.Recurring)
		sb.WriteString(" AND is_recurring = $" + strconv.Itoa(len(args)))
	}
	sb.WriteString(" ORDER BY start_datetime ASC, id ASC")
	return sb.String(), args
}

func (s *Store) QueryEvents(ctx context.Context, f store.EventFilter) ([]model.Event, error) {
	q, args := buildEventQuery(f)
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	out := make([]model.Event, 0, len(rows))
	for _, r := range rows {
		e, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) GetEvent(ctx context.Context, businessID, id string) (model.Event, error) {
	return getEvent(ctx, s.db, businessID, id, false)
}

func getEvent(ctx context.Context, q sqlx.QueryerContext, businessID, id string, forUpdate bool) (model.Event, error) {
	query := "SELECT " + eventColumns + " FROM calendar_events WHERE business_id = $1 AND id = $2"
	if forUpdate {
		query += " FOR UPDATE"
	}
	var r eventRow
	if err := sqlx.GetContext(ctx, q, &r, query, businessID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Event{}, store.ErrNotFound
		}
		return model.Event{}, fmt.Errorf("get event %s: %w", id, err)
	}
	return r.toModel()
}

const insertEventSQL = `INSERT INTO calendar_events (` + eventColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

func (s *Store) InsertEvent(ctx context.Context, e model.Event) (model.Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := s.now()
	e.CreatedAt, e.UpdatedAt = now, now

	r, err := rowFromModel(e)
	if err != nil {
		return model.Event{}, fmt.Errorf("encode event: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, insertEventSQL, r.args()...); err != nil {
		return model.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return r.toModel()
}

const countSlotBookingsSQL = `SELECT count(*) FROM calendar_events
WHERE business_id = $1 AND type = $2 AND start_datetime = $3 AND status <> $4`

// InsertSlotBooking takes a transaction-scoped advisory lock on the slot
// (business and start instant), counts its live bookings and inserts e
// before the lock is released at commit.
func (s *Store) InsertSlotBooking(ctx context.Context, e model.Event, max int) (model.Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := s.now()
	e.CreatedAt, e.UpdatedAt = now, now

	r, err := rowFromModel(e)
	if err != nil {
		return model.Event{}, fmt.Errorf("encode event: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Event{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", slotLockKey(e)); err != nil {
		return model.Event{}, fmt.Errorf("lock slot: %w", err)
	}
	if max > 0 {
		var n int
		err := tx.QueryRowContext(ctx, countSlotBookingsSQL,
			e.BusinessID, string(model.TypeDeliverySlot), e.Start, string(model.StatusCancelled)).Scan(&n)
		if err != nil {
			return model.Event{}, fmt.Errorf("count slot bookings: %w", err)
		}
		if n >= max {
			return model.Event{}, store.ErrCapacity
		}
	}
	if _, err := tx.ExecContext(ctx, insertEventSQL, r.args()...); err != nil {
		return model.Event{}, fmt.Errorf("insert slot booking: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Event{}, fmt.Errorf("commit: %w", err)
	}
	return r.toModel()
}

func slotLockKey(e model.Event) string {
	return "slot:" + e.BusinessID + ":" + e.Start.UTC().Format(time.RFC3339)
}

const upsertEventSQL = insertEventSQL + `
ON CONFLICT (id) DO UPDATE SET
    title = EXCLUDED.title, description = EXCLUDED.description, type = EXCLUDED.type,
    start_datetime = EXCLUDED.start_datetime, end_datetime = EXCLUDED.end_datetime,
    all_day = EXCLUDED.all_day, timezone = EXCLUDED.timezone, status = EXCLUDED.status,
    priority = EXCLUDED.priority, is_public = EXCLUDED.is_public, color = EXCLUDED.color,
    emoji = EXCLUDED.emoji, is_recurring = EXCLUDED.is_recurring, recurrence = EXCLUDED.recurrence,
    cultural = EXCLUDED.cultural, updated_at = EXCLUDED.updated_at
WHERE calendar_events.business_id = EXCLUDED.business_id
RETURNING created_at`

// UpsertEvent keeps created_at and the booking counters of an existing row.
// A row with the same id owned by another business is reported as
// ErrNotFound.
func (s *Store) UpsertEvent(ctx context.Context, e model.Event) (model.Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := s.now()
	e.CreatedAt, e.UpdatedAt = now, now

	r, err := rowFromModel(e)
	if err != nil {
		return model.Event{}, fmt.Errorf("encode event: %w", err)
	}
	var created time.Time
	if err := s.db.QueryRowContext(ctx, upsertEventSQL, r.args()...).Scan(&created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Event{}, store.ErrNotFound
		}
		return model.Event{}, fmt.Errorf("upsert event: %w", err)
	}
	r.CreatedAt = created
	return r.toModel()
}

const updateEventSQL = `UPDATE calendar_events SET
    title = $3, description = $4, type = $5, start_datetime = $6, end_datetime = $7, all_day = $8,
    timezone = $9, status = $10, priority = $11, is_public = $12, color = $13, emoji = $14,
    is_recurring = $15, recurrence = $16, cultural = $17, contact = $18, max_bookings = $19,
    updated_at = $20
WHERE business_id = $1 AND id = $2`

// UpdateEvent reads the row under FOR UPDATE, applies the patch and writes it
// back in one transaction. current_bookings is never written here.
func (s *Store) UpdateEvent(ctx context.Context, businessID, id string, p model.EventPatch) (model.Event, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return model.Event{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := getEvent(ctx, tx, businessID, id, true)
	if err != nil {
		return model.Event{}, err
	}
	next := p.Apply(cur)
	next.UpdatedAt = s.now()

	r, err := rowFromModel(next)
	if err != nil {
		return model.Event{}, fmt.Errorf("encode event: %w", err)
	}
	_, err = tx.ExecContext(ctx, updateEventSQL,
		r.BusinessID, r.ID, r.Title, r.Description, r.Type, r.Start, r.End, r.AllDay,
		r.Timezone, r.Status, r.Priority, r.IsPublic, r.Color, r.Emoji,
		r.IsRecurring, nullJSON(r.Recurrence), nullJSON(r.Cultural), nullJSON(r.Contact), r.MaxBookings,
		r.UpdatedAt,
	)
	if err != nil {
		return model.Event{}, fmt.Errorf("update event %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return model.Event{}, fmt.Errorf("commit: %w", err)
	}
	return r.toModel()
}

func (s *Store) DeleteEvent(ctx context.Context, businessID, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM calendar_events WHERE business_id = $1 AND id = $2", businessID, id)
	if err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

const incrementSQL = `UPDATE calendar_events
SET current_bookings = current_bookings + 1, updated_at = $3
WHERE business_id = $1 AND id = $2 AND (max_bookings = 0 OR current_bookings < max_bookings)
RETURNING current_bookings`

// IncrementBookings performs the capacity check and the increment in one
// statement. When no row is updated a second read tells a missing row from a
// full one.
func (s *Store) IncrementBookings(ctx context.Context, businessID, id string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, incrementSQL, businessID, id, s.now()).Scan(&n)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("increment bookings %s: %w", id, err)
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT current_bookings FROM calendar_events WHERE business_id = $1 AND id = $2",
		businessID, id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read bookings %s: %w", id, err)
	}
	return n, store.ErrCapacity
}

type slotTemplateRow struct {
	ID            string              `db:"id"`
	BusinessID    string              `db:"business_id"`
	DayOfWeek     int                 `db:"day_of_week"`
	StartTime     string              `db:"start_time"`
	EndTime       string              `db:"end_time"`
	MaxBookings   int                 `db:"max_bookings"`
	Active        bool                `db:"is_active"`
	DeliveryZones []byte              `db:"delivery_zones"`
	DeliveryFee   decimal.NullDecimal `db:"delivery_fee"`
}

func (s *Store) ListSlotTemplates(ctx context.Context, businessID string) ([]model.SlotTemplate, error) {
	var rows []slotTemplateRow
	err := s.db.SelectContext(ctx, &rows, `SELECT id, business_id, day_of_week, start_time, end_time, max_bookings, is_active, delivery_zones, delivery_fee
FROM delivery_slot_templates WHERE business_id = $1 ORDER BY day_of_week, start_time, id`, businessID)
	if err != nil {
		return nil, fmt.Errorf("list slot templates: %w", err)
	}
	out := make([]model.SlotTemplate, 0, len(rows))
	for _, r := range rows {
		t := model.SlotTemplate{
			ID:          r.ID,
			BusinessID:  r.BusinessID,
			DayOfWeek:   time.Weekday(r.DayOfWeek),
			StartTime:   r.StartTime,
			EndTime:     r.EndTime,
			MaxBookings: r.MaxBookings,
			Active:      r.Active,
		}
		if len(r.DeliveryZones) > 0 {
			if err := json.Unmarshal(r.DeliveryZones, &t.DeliveryZones); err != nil {
				return nil, fmt.Errorf("slot template %s: decode zones: %w", r.ID, err)
			}
		}
		if r.DeliveryFee.Valid {
			fee := r.DeliveryFee.Decimal
			t.DeliveryFee = &fee
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) InsertSlotTemplate(ctx context.Context, t model.SlotTemplate) (model.SlotTemplate, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	var zones []byte
	if len(t.DeliveryZones) > 0 {
		var err error
		if zones, err = json.Marshal(t.DeliveryZones); err != nil {
			return model.SlotTemplate{}, err
		}
	}
	fee := decimal.NullDecimal{}
	if t.DeliveryFee != nil {
		fee = decimal.NewNullDecimal(*t.DeliveryFee)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO delivery_slot_templates
(id, business_id, day_of_week, start_time, end_time, max_bookings, is_active, delivery_zones, delivery_fee)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.BusinessID, int(t.DayOfWeek), t.StartTime, t.EndTime, t.MaxBookings, t.Active, nullJSON(zones), fee)
	if err != nil {
		return model.SlotTemplate{}, fmt.Errorf("insert slot template: %w", err)
	}
	return t, nil
}

type bookingRow struct {
	ID            string    `db:"id"`
	BusinessID    string    `db:"business_id"`
	EventID       string    `db:"event_id"`
	CustomerName  string    `db:"customer_name"`
	CustomerPhone string    `db:"customer_phone"`
	CustomerEmail string    `db:"customer_email"`
	OrderID       string    `db:"order_id"`
	Status        string    `db:"status"`
	CreatedAt     time.Time `db:"created_at"`
}

func (s *Store) InsertBooking(ctx context.Context, b model.Booking) (model.Booking, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = model.BookingPending
	}
	b.CreatedAt = s.now()

	r := bookingRow{
		ID: b.ID, BusinessID: b.BusinessID, EventID: b.EventID,
		CustomerName: b.CustomerName, CustomerPhone: b.CustomerPhone, CustomerEmail: b.CustomerEmail,
		OrderID: b.OrderID, Status: string(b.Status), CreatedAt: b.CreatedAt,
	}
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO event_bookings
(id, business_id, event_id, customer_name, customer_phone, customer_email, order_id, status, created_at)
VALUES (:id, :business_id, :event_id, :customer_name, :customer_phone, :customer_email, :order_id, :status, :created_at)`, r)
	if err != nil {
		return model.Booking{}, fmt.Errorf("insert booking: %w", err)
	}
	return b, nil
}

func (s *Store) ListBookings(ctx context.Context, businessID, eventID string) ([]model.Booking, error) {
	query := `SELECT id, business_id, event_id, customer_name, customer_phone, customer_email, order_id, status, created_at
FROM event_bookings WHERE business_id = $1`
	args := []any{businessID}
	if eventID != "" {
		query += " AND event_id = $2"
		args = append(args, eventID)
	}
	query += " ORDER BY created_at, id"

	var rows []bookingRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	out := make([]model.Booking, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Booking{
			ID: r.ID, BusinessID: r.BusinessID, EventID: r.EventID,
			CustomerName: r.CustomerName, CustomerPhone: r.CustomerPhone, CustomerEmail: r.CustomerEmail,
			OrderID: r.OrderID, Status: model.BookingStatus(r.Status), CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

type productRow struct {
	ID         string `db:"id"`
	BusinessID string `db:"business_id"`
	Name       string `db:"name"`
	Stock      int    `db:"current_stock"`
}

func (s *Store) ListProducts(ctx context.Context, businessID string) ([]model.Product, error) {
	var rows []productRow
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT id, business_id, name, current_stock FROM products WHERE business_id = $1 ORDER BY name", businessID); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	out := make([]model.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Product{ID: r.ID, BusinessID: r.BusinessID, Name: r.Name, Stock: r.Stock})
	}
	return out, nil
}

func (s *Store) UpsertProduct(ctx context.Context, p model.Product) (model.Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	r := productRow{ID: p.ID, BusinessID: p.BusinessID, Name: p.Name, Stock: p.Stock}
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO products (id, business_id, name, current_stock)
VALUES (:id, :business_id, :name, :current_stock)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, current_stock = EXCLUDED.current_stock`, r)
	if err != nil {
		return model.Product{}, fmt.Errorf("upsert product: %w", err)
	}
	return p, nil
}
