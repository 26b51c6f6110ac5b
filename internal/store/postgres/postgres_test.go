package postgres

import (
	"context"
	"database/sql/driver"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storecal/internal/model"
	"storecal/internal/store"
)

var fixedNow = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "pgx"), func() time.Time { return fixedNow }), mock
}

func eventRows() *sqlmock.Rows {
	return sqlmock.NewRows(strings.Split(eventColumns, ", "))
}

func addEvent(rows *sqlmock.Rows, id string, start time.Time, recurrence, cultural, contactJSON []byte, max, current int) *sqlmock.Rows {
	return rows.AddRow(
		id, "biz", "Title "+id, "", "business_event", start, nil, false, "", "scheduled", 0, true, "", "",
		recurrence != nil, recurrence, cultural, contactJSON, max, current, fixedNow, fixedNow,
	)
}

func TestBuildEventQuery(t *testing.T) {
	yes := true
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	q, args := buildEventQuery(store.EventFilter{
		BusinessID:  "biz",
		Types:       []model.EventType{model.TypeDeliverySlot, model.TypeAppointment},
		StartFrom:   from,
		StartBefore: before,
		Recurring:   &yes,
	})

	assert.True(t, strings.HasSuffix(q,
		"FROM calendar_events WHERE business_id = $1 AND type IN ($2,$3) AND start_datetime >= $4 AND start_datetime < $5 AND is_recurring = $6 ORDER BY start_datetime ASC, id ASC"), q)
	assert.Equal(t, []any{"biz", "delivery_slot", "appointment", from, before, true}, args)

	q, args = buildEventQuery(store.EventFilter{BusinessID: "biz", StartBefore: before})
	assert.Contains(t, q, "WHERE business_id = $1 AND start_datetime < $2 ORDER BY")
	assert.Len(t, args, 2)
}

func TestQueryEventsDecodesPayloads(t *testing.T) {
	s, mock := newMock(t)

	rule := []byte(`{"frequency":"weekly","interval":2}`)
	cultural := []byte(`{"expected_demand_increase":40,"stock_recommendations":[{"product":"rice","extra_units":10}]}`)
	contactJSON := []byte(`{"customer_name":"Asha"}`)

	rows := eventRows()
	addEvent(rows, "a", fixedNow, rule, cultural, nil, 0, 0)
	addEvent(rows, "b", fixedNow.Add(time.Hour), nil, nil, contactJSON, 5, 2)

	mock.ExpectQuery(regexp.QuoteMeta("FROM calendar_events WHERE business_id = $1 AND start_datetime < $2")).
		WithArgs("biz", fixedNow.Add(24*time.Hour)).
		WillReturnRows(rows)

	got, err := s.QueryEvents(context.Background(), store.EventFilter{BusinessID: "biz", StartBefore: fixedNow.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.NotNil(t, got[0].Recurrence)
	assert.Equal(t, model.FreqWeekly, got[0].Recurrence.Frequency)
	assert.Equal(t, 2, got[0].Recurrence.Interval)
	require.NotNil(t, got[0].Cultural)
	assert.Equal(t, 10, got[0].Cultural.StockRecommendations[0].ExtraUnits)
	assert.Nil(t, got[0].Booking)

	require.NotNil(t, got[1].Booking)
	assert.Equal(t, "Asha", got[1].Booking.CustomerName)
	assert.Equal(t, 5, got[1].Booking.MaxBookings)
	assert.Equal(t, 2, got[1].Booking.CurrentBookings)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEventNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE business_id = $1 AND id = $2")).
		WithArgs("biz", "missing").
		WillReturnRows(eventRows())

	_, err := s.GetEvent(context.Background(), "biz", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEvent(t *testing.T) {
	s, mock := newMock(t)
	end := fixedNow.Add(time.Hour)

	args := make([]driver.Value, 22)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	args[1] = "biz"
	args[4] = "delivery_slot"
	args[18] = 5 // max_bookings
	args[19] = 0 // current_bookings

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO calendar_events")).
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := s.InsertEvent(context.Background(), model.Event{
		BusinessID: "biz",
		Title:      "Evening delivery",
		Type:       model.TypeDeliverySlot,
		Start:      fixedNow,
		End:        &end,
		Booking:    &model.BookingDetails{MaxBookings: 5},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, fixedNow, got.CreatedAt)
	assert.Equal(t, model.StatusScheduled, got.Status)
	require.NotNil(t, got.Booking)
	assert.Equal(t, 5, got.Booking.MaxBookings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertEventOtherTenant(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (id) DO UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}))

	_, err := s.UpsertEvent(context.Background(), model.Event{ID: "feed-1", BusinessID: "biz", Start: fixedNow})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEventInTransaction(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE business_id = $1 AND id = $2 FOR UPDATE")).
		WithArgs("biz", "a").
		WillReturnRows(addEvent(eventRows(), "a", fixedNow, nil, nil, []byte(`{}`), 5, 3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE calendar_events SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	title := "Renamed"
	got, err := s.UpdateEvent(context.Background(), "biz", "a", model.EventPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, 3, got.Booking.CurrentBookings)
	assert.Equal(t, fixedNow, got.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEventMissingRollsBack(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnRows(eventRows())
	mock.ExpectRollback()

	_, err := s.UpdateEvent(context.Background(), "biz", "gone", model.EventPatch{})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteEvent(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM calendar_events")).
		WithArgs("biz", "a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM calendar_events")).
		WithArgs("biz", "b").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, s.DeleteEvent(context.Background(), "biz", "a"))
	assert.ErrorIs(t, s.DeleteEvent(context.Background(), "biz", "b"), store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementBookings(t *testing.T) {
	t.Run("incremented", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("SET current_bookings = current_bookings + 1")).
			WithArgs("biz", "slot", fixedNow).
			WillReturnRows(sqlmock.NewRows([]string{"current_bookings"}).AddRow(4))

		n, err := s.IncrementBookings(context.Background(), "biz", "slot")
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("full", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("SET current_bookings = current_bookings + 1")).
			WillReturnRows(sqlmock.NewRows([]string{"current_bookings"}))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT current_bookings FROM calendar_events")).
			WithArgs("biz", "slot").
			WillReturnRows(sqlmock.NewRows([]string{"current_bookings"}).AddRow(5))

		n, err := s.IncrementBookings(context.Background(), "biz", "slot")
		assert.ErrorIs(t, err, store.ErrCapacity)
		assert.Equal(t, 5, n)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("SET current_bookings = current_bookings + 1")).
			WillReturnRows(sqlmock.NewRows([]string{"current_bookings"}))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT current_bookings FROM calendar_events")).
			WillReturnRows(sqlmock.NewRows([]string{"current_bookings"}))

		_, err := s.IncrementBookings(context.Background(), "biz", "slot")
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestInsertSlotBooking(t *testing.T) {
	slot := model.Event{
		BusinessID: "biz",
		Title:      "Delivery: Asha",
		Type:       model.TypeDeliverySlot,
		Start:      fixedNow,
		Status:     model.StatusConfirmed,
		Booking:    &model.BookingDetails{CustomerName: "Asha", MaxBookings: 1, CurrentBookings: 1},
	}
	lockKey := "slot:biz:2026-01-10T12:00:00Z"

	t.Run("inserted", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
			WithArgs(lockKey).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM calendar_events")).
			WithArgs("biz", "delivery_slot", fixedNow, "cancelled").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO calendar_events")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		got, err := s.InsertSlotBooking(context.Background(), slot, 2)
		require.NoError(t, err)
		assert.NotEmpty(t, got.ID)
		assert.Equal(t, "Asha", got.Booking.CustomerName)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("full", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("pg_advisory_xact_lock")).
			WithArgs(lockKey).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM calendar_events")).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectRollback()

		_, err := s.InsertSlotBooking(context.Background(), slot, 2)
		assert.ErrorIs(t, err, store.ErrCapacity)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unlimited skips the count", func(t *testing.T) {
		s, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("pg_advisory_xact_lock")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO calendar_events")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		_, err := s.InsertSlotBooking(context.Background(), slot, 0)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSlotTemplates(t *testing.T) {
	s, mock := newMock(t)
	fee := decimal.RequireFromString("4.50")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO delivery_slot_templates")).
		WithArgs(sqlmock.AnyArg(), "biz", 5, "14:00", "16:00", 5, true, `["north"]`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := s.InsertSlotTemplate(context.Background(), model.SlotTemplate{
		BusinessID: "biz", DayOfWeek: time.Friday, StartTime: "14:00", EndTime: "16:00",
		MaxBookings: 5, Active: true, DeliveryZones: []string{"north"}, DeliveryFee: &fee,
	})
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("FROM delivery_slot_templates WHERE business_id = $1")).
		WithArgs("biz").
		WillReturnRows(sqlmock.NewRows([]string{"id", "business_id", "day_of_week", "start_time", "end_time", "max_bookings", "is_active", "delivery_zones", "delivery_fee"}).
			AddRow("t1", "biz", 5, "14:00", "16:00", 5, true, []byte(`["north"]`), "4.50").
			AddRow("t2", "biz", 6, "10:00", "12:00", 0, false, nil, nil))

	got, err := s.ListSlotTemplates(context.Background(), "biz")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, time.Friday, got[0].DayOfWeek)
	assert.Equal(t, []string{"north"}, got[0].DeliveryZones)
	require.NotNil(t, got[0].DeliveryFee)
	assert.True(t, fee.Equal(*got[0].DeliveryFee))
	assert.Nil(t, got[1].DeliveryFee)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingsAndProducts(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO event_bookings")).
		WithArgs(sqlmock.AnyArg(), "biz", "slot", "Asha", "", "", "ord-1", "pending", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	b, err := s.InsertBooking(context.Background(), model.Booking{BusinessID: "biz", EventID: "slot", CustomerName: "Asha", OrderID: "ord-1"})
	require.NoError(t, err)
	assert.Equal(t, model.BookingPending, b.Status)

	mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE business_id = $1")).
		WithArgs("biz").
		WillReturnRows(sqlmock.NewRows([]string{"id", "business_id", "name", "current_stock"}).AddRow("p1", "biz", "Rice", 20))

	ps, err := s.ListProducts(context.Background(), "biz")
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, 20, ps[0].Stock)
	assert.NoError(t, mock.ExpectationsWereMet())
}
