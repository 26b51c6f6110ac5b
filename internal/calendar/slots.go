package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storecal/internal/datemath"
	appLog "storecal/internal/log"
	"storecal/internal/model"
	"storecal/internal/notify"
	"storecal/internal/store"
)

// templateSlots generates the virtual delivery slots of one day. Current
// bookings are counted from stored delivery_slot rows starting at the slot's
// start; cancelled rows do not count.
func templateSlots(templates []model.SlotTemplate, day time.Time, booked []model.Event) []model.Occurrence {
	day = datemath.StartOfDay(day)
	var out []model.Occurrence
	for _, tpl := range templates {
		if !tpl.Active || tpl.DayOfWeek != day.Weekday() {
			continue
		}
		start, end, err := slotBounds(tpl, day)
		if err != nil {
			appLog.Error("calendar: skipping slot template with bad times", err, "id", tpl.ID)
			continue
		}

		count := 0
		for _, e := range booked {
			if store.SlotBooking(e, tpl.BusinessID, start) {
				count++
			}
		}

		t := tpl
		t.DeliveryZones = append([]string(nil), tpl.DeliveryZones...)
		id := model.DateOccurrenceID(tpl.ID, day)
		endCopy := end
		out = append(out, model.Occurrence{
			Event: model.Event{
				ID:         tpl.ID,
				BusinessID: tpl.BusinessID,
				Title:      fmt.Sprintf("Delivery %s-%s", tpl.StartTime, tpl.EndTime),
				Type:       model.TypeDeliverySlot,
				Start:      start,
				End:        &endCopy,
				Timezone:   day.Location().String(),
				Status:     model.StatusScheduled,
				IsPublic:   true,
				Booking:    &model.BookingDetails{MaxBookings: tpl.MaxBookings, CurrentBookings: count},
			},
			OccurrenceID: id,
			DisplayID:    id.String(),
			Virtual:      true,
			SlotTemplate: &t,
		})
	}
	return out
}

// slotBounds places the template's HH:MM range on day, in day's location.
func slotBounds(tpl model.SlotTemplate, day time.Time) (time.Time, time.Time, error) {
	s, err := time.Parse(formTimeLayout, tpl.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start_time %q: %w", tpl.StartTime, err)
	}
	e, err := time.Parse(formTimeLayout, tpl.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end_time %q: %w", tpl.EndTime, err)
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), s.Hour(), s.Minute(), 0, 0, day.Location())
	end := time.Date(day.Year(), day.Month(), day.Day(), e.Hour(), e.Minute(), 0, 0, day.Location())
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end_time %s is not after start_time %s", tpl.EndTime, tpl.StartTime)
	}
	return start, end, nil
}

// CreateSlotTemplate validates and stores a weekly delivery slot template.
func (s *Service) CreateSlotTemplate(ctx context.Context, tpl model.SlotTemplate) (model.SlotTemplate, error) {
	var errs model.ValidationErrors
	if tpl.BusinessID == "" {
		errs = append(errs, model.ValidationError{Field: "business_id", Msg: "required"})
	}
	if tpl.DayOfWeek < time.Sunday || tpl.DayOfWeek > time.Saturday {
		errs = append(errs, model.ValidationError{Field: "day_of_week", Msg: "must be between 0 and 6"})
	}
	if tpl.MaxBookings < 0 {
		errs = append(errs, model.ValidationError{Field: "max_bookings", Msg: "must not be negative"})
	}
	if tpl.DeliveryFee != nil && tpl.DeliveryFee.IsNegative() {
		errs = append(errs, model.ValidationError{Field: "delivery_fee", Msg: "must not be negative"})
	}
	if _, _, err := slotBounds(tpl, datemath.StartOfDay(s.now())); err != nil {
		errs = append(errs, model.ValidationError{Field: "end_time", Msg: err.Error()})
	}
	if len(errs) > 0 {
		return model.SlotTemplate{}, errs
	}

	created, err := s.store.InsertSlotTemplate(ctx, tpl)
	if err != nil {
		return model.SlotTemplate{}, &FetchError{Op: "insert slot template", Err: err}
	}
	s.publish(ctx, notify.TableSlotTemplates, created.BusinessID, notify.OpInsert, created.ID)
	return created, nil
}

func (s *Service) ListSlotTemplates(ctx context.Context, businessID string) ([]model.SlotTemplate, error) {
	templates, err := s.store.ListSlotTemplates(ctx, businessID)
	if err != nil {
		return nil, &FetchError{Op: "list slot templates", Err: err}
	}
	return templates, nil
}

// windowSlots generates template slots for every day of the window whose
// start lies inside it. rows are the stored events already fetched for the
// window and are used to count bookings.
func (s *Service) windowSlots(ctx context.Context, q Query, rows []model.Event) ([]model.Occurrence, error) {
	templates, err := s.store.ListSlotTemplates(ctx, q.BusinessID)
	if err != nil {
		return nil, &FetchError{Op: "list slot templates", Err: err}
	}
	if len(templates) == 0 {
		return nil, nil
	}

	var out []model.Occurrence
	first := datemath.StartOfDay(q.Window.Start.In(s.opts.Location))
	for day := first; day.Before(q.Window.End); day = datemath.AddDays(day, 1) {
		for _, o := range templateSlots(templates, day, rows) {
			if q.Window.Contains(o.Start) {
				out = append(out, o)
			}
		}
	}
	return out, nil
}

// SlotsForDate returns the annotated template slots of one calendar day.
func (s *Service) SlotsForDate(ctx context.Context, businessID string, date time.Time) ([]model.Occurrence, error) {
	day := datemath.StartOfDay(date.In(s.opts.Location))
	templates, err := s.store.ListSlotTemplates(ctx, businessID)
	if err != nil {
		return nil, &FetchError{Op: "list slot templates", Err: err}
	}
	booked, err := s.store.QueryEvents(ctx, store.EventFilter{
		BusinessID:  businessID,
		Types:       []model.EventType{model.TypeDeliverySlot},
		StartFrom:   day,
		StartBefore: datemath.AddDays(day, 1),
	})
	if err != nil {
		return nil, &FetchError{Op: "query booked slots", Err: err}
	}

	slots := templateSlots(templates, day, booked)
	s.annotate(ctx, businessID, slots, s.now())
	return slots, nil
}

// BookTemplateSlot stores a delivery_slot row for the customer at the slot
// template's time on date. The store counts the slot's bookings and inserts
// in one step, so concurrent bookings never exceed the template's capacity.
func (s *Service) BookTemplateSlot(ctx context.Context, businessID, templateID string, date time.Time, req BookingRequest) (model.Event, error) {
	if errs := checkStruct(s.validate, req); len(errs) > 0 {
		return model.Event{}, errs
	}
	templates, err := s.store.ListSlotTemplates(ctx, businessID)
	if err != nil {
		return model.Event{}, &FetchError{Op: "list slot templates", Err: err}
	}
	var tpl *model.SlotTemplate
	for i := range templates {
		if templates[i].ID == templateID {
			tpl = &templates[i]
			break
		}
	}
	if tpl == nil {
		return model.Event{}, &ResolutionError{ID: templateID, Reason: "no such slot template", Err: store.ErrNotFound}
	}

	day := datemath.StartOfDay(date.In(s.opts.Location))
	if !tpl.Active || tpl.DayOfWeek != day.Weekday() {
		return model.Event{}, model.ValidationErrors{{Field: "date", Msg: fmt.Sprintf("slot template is not offered on %s", day.Format(formDateLayout))}}
	}

	slots, err := s.SlotsForDate(ctx, businessID, day)
	if err != nil {
		return model.Event{}, err
	}
	var slot *model.Occurrence
	for i := range slots {
		if slots[i].OccurrenceID.ParentID == tpl.ID {
			slot = &slots[i]
			break
		}
	}
	if slot == nil {
		return model.Event{}, &ResolutionError{ID: templateID, Reason: "slot template has invalid times"}
	}
	if slot.Availability != nil && !slot.Availability.Available {
		return model.Event{}, ErrSlotFull
	}

	ev := slot.Event.Clone()
	ev.ID = ""
	ev.Title = "Delivery: " + req.CustomerName
	ev.Status = model.StatusConfirmed
	ev.IsPublic = false
	ev.Booking = &model.BookingDetails{
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		CustomerEmail:   req.CustomerEmail,
		OrderID:         req.OrderID,
		MaxBookings:     1,
		CurrentBookings: 1,
	}
	created, err := s.store.InsertSlotBooking(ctx, ev, tpl.MaxBookings)
	if errors.Is(err, store.ErrCapacity) {
		return model.Event{}, ErrSlotFull
	}
	if err != nil {
		return model.Event{}, &FetchError{Op: "insert slot booking", Err: err}
	}

	b, err := s.store.InsertBooking(ctx, model.Booking{
		BusinessID:    businessID,
		EventID:       created.ID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		OrderID:       req.OrderID,
		Status:        model.BookingConfirmed,
	})
	if err != nil {
		return model.Event{}, &FetchError{Op: "insert booking", Err: err}
	}
	appLog.Info("calendar: template slot booked", "template_id", tpl.ID, "event_id", created.ID, "booking_id", b.ID)
	s.publish(ctx, notify.TableEvents, businessID, notify.OpInsert, created.ID)
	s.publish(ctx, notify.TableBookings, businessID, notify.OpInsert, b.ID)
	return created, nil
}
