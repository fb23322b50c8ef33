package grpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"reserveit/backend/internal/domain"
	"reserveit/backend/internal/resource"
	"reserveit/backend/internal/service/reservations"
)

type ReservationsServer struct {
	svc reservationsService
	log *slog.Logger
}

type reservationsService interface {
	Submit(ctx context.Context, in reservations.SubmitInput) (domain.Reservation, error)
	Cancel(ctx context.Context, identity string) (domain.Reservation, error)
	Reschedule(ctx context.Context, in reservations.RescheduleInput) (domain.Reservation, error)
	Get(ctx context.Context, identity string) (domain.Reservation, error)
	Catalog() *resource.Catalog
}

func NewReservationsServer(svc reservationsService, log *slog.Logger) *ReservationsServer {
	if log == nil {
		log = slog.Default()
	}
	return &ReservationsServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.reservations")),
	}
}

func (s *ReservationsServer) Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "Submit"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	identity := stringField(req, "identity")
	start, end, err := intervalFields(req)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_times"), slog.String("identity", identity), slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	r, err := s.svc.Submit(ctx, reservations.SubmitInput{
		Identity:   identity,
		ResourceID: stringField(req, "resource_id"),
		Start:      start,
		End:        end,
		Shareable:  boolField(req, "shareable"),
		Extensions: stringMapField(req, "fields"),
	})
	if err != nil {
		return nil, s.fail(log, "submit", identity, err)
	}

	log.Info(
		"reservation submitted",
		slog.String("identity", r.Identity),
		slog.String("resource_id", r.ResourceID),
		slog.String("calendar_id", r.CalendarID),
		slog.Time("start_time", r.StartTime),
		slog.Time("end_time", r.EndTime),
	)
	return reservationReply(r)
}

func (s *ReservationsServer) Cancel(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "Cancel"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	identity := stringField(req, "identity")

	r, err := s.svc.Cancel(ctx, identity)
	if err != nil {
		return nil, s.fail(log, "cancel", identity, err)
	}

	log.Info("reservation cancelled", slog.String("identity", r.Identity), slog.String("event_id", r.EventID))
	return reservationReply(r)
}

func (s *ReservationsServer) Reschedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "Reschedule"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	identity := stringField(req, "identity")
	start, end, err := intervalFields(req)
	if err != nil {
		log.Warn("invalid request", slog.String("reason", "bad_times"), slog.String("identity", identity), slog.Any("err", err))
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	r, err := s.svc.Reschedule(ctx, reservations.RescheduleInput{
		Identity:   identity,
		Start:      start,
		End:        end,
		Shareable:  boolField(req, "shareable"),
		Extensions: stringMapField(req, "fields"),
	})
	if err != nil {
		return nil, s.fail(log, "reschedule", identity, err)
	}

	log.Info(
		"reservation rescheduled",
		slog.String("identity", r.Identity),
		slog.String("calendar_id", r.CalendarID),
		slog.Time("start_time", r.StartTime),
		slog.Time("end_time", r.EndTime),
	)
	return reservationReply(r)
}

func (s *ReservationsServer) GetReservation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	log := s.log.With(slog.String("rpc", "GetReservation"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	identity := stringField(req, "identity")

	r, err := s.svc.Get(ctx, identity)
	if err != nil {
		return nil, s.fail(log, "get", identity, err)
	}
	return reservationReply(r)
}

func (s *ReservationsServer) ListResources(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	defs := s.svc.Catalog().All()
	out := make([]any, 0, len(defs))
	for _, d := range defs {
		out = append(out, resourceValue(d))
	}

	s.log.Debug("resources listed", slog.String("rpc", "ListResources"), slog.Int("count", len(out)))
	reply, err := structpb.NewStruct(map[string]any{"resources": out})
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return reply, nil
}

// fail logs err at a level matching its kind and converts it to a status error
// carrying the user-facing message.
func (s *ReservationsServer) fail(log *slog.Logger, op, identity string, err error) error {
	code := codeFor(err)
	attrs := []any{slog.String("op", op), slog.String("identity", identity), slog.Any("err", err)}

	switch code {
	case codes.Internal:
		log.Error("reservation request failed", attrs...)
		return status.Error(codes.Internal, "internal error")
	case codes.Unavailable:
		log.Warn("calendar service failed", attrs...)
	case codes.InvalidArgument:
		log.Warn("invalid request", attrs...)
	default:
		log.Info("reservation request refused", attrs...)
	}
	return status.Error(code, reservations.UserMessage(err))
}

func codeFor(err error) codes.Code {
	var vErr *reservations.ValidationError
	switch {
	case errors.As(err, &vErr):
		return codes.InvalidArgument
	case errors.Is(err, reservations.ErrAlreadyReserved):
		return codes.AlreadyExists
	case errors.Is(err, reservations.ErrNoAvailability):
		return codes.FailedPrecondition
	case errors.Is(err, reservations.ErrNotReserved):
		return codes.NotFound
	case errors.Is(err, reservations.ErrConcurrentUpdate):
		return codes.Aborted
	case errors.Is(err, reservations.ErrExternalService):
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

func stringField(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

func boolField(req *structpb.Struct, key string) bool {
	return req.GetFields()[key].GetBoolValue()
}

func stringMapField(req *structpb.Struct, key string) map[string]string {
	nested := req.GetFields()[key].GetStructValue()
	if nested == nil {
		return nil
	}
	out := make(map[string]string, len(nested.GetFields()))
	for k, v := range nested.GetFields() {
		if sv, ok := v.GetKind().(*structpb.Value_StringValue); ok {
			out[k] = sv.StringValue
		}
	}
	return out
}

func intervalFields(req *structpb.Struct) (time.Time, time.Time, error) {
	startRaw, endRaw := stringField(req, "start"), stringField(req, "end")
	if startRaw == "" || endRaw == "" {
		return time.Time{}, time.Time{}, errors.New("start and end are required")
	}
	start, err := time.Parse(time.RFC3339, startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("start must be an RFC 3339 timestamp")
	}
	end, err := time.Parse(time.RFC3339, endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, errors.New("end must be an RFC 3339 timestamp")
	}
	return start, end, nil
}

func reservationReply(r domain.Reservation) (*structpb.Struct, error) {
	v := map[string]any{
		"identity":      r.Identity,
		"resource_id":   r.ResourceID,
		"calendar_id":   r.CalendarID,
		"event_id":      r.EventID,
		"title":         r.Title,
		"start":         r.StartTime.UTC().Format(time.RFC3339),
		"end":           r.EndTime.UTC().Format(time.RFC3339),
		"shareable":     r.Shareable,
		"reminder_sent": r.ReminderSent,
	}
	if r.RemindAt != nil {
		v["remind_at"] = r.RemindAt.UTC().Format(time.RFC3339)
	}
	reply, err := structpb.NewStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return reply, nil
}

func resourceValue(d *resource.Definition) map[string]any {
	cals := make([]any, 0, len(d.Calendars))
	for _, c := range d.Calendars {
		cals = append(cals, map[string]any{"id": c.ID, "label": c.Label, "color": c.Color})
	}
	fields := make([]any, 0, len(d.Fields))
	for _, f := range d.Fields {
		fields = append(fields, map[string]any{
			"name":     f.Name,
			"label":    f.Label,
			"type":     f.Type,
			"required": f.Required,
			"pattern":  f.Pattern,
			"title":    f.Title,
		})
	}
	return map[string]any{
		"id":                 d.ID,
		"name":               d.Name,
		"description":        d.Description,
		"emoji":              d.Emoji,
		"calendars":          cals,
		"calendars_shown":    d.CalendarsShown,
		"day_start":          d.DayStart.String(),
		"day_end":            d.DayEnd.String(),
		"increment_minutes":  d.IncrementMinutes,
		"max_minutes":        d.MaxDurationMinutes,
		"max_days_ahead":     d.MaxDaysAhead,
		"reminder_minutes":   d.ReminderLeadMinutes,
		"allow_shareable":    d.AllowShareable,
		"allow_end_next_day": d.AllowEndNextDay,
		"timezone":           d.Location.String(),
		"fields":             fields,
	}
}
