package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jashmhta/hms-scheduling/internal/appointment"
	"github.com/jashmhta/hms-scheduling/internal/cancellation"
	"github.com/jashmhta/hms-scheduling/internal/redisclient"
	"github.com/jashmhta/hms-scheduling/internal/schedule"
	"github.com/jashmhta/hms-scheduling/internal/series"
	"github.com/jashmhta/hms-scheduling/internal/slot"
	"github.com/jashmhta/hms-scheduling/internal/waitlist"
)

func availabilityHandler(gen *slot.Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		providerID, err := uuid.Parse(q.Get("provider_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}

		from, err := time.Parse(time.RFC3339, q.Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC3339")
			return
		}
		to, err := time.Parse(time.RFC3339, q.Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be RFC3339")
			return
		}

		filters := slot.Filters{
			ConsultationType: schedule.ConsultationType(q.Get("consultation_type")),
			IncludeFull:      q.Get("include_full") == "true",
		}
		if v := q.Get("prefer_time"); v != "" {
			pt, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_prefer_time", "prefer_time must be RFC3339")
				return
			}
			filters.PreferTime = &pt
		}

		slots, err := gen.GenerateSlots(r.Context(), providerID, from, to, filters)
		if err != nil {
			handleAvailabilityError(w, err)
			return
		}
		if slots == nil {
			slots = []slot.AvailabilitySlot{}
		}

		writeJSON(w, http.StatusOK, slots)
	}
}

func reserveHandler(engine *appointment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReserveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		channel := req.BookingChannel
		if channel == "" {
			channel = "api"
		}

		appt, err := engine.Reserve(r.Context(), appointment.ReserveRequest{
			ProviderID:       providerID,
			PatientID:        patientID,
			Start:            req.Start,
			End:              req.End,
			ConsultationType: schedule.ConsultationType(req.ConsultationType),
			Priority:         appointment.Priority(req.Priority),
			BookingChannel:   channel,
			ActorID:          actorID(r),
		})
		if err != nil {
			handleEngineError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(engine *appointment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		appt, err := engine.Get(r.Context(), id)
		if err != nil {
			handleEngineError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(engine *appointment.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(r.URL.Query().Get("patient_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		appts, err := engine.ListByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			handleEngineError(w, err)
			return
		}

		out := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			out = append(out, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// transitionHandler covers confirm, checkin, begin, complete and no-show,
// which differ only in the engine method invoked.
func transitionHandler(fn func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		appt, err := fn(r, id)
		if err != nil {
			handleEngineError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelHandler(mgr *cancellation.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req CancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.ReasonCategory == "" {
			req.ReasonCategory = "unspecified"
		}

		res, err := mgr.Cancel(r.Context(), id, req.ReasonCategory, req.ReasonText, actorID(r))
		if err != nil {
			handleEngineError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, CancelResponse{
			Appointment:   toAppointmentResponse(res.Appointment),
			RefundPercent: res.RefundPercent,
		})
	}
}

func rescheduleHandler(mgr *cancellation.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := mgr.Reschedule(r.Context(), id, req.NewStart, req.NewEnd, actorID(r))
		if err != nil {
			handleEngineError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func createSeriesHandler(mgr *series.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSeriesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		result, err := mgr.CreateSeries(r.Context(), series.CreateSeriesRequest{
			ProviderID:       providerID,
			PatientID:        patientID,
			Pattern:          req.Pattern,
			FirstStart:       req.FirstStart,
			FirstEnd:         req.FirstEnd,
			ConsultationType: schedule.ConsultationType(req.ConsultationType),
			Priority:         appointment.Priority(req.Priority),
			BookingChannel:   "api",
			ActorID:          actorID(r),
		})
		if err != nil {
			if result != nil && len(result.Failed) > 0 {
				// Every occurrence failed; answer with the enumerated reasons.
				writeJSON(w, http.StatusConflict, toSeriesResponse(result))
				return
			}
			handleSeriesError(w, err)
			return
		}

		status := http.StatusCreated
		if len(result.Failed) > 0 {
			status = http.StatusMultiStatus
		}
		writeJSON(w, status, toSeriesResponse(result))
	}
}

func toSeriesResponse(result *series.Result) SeriesResponse {
	resp := SeriesResponse{SeriesID: result.SeriesID}
	for i := range result.Created {
		resp.Created = append(resp.Created, toAppointmentResponse(&result.Created[i]))
	}
	for _, f := range result.Failed {
		resp.Failed = append(resp.Failed, SeriesFailure{Date: f.Date, Reason: f.Reason})
	}
	return resp
}

func listSeriesHandler(mgr *series.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		appts, err := mgr.ListOccurrences(r.Context(), id)
		if err != nil {
			handleEngineError(w, err)
			return
		}

		out := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			out = append(out, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func joinWaitlistHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinWaitlistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		entry, err := svc.Join(r.Context(), waitlist.JoinRequest{
			ProviderID:       providerID,
			PatientID:        patientID,
			ConsultationType: schedule.ConsultationType(req.ConsultationType),
			DateFrom:         req.DateFrom,
			DateTo:           req.DateTo,
			Windows:          req.Windows,
			Urgency:          appointment.Priority(req.Urgency),
		})
		if err != nil {
			handleWaitlistError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toEntryResponse(entry))
	}
}

func respondToOfferHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req RespondToOfferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		entry, appt, err := svc.RespondToOffer(r.Context(), id, req.Accept)
		if err != nil {
			handleWaitlistError(w, err)
			return
		}

		resp := RespondToOfferResponse{Entry: toEntryResponse(entry)}
		if appt != nil {
			a := toAppointmentResponse(appt)
			resp.Appointment = &a
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func cancelWaitlistHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		entry, err := svc.CancelEntry(r.Context(), id)
		if err != nil {
			handleWaitlistError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toEntryResponse(entry))
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleAvailabilityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, slot.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
	case errors.Is(err, schedule.ErrTemplateNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// handleEngineError maps the engine's error taxonomy so the caller can tell
// capacity races from policy violations from sequencing bugs.
func handleEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrProviderNotFound),
		errors.Is(err, schedule.ErrTemplateNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, series.ErrSeriesNotFound):
		writeError(w, http.StatusNotFound, "series_not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, appointment.ErrWindowBusy),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "window_busy", "window is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, appointment.ErrOutOfPolicyWindow):
		writeError(w, http.StatusUnprocessableEntity, "out_of_policy_window", err.Error())
	case errors.Is(err, appointment.ErrUnsupportedConsultationType):
		writeError(w, http.StatusUnprocessableEntity, "unsupported_consultation_type", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleSeriesError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, series.ErrUnknownFrequency),
		errors.Is(err, series.ErrNoEndCondition):
		writeError(w, http.StatusBadRequest, "invalid_pattern", err.Error())
	default:
		handleEngineError(w, err)
	}
}

func handleWaitlistError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, waitlist.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "waitlist_entry_not_found", err.Error())
	case errors.Is(err, waitlist.ErrInvalidDateRange):
		writeError(w, http.StatusBadRequest, "invalid_date_range", err.Error())
	case errors.Is(err, waitlist.ErrNotOffered),
		errors.Is(err, waitlist.ErrEntryNotActive):
		writeError(w, http.StatusConflict, "entry_not_offered", err.Error())
	case errors.Is(err, waitlist.ErrOfferExpired):
		writeError(w, http.StatusGone, "offer_expired", err.Error())
	default:
		handleEngineError(w, err)
	}
}
