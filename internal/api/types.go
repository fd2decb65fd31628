package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/jashmhta/hms-scheduling/internal/appointment"
	"github.com/jashmhta/hms-scheduling/internal/series"
	"github.com/jashmhta/hms-scheduling/internal/waitlist"
)

type ReserveRequest struct {
	ProviderID       string    `json:"provider_id"`
	PatientID        string    `json:"patient_id"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	ConsultationType string    `json:"consultation_type"`
	Priority         string    `json:"priority,omitempty"`
	BookingChannel   string    `json:"booking_channel,omitempty"`
}

type AppointmentResponse struct {
	ID               uuid.UUID  `json:"id"`
	PatientID        uuid.UUID  `json:"patient_id"`
	ProviderID       uuid.UUID  `json:"provider_id"`
	Start            time.Time  `json:"start"`
	End              time.Time  `json:"end"`
	Status           string     `json:"status"`
	Priority         string     `json:"priority"`
	ConsultationType string     `json:"consultation_type"`
	BookingChannel   string     `json:"booking_channel,omitempty"`
	SeriesID         *uuid.UUID `json:"series_id,omitempty"`
	RescheduleCount  int        `json:"reschedule_count"`
	RescheduledTo    *uuid.UUID `json:"rescheduled_to,omitempty"`
	RefundPercent    *int       `json:"refund_percent,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:               a.ID,
		PatientID:        a.PatientID,
		ProviderID:       a.ProviderID,
		Start:            a.StartTime,
		End:              a.EndTime,
		Status:           string(a.Status),
		Priority:         string(a.Priority),
		ConsultationType: string(a.ConsultationType),
		BookingChannel:   a.BookingChannel,
		SeriesID:         a.SeriesID,
		RescheduleCount:  a.RescheduleCount,
		RescheduledTo:    a.RescheduledTo,
		RefundPercent:    a.RefundPercent,
	}
}

type CancelRequest struct {
	ReasonCategory string `json:"reason_category"`
	ReasonText     string `json:"reason_text,omitempty"`
}

type CancelResponse struct {
	Appointment   AppointmentResponse `json:"appointment"`
	RefundPercent int                 `json:"refund_percent"`
}

type RescheduleRequest struct {
	NewStart time.Time `json:"new_start"`
	NewEnd   time.Time `json:"new_end"`
}

type CreateSeriesRequest struct {
	ProviderID       string         `json:"provider_id"`
	PatientID        string         `json:"patient_id"`
	Pattern          series.Pattern `json:"pattern"`
	FirstStart       time.Time      `json:"first_start"`
	FirstEnd         time.Time      `json:"first_end"`
	ConsultationType string         `json:"consultation_type"`
	Priority         string         `json:"priority,omitempty"`
}

type SeriesFailure struct {
	Date   time.Time `json:"date"`
	Reason string    `json:"reason"`
}

type SeriesResponse struct {
	SeriesID uuid.UUID             `json:"series_id"`
	Created  []AppointmentResponse `json:"created"`
	Failed   []SeriesFailure       `json:"failed,omitempty"`
}

type JoinWaitlistRequest struct {
	ProviderID       string                     `json:"provider_id"`
	PatientID        string                     `json:"patient_id"`
	ConsultationType string                     `json:"consultation_type,omitempty"`
	DateFrom         time.Time                  `json:"date_from"`
	DateTo           time.Time                  `json:"date_to"`
	Windows          []waitlist.TimeOfDayWindow `json:"windows,omitempty"`
	Urgency          string                     `json:"urgency,omitempty"`
}

type WaitlistEntryResponse struct {
	ID               uuid.UUID  `json:"id"`
	ProviderID       uuid.UUID  `json:"provider_id"`
	PatientID        uuid.UUID  `json:"patient_id"`
	Status           string     `json:"status"`
	Urgency          string     `json:"urgency"`
	Position         int        `json:"position"`
	OfferedStart     *time.Time `json:"offered_start,omitempty"`
	OfferedEnd       *time.Time `json:"offered_end,omitempty"`
	ResponseDeadline *time.Time `json:"response_deadline,omitempty"`
	OfferCount       int        `json:"offer_count"`
}

func toEntryResponse(e *waitlist.Entry) WaitlistEntryResponse {
	return WaitlistEntryResponse{
		ID:               e.ID,
		ProviderID:       e.ProviderID,
		PatientID:        e.PatientID,
		Status:           string(e.Status),
		Urgency:          string(e.Urgency),
		Position:         e.Position,
		OfferedStart:     e.OfferedStart,
		OfferedEnd:       e.OfferedEnd,
		ResponseDeadline: e.ResponseDeadline,
		OfferCount:       e.OfferCount,
	}
}

type RespondToOfferRequest struct {
	Accept bool `json:"accept"`
}

type RespondToOfferResponse struct {
	Entry       WaitlistEntryResponse `json:"entry"`
	Appointment *AppointmentResponse  `json:"appointment,omitempty"`
}
