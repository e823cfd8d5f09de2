package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/availability"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/booking"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/lifecycle"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
)

type bookRequest struct {
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
	// StartTime is RFC 3339. Date and Time ("2026-01-28", "09:30") are read in the
	// clinic location when StartTime is empty.
	StartTime string `json:"start_time"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Type      string `json:"type"`
	Notes     string `json:"notes"`
}

type prescriptionBody struct {
	Text    string `json:"text"`
	FileRef string `json:"file_ref,omitempty"`
}

type appointmentResponse struct {
	ID               string            `json:"id"`
	DoctorID         string            `json:"doctor_id"`
	PatientID        string            `json:"patient_id"`
	StartTime        string            `json:"start_time"`
	EndTime          string            `json:"end_time"`
	DurationMinutes  int               `json:"duration_minutes"`
	Type             string            `json:"type"`
	Status           string            `json:"status"`
	ConsultationFee  int64             `json:"consultation_fee"`
	Currency         string            `json:"currency"`
	Notes            string            `json:"notes,omitempty"`
	Prescription     *prescriptionBody `json:"prescription,omitempty"`
	SessionStartedAt string            `json:"session_started_at,omitempty"`
	CancelledBy      string            `json:"cancelled_by,omitempty"`
	CancelReason     string            `json:"cancel_reason,omitempty"`
	StatusChangedAt  string            `json:"status_changed_at,omitempty"`
	CreatedAt        string            `json:"created_at,omitempty"`
}

func toAppointmentResponse(a model.Appointment) appointmentResponse {
	resp := appointmentResponse{
		ID:              a.ID,
		DoctorID:        a.DoctorID,
		PatientID:       a.PatientID,
		StartTime:       a.StartTime.Format(time.RFC3339),
		EndTime:         a.EndTime().Format(time.RFC3339),
		DurationMinutes: a.DurationMinutes,
		Type:            string(a.Type),
		Status:          string(a.Status),
		ConsultationFee: a.ConsultationFee,
		Currency:        a.Currency,
		Notes:           a.Notes,
		CancelledBy:     a.CancelledBy,
		CancelReason:    a.CancelReason,
	}
	if a.Prescription != nil {
		resp.Prescription = &prescriptionBody{Text: a.Prescription.Text, FileRef: a.Prescription.FileRef}
	}
	if a.SessionStartedAt != nil {
		resp.SessionStartedAt = a.SessionStartedAt.UTC().Format(time.RFC3339)
	}
	if !a.StatusChangedAt.IsZero() {
		resp.StatusChangedAt = a.StatusChangedAt.UTC().Format(time.RFC3339)
	}
	if !a.CreatedAt.IsZero() {
		resp.CreatedAt = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// Book reserves a slot. Patients always book for themselves; admins name the patient.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req bookRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	patientID := strings.TrimSpace(req.PatientID)
	switch actor.Role {
	case model.RolePatient:
		if patientID != "" && patientID != actor.ID {
			h.writeError(w, r, errForbidden)
			return
		}
		patientID = actor.ID
	case model.RoleAdmin:
	default:
		h.writeError(w, r, errForbidden)
		return
	}

	start, err := h.parseStart(req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	typ, err := model.ParseAppointmentType(req.Type)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	appt, err := h.guard.Reserve(r.Context(), booking.Request{
		DoctorID:  strings.TrimSpace(req.DoctorID),
		PatientID: patientID,
		Start:     start,
		Type:      typ,
		Notes:     req.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *Handler) parseStart(req bookRequest) (time.Time, error) {
	loc := h.availability.Location()
	if raw := strings.TrimSpace(req.StartTime); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, model.Invalid("start_time", "must be RFC 3339")
		}
		return t.In(loc), nil
	}
	date, err := availability.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		return time.Time{}, model.Invalid("date", err.Error())
	}
	tod, err := availability.ParseTimeOfDay(strings.TrimSpace(req.Time))
	if err != nil {
		return time.Time{}, model.Invalid("time", err.Error())
	}
	return date.At(tod, loc), nil
}

// ListAppointments filters by doctor_id, patient_id or status. Doctors and patients
// only ever see their own appointments.
func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	f := model.AppointmentFilter{
		DoctorID:  strings.TrimSpace(q.Get("doctor_id")),
		PatientID: strings.TrimSpace(q.Get("patient_id")),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		if f.Status, err = model.ParseStatus(raw); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			h.writeError(w, r, model.Invalid("limit", "must be between 1 and 200"))
			return
		}
		f.Limit = n
	}

	switch actor.Role {
	case model.RoleDoctor:
		f.DoctorID = actor.ID
	case model.RolePatient:
		f.PatientID = actor.ID
	}

	appts, err := h.store.ListAppointments(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := appointmentID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	appt, err := h.store.GetAppointment(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !participant(actor, appt) {
		h.writeError(w, r, model.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

type transitionRequest struct {
	Status       string            `json:"status"`
	Prescription *prescriptionBody `json:"prescription"`
	Reason       string            `json:"reason"`
}

func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := appointmentID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	to, err := model.ParseStatus(req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var rx *model.Prescription
	if req.Prescription != nil {
		rx = &model.Prescription{
			Text:    strings.TrimSpace(req.Prescription.Text),
			FileRef: strings.TrimSpace(req.Prescription.FileRef),
		}
	}

	appt, err := h.machine.Transition(r.Context(), lifecycle.Request{
		AppointmentID: id,
		To:            to,
		Actor:         actor,
		Prescription:  rx,
		Reason:        req.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handler) SessionStart(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := appointmentID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	appt, err := h.machine.RecordSessionStart(r.Context(), id, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func appointmentID(r *http.Request) (string, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "appointmentID"))
	if _, err := uuid.Parse(raw); err != nil {
		return "", model.Invalid("appointment_id", "must be a uuid")
	}
	return raw, nil
}

func participant(actor model.Actor, appt model.Appointment) bool {
	switch actor.Role {
	case model.RoleAdmin:
		return true
	case model.RoleDoctor:
		return appt.DoctorID == actor.ID
	case model.RolePatient:
		return appt.PatientID == actor.ID
	default:
		return false
	}
}
