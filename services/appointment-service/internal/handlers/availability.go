package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/availability"
	"github.com/md-rashed-zaman/docbook/services/appointment-service/internal/model"
)

type windowRequest struct {
	Weekday int                    `json:"weekday"`
	Start   availability.TimeOfDay `json:"start"`
	End     availability.TimeOfDay `json:"end"`
	Active  *bool                  `json:"active"`
}

type windowResponse struct {
	ID        string                 `json:"id"`
	DoctorID  string                 `json:"doctor_id"`
	Weekday   int                    `json:"weekday"`
	Start     availability.TimeOfDay `json:"start"`
	End       availability.TimeOfDay `json:"end"`
	Active    bool                   `json:"active"`
	UpdatedAt string                 `json:"updated_at,omitempty"`
}

func toWindowResponse(w availability.Window) windowResponse {
	resp := windowResponse{
		ID:       w.ID,
		DoctorID: w.DoctorID,
		Weekday:  int(w.Weekday),
		Start:    w.Start,
		End:      w.End,
		Active:   w.Active,
	}
	if !w.UpdatedAt.IsZero() {
		resp.UpdatedAt = w.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (req windowRequest) window(doctorID, id string) availability.Window {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return availability.Window{
		ID:       id,
		DoctorID: doctorID,
		Weekday:  availability.Weekday(req.Weekday),
		Start:    req.Start,
		End:      req.End,
		Active:   active,
	}
}

// ListSlots answers GET /doctors/{doctorID}/slots?date=YYYY-MM-DD[&increment_minutes=N].
func (h *Handler) ListSlots(w http.ResponseWriter, r *http.Request) {
	doctorID := strings.TrimSpace(chi.URLParam(r, "doctorID"))
	date, err := availability.ParseDate(strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		h.writeError(w, r, model.Invalid("date", err.Error()))
		return
	}
	increment := h.increment
	if raw := strings.TrimSpace(r.URL.Query().Get("increment_minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 5 || n > 240 {
			h.writeError(w, r, model.Invalid("increment_minutes", "must be between 5 and 240"))
			return
		}
		increment = n
	}

	slots, err := h.availability.ListSlots(r.Context(), doctorID, date, increment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if slots == nil {
		slots = []availability.TimeOfDay{}
	}
	writeJSON(w, http.StatusOK, slots)
}

func (h *Handler) ListWindows(w http.ResponseWriter, r *http.Request) {
	windows, err := h.availability.ListWindows(r.Context(), chi.URLParam(r, "doctorID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]windowResponse, 0, len(windows))
	for _, win := range windows {
		out = append(out, toWindowResponse(win))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateWindow(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.managedDoctor(w, r)
	if !ok {
		return
	}
	var req windowRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	created, err := h.availability.CreateWindow(r.Context(), req.window(doctorID, ""))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWindowResponse(created))
}

func (h *Handler) UpdateWindow(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.managedDoctor(w, r)
	if !ok {
		return
	}
	var req windowRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	updated, err := h.availability.UpdateWindow(r.Context(), req.window(doctorID, chi.URLParam(r, "windowID")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toWindowResponse(updated))
}

func (h *Handler) DeleteWindow(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.managedDoctor(w, r)
	if !ok {
		return
	}
	if err := h.availability.DeleteWindow(r.Context(), doctorID, chi.URLParam(r, "windowID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type settingsRequest struct {
	ConsultationFee    int64  `json:"consultation_fee"`
	Currency           string `json:"currency"`
	AppointmentMinutes int    `json:"appointment_minutes"`
	Email              string `json:"email"`
}

type settingsResponse struct {
	DoctorID           string `json:"doctor_id"`
	ConsultationFee    int64  `json:"consultation_fee"`
	Currency           string `json:"currency"`
	AppointmentMinutes int    `json:"appointment_minutes"`
	Email              string `json:"email,omitempty"`
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	s, ok, err := h.store.DoctorSettings(r.Context(), doctorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !ok {
		s = model.DoctorSettings{DoctorID: doctorID}
	}
	s = h.guard.Defaults().Apply(s)
	resp := settingsResponse{
		DoctorID:           doctorID,
		ConsultationFee:    s.ConsultationFee,
		Currency:           s.Currency,
		AppointmentMinutes: s.AppointmentMinutes,
	}
	// The email is only shown to whoever manages the doctor.
	if actor, err := actorFrom(r); err == nil && canManageDoctor(actor, doctorID) {
		resp.Email = s.Email
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := h.managedDoctor(w, r)
	if !ok {
		return
	}
	var req settingsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	s := model.DoctorSettings{
		DoctorID:           doctorID,
		ConsultationFee:    req.ConsultationFee,
		Currency:           strings.ToUpper(strings.TrimSpace(req.Currency)),
		AppointmentMinutes: req.AppointmentMinutes,
		Email:              strings.TrimSpace(req.Email),
	}
	if err := validateSettings(s); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.store.UpsertDoctorSettings(r.Context(), s); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{
		DoctorID:           s.DoctorID,
		ConsultationFee:    s.ConsultationFee,
		Currency:           s.Currency,
		AppointmentMinutes: s.AppointmentMinutes,
		Email:              s.Email,
	})
}

func validateSettings(s model.DoctorSettings) error {
	if s.ConsultationFee < 0 {
		return model.Invalid("consultation_fee", "must not be negative")
	}
	if len(s.Currency) != 3 {
		return model.Invalid("currency", "must be an ISO 4217 code")
	}
	if s.AppointmentMinutes < 5 || s.AppointmentMinutes > 480 {
		return model.Invalid("appointment_minutes", "must be between 5 and 480")
	}
	if s.Email != "" {
		if err := validateEmail(s.Email); err != nil {
			return err
		}
	}
	return nil
}

// managedDoctor returns the path doctor id when the caller may manage it; otherwise
// it writes the error response.
func (h *Handler) managedDoctor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return "", false
	}
	doctorID := strings.TrimSpace(chi.URLParam(r, "doctorID"))
	if !canManageDoctor(actor, doctorID) {
		h.writeError(w, r, errForbidden)
		return "", false
	}
	return doctorID, true
}
