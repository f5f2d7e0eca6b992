package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/healthcure/clinic/internal/domain"
	"github.com/healthcure/clinic/internal/http/middleware"
	"github.com/healthcure/clinic/internal/http/response"
	"github.com/healthcure/clinic/internal/service"
)

// ClinicalHandler serves the role-scoped record surfaces. The owning
// principal comes from the {id} path parameter: the ownership middleware has
// already pinned it to the session for owner roles, and for an admin it names
// the resource being acted on. The session identifies the actor for audit.
type ClinicalHandler struct {
	clinical *service.ClinicalService
}

func NewClinicalHandler(clinical *service.ClinicalService) *ClinicalHandler {
	return &ClinicalHandler{clinical: clinical}
}

// Patient surface.

func (h *ClinicalHandler) PatientAppointments(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)
	patientID, ok := pathID(r, "id")
	if !ok {
		response.Error(w, http.StatusBadRequest, "invalid patient id")
		return
	}

	appts, err := h.clinical.PatientAppointments(r.Context(), session.UserID, patientID)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	if appts == nil {
		appts = []domain.Appointment{}
	}
	response.JSON(w, http.StatusOK, map[string]any{"appointments": appts})
}

func (h *ClinicalHandler) RequestAppointment(w http.ResponseWriter, r *http.Request) {
	patientID, ok := pathID(r, "id")
	if !ok {
		response.Error(w, http.StatusBadRequest, "invalid patient id")
		return
	}

	var req domain.AppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	appt, err := h.clinical.RequestAppointment(r.Context(), patientID, &req)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, map[string]any{"appointment": appt})
}

// Doctor surface.

func (h *ClinicalHandler) DoctorAppointments(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)
	doctorID, ok := pathID(r, "id")
	if !ok {
		response.Error(w, http.StatusBadRequest, "invalid doctor id")
		return
	}

	appts, err := h.clinical.DoctorAppointments(r.Context(), session.UserID, doctorID)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	if appts == nil {
		appts = []domain.Appointment{}
	}
	response.JSON(w, http.StatusOK, map[string]any{"appointments": appts})
}

func (h *ClinicalHandler) AcceptAppointment(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := pathID(r, "id")
	if !ok {
		response.Error(w, http.StatusBadRequest, "invalid doctor id")
		return
	}
	apptID, ok := pathID(r, "appointmentID")
	if !ok {
		response.Error(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	if err := h.clinical.AcceptAppointment(r.Context(), doctorID, apptID); err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"status": domain.AppointmentAccepted})
}

func (h *ClinicalHandler) AssignAppointment(w http.ResponseWriter, r *http.Request) {
	doctorID, ok := pathID(r, "id")
	if !ok {
		response.Error(w, http.StatusBadRequest, "invalid doctor id")
		return
	}
	apptID, ok := pathID(r, "appointmentID")
	if !ok {
		response.Error(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	if err := h.clinical.AssignToNurse(r.Context(), doctorID, apptID); err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"status": domain.AppointmentAssigned})
}

func (h *ClinicalHandler) RecordDiagnosis(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)
	doctorID, ok := pathID(r, "id")
	if !ok {
		response.Error(w, http.StatusBadRequest, "invalid doctor id")
		return
	}
	apptID, ok := pathID(r, "appointmentID")
	if !ok {
		response.Error(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	var req domain.DiagnosisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.clinical.RecordDiagnosis(r.Context(), session.UserID, doctorID, apptID, &req); err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, map[string]any{"recorded": true})
}

func (h *ClinicalHandler) DoctorPatients(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)
	patients, err := h.clinical.ListPatients(r.Context(), session.UserID)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"patients": patients})
}

// Nurse surface.

func (h *ClinicalHandler) NurseAppointments(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)
	nurseID, ok := pathID(r, "id")
	if !ok {
		response.Error(w, http.StatusBadRequest, "invalid nurse id")
		return
	}

	appts, err := h.clinical.NurseAppointments(r.Context(), session.UserID, nurseID)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	if appts == nil {
		appts = []domain.Appointment{}
	}
	response.JSON(w, http.StatusOK, map[string]any{"appointments": appts})
}

func (h *ClinicalHandler) RecordMedication(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)
	nurseID, ok := pathID(r, "id")
	if !ok {
		response.Error(w, http.StatusBadRequest, "invalid nurse id")
		return
	}

	var req domain.MedicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.clinical.RecordMedication(r.Context(), session.UserID, nurseID, &req); err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, map[string]any{"recorded": true})
}
