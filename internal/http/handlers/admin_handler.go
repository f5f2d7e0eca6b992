package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/healthcure/clinic/internal/domain"
	"github.com/healthcure/clinic/internal/http/middleware"
	"github.com/healthcure/clinic/internal/http/response"
	"github.com/healthcure/clinic/internal/repo/postgres"
	"github.com/healthcure/clinic/internal/service"
)

// AdminHandler serves the admin surface: user management, the patient
// roster, and audit log review. Routing guarantees every caller here is an
// authenticated admin.
type AdminHandler struct {
	auth     *service.AuthService
	clinical *service.ClinicalService
	auditLog postgres.AuditRepository
}

func NewAdminHandler(auth *service.AuthService, clinical *service.ClinicalService, auditLog postgres.AuditRepository) *AdminHandler {
	return &AdminHandler{auth: auth, clinical: clinical, auditLog: auditLog}
}

func pageParams(r *http.Request) (limit, offset int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 50
	}
	return limit, (page - 1) * limit
}

func pathID(r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	return id, err == nil && id > 0
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	users, err := h.auth.ListUsers(r.Context(), limit, offset)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}

	infos := make([]domain.UserInfo, 0, len(users))
	for i := range users {
		infos = append(infos, *users[i].ToUserInfo())
	}
	response.JSON(w, http.StatusOK, map[string]any{"users": infos})
}

// CreateUser may create any role, including staff and other admins.
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)

	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.auth.CreateUser(r.Context(), session.UserID, &req)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, http.StatusCreated, map[string]any{"user": user.ToUserInfo()})
}

func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		response.Error(w, http.StatusBadRequest, "invalid user id")
		return
	}
	user, err := h.auth.GetUser(r.Context(), id)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"user": user.ToUserInfo()})
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)
	id, ok := pathID(r, "id")
	if !ok {
		response.Error(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if id == session.UserID {
		response.Error(w, http.StatusBadRequest, "cannot delete your own account")
		return
	}
	if err := h.auth.DeleteUser(r.Context(), session.UserID, id); err != nil {
		response.DomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) ListPatients(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)
	patients, err := h.clinical.ListPatients(r.Context(), session.UserID)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"patients": patients})
}

func (h *AdminHandler) GetPatientRecord(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)
	id, ok := pathID(r, "id")
	if !ok {
		response.Error(w, http.StatusBadRequest, "invalid patient id")
		return
	}
	patient, err := h.clinical.GetPatient(r.Context(), session.UserID, id)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"patient": patient})
}

func (h *AdminHandler) AssignNurse(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)
	doctorID, ok := pathID(r, "id")
	if !ok {
		response.Error(w, http.StatusBadRequest, "invalid doctor id")
		return
	}

	var req domain.AssignNurseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.clinical.AssignNurse(r.Context(), session.UserID, doctorID, &req); err != nil {
		response.DomainError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"assigned": true})
}

func (h *AdminHandler) ListAuditLog(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	entries, err := h.auditLog.List(r.Context(), limit, offset)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	response.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}
