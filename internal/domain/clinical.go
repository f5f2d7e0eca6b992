package domain

import (
	"fmt"
	"strings"
	"time"
)

type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentAccepted  AppointmentStatus = "accepted"
	AppointmentAssigned  AppointmentStatus = "assigned"
	AppointmentCompleted AppointmentStatus = "completed"
)

// Appointment joins the patient/doctor display names and, for completed
// visits, the diagnosis and medication. DiagnosisCipher is the stored
// ciphertext; Diagnosis is only populated when a response is being built.
type Appointment struct {
	ID              int64             `json:"id"`
	PatientID       int64             `json:"patient_id"`
	DoctorID        int64             `json:"doctor_id"`
	Status          AppointmentStatus `json:"status"`
	Reason          string            `json:"reason"`
	PatientName     string            `json:"patient_name,omitempty"`
	DoctorName      string            `json:"doctor_name,omitempty"`
	DiagnosisCipher []byte            `json:"-"`
	Diagnosis       string            `json:"diagnosis,omitempty"`
	DrugName        string            `json:"drug_name,omitempty"`
	Dosage          string            `json:"dosage,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// PatientRecord is a patient profile row. Address is PHI: stored encrypted,
// decrypted only when a response is constructed.
type PatientRecord struct {
	UserID        int64  `json:"user_id"`
	Name          string `json:"name"`
	DOB           string `json:"dob,omitempty"`
	AddressCipher []byte `json:"-"`
	Address       string `json:"address,omitempty"`
}

type AppointmentRequest struct {
	DoctorID int64  `json:"doctor_id"`
	Reason   string `json:"reason"`
}

func (r *AppointmentRequest) Validate() error {
	if r.DoctorID <= 0 {
		return fmt.Errorf("doctor_id is required")
	}
	if strings.TrimSpace(r.Reason) == "" {
		return fmt.Errorf("reason is required")
	}
	return nil
}

type DiagnosisRequest struct {
	Description string `json:"description"`
}

func (r *DiagnosisRequest) Validate() error {
	if strings.TrimSpace(r.Description) == "" {
		return fmt.Errorf("description is required")
	}
	return nil
}

type MedicationRequest struct {
	PatientID int64  `json:"patient_id"`
	DrugName  string `json:"drug_name"`
	Dosage    string `json:"dosage"`
}

func (r *MedicationRequest) Validate() error {
	if r.PatientID <= 0 {
		return fmt.Errorf("patient_id is required")
	}
	if strings.TrimSpace(r.DrugName) == "" {
		return fmt.Errorf("drug_name is required")
	}
	if strings.TrimSpace(r.Dosage) == "" {
		return fmt.Errorf("dosage is required")
	}
	return nil
}

type AssignNurseRequest struct {
	NurseID int64 `json:"nurse_id"`
}

func (r *AssignNurseRequest) Validate() error {
	if r.NurseID <= 0 {
		return fmt.Errorf("nurse_id is required")
	}
	return nil
}
