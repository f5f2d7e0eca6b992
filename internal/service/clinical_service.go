package service

import (
	"context"
	"fmt"

	"github.com/healthcure/clinic/internal/audit"
	"github.com/healthcure/clinic/internal/crypto"
	"github.com/healthcure/clinic/internal/domain"
	"github.com/healthcure/clinic/internal/repo/postgres"
)

// ClinicalService owns the appointment workflow and the PHI read paths.
// Handlers authorize before calling in; this layer decrypts and audits.
// Methods take the acting principal and the owning principal separately:
// for owner roles they coincide, for an admin acting on another user's
// resource they do not, and the audit trail must name the actor.
type ClinicalService struct {
	records  postgres.ClinicalRepository
	cipher   *crypto.FieldCipher
	recorder *audit.Recorder
}

func NewClinicalService(records postgres.ClinicalRepository, cipher *crypto.FieldCipher, recorder *audit.Recorder) *ClinicalService {
	return &ClinicalService{records: records, cipher: cipher, recorder: recorder}
}

// decryptDiagnoses fills Appointment.Diagnosis from the stored ciphertext.
// Any authentication failure aborts the whole read; a partially tampered
// result set must not be served.
func (s *ClinicalService) decryptDiagnoses(appts []domain.Appointment) error {
	for i := range appts {
		if len(appts[i].DiagnosisCipher) == 0 {
			continue
		}
		text, err := s.cipher.DecryptString(appts[i].DiagnosisCipher)
		if err != nil {
			return fmt.Errorf("appointment %d: %w", appts[i].ID, err)
		}
		appts[i].Diagnosis = text
		appts[i].DiagnosisCipher = nil
	}
	return nil
}

func (s *ClinicalService) RequestAppointment(ctx context.Context, patientID int64, req *domain.AppointmentRequest) (*domain.Appointment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.records.CreateAppointment(ctx, patientID, req.DoctorID, req.Reason)
}

func (s *ClinicalService) PatientAppointments(ctx context.Context, actorID, patientID int64) ([]domain.Appointment, error) {
	appts, err := s.records.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if err := s.decryptDiagnoses(appts); err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, domain.AuditPHIAccess, &actorID, map[string]any{
		"scope":      "patient records",
		"patient_id": patientID,
	})
	return appts, nil
}

func (s *ClinicalService) DoctorAppointments(ctx context.Context, actorID, doctorID int64) ([]domain.Appointment, error) {
	appts, err := s.records.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if err := s.decryptDiagnoses(appts); err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, domain.AuditPHIAccess, &actorID, map[string]any{
		"scope":     "doctor caseload",
		"doctor_id": doctorID,
	})
	return appts, nil
}

func (s *ClinicalService) NurseAppointments(ctx context.Context, actorID, nurseID int64) ([]domain.Appointment, error) {
	appts, err := s.records.ListByNurse(ctx, nurseID)
	if err != nil {
		return nil, err
	}
	if err := s.decryptDiagnoses(appts); err != nil {
		return nil, err
	}
	s.recorder.Record(ctx, domain.AuditPHIAccess, &actorID, map[string]any{
		"scope":    "assigned doctors",
		"nurse_id": nurseID,
	})
	return appts, nil
}

// AcceptAppointment moves a pending visit to accepted. Only the doctor it was
// booked with may act on it.
func (s *ClinicalService) AcceptAppointment(ctx context.Context, doctorID, appointmentID int64) error {
	owner, err := s.records.AppointmentDoctor(ctx, appointmentID)
	if err != nil {
		return err
	}
	if owner != doctorID {
		return domain.ErrForbidden
	}
	return s.records.UpdateStatus(ctx, appointmentID, domain.AppointmentAccepted)
}

// AssignToNurse hands an accepted visit over to the doctor's nursing team.
// The nurse side picks it up through the doctor-assignment scope.
func (s *ClinicalService) AssignToNurse(ctx context.Context, doctorID, appointmentID int64) error {
	owner, err := s.records.AppointmentDoctor(ctx, appointmentID)
	if err != nil {
		return err
	}
	if owner != doctorID {
		return domain.ErrForbidden
	}
	return s.records.UpdateStatus(ctx, appointmentID, domain.AppointmentAssigned)
}

func (s *ClinicalService) RecordDiagnosis(ctx context.Context, actorID, doctorID, appointmentID int64, req *domain.DiagnosisRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	owner, err := s.records.AppointmentDoctor(ctx, appointmentID)
	if err != nil {
		return err
	}
	if owner != doctorID {
		return domain.ErrForbidden
	}

	descCipher, err := s.cipher.EncryptString(req.Description)
	if err != nil {
		return fmt.Errorf("encrypt diagnosis: %w", err)
	}
	if err := s.records.CreateDiagnosis(ctx, appointmentID, doctorID, descCipher); err != nil {
		return err
	}
	if err := s.records.UpdateStatus(ctx, appointmentID, domain.AppointmentCompleted); err != nil {
		return err
	}

	s.recorder.Record(ctx, domain.AuditDiagnosisWrite, &actorID, map[string]any{
		"appointment_id": appointmentID,
		"doctor_id":      doctorID,
	})
	return nil
}

func (s *ClinicalService) RecordMedication(ctx context.Context, actorID, nurseID int64, req *domain.MedicationRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if err := s.records.CreateMedication(ctx, req.PatientID, nurseID, req.DrugName, req.Dosage); err != nil {
		return err
	}

	s.recorder.Record(ctx, domain.AuditMedicationWrite, &actorID, map[string]any{
		"patient_id": req.PatientID,
		"nurse_id":   nurseID,
		"drug_name":  req.DrugName,
	})
	return nil
}

func (s *ClinicalService) AssignNurse(ctx context.Context, actorID, doctorID int64, req *domain.AssignNurseRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return s.records.AssignNurse(ctx, doctorID, req.NurseID)
}

// ListPatients is the admin and doctor roster view. Addresses are decrypted
// here, after the caller's role has already been enforced.
func (s *ClinicalService) ListPatients(ctx context.Context, actorID int64) ([]domain.PatientRecord, error) {
	patients, err := s.records.ListPatients(ctx)
	if err != nil {
		return nil, err
	}
	for i := range patients {
		if len(patients[i].AddressCipher) == 0 {
			continue
		}
		addr, err := s.cipher.DecryptString(patients[i].AddressCipher)
		if err != nil {
			return nil, fmt.Errorf("patient %d: %w", patients[i].UserID, err)
		}
		patients[i].Address = addr
		patients[i].AddressCipher = nil
	}

	s.recorder.Record(ctx, domain.AuditViewAllPatients, &actorID, map[string]any{
		"count": len(patients),
	})
	return patients, nil
}

func (s *ClinicalService) GetPatient(ctx context.Context, actorID, patientID int64) (*domain.PatientRecord, error) {
	p, err := s.records.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if len(p.AddressCipher) > 0 {
		addr, err := s.cipher.DecryptString(p.AddressCipher)
		if err != nil {
			return nil, fmt.Errorf("patient %d: %w", p.UserID, err)
		}
		p.Address = addr
		p.AddressCipher = nil
	}

	s.recorder.Record(ctx, domain.AuditPHIAccess, &actorID, map[string]any{
		"patient_id": patientID,
	})
	return p, nil
}
