package postgres

import (
	"context"
	"time"

	"github.com/healthcure/clinic/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ClinicalRepository covers the appointment workflow and the role-scoped
// record listings. Diagnosis text stays ciphertext here; decryption happens
// in the service once authorization has passed.
type ClinicalRepository interface {
	CreateAppointment(ctx context.Context, patientID, doctorID int64, reason string) (*domain.Appointment, error)
	UpdateStatus(ctx context.Context, appointmentID int64, status domain.AppointmentStatus) error
	AppointmentDoctor(ctx context.Context, appointmentID int64) (int64, error)
	ListByPatient(ctx context.Context, patientID int64) ([]domain.Appointment, error)
	ListByDoctor(ctx context.Context, doctorID int64) ([]domain.Appointment, error)
	ListByNurse(ctx context.Context, nurseID int64) ([]domain.Appointment, error)
	CreateDiagnosis(ctx context.Context, appointmentID, doctorID int64, descriptionCipher []byte) error
	CreateMedication(ctx context.Context, patientID, nurseID int64, drugName, dosage string) error
	AssignNurse(ctx context.Context, doctorID, nurseID int64) error
	ListPatients(ctx context.Context) ([]domain.PatientRecord, error)
	GetPatient(ctx context.Context, userID int64) (*domain.PatientRecord, error)
}

type clinicalRepository struct {
	pool *pgxpool.Pool
}

func NewClinicalRepository(pool *pgxpool.Pool) ClinicalRepository {
	return &clinicalRepository{pool: pool}
}

func (r *clinicalRepository) CreateAppointment(ctx context.Context, patientID, doctorID int64, reason string) (*domain.Appointment, error) {
	const q = `
		INSERT INTO appointments (patient_id, doctor_id, status, reason)
		VALUES ($1, $2, 'pending', $3)
		RETURNING id, patient_id, doctor_id, status, reason, created_at`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var a domain.Appointment
	err := r.pool.QueryRow(ctx, q, patientID, doctorID, reason).Scan(
		&a.ID, &a.PatientID, &a.DoctorID, &a.Status, &a.Reason, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *clinicalRepository) UpdateStatus(ctx context.Context, appointmentID int64, status domain.AppointmentStatus) error {
	const q = `UPDATE appointments SET status = $2 WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, appointmentID, string(status))
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *clinicalRepository) AppointmentDoctor(ctx context.Context, appointmentID int64) (int64, error) {
	const q = `SELECT doctor_id FROM appointments WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var doctorID int64
	err := r.pool.QueryRow(ctx, q, appointmentID).Scan(&doctorID)
	if err == pgx.ErrNoRows {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return doctorID, nil
}

// appointmentQuery joins display names plus any diagnosis and medication for
// the visit. Medications are matched through the patient because the original
// workflow records them per patient, not per appointment.
const appointmentQuery = `
	SELECT a.id, a.patient_id, a.doctor_id, a.status, a.reason,
	       p.name, d.name,
	       dg.description_cipher,
	       COALESCE(m.drug_name, ''), COALESCE(m.dosage, ''),
	       a.created_at
	FROM appointments a
	JOIN patients p ON p.user_id = a.patient_id
	JOIN doctors d ON d.user_id = a.doctor_id
	LEFT JOIN diagnoses dg ON dg.appointment_id = a.id
	LEFT JOIN LATERAL (
		SELECT drug_name, dosage FROM medications
		WHERE patient_id = a.patient_id
		ORDER BY created_at DESC LIMIT 1
	) m ON true`

func (r *clinicalRepository) listAppointments(ctx context.Context, where string, arg any) ([]domain.Appointment, error) {
	q := appointmentQuery + ` WHERE ` + where + ` ORDER BY a.created_at DESC`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Appointment
	for rows.Next() {
		var a domain.Appointment
		err := rows.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.Status, &a.Reason,
			&a.PatientName, &a.DoctorName, &a.DiagnosisCipher,
			&a.DrugName, &a.Dosage, &a.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	return out, rows.Err()
}

func (r *clinicalRepository) ListByPatient(ctx context.Context, patientID int64) ([]domain.Appointment, error) {
	return r.listAppointments(ctx, `a.patient_id = $1`, patientID)
}

func (r *clinicalRepository) ListByDoctor(ctx context.Context, doctorID int64) ([]domain.Appointment, error) {
	return r.listAppointments(ctx, `a.doctor_id = $1`, doctorID)
}

// ListByNurse scopes through the doctor assignment: a nurse sees only the
// appointments of doctors they are assigned to.
func (r *clinicalRepository) ListByNurse(ctx context.Context, nurseID int64) ([]domain.Appointment, error) {
	return r.listAppointments(ctx,
		`a.doctor_id IN (SELECT user_id FROM doctors WHERE assigned_nurse_id = $1)`, nurseID)
}

func (r *clinicalRepository) CreateDiagnosis(ctx context.Context, appointmentID, doctorID int64, descriptionCipher []byte) error {
	const q = `
		INSERT INTO diagnoses (appointment_id, doctor_id, description_cipher)
		VALUES ($1, $2, $3)
		ON CONFLICT (appointment_id) DO UPDATE
		SET doctor_id = EXCLUDED.doctor_id,
		    description_cipher = EXCLUDED.description_cipher`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, appointmentID, doctorID, descriptionCipher)
	return err
}

func (r *clinicalRepository) CreateMedication(ctx context.Context, patientID, nurseID int64, drugName, dosage string) error {
	const q = `
		INSERT INTO medications (patient_id, nurse_id, drug_name, dosage)
		VALUES ($1, $2, $3, $4)`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := r.pool.Exec(ctx, q, patientID, nurseID, drugName, dosage)
	return err
}

func (r *clinicalRepository) AssignNurse(ctx context.Context, doctorID, nurseID int64) error {
	const q = `UPDATE doctors SET assigned_nurse_id = $2 WHERE user_id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q, doctorID, nurseID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListPatients returns addresses as stored, in AddressCipher. The service
// decrypts into Address after its authorization check.
func (r *clinicalRepository) ListPatients(ctx context.Context) ([]domain.PatientRecord, error) {
	const q = `SELECT user_id, name, dob, address_cipher FROM patients ORDER BY name`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PatientRecord
	for rows.Next() {
		var (
			p          domain.PatientRecord
			addrCipher []byte
		)
		if err := rows.Scan(&p.UserID, &p.Name, &p.DOB, &addrCipher); err != nil {
			return nil, err
		}
		p.AddressCipher = addrCipher
		out = append(out, p)
	}

	return out, rows.Err()
}

func (r *clinicalRepository) GetPatient(ctx context.Context, userID int64) (*domain.PatientRecord, error) {
	const q = `SELECT user_id, name, dob, address_cipher FROM patients WHERE user_id = $1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var p domain.PatientRecord
	err := r.pool.QueryRow(ctx, q, userID).Scan(&p.UserID, &p.Name, &p.DOB, &p.AddressCipher)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
