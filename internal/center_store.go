package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// FindInstitutionByCode matches case-insensitively, or returns nil.
func FindInstitutionByCode(code string) (*Institution, error) {
	var inst Institution
	err := DB.Get(&inst, `SELECT id, code, name, region, created_at FROM institutions WHERE UPPER(code)=UPPER($1)`, code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// FindInstitutionByID returns the institution or nil.
func FindInstitutionByID(id uuid.UUID) (*Institution, error) {
	var inst Institution
	err := DB.Get(&inst, `SELECT id, code, name, region, created_at FROM institutions WHERE id=$1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// CacheInstitution stores an institution learned from the Satellite so
// later verify-code calls resolve locally. Idempotent on code.
func CacheInstitution(inst *Institution) error {
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	inst.CreatedAt = time.Now()
	_, err := DB.NamedExec(`INSERT INTO institutions (id, code, name, region, created_at)
		VALUES (:id, :code, :name, :region, :created_at)
		ON CONFLICT (code) DO UPDATE SET name=EXCLUDED.name, region=EXCLUDED.region`, inst)
	return err
}

// FindVerificationCode returns the code row or nil.
func FindVerificationCode(code string) (*VerificationCode, error) {
	var vc VerificationCode
	err := DB.Get(&vc, `SELECT code, institution_code, is_used, used_by, used_at, created_at FROM verification_codes WHERE UPPER(code)=UPPER($1)`, code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &vc, nil
}

// ConsumeVerificationCode marks the code used by userID, first-use-wins.
// Returns sql.ErrNoRows when the code is unknown or already consumed by
// a different user; re-consuming one's own code is a no-op success.
func ConsumeVerificationCode(code string, userID uuid.UUID) error {
	res, err := DB.Exec(`UPDATE verification_codes SET is_used=TRUE, used_by=$1, used_at=$2
		WHERE UPPER(code)=UPPER($3) AND (is_used=FALSE OR used_by=$1)`, userID, time.Now(), code)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
