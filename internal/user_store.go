package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const userColumns = `id, username, hashed_password, nickname, role, center_code, assessment_completed, last_login_at, created_at, updated_at`

// GetUserByID returns the user or nil when absent.
func GetUserByID(id uuid.UUID) (*User, error) {
	var u User
	err := DB.Get(&u, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByUsername returns the user or nil when absent.
func GetUserByUsername(username string) (*User, error) {
	var u User
	err := DB.Get(&u, `SELECT `+userColumns+` FROM users WHERE username=$1`, username)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new account. A unique-constraint violation on
// username surfaces as the driver error for the API layer to map.
func CreateUser(u *User) error {
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	_, err := DB.NamedExec(`INSERT INTO users
		(id, username, hashed_password, nickname, role, center_code, assessment_completed, created_at, updated_at)
		VALUES
		(:id, :username, :hashed_password, :nickname, :role, :center_code, :assessment_completed, :created_at, :updated_at)`, u)
	return err
}

// SetUserCenterCode binds the user to an institution code.
func SetUserCenterCode(userID uuid.UUID, code string) error {
	_, err := DB.Exec(`UPDATE users SET center_code=$1, updated_at=$2 WHERE id=$3`, code, time.Now(), userID)
	return err
}

// TouchLastLogin records a successful login.
func TouchLastLogin(userID uuid.UUID) error {
	_, err := DB.Exec(`UPDATE users SET last_login_at=$1 WHERE id=$2`, time.Now(), userID)
	return err
}

// UpdateUserNickname changes the display name.
func UpdateUserNickname(userID uuid.UUID, nickname string) error {
	_, err := DB.Exec(`UPDATE users SET nickname=$1, updated_at=$2 WHERE id=$3`, nickname, time.Now(), userID)
	return err
}

// UpdateUserPassword stores a new bcrypt hash.
func UpdateUserPassword(userID uuid.UUID, hashed string) error {
	_, err := DB.Exec(`UPDATE users SET hashed_password=$1, updated_at=$2 WHERE id=$3`, hashed, time.Now(), userID)
	return err
}
