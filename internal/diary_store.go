package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const diaryColumns = `id, user_id, date, mood_level, mood_score, weather, temperature, mode, safety_flag,
	event, emotion_desc, emotion_meaning, self_talk, sleep_condition, gratitude_note,
	ai_emotion, ai_comment, created_at, updated_at`

// DiaryFilter narrows ListDiaries. Zero values mean "no constraint";
// filters are AND-combined.
type DiaryFilter struct {
	Year      int
	Month     int
	StartDate string
	EndDate   string
}

// FindDiary returns the diary owned by userID with the given id, or nil
// when it does not exist (ownership and existence are not distinguished).
func FindDiary(userID, diaryID uuid.UUID) (*Diary, error) {
	var d Diary
	err := DB.Get(&d, `SELECT `+diaryColumns+` FROM diaries WHERE id=$1 AND user_id=$2`, diaryID, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDiaries returns the owner's diaries, date-descending.
func ListDiaries(userID uuid.UUID, f DiaryFilter) ([]Diary, error) {
	query := `SELECT ` + diaryColumns + ` FROM diaries WHERE user_id=$1`
	args := []any{userID}
	n := 2
	if f.Year > 0 && f.Month > 0 {
		query += fmt.Sprintf(` AND date LIKE $%d`, n)
		args = append(args, fmt.Sprintf("%04d-%02d-%%", f.Year, f.Month))
		n++
	} else if f.Year > 0 {
		query += fmt.Sprintf(` AND date LIKE $%d`, n)
		args = append(args, fmt.Sprintf("%04d-%%", f.Year))
		n++
	}
	if f.StartDate != "" {
		query += fmt.Sprintf(` AND date >= $%d`, n)
		args = append(args, f.StartDate)
		n++
	}
	if f.EndDate != "" {
		query += fmt.Sprintf(` AND date <= $%d`, n)
		args = append(args, f.EndDate)
	}
	query += ` ORDER BY date DESC, created_at DESC`

	diaries := []Diary{}
	if err := DB.Select(&diaries, query, args...); err != nil {
		return nil, err
	}
	return diaries, nil
}

// InsertDiary persists a new row. Free-text fields must already be
// encrypted by the caller.
func InsertDiary(d *Diary) error {
	now := time.Now()
	d.CreatedAt = now
	d.UpdatedAt = now
	_, err := DB.NamedExec(`INSERT INTO diaries
		(id, user_id, date, mood_level, mood_score, weather, temperature, mode, safety_flag,
		 event, emotion_desc, emotion_meaning, self_talk, sleep_condition, gratitude_note,
		 ai_emotion, ai_comment, created_at, updated_at)
		VALUES
		(:id, :user_id, :date, :mood_level, :mood_score, :weather, :temperature, :mode, :safety_flag,
		 :event, :emotion_desc, :emotion_meaning, :self_talk, :sleep_condition, :gratitude_note,
		 :ai_emotion, :ai_comment, :created_at, :updated_at)`, d)
	return err
}

// UpdateDiary overwrites the mutable columns of an existing row and
// advances updated_at. The date is immutable and not touched.
func UpdateDiary(d *Diary) error {
	d.UpdatedAt = time.Now()
	res, err := DB.NamedExec(`UPDATE diaries SET
		mood_level=:mood_level, weather=:weather, temperature=:temperature, mode=:mode,
		safety_flag=:safety_flag, event=:event, emotion_desc=:emotion_desc,
		emotion_meaning=:emotion_meaning, self_talk=:self_talk,
		sleep_condition=:sleep_condition, gratitude_note=:gratitude_note,
		ai_emotion=:ai_emotion, ai_comment=:ai_comment, updated_at=:updated_at
		WHERE id=:id AND user_id=:user_id`, d)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteDiary hard-deletes the row. Returns sql.ErrNoRows when the row
// does not exist or is not owned by userID.
func DeleteDiary(userID, diaryID uuid.UUID) error {
	res, err := DB.Exec(`DELETE FROM diaries WHERE id=$1 AND user_id=$2`, diaryID, userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// diaryScore ranks sibling rows sharing (owner, date): count of
// non-empty text fields, +10 when the AI pair is present, +1 for
// weather. Highest score is the canonical row; ties go to the newest.
func diaryScore(d *Diary) int {
	score := 0
	for _, s := range []string{d.Event, d.EmotionDesc, d.EmotionMeaning, d.SelfTalk, d.SleepCondition, d.GratitudeNote} {
		if strings.TrimSpace(s) != "" {
			score++
		}
	}
	if d.AIEmotion != "" && d.AIComment != "" {
		score += 10
	}
	if strings.TrimSpace(d.Weather) != "" {
		score++
	}
	return score
}

// CanonicalDiaryByDate returns the single canonical diary for
// (owner, date). When duplicates exist, the best-scoring row is kept and
// the stale siblings are deleted in the same transaction. Returns nil
// when no row exists for the date.
func CanonicalDiaryByDate(userID uuid.UUID, date string) (*Diary, error) {
	rows := []Diary{}
	err := DB.Select(&rows, `SELECT `+diaryColumns+` FROM diaries WHERE user_id=$1 AND date=$2 ORDER BY created_at DESC`, userID, date)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if len(rows) == 1 {
		return &rows[0], nil
	}

	best := 0
	for i := range rows {
		si, sb := diaryScore(&rows[i]), diaryScore(&rows[best])
		if si > sb {
			best = i
			continue
		}
		// rows are newest-first, so on a score tie the earlier index wins
	}
	keep := rows[best]

	tx, err := DB.Beginx()
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(`DELETE FROM diaries WHERE user_id=$1 AND date=$2 AND id <> $3`, userID, date, keep.ID); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &keep, nil
}

// DuplicateGroup identifies an (owner, date) pair holding more than
// one diary row.
type DuplicateGroup struct {
	UserID uuid.UUID `db:"user_id"`
	Date   string    `db:"date"`
}

// DuplicateDiaryDates lists the groups currently holding more than one
// row. Used by the nightly dedup sweep.
func DuplicateDiaryDates() ([]DuplicateGroup, error) {
	groups := []DuplicateGroup{}
	err := DB.Select(&groups, `SELECT user_id, date FROM diaries GROUP BY user_id, date HAVING COUNT(*) > 1`)
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// RecentDiaries returns up to limit most recent diaries for the owner,
// date-descending. Callers that need chronological order reverse it.
func RecentDiaries(userID uuid.UUID, limit int) ([]Diary, error) {
	diaries := []Diary{}
	err := DB.Select(&diaries, `SELECT `+diaryColumns+` FROM diaries WHERE user_id=$1 ORDER BY date DESC, created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	return diaries, nil
}
