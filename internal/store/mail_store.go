package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/applytrack/internal/model"
)

// Exists reports whether a message has already been classified for a user.
func (s *SQLStore) Exists(
	ctx context.Context,
	userID, messageID string,
) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		s.db.Rebind("SELECT COUNT(*) FROM mail_records WHERE user_id = ? AND message_id = ?"),
		userID, messageID,
	)
	if err != nil {
		return false, fmt.Errorf("checking message %s for user %s: %w", messageID, userID, err)
	}
	return count > 0, nil
}

// BulkInsert inserts a batch of mail records, ignoring duplicates.
func (s *SQLStore) BulkInsert(
	ctx context.Context,
	records []model.MailRecord,
) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	n, err := insertMailRecords(ctx, tx, records)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing mail records: %w", err)
	}
	return n, nil
}

// ListMailRecords returns a user's records, most recently received first.
func (s *SQLStore) ListMailRecords(
	ctx context.Context,
	userID string,
) ([]model.MailRecord, error) {
	var records []model.MailRecord
	err := s.db.SelectContext(ctx, &records, s.db.Rebind(`
		SELECT id, user_id, message_id, company_name, status_label, job_title,
			subject, sender, received_at, classified_by, confidence, created_at
		FROM mail_records
		WHERE user_id = ?
		ORDER BY received_at DESC`),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing mail records for user %s: %w", userID, err)
	}
	return records, nil
}

// insertMailRecords writes records inside tx and returns how many were new.
func insertMailRecords(
	ctx context.Context,
	tx *sqlx.Tx,
	records []model.MailRecord,
) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO mail_records (
			id, user_id, message_id,
			company_name, status_label, job_title,
			subject, sender, received_at,
			classified_by, confidence, created_at
		) VALUES (
			?, ?, ?,
			?, ?, ?,
			?, ?, ?,
			?, ?, ?
		)
		ON CONFLICT (user_id, message_id) DO NOTHING`))
	if err != nil {
		return 0, fmt.Errorf("preparing mail insert statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	inserted := 0
	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}

		result, err := stmt.ExecContext(ctx,
			r.ID, r.UserID, r.MessageID,
			r.CompanyName, r.StatusLabel, r.JobTitle,
			r.Subject, r.Sender, r.ReceivedAt.UTC(),
			r.ClassifiedBy, r.Confidence, r.CreatedAt.UTC(),
		)
		if err != nil {
			return 0, fmt.Errorf("inserting message %s: %w", r.MessageID, err)
		}
		if n, err := result.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	return inserted, nil
}
