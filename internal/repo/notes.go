package repo

import (
	"context"
	"database/sql"

	"playbook/internal/domain"
)

const stageNoteColumns = `id,stage_instance_id,content,is_private,COALESCE(author_id,''),created_at,updated_at`

func scanStageNote(s scanner) (domain.StageNote, error) {
	var n domain.StageNote
	var private int
	err := s.Scan(&n.ID, &n.StageInstanceID, &n.Content, &private, &n.AuthorID, &n.CreatedAt, &n.UpdatedAt)
	if err == sql.ErrNoRows {
		return n, ErrNotFound
	}
	n.IsPrivate = private != 0
	return n, err
}

func (r Repo) InsertStageNoteTx(ctx context.Context, tx *sql.Tx, n domain.StageNote) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO stage_notes(id,stage_instance_id,content,is_private,author_id,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		n.ID, n.StageInstanceID, n.Content, boolInt(n.IsPrivate), nullable(n.AuthorID), n.CreatedAt, n.UpdatedAt)
	return err
}

func (r Repo) UpdateStageNoteTx(ctx context.Context, tx *sql.Tx, n domain.StageNote) (domain.StageNote, error) {
	res, err := tx.ExecContext(ctx, `UPDATE stage_notes SET content=?, is_private=?, updated_at=? WHERE id=?`,
		n.Content, boolInt(n.IsPrivate), n.UpdatedAt, n.ID)
	if err != nil {
		return domain.StageNote{}, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.StageNote{}, ErrNotFound
	}
	return r.GetStageNoteTx(ctx, tx, n.ID)
}

func (r Repo) GetStageNoteTx(ctx context.Context, tx *sql.Tx, id string) (domain.StageNote, error) {
	return scanStageNote(tx.QueryRowContext(ctx, `SELECT `+stageNoteColumns+` FROM stage_notes WHERE id=?`, id))
}

// ListStageNotes returns the notes of a stage instance, newest first.
func (r Repo) ListStageNotes(ctx context.Context, stageInstanceID string) ([]domain.StageNote, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+stageNoteColumns+` FROM stage_notes WHERE stage_instance_id=? ORDER BY created_at DESC, rowid DESC`, stageInstanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.StageNote{}
	for rows.Next() {
		n, err := scanStageNote(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) DeleteStageNoteTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM stage_notes WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
