package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"playbook/internal/domain"
)

const opportunityPlayColumns = `id,opportunity_id,play_id,COALESCE(alias_name,''),is_primary,is_active,selected_technology_ids_json,created_at`

const stageInstanceColumns = `id,opportunity_play_id,play_stage_key,position,status,start_date,target_date,completed_date,summary_note,
checklist_item_statuses_json,custom_checklist_items_json,risk_flags_json,version,updated_at`

func scanOpportunityPlay(s scanner) (domain.OpportunityPlay, error) {
	var op domain.OpportunityPlay
	var primary, active int
	var techs string
	err := s.Scan(&op.ID, &op.OpportunityID, &op.PlayID, &op.AliasName, &primary, &active, &techs, &op.CreatedAt)
	if err == sql.ErrNoRows {
		return op, ErrNotFound
	}
	if err != nil {
		return op, err
	}
	op.IsPrimary = primary != 0
	op.IsActive = active != 0
	if op.SelectedTechnologyIDs, err = decodeList[string](techs, "selected_technology_ids"); err != nil {
		return op, err
	}
	op.StageInstances = []domain.StageInstance{}
	return op, nil
}

func scanStageInstance(s scanner) (domain.StageInstance, error) {
	var si domain.StageInstance
	var start, target, completed, note sql.NullString
	var checklist, custom, risks string
	err := s.Scan(&si.ID, &si.OpportunityPlayID, &si.PlayStageKey, &si.Position, &si.Status, &start, &target, &completed, &note,
		&checklist, &custom, &risks, &si.Version, &si.UpdatedAt)
	if err == sql.ErrNoRows {
		return si, ErrNotFound
	}
	if err != nil {
		return si, err
	}
	si.StartDate = stringPtr(start)
	si.TargetDate = stringPtr(target)
	si.CompletedDate = stringPtr(completed)
	si.SummaryNote = stringPtr(note)
	si.ChecklistItemStatuses = map[string]string{}
	if checklist != "" {
		if err := json.Unmarshal([]byte(checklist), &si.ChecklistItemStatuses); err != nil {
			return si, fmt.Errorf("decode checklist_item_statuses: %w", err)
		}
		if si.ChecklistItemStatuses == nil {
			si.ChecklistItemStatuses = map[string]string{}
		}
	}
	if si.CustomChecklistItems, err = decodeList[map[string]any](custom, "custom_checklist_items"); err != nil {
		return si, err
	}
	if si.RiskFlags, err = decodeList[string](risks, "risk_flags"); err != nil {
		return si, err
	}
	return si, nil
}

func (r Repo) InsertOpportunityPlayTx(ctx context.Context, tx *sql.Tx, op domain.OpportunityPlay) error {
	techs, err := encodeList(op.SelectedTechnologyIDs)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO opportunity_plays(id,opportunity_id,play_id,alias_name,is_primary,is_active,selected_technology_ids_json,created_at)
VALUES (?,?,?,?,?,?,?,?)`,
		op.ID, op.OpportunityID, op.PlayID, nullable(op.AliasName), boolInt(op.IsPrimary), boolInt(op.IsActive), techs, op.CreatedAt)
	return err
}

func (r Repo) UpdateOpportunityPlayTx(ctx context.Context, tx *sql.Tx, op domain.OpportunityPlay) error {
	techs, err := encodeList(op.SelectedTechnologyIDs)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE opportunity_plays SET alias_name=?,is_primary=?,is_active=?,selected_technology_ids_json=? WHERE id=?`,
		nullable(op.AliasName), boolInt(op.IsPrimary), boolInt(op.IsActive), techs, op.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearPrimaryTx unsets is_primary on every attachment of the opportunity
// except keepID.
func (r Repo) ClearPrimaryTx(ctx context.Context, tx *sql.Tx, oppID, keepID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE opportunity_plays SET is_primary=0 WHERE opportunity_id=? AND id<>?`, oppID, keepID)
	return err
}

func (r Repo) DeleteOpportunityPlayTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM opportunity_plays WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AttachedPlayIDsTx returns the play ids already attached to an opportunity.
func (r Repo) AttachedPlayIDsTx(ctx context.Context, tx *sql.Tx, oppID string) (map[int64]bool, error) {
	rows, err := tx.QueryContext(ctx, `SELECT play_id FROM opportunity_plays WHERE opportunity_id=?`, oppID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := map[int64]bool{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// GetOpportunityPlayTx loads the attachment of playID to oppID with its instances.
func (r Repo) GetOpportunityPlayTx(ctx context.Context, tx *sql.Tx, oppID string, playID int64) (domain.OpportunityPlay, error) {
	op, err := scanOpportunityPlay(tx.QueryRowContext(ctx, `SELECT `+opportunityPlayColumns+` FROM opportunity_plays WHERE opportunity_id=? AND play_id=?`, oppID, playID))
	if err != nil {
		return op, err
	}
	op.StageInstances, err = r.listStageInstances(ctx, tx, op.ID)
	return op, err
}

func (r Repo) listOpportunityPlays(ctx context.Context, q Querier, oppID string) ([]domain.OpportunityPlay, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+opportunityPlayColumns+` FROM opportunity_plays WHERE opportunity_id=? ORDER BY created_at, rowid`, oppID)
	if err != nil {
		return nil, err
	}
	res := []domain.OpportunityPlay{}
	for rows.Next() {
		op, err := scanOpportunityPlay(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, op)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	for i := range res {
		if res[i].StageInstances, err = r.listStageInstances(ctx, q, res[i].ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) InsertStageInstanceTx(ctx context.Context, tx *sql.Tx, si domain.StageInstance) error {
	checklist, err := encodeChecklist(si.ChecklistItemStatuses)
	if err != nil {
		return err
	}
	custom, err := encodeList(si.CustomChecklistItems)
	if err != nil {
		return err
	}
	risks, err := encodeList(si.RiskFlags)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO stage_instances(id,opportunity_play_id,play_stage_key,position,status,start_date,target_date,completed_date,summary_note,checklist_item_statuses_json,custom_checklist_items_json,risk_flags_json,version,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		si.ID, si.OpportunityPlayID, si.PlayStageKey, si.Position, si.Status,
		nullableStringPtr(si.StartDate), nullableStringPtr(si.TargetDate), nullableStringPtr(si.CompletedDate), nullableStringPtr(si.SummaryNote),
		checklist, custom, risks, si.Version, si.UpdatedAt)
	return err
}

// UpdateStageInstanceTx writes the mutable fields and bumps the version.
// ErrStale is returned when the stored version is no longer si.Version.
func (r Repo) UpdateStageInstanceTx(ctx context.Context, tx *sql.Tx, si domain.StageInstance) (int64, error) {
	checklist, err := encodeChecklist(si.ChecklistItemStatuses)
	if err != nil {
		return 0, err
	}
	custom, err := encodeList(si.CustomChecklistItems)
	if err != nil {
		return 0, err
	}
	risks, err := encodeList(si.RiskFlags)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `UPDATE stage_instances SET status=?,start_date=?,target_date=?,completed_date=?,summary_note=?,
checklist_item_statuses_json=?,custom_checklist_items_json=?,risk_flags_json=?,version=version+1,updated_at=? WHERE id=? AND version=?`,
		si.Status, nullableStringPtr(si.StartDate), nullableStringPtr(si.TargetDate), nullableStringPtr(si.CompletedDate), nullableStringPtr(si.SummaryNote),
		checklist, custom, risks, si.UpdatedAt, si.ID, si.Version)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrStale
	}
	return si.Version + 1, nil
}

func encodeChecklist(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	return encodeJSON(m)
}

// GetStageInstanceTx finds the instance for a stage key within one attachment.
func (r Repo) GetStageInstanceTx(ctx context.Context, tx *sql.Tx, opportunityPlayID, stageKey string) (domain.StageInstance, error) {
	return scanStageInstance(tx.QueryRowContext(ctx, `SELECT `+stageInstanceColumns+` FROM stage_instances WHERE opportunity_play_id=? AND play_stage_key=?`,
		opportunityPlayID, stageKey))
}

func (r Repo) GetStageInstanceByIDTx(ctx context.Context, tx *sql.Tx, id string) (domain.StageInstance, error) {
	return scanStageInstance(tx.QueryRowContext(ctx, `SELECT `+stageInstanceColumns+` FROM stage_instances WHERE id=?`, id))
}

func (r Repo) StageInstanceExists(ctx context.Context, id string) error {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM stage_instances WHERE id=?`, id).Scan(&n)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	return err
}

func (r Repo) listStageInstances(ctx context.Context, q Querier, opportunityPlayID string) ([]domain.StageInstance, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+stageInstanceColumns+` FROM stage_instances WHERE opportunity_play_id=? ORDER BY position`, opportunityPlayID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.StageInstance{}
	for rows.Next() {
		si, err := scanStageInstance(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, si)
	}
	return res, rows.Err()
}
