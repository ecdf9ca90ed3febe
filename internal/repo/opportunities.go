package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"playbook/internal/domain"
)

const opportunityColumns = `id,name,account_name,COALESCE(account_id,''),COALESCE(sales_stage,''),COALESCE(region,''),COALESCE(industry,''),
COALESCE(offering,''),COALESCE(problem_statement,''),status,health,tags_json,technologies_json,team_member_ids_json,primary_play_id,created_at,updated_at`

type OpportunityFilters struct {
	Status          string
	Region          string
	Industry        string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func scanOpportunity(s scanner) (domain.Opportunity, error) {
	var o domain.Opportunity
	var tags, techs, team string
	var primary sql.NullInt64
	err := s.Scan(&o.ID, &o.Name, &o.AccountName, &o.AccountID, &o.SalesStage, &o.Region, &o.Industry,
		&o.Offering, &o.ProblemStatement, &o.Status, &o.Health, &tags, &techs, &team, &primary, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	if primary.Valid {
		id := primary.Int64
		o.PrimaryPlayID = &id
	}
	if o.Tags, err = decodeList[string](tags, "tags"); err != nil {
		return o, err
	}
	if o.Technologies, err = decodeList[string](techs, "technologies"); err != nil {
		return o, err
	}
	if o.TeamMemberIDs, err = decodeList[string](team, "team_member_ids"); err != nil {
		return o, err
	}
	o.OpportunityPlays = []domain.OpportunityPlay{}
	return o, nil
}

func (r Repo) InsertOpportunityTx(ctx context.Context, tx *sql.Tx, o domain.Opportunity) error {
	tags, techs, team, err := encodeOpportunityLists(o)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO opportunities(id,name,account_name,account_id,sales_stage,region,industry,offering,problem_statement,status,health,tags_json,technologies_json,team_member_ids_json,primary_play_id,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.Name, o.AccountName, nullable(o.AccountID), nullable(o.SalesStage), nullable(o.Region), nullable(o.Industry),
		nullable(o.Offering), nullable(o.ProblemStatement), o.Status, o.Health, tags, techs, team, nullableInt64Ptr(o.PrimaryPlayID), o.CreatedAt, o.UpdatedAt)
	return err
}

// UpdateOpportunityTx writes every scalar column; attachments are untouched.
func (r Repo) UpdateOpportunityTx(ctx context.Context, tx *sql.Tx, o domain.Opportunity) error {
	tags, techs, team, err := encodeOpportunityLists(o)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE opportunities SET name=?,account_name=?,account_id=?,sales_stage=?,region=?,industry=?,offering=?,problem_statement=?,status=?,health=?,tags_json=?,technologies_json=?,team_member_ids_json=?,primary_play_id=?,updated_at=? WHERE id=?`,
		o.Name, o.AccountName, nullable(o.AccountID), nullable(o.SalesStage), nullable(o.Region), nullable(o.Industry),
		nullable(o.Offering), nullable(o.ProblemStatement), o.Status, o.Health, tags, techs, team, nullableInt64Ptr(o.PrimaryPlayID), o.UpdatedAt, o.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeOpportunityLists(o domain.Opportunity) (tags, techs, team string, err error) {
	if tags, err = encodeList(o.Tags); err != nil {
		return
	}
	if techs, err = encodeList(o.Technologies); err != nil {
		return
	}
	team, err = encodeList(o.TeamMemberIDs)
	return
}

// SetPrimaryPlayTx sets or clears primary_play_id.
func (r Repo) SetPrimaryPlayTx(ctx context.Context, tx *sql.Tx, oppID string, playID *int64, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE opportunities SET primary_play_id=?, updated_at=? WHERE id=?`, nullableInt64Ptr(playID), updatedAt, oppID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) TouchOpportunityTx(ctx context.Context, tx *sql.Tx, oppID, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE opportunities SET updated_at=? WHERE id=?`, updatedAt, oppID)
	return err
}

func (r Repo) getOpportunity(ctx context.Context, q Querier, id string) (domain.Opportunity, error) {
	o, err := scanOpportunity(q.QueryRowContext(ctx, `SELECT `+opportunityColumns+` FROM opportunities WHERE id=?`, id))
	if err != nil {
		return o, err
	}
	o.OpportunityPlays, err = r.listOpportunityPlays(ctx, q, id)
	return o, err
}

// GetOpportunity loads an opportunity with its attachments and stage instances.
func (r Repo) GetOpportunity(ctx context.Context, id string) (domain.Opportunity, error) {
	return r.getOpportunity(ctx, r.DB, id)
}

func (r Repo) GetOpportunityTx(ctx context.Context, tx *sql.Tx, id string) (domain.Opportunity, error) {
	return r.getOpportunity(ctx, tx, id)
}

// OpportunityExistsTx checks presence without loading attachments.
func (r Repo) OpportunityExistsTx(ctx context.Context, tx *sql.Tx, id string) error {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM opportunities WHERE id=?`, id).Scan(&n)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	return err
}

// ListOpportunities returns opportunities newest first. The cursor is the
// (created_at, id) pair of the last row of the previous page.
func (r Repo) ListOpportunities(ctx context.Context, f OpportunityFilters) ([]domain.Opportunity, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Region != "" {
		clauses = append(clauses, "region=?")
		args = append(args, f.Region)
	}
	if f.Industry != "" {
		clauses = append(clauses, "industry=?")
		args = append(args, f.Industry)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := fmt.Sprintf(`SELECT %s FROM opportunities WHERE %s ORDER BY created_at DESC, id DESC`, opportunityColumns, strings.Join(clauses, " AND "))
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	res := []domain.Opportunity{}
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, o)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	for i := range res {
		if res[i].OpportunityPlays, err = r.listOpportunityPlays(ctx, r.DB, res[i].ID); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// DeleteOpportunityTx removes the opportunity; attachments, stage instances
// and notes go with it by cascade.
func (r Repo) DeleteOpportunityTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM opportunities WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
