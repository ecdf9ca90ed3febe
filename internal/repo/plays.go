package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"playbook/internal/domain"
)

const playColumns = `id,title,COALESCE(summary,''),COALESCE(offering,''),COALESCE(sector,''),COALESCE(geo,''),COALESCE(sales_stage,''),
stage_scope_json,stages_json,owners_json,collections_json,default_team_members_json,created_at,updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanPlay(s scanner) (domain.Play, error) {
	var p domain.Play
	var scope, stageDefs, owners, collections, team string
	err := s.Scan(&p.ID, &p.Title, &p.Summary, &p.Offering, &p.Sector, &p.Geo, &p.SalesStage,
		&scope, &stageDefs, &owners, &collections, &team, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if p.StageScope, err = decodeList[string](scope, "stage_scope"); err != nil {
		return p, err
	}
	if p.Stages, err = decodeList[domain.StageDefinition](stageDefs, "stages"); err != nil {
		return p, err
	}
	if p.Owners, err = decodeList[string](owners, "owners"); err != nil {
		return p, err
	}
	if p.Collections, err = decodeList[string](collections, "collections"); err != nil {
		return p, err
	}
	if p.DefaultTeamMembers, err = decodeList[string](team, "default_team_members"); err != nil {
		return p, err
	}
	return p, nil
}

type playJSON struct {
	scope, stages, owners, collections, team string
}

func encodePlay(p domain.Play) (playJSON, error) {
	var out playJSON
	var err error
	if out.scope, err = encodeList(p.StageScope); err != nil {
		return out, err
	}
	if out.stages, err = encodeList(p.Stages); err != nil {
		return out, err
	}
	if out.owners, err = encodeList(p.Owners); err != nil {
		return out, err
	}
	if out.collections, err = encodeList(p.Collections); err != nil {
		return out, err
	}
	if out.team, err = encodeList(p.DefaultTeamMembers); err != nil {
		return out, err
	}
	return out, nil
}

// InsertPlayTx stores a play with its tag and technology links and returns
// the assigned id.
func (r Repo) InsertPlayTx(ctx context.Context, tx *sql.Tx, p domain.Play) (int64, error) {
	js, err := encodePlay(p)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO plays(title,summary,offering,sector,geo,sales_stage,stage_scope_json,stages_json,owners_json,collections_json,default_team_members_json,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.Title, nullable(p.Summary), nullable(p.Offering), nullable(p.Sector), nullable(p.Geo), nullable(p.SalesStage),
		js.scope, js.stages, js.owners, js.collections, js.team, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := r.setPlayLinks(ctx, tx, id, p); err != nil {
		return 0, err
	}
	return id, nil
}

// UpdatePlayTx rewrites every column of an existing play and replaces its links.
func (r Repo) UpdatePlayTx(ctx context.Context, tx *sql.Tx, p domain.Play) error {
	js, err := encodePlay(p)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE plays SET title=?,summary=?,offering=?,sector=?,geo=?,sales_stage=?,stage_scope_json=?,stages_json=?,owners_json=?,collections_json=?,default_team_members_json=?,updated_at=? WHERE id=?`,
		p.Title, nullable(p.Summary), nullable(p.Offering), nullable(p.Sector), nullable(p.Geo), nullable(p.SalesStage),
		js.scope, js.stages, js.owners, js.collections, js.team, p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return r.setPlayLinks(ctx, tx, p.ID, p)
}

func (r Repo) setPlayLinks(ctx context.Context, tx *sql.Tx, playID int64, p domain.Play) error {
	if err := setLinks(ctx, tx, "play_tags", "tag_id", domain.DictTags, playID, p.Tags); err != nil {
		return fmt.Errorf("play tags: %w", err)
	}
	if err := setLinks(ctx, tx, "play_technologies", "technology_id", domain.DictTechnologies, playID, p.Technologies); err != nil {
		return fmt.Errorf("play technologies: %w", err)
	}
	return nil
}

// setLinks replaces the rows of a play link table, creating missing
// dictionary entries by name. Position keeps the caller's order.
func setLinks(ctx context.Context, q Querier, linkTable, column string, kind domain.DictionaryKind, playID int64, names []string) error {
	if _, err := q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE play_id=?`, linkTable), playID); err != nil {
		return err
	}
	seen := map[string]bool{}
	pos := 0
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		id, err := lookupOrCreate(ctx, q, kind, name)
		if err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s(play_id,%s,position) VALUES (?,?,?)`, linkTable, column), playID, id, pos); err != nil {
			return err
		}
		pos++
	}
	return nil
}

func lookupOrCreate(ctx context.Context, q Querier, kind domain.DictionaryKind, name string) (int64, error) {
	if _, err := q.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s(name) VALUES (?) ON CONFLICT(name) DO NOTHING`, kind.Table()), name); err != nil {
		return 0, err
	}
	var id int64
	err := q.QueryRowContext(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE name=?`, kind.Table()), name).Scan(&id)
	return id, err
}

func loadLinks(ctx context.Context, q Querier, linkTable, column string, kind domain.DictionaryKind, playID int64) ([]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`SELECT d.name FROM %s l JOIN %s d ON d.id=l.%s WHERE l.play_id=? ORDER BY l.position, d.id`,
		linkTable, kind.Table(), column), playID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r Repo) fillPlayLinks(ctx context.Context, q Querier, p *domain.Play) error {
	var err error
	if p.Tags, err = loadLinks(ctx, q, "play_tags", "tag_id", domain.DictTags, p.ID); err != nil {
		return err
	}
	p.Technologies, err = loadLinks(ctx, q, "play_technologies", "technology_id", domain.DictTechnologies, p.ID)
	return err
}

func (r Repo) getPlay(ctx context.Context, q Querier, id int64) (domain.Play, error) {
	p, err := scanPlay(q.QueryRowContext(ctx, `SELECT `+playColumns+` FROM plays WHERE id=?`, id))
	if err != nil {
		return p, err
	}
	return p, r.fillPlayLinks(ctx, q, &p)
}

func (r Repo) GetPlay(ctx context.Context, id int64) (domain.Play, error) {
	return r.getPlay(ctx, r.DB, id)
}

func (r Repo) GetPlayTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Play, error) {
	return r.getPlay(ctx, tx, id)
}

// PlayIDByTitleTx returns the id of the play with the given title.
func (r Repo) PlayIDByTitleTx(ctx context.Context, tx *sql.Tx, title string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM plays WHERE title=?`, title).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return id, err
}

// ListPlays returns every play ordered by id.
func (r Repo) ListPlays(ctx context.Context) ([]domain.Play, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+playColumns+` FROM plays ORDER BY id`)
	if err != nil {
		return nil, err
	}
	res := []domain.Play{}
	for rows.Next() {
		p, err := scanPlay(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, p)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if err := r.fillPlayLinks(ctx, r.DB, &res[i]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// PlayInUseTx reports whether any opportunity still attaches the play.
func (r Repo) PlayInUseTx(ctx context.Context, tx *sql.Tx, id int64) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM opportunity_plays WHERE play_id=? LIMIT 1`, id).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) DeletePlayTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM plays WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
