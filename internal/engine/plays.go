package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"playbook/internal/domain"
	"playbook/internal/events"
	"playbook/internal/playmatch"
	"playbook/internal/repo"
	"playbook/internal/stages"
)

// PlayCreateOptions carries every writable play field. When Stages is empty
// the stage definitions are resolved from StageScope.
type PlayCreateOptions struct {
	Title              string
	Summary            string
	Offering           string
	Sector             string
	Geo                string
	SalesStage         string
	StageScope         []string
	Stages             []domain.StageDefinition
	Tags               []string
	Technologies       []string
	Owners             []string
	Collections        []string
	DefaultTeamMembers []string
	ActorID            string
}

// PlayUpdateOptions replaces every field of a play.
type PlayUpdateOptions = PlayCreateOptions

// PlayPatch applies only the non-nil fields.
type PlayPatch struct {
	Title              *string
	Summary            *string
	Offering           *string
	Sector             *string
	Geo                *string
	SalesStage         *string
	StageScope         *[]string
	Stages             *[]domain.StageDefinition
	Tags               *[]string
	Technologies       *[]string
	Owners             *[]string
	Collections        *[]string
	DefaultTeamMembers *[]string
	ActorID            string
}

func (e Engine) resolveStages(scope []string, explicit []domain.StageDefinition) ([]domain.StageDefinition, error) {
	if len(explicit) > 0 {
		if err := stages.Validate(explicit); err != nil {
			return nil, invalid("stages", "%v", err)
		}
	}
	return e.catalog().Resolve(scope, explicit), nil
}

func (e Engine) CreatePlay(ctx context.Context, opts PlayCreateOptions) (domain.Play, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Play{}, invalid("title", "title is required")
	}
	defs, err := e.resolveStages(opts.StageScope, opts.Stages)
	if err != nil {
		return domain.Play{}, err
	}
	now := e.timestamp()
	p := domain.Play{
		Title:              title,
		Summary:            opts.Summary,
		Offering:           opts.Offering,
		Sector:             opts.Sector,
		Geo:                opts.Geo,
		SalesStage:         opts.SalesStage,
		StageScope:         opts.StageScope,
		Stages:             defs,
		Tags:               opts.Tags,
		Technologies:       opts.Technologies,
		Owners:             opts.Owners,
		Collections:        opts.Collections,
		DefaultTeamMembers: opts.DefaultTeamMembers,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Play{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.PlayIDByTitleTx(ctx, tx, title); err == nil {
		return domain.Play{}, conflict("play title %q already exists", title)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Play{}, err
	}
	id, err := e.Repo.InsertPlayTx(ctx, tx, p)
	if err != nil {
		return domain.Play{}, fmt.Errorf("insert play: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.PlayCreated, "play", fmt.Sprint(id), opts.ActorID, events.EventPayload{
		"title":  title,
		"stages": p.StageKeys(),
	}); err != nil {
		return domain.Play{}, err
	}
	created, err := e.Repo.GetPlayTx(ctx, tx, id)
	if err != nil {
		return domain.Play{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Play{}, err
	}
	return created, nil
}

// UpdatePlay replaces every field of a play. Stage definitions are
// re-resolved from the new scope unless explicit stages are given.
// Attached opportunities keep their existing stage instances.
func (e Engine) UpdatePlay(ctx context.Context, id int64, opts PlayUpdateOptions) (domain.Play, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Play{}, invalid("title", "title is required")
	}
	defs, err := e.resolveStages(opts.StageScope, opts.Stages)
	if err != nil {
		return domain.Play{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Play{}, err
	}
	defer tx.Rollback()

	existing, err := e.Repo.GetPlayTx(ctx, tx, id)
	if err != nil {
		return domain.Play{}, notFound(err, "play", id)
	}
	if err := e.ensureTitleFree(ctx, tx, title, id); err != nil {
		return domain.Play{}, err
	}
	p := domain.Play{
		ID:                 id,
		Title:              title,
		Summary:            opts.Summary,
		Offering:           opts.Offering,
		Sector:             opts.Sector,
		Geo:                opts.Geo,
		SalesStage:         opts.SalesStage,
		StageScope:         opts.StageScope,
		Stages:             defs,
		Tags:               opts.Tags,
		Technologies:       opts.Technologies,
		Owners:             opts.Owners,
		Collections:        opts.Collections,
		DefaultTeamMembers: opts.DefaultTeamMembers,
		CreatedAt:          existing.CreatedAt,
		UpdatedAt:          e.timestamp(),
	}
	return e.savePlay(ctx, tx, p, opts.ActorID, []string{"*"})
}

// PatchPlay applies a sparse update. Changing stage_scope alone leaves the
// stored stages as they are unless plays.resync_stages_on_scope_change is set.
func (e Engine) PatchPlay(ctx context.Context, id int64, patch PlayPatch) (domain.Play, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Play{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetPlayTx(ctx, tx, id)
	if err != nil {
		return domain.Play{}, notFound(err, "play", id)
	}
	var changed []string
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return domain.Play{}, invalid("title", "title is required")
		}
		if err := e.ensureTitleFree(ctx, tx, title, id); err != nil {
			return domain.Play{}, err
		}
		p.Title = title
		changed = append(changed, "title")
	}
	setString := func(field string, dst *string, v *string) {
		if v != nil {
			*dst = *v
			changed = append(changed, field)
		}
	}
	setList := func(field string, dst *[]string, v *[]string) {
		if v != nil {
			*dst = *v
			changed = append(changed, field)
		}
	}
	setString("summary", &p.Summary, patch.Summary)
	setString("offering", &p.Offering, patch.Offering)
	setString("sector", &p.Sector, patch.Sector)
	setString("geo", &p.Geo, patch.Geo)
	setString("sales_stage", &p.SalesStage, patch.SalesStage)
	setList("stage_scope", &p.StageScope, patch.StageScope)
	setList("tags", &p.Tags, patch.Tags)
	setList("technologies", &p.Technologies, patch.Technologies)
	setList("owners", &p.Owners, patch.Owners)
	setList("collections", &p.Collections, patch.Collections)
	setList("default_team_members", &p.DefaultTeamMembers, patch.DefaultTeamMembers)

	switch {
	case patch.Stages != nil:
		if p.Stages, err = e.resolveStages(p.StageScope, *patch.Stages); err != nil {
			return domain.Play{}, err
		}
		changed = append(changed, "stages")
	case patch.StageScope != nil && e.Config != nil && e.Config.Plays.ResyncStagesOnScopeChange:
		p.Stages = e.catalog().Resolve(p.StageScope, nil)
		changed = append(changed, "stages")
	}
	p.UpdatedAt = e.timestamp()
	return e.savePlay(ctx, tx, p, patch.ActorID, changed)
}

func (e Engine) ensureTitleFree(ctx context.Context, tx *sql.Tx, title string, id int64) error {
	other, err := e.Repo.PlayIDByTitleTx(ctx, tx, title)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return nil
	case err != nil:
		return err
	case other != id:
		return conflict("play title %q already exists", title)
	}
	return nil
}

func (e Engine) savePlay(ctx context.Context, tx *sql.Tx, p domain.Play, actorID string, changed []string) (domain.Play, error) {
	if err := e.Repo.UpdatePlayTx(ctx, tx, p); err != nil {
		return domain.Play{}, notFound(err, "play", p.ID)
	}
	if err := e.Events.Append(ctx, tx, events.PlayUpdated, "play", fmt.Sprint(p.ID), actorID, events.EventPayload{
		"fields": changed,
	}); err != nil {
		return domain.Play{}, err
	}
	updated, err := e.Repo.GetPlayTx(ctx, tx, p.ID)
	if err != nil {
		return domain.Play{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Play{}, err
	}
	return updated, nil
}

func (e Engine) GetPlay(ctx context.Context, id int64) (domain.Play, error) {
	p, err := e.Repo.GetPlay(ctx, id)
	if err != nil {
		return domain.Play{}, notFound(err, "play", id)
	}
	return p, nil
}

func (e Engine) ListPlays(ctx context.Context) ([]domain.Play, error) {
	return e.Repo.ListPlays(ctx)
}

// DeletePlay removes a play that no opportunity references.
func (e Engine) DeletePlay(ctx context.Context, id int64, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetPlayTx(ctx, tx, id)
	if err != nil {
		return notFound(err, "play", id)
	}
	inUse, err := e.Repo.PlayInUseTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if inUse {
		return conflict("play %d is attached to opportunities", id)
	}
	if err := e.Repo.DeletePlayTx(ctx, tx, id); err != nil {
		return notFound(err, "play", id)
	}
	if err := e.Events.Append(ctx, tx, events.PlayDeleted, "play", fmt.Sprint(id), actorID, events.EventPayload{"title": p.Title}); err != nil {
		return err
	}
	return tx.Commit()
}

// MatchPlays ranks every stored play against q.
func (e Engine) MatchPlays(ctx context.Context, q playmatch.Query) ([]playmatch.Result, error) {
	plays, err := e.Repo.ListPlays(ctx)
	if err != nil {
		return nil, err
	}
	return playmatch.Match(plays, q), nil
}

// SearchPlays fuzzily matches play titles.
func (e Engine) SearchPlays(ctx context.Context, term string) ([]domain.Play, error) {
	plays, err := e.Repo.ListPlays(ctx)
	if err != nil {
		return nil, err
	}
	return playmatch.Search(plays, term), nil
}
