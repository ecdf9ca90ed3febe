package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"playbook/internal/domain"
	"playbook/internal/events"
	"playbook/internal/repo"
)

type OpportunityCreateOptions struct {
	Name             string
	AccountName      string
	AccountID        string
	SalesStage       string
	Region           string
	Industry         string
	Offering         string
	ProblemStatement string
	Status           string
	Health           string
	Tags             []string
	Technologies     []string
	TeamMemberIDs    []string
	// PlayIDs are attached with full-attach semantics: one unknown id
	// aborts the whole creation.
	PlayIDs []string
	ActorID string
}

// OpportunityUpdateOptions applies only the non-nil fields. PlayIDs, when
// set, is attached additively: new ids are attached, unknown ids skipped and
// nothing is ever removed.
type OpportunityUpdateOptions struct {
	Name             *string
	AccountName      *string
	AccountID        *string
	SalesStage       *string
	Region           *string
	Industry         *string
	Offering         *string
	ProblemStatement *string
	Status           *string
	Health           *string
	Tags             *[]string
	Technologies     *[]string
	TeamMemberIDs    *[]string
	PlayIDs          *[]string
	ActorID          string
}

// OpportunityPlayPatch edits one attachment.
type OpportunityPlayPatch struct {
	AliasName             *string
	IsActive              *bool
	IsPrimary             *bool
	SelectedTechnologyIDs *[]string
	ActorID               string
}

func (e Engine) CreateOpportunity(ctx context.Context, opts OpportunityCreateOptions) (domain.Opportunity, error) {
	o := domain.Opportunity{
		ID:               uuid.NewString(),
		Name:             strings.TrimSpace(opts.Name),
		AccountName:      strings.TrimSpace(opts.AccountName),
		AccountID:        opts.AccountID,
		SalesStage:       opts.SalesStage,
		Region:           opts.Region,
		Industry:         opts.Industry,
		Offering:         opts.Offering,
		ProblemStatement: opts.ProblemStatement,
		Status:           opts.Status,
		Health:           opts.Health,
		Tags:             opts.Tags,
		Technologies:     opts.Technologies,
		TeamMemberIDs:    opts.TeamMemberIDs,
	}
	if o.Name == "" {
		o.Name = "New Opportunity - " + opts.Offering
	}
	if o.AccountName == "" {
		o.AccountName = "New Account"
	}
	if o.Status == "" {
		o.Status = "active"
	}
	if o.Health == "" {
		o.Health = "green"
	}
	if err := validateOpportunityEnums(o.Status, o.Health); err != nil {
		return domain.Opportunity{}, err
	}
	playIDs, err := parsePlayIDs(opts.PlayIDs)
	if err != nil {
		return domain.Opportunity{}, err
	}
	now := e.timestamp()
	o.CreatedAt = now
	o.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Opportunity{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertOpportunityTx(ctx, tx, o); err != nil {
		return domain.Opportunity{}, fmt.Errorf("insert opportunity: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.OpportunityCreated, "opportunity", o.ID, opts.ActorID, events.EventPayload{
		"name":     o.Name,
		"play_ids": playIDs,
	}); err != nil {
		return domain.Opportunity{}, err
	}
	for _, pid := range playIDs {
		if _, err := e.attach(ctx, tx, o.ID, pid, opts.ActorID, now); err != nil {
			return domain.Opportunity{}, err
		}
	}
	created, err := e.Repo.GetOpportunityTx(ctx, tx, o.ID)
	if err != nil {
		return domain.Opportunity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Opportunity{}, err
	}
	return created, nil
}

func (e Engine) UpdateOpportunity(ctx context.Context, id string, opts OpportunityUpdateOptions) (domain.Opportunity, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Opportunity{}, err
	}
	defer tx.Rollback()

	o, err := e.Repo.GetOpportunityTx(ctx, tx, id)
	if err != nil {
		return domain.Opportunity{}, notFound(err, "opportunity", id)
	}
	var changed []string
	set := func(field string, dst *string, v *string) {
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
	set("name", &o.Name, opts.Name)
	set("account_name", &o.AccountName, opts.AccountName)
	set("account_id", &o.AccountID, opts.AccountID)
	set("sales_stage", &o.SalesStage, opts.SalesStage)
	set("region", &o.Region, opts.Region)
	set("industry", &o.Industry, opts.Industry)
	set("offering", &o.Offering, opts.Offering)
	set("problem_statement", &o.ProblemStatement, opts.ProblemStatement)
	set("status", &o.Status, opts.Status)
	set("health", &o.Health, opts.Health)
	setList("tags", &o.Tags, opts.Tags)
	setList("technologies", &o.Technologies, opts.Technologies)
	setList("team_member_user_ids", &o.TeamMemberIDs, opts.TeamMemberIDs)
	if err := validateOpportunityEnums(o.Status, o.Health); err != nil {
		return domain.Opportunity{}, err
	}

	now := e.timestamp()
	o.UpdatedAt = now
	if err := e.Repo.UpdateOpportunityTx(ctx, tx, o); err != nil {
		return domain.Opportunity{}, notFound(err, "opportunity", id)
	}
	var attached []int64
	if opts.PlayIDs != nil {
		if attached, err = e.attachAdditive(ctx, tx, id, *opts.PlayIDs, opts.ActorID, now); err != nil {
			return domain.Opportunity{}, err
		}
	}
	if err := e.Events.Append(ctx, tx, events.OpportunityUpdated, "opportunity", id, opts.ActorID, events.EventPayload{
		"fields":   changed,
		"attached": attached,
	}); err != nil {
		return domain.Opportunity{}, err
	}
	updated, err := e.Repo.GetOpportunityTx(ctx, tx, id)
	if err != nil {
		return domain.Opportunity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Opportunity{}, err
	}
	return updated, nil
}

// attach materializes one play onto an opportunity: a new active attachment
// plus one not_started stage instance per play stage, in stored order.
func (e Engine) attach(ctx context.Context, tx *sql.Tx, oppID string, playID int64, actorID, now string) (domain.OpportunityPlay, error) {
	play, err := e.Repo.GetPlayTx(ctx, tx, playID)
	if err != nil {
		return domain.OpportunityPlay{}, notFound(err, "play", playID)
	}
	op := domain.OpportunityPlay{
		ID:                    uuid.NewString(),
		OpportunityID:         oppID,
		PlayID:                playID,
		IsActive:              true,
		SelectedTechnologyIDs: []string{},
		CreatedAt:             now,
	}
	if err := e.Repo.InsertOpportunityPlayTx(ctx, tx, op); err != nil {
		return domain.OpportunityPlay{}, fmt.Errorf("insert opportunity play: %w", err)
	}
	for i, stage := range play.Stages {
		si := domain.StageInstance{
			ID:                    uuid.NewString(),
			OpportunityPlayID:     op.ID,
			PlayStageKey:          stage.Key,
			Position:              i,
			Status:                domain.StageNotStarted,
			ChecklistItemStatuses: map[string]string{},
			CustomChecklistItems:  []map[string]any{},
			RiskFlags:             []string{},
			Version:               1,
			UpdatedAt:             now,
		}
		if err := e.Repo.InsertStageInstanceTx(ctx, tx, si); err != nil {
			return domain.OpportunityPlay{}, fmt.Errorf("insert stage instance %s: %w", stage.Key, err)
		}
		op.StageInstances = append(op.StageInstances, si)
	}
	if err := e.Events.Append(ctx, tx, events.OpportunityPlayAttached, "opportunity", oppID, actorID, events.EventPayload{
		"play_id": playID,
		"stages":  play.StageKeys(),
	}); err != nil {
		return domain.OpportunityPlay{}, err
	}
	return op, nil
}

// attachAdditive attaches every requested play not yet attached. Ids that are
// malformed or point at no play are skipped with a warning.
func (e Engine) attachAdditive(ctx context.Context, tx *sql.Tx, oppID string, requested []string, actorID, now string) ([]int64, error) {
	existing, err := e.Repo.AttachedPlayIDsTx(ctx, tx, oppID)
	if err != nil {
		return nil, err
	}
	var attached []int64
	for _, raw := range requested {
		pid, err := ParsePlayID(raw)
		if err != nil {
			e.logger().Warn("skipping play id", slog.String("opportunity_id", oppID), slog.String("play_id", raw), slog.String("reason", "malformed"))
			continue
		}
		if existing[pid] {
			continue
		}
		existing[pid] = true
		if _, err := e.attach(ctx, tx, oppID, pid, actorID, now); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				e.logger().Warn("skipping play id", slog.String("opportunity_id", oppID), slog.Int64("play_id", pid), slog.String("reason", "not found"))
				continue
			}
			return nil, err
		}
		attached = append(attached, pid)
	}
	return attached, nil
}

func (e Engine) GetOpportunity(ctx context.Context, id string) (domain.Opportunity, error) {
	o, err := e.Repo.GetOpportunity(ctx, id)
	if err != nil {
		return domain.Opportunity{}, notFound(err, "opportunity", id)
	}
	return o, nil
}

func (e Engine) ListOpportunities(ctx context.Context, f repo.OpportunityFilters) ([]domain.Opportunity, error) {
	if f.Status != "" && !domain.ValidOpportunityStatus(f.Status) {
		return nil, invalid("status", "unknown status %q", f.Status)
	}
	return e.Repo.ListOpportunities(ctx, f)
}

// DeleteOpportunity removes the opportunity with its attachments, stage
// instances and notes.
func (e Engine) DeleteOpportunity(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteOpportunityTx(ctx, tx, id); err != nil {
		return notFound(err, "opportunity", id)
	}
	if err := e.Events.Append(ctx, tx, events.OpportunityDeleted, "opportunity", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// SetOpportunityPlay edits an attachment. Marking it primary clears the flag
// on its siblings and records it as the opportunity's primary play.
func (e Engine) SetOpportunityPlay(ctx context.Context, oppID string, playID int64, patch OpportunityPlayPatch) (domain.OpportunityPlay, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.OpportunityPlay{}, err
	}
	defer tx.Rollback()

	o, err := e.Repo.GetOpportunityTx(ctx, tx, oppID)
	if err != nil {
		return domain.OpportunityPlay{}, notFound(err, "opportunity", oppID)
	}
	op, err := e.Repo.GetOpportunityPlayTx(ctx, tx, oppID, playID)
	if err != nil {
		return domain.OpportunityPlay{}, notFound(err, "opportunity play", fmt.Sprintf("%s/%d", oppID, playID))
	}
	var changed []string
	if patch.AliasName != nil {
		op.AliasName = strings.TrimSpace(*patch.AliasName)
		changed = append(changed, "alias_name")
	}
	if patch.IsActive != nil {
		op.IsActive = *patch.IsActive
		changed = append(changed, "is_active")
	}
	if patch.SelectedTechnologyIDs != nil {
		op.SelectedTechnologyIDs = *patch.SelectedTechnologyIDs
		changed = append(changed, "selected_technology_ids")
	}
	if patch.IsPrimary != nil {
		op.IsPrimary = *patch.IsPrimary
		changed = append(changed, "is_primary")
	}
	if err := e.Repo.UpdateOpportunityPlayTx(ctx, tx, op); err != nil {
		return domain.OpportunityPlay{}, err
	}
	now := e.timestamp()
	if patch.IsPrimary != nil {
		switch {
		case *patch.IsPrimary:
			if err := e.Repo.ClearPrimaryTx(ctx, tx, oppID, op.ID); err != nil {
				return domain.OpportunityPlay{}, err
			}
			if err := e.Repo.SetPrimaryPlayTx(ctx, tx, oppID, &playID, now); err != nil {
				return domain.OpportunityPlay{}, err
			}
		case o.PrimaryPlayID != nil && *o.PrimaryPlayID == playID:
			if err := e.Repo.SetPrimaryPlayTx(ctx, tx, oppID, nil, now); err != nil {
				return domain.OpportunityPlay{}, err
			}
		}
	} else if err := e.Repo.TouchOpportunityTx(ctx, tx, oppID, now); err != nil {
		return domain.OpportunityPlay{}, err
	}
	if err := e.Events.Append(ctx, tx, events.OpportunityPlayUpdated, "opportunity", oppID, patch.ActorID, events.EventPayload{
		"play_id": playID,
		"fields":  changed,
	}); err != nil {
		return domain.OpportunityPlay{}, err
	}
	updated, err := e.Repo.GetOpportunityPlayTx(ctx, tx, oppID, playID)
	if err != nil {
		return domain.OpportunityPlay{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.OpportunityPlay{}, err
	}
	return updated, nil
}

// DetachPlay removes an attachment and its stage instances.
func (e Engine) DetachPlay(ctx context.Context, oppID string, playID int64, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	o, err := e.Repo.GetOpportunityTx(ctx, tx, oppID)
	if err != nil {
		return notFound(err, "opportunity", oppID)
	}
	op, err := e.Repo.GetOpportunityPlayTx(ctx, tx, oppID, playID)
	if err != nil {
		return notFound(err, "opportunity play", fmt.Sprintf("%s/%d", oppID, playID))
	}
	if err := e.Repo.DeleteOpportunityPlayTx(ctx, tx, op.ID); err != nil {
		return err
	}
	now := e.timestamp()
	var primary *int64
	if o.PrimaryPlayID != nil && *o.PrimaryPlayID != playID {
		primary = o.PrimaryPlayID
	}
	if err := e.Repo.SetPrimaryPlayTx(ctx, tx, oppID, primary, now); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.OpportunityPlayDetached, "opportunity", oppID, actorID, events.EventPayload{"play_id": playID}); err != nil {
		return err
	}
	return tx.Commit()
}

func validateOpportunityEnums(status, health string) error {
	if !domain.ValidOpportunityStatus(status) {
		return invalid("status", "unknown status %q, expected one of %s", status, strings.Join(domain.OpportunityStatuses, ", "))
	}
	if !domain.ValidOpportunityHealth(health) {
		return invalid("health", "unknown health %q, expected one of %s", health, strings.Join(domain.OpportunityHealths, ", "))
	}
	return nil
}

// parsePlayIDs parses and de-duplicates ids, keeping first occurrence order.
func parsePlayIDs(raw []string) ([]int64, error) {
	seen := map[int64]bool{}
	ids := []int64{}
	for _, r := range raw {
		id, err := ParsePlayID(r)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}
