package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"playbook/internal/domain"
	"playbook/internal/events"
	"playbook/internal/repo"
)

// StagePatch is a sparse stage instance update. Nil fields are left alone;
// an empty date or note string clears the stored value.
type StagePatch struct {
	Status        *string
	StartDate     *string
	TargetDate    *string
	CompletedDate *string
	SummaryNote   *string
	// ChecklistItemStatuses is merged into the stored map, incoming keys win.
	ChecklistItemStatuses map[string]string
	// CustomChecklistItems replaces the stored list when non-nil.
	CustomChecklistItems []map[string]any
	// RiskFlags replaces the stored set when non-nil.
	RiskFlags       []string
	ExpectedVersion *int64
	ActorID         string
}

// UpdateStageInstance applies patch to the stage instance of stageKey under
// the attachment of playID to oppID. Instances are never created here.
func (e Engine) UpdateStageInstance(ctx context.Context, oppID string, playID int64, stageKey string, patch StagePatch) (domain.StageInstance, error) {
	if patch.Status != nil && !domain.ValidStageStatus(*patch.Status) {
		return domain.StageInstance{}, invalid("status", "unknown status %q, expected one of %s", *patch.Status, strings.Join(domain.StageStatuses, ", "))
	}
	for field, v := range map[string]*string{"start_date": patch.StartDate, "target_date": patch.TargetDate, "completed_date": patch.CompletedDate} {
		if err := validateDate(field, v); err != nil {
			return domain.StageInstance{}, err
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StageInstance{}, err
	}
	defer tx.Rollback()

	op, err := e.Repo.GetOpportunityPlayTx(ctx, tx, oppID, playID)
	if err != nil {
		return domain.StageInstance{}, notFound(err, "opportunity play", fmt.Sprintf("%s/%d", oppID, playID))
	}
	si, err := e.Repo.GetStageInstanceTx(ctx, tx, op.ID, stageKey)
	if err != nil {
		return domain.StageInstance{}, notFound(err, "stage", stageKey)
	}
	if patch.ExpectedVersion != nil && *patch.ExpectedVersion != si.Version {
		return domain.StageInstance{}, conflict("stage %s is at version %d, not %d", stageKey, si.Version, *patch.ExpectedVersion)
	}

	changed := applyStagePatch(&si, patch)
	si.UpdatedAt = e.timestamp()
	if _, err := e.Repo.UpdateStageInstanceTx(ctx, tx, si); err != nil {
		if errors.Is(err, repo.ErrStale) {
			return domain.StageInstance{}, conflict("stage %s changed concurrently", stageKey)
		}
		return domain.StageInstance{}, err
	}
	if err := e.Repo.TouchOpportunityTx(ctx, tx, oppID, si.UpdatedAt); err != nil {
		return domain.StageInstance{}, err
	}
	if err := e.Events.Append(ctx, tx, events.StageUpdated, "stage_instance", si.ID, patch.ActorID, events.EventPayload{
		"opportunity_id": oppID,
		"play_id":        playID,
		"stage_key":      stageKey,
		"status":         si.Status,
		"fields":         changed,
	}); err != nil {
		return domain.StageInstance{}, err
	}
	updated, err := e.Repo.GetStageInstanceByIDTx(ctx, tx, si.ID)
	if err != nil {
		return domain.StageInstance{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.StageInstance{}, err
	}
	return updated, nil
}

func applyStagePatch(si *domain.StageInstance, patch StagePatch) []string {
	changed := []string{}
	if patch.Status != nil {
		si.Status = *patch.Status
		changed = append(changed, "status")
	}
	optional := []struct {
		field string
		dst   **string
		v     *string
	}{
		{"start_date", &si.StartDate, patch.StartDate},
		{"target_date", &si.TargetDate, patch.TargetDate},
		{"completed_date", &si.CompletedDate, patch.CompletedDate},
		{"summary_note", &si.SummaryNote, patch.SummaryNote},
	}
	for _, o := range optional {
		if o.v == nil {
			continue
		}
		if *o.v == "" {
			*o.dst = nil
		} else {
			v := *o.v
			*o.dst = &v
		}
		changed = append(changed, o.field)
	}
	if patch.ChecklistItemStatuses != nil {
		if si.ChecklistItemStatuses == nil {
			si.ChecklistItemStatuses = map[string]string{}
		}
		maps.Copy(si.ChecklistItemStatuses, patch.ChecklistItemStatuses)
		changed = append(changed, "checklist_item_statuses")
	}
	if patch.CustomChecklistItems != nil {
		si.CustomChecklistItems = patch.CustomChecklistItems
		changed = append(changed, "custom_checklist_items")
	}
	if patch.RiskFlags != nil {
		si.RiskFlags = dedupe(patch.RiskFlags)
		changed = append(changed, "risk_flags")
	}
	return changed
}

func validateDate(field string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	if _, err := time.Parse(time.RFC3339, *v); err == nil {
		return nil
	}
	if _, err := time.Parse(time.DateOnly, *v); err == nil {
		return nil
	}
	return invalid(field, "expected an RFC3339 timestamp or YYYY-MM-DD date, got %q", *v)
}

func dedupe(values []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
