package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"playbook/internal/domain"
	"playbook/internal/events"
)

type NoteOptions struct {
	Content   string
	IsPrivate bool
	ActorID   string
}

type NotePatch struct {
	Content   *string
	IsPrivate *bool
	ActorID   string
}

func (e Engine) AddStageNote(ctx context.Context, stageInstanceID string, opts NoteOptions) (domain.StageNote, error) {
	content := strings.TrimSpace(opts.Content)
	if content == "" {
		return domain.StageNote{}, invalid("content", "content is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StageNote{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetStageInstanceByIDTx(ctx, tx, stageInstanceID); err != nil {
		return domain.StageNote{}, notFound(err, "stage instance", stageInstanceID)
	}
	now := e.timestamp()
	n := domain.StageNote{
		ID:              uuid.NewString(),
		StageInstanceID: stageInstanceID,
		Content:         content,
		IsPrivate:       opts.IsPrivate,
		AuthorID:        opts.ActorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.Repo.InsertStageNoteTx(ctx, tx, n); err != nil {
		return domain.StageNote{}, err
	}
	if err := e.Events.Append(ctx, tx, events.StageNoteAdded, "stage_note", n.ID, opts.ActorID, events.EventPayload{
		"stage_instance_id": stageInstanceID,
		"is_private":        n.IsPrivate,
	}); err != nil {
		return domain.StageNote{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.StageNote{}, err
	}
	return n, nil
}

// ListStageNotes returns notes newest first.
func (e Engine) ListStageNotes(ctx context.Context, stageInstanceID string) ([]domain.StageNote, error) {
	if err := e.Repo.StageInstanceExists(ctx, stageInstanceID); err != nil {
		return nil, notFound(err, "stage instance", stageInstanceID)
	}
	return e.Repo.ListStageNotes(ctx, stageInstanceID)
}

func (e Engine) UpdateStageNote(ctx context.Context, noteID string, patch NotePatch) (domain.StageNote, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StageNote{}, err
	}
	defer tx.Rollback()

	n, err := e.Repo.GetStageNoteTx(ctx, tx, noteID)
	if err != nil {
		return domain.StageNote{}, notFound(err, "note", noteID)
	}
	if patch.Content != nil {
		content := strings.TrimSpace(*patch.Content)
		if content == "" {
			return domain.StageNote{}, invalid("content", "content is required")
		}
		n.Content = content
	}
	if patch.IsPrivate != nil {
		n.IsPrivate = *patch.IsPrivate
	}
	n.UpdatedAt = e.timestamp()
	updated, err := e.Repo.UpdateStageNoteTx(ctx, tx, n)
	if err != nil {
		return domain.StageNote{}, notFound(err, "note", noteID)
	}
	if err := e.Events.Append(ctx, tx, events.StageNoteUpdated, "stage_note", noteID, patch.ActorID, nil); err != nil {
		return domain.StageNote{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.StageNote{}, err
	}
	return updated, nil
}

func (e Engine) DeleteStageNote(ctx context.Context, noteID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteStageNoteTx(ctx, tx, noteID); err != nil {
		return notFound(err, "note", noteID)
	}
	if err := e.Events.Append(ctx, tx, events.StageNoteDeleted, "stage_note", noteID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
