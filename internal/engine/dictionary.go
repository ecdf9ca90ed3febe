package engine

import (
	"context"
	"database/sql"
	"strings"

	"playbook/internal/domain"
	"playbook/internal/events"
	"playbook/internal/repo"
)

func (e Engine) Dictionary(ctx context.Context) (domain.Dictionary, error) {
	return e.Repo.Dictionary(ctx)
}

func parseKind(raw string) (domain.DictionaryKind, error) {
	kind, ok := domain.ParseDictionaryKind(strings.ToLower(strings.TrimSpace(raw)))
	if !ok {
		return "", invalid("kind", "unknown dictionary kind %q", raw)
	}
	return kind, nil
}

func requiredValue(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", invalid(field, "value is required")
	}
	return v, nil
}

func (e Engine) AddDictionaryOption(ctx context.Context, rawKind, value, actorID string) error {
	kind, err := parseKind(rawKind)
	if err != nil {
		return err
	}
	if value, err = requiredValue("value", value); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	exists, err := e.Repo.DictionaryHasTx(ctx, tx, kind, value)
	if err != nil {
		return err
	}
	if exists {
		return conflict("%s %q already exists", kind, value)
	}
	if err := e.Repo.InsertDictionaryValueTx(ctx, tx, kind, value); err != nil {
		return err
	}
	if err := e.appendDictionaryEvent(ctx, tx, kind, "add", actorID, events.EventPayload{"value": value}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) RenameDictionaryOption(ctx context.Context, rawKind, oldValue, newValue, actorID string) error {
	kind, err := parseKind(rawKind)
	if err != nil {
		return err
	}
	if newValue, err = requiredValue("new_value", newValue); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if newValue != oldValue {
		exists, err := e.Repo.DictionaryHasTx(ctx, tx, kind, newValue)
		if err != nil {
			return err
		}
		if exists {
			return conflict("%s %q already exists", kind, newValue)
		}
	}
	if err := e.Repo.RenameDictionaryValueTx(ctx, tx, kind, oldValue, newValue); err != nil {
		return notFound(err, string(kind), oldValue)
	}
	if err := e.appendDictionaryEvent(ctx, tx, kind, "rename", actorID, events.EventPayload{"value": oldValue, "new_value": newValue}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) DeleteDictionaryOption(ctx context.Context, rawKind, value, actorID string) error {
	kind, err := parseKind(rawKind)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteDictionaryValueTx(ctx, tx, kind, value); err != nil {
		return notFound(err, string(kind), value)
	}
	if err := e.appendDictionaryEvent(ctx, tx, kind, "delete", actorID, events.EventPayload{"value": value}); err != nil {
		return err
	}
	return tx.Commit()
}

// MapOfferingTechnology links (action "add") or unlinks (action "remove") a
// technology from an offering. Both must already exist.
func (e Engine) MapOfferingTechnology(ctx context.Context, offering, technology, action, actorID string) error {
	var link bool
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "add":
		link = true
	case "remove":
	default:
		return invalid("action", "expected add or remove, got %q", action)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for kind, name := range map[domain.DictionaryKind]string{domain.DictOfferings: offering, domain.DictTechnologies: technology} {
		ok, err := e.Repo.DictionaryHasTx(ctx, tx, kind, name)
		if err != nil {
			return err
		}
		if !ok {
			return notFound(repo.ErrNotFound, string(kind), name)
		}
	}
	if err := e.Repo.SetOfferingTechnologyTx(ctx, tx, offering, technology, link); err != nil {
		return notFound(err, "technology", technology)
	}
	if err := e.appendDictionaryEvent(ctx, tx, domain.DictTechnologies, "map", actorID, events.EventPayload{
		"offering":   offering,
		"technology": technology,
		"mapping":    action,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) appendDictionaryEvent(ctx context.Context, tx *sql.Tx, kind domain.DictionaryKind, action, actorID string, payload events.EventPayload) error {
	payload["kind"] = string(kind)
	payload["action"] = action
	return e.Events.Append(ctx, tx, events.DictionaryChanged, "dictionary", string(kind), actorID, payload)
}
