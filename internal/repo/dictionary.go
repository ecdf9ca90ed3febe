package repo

import (
	"context"
	"database/sql"
	"fmt"

	"playbook/internal/domain"
)

// DictionaryValues lists the names of one taxonomy in insertion order.
func (r Repo) DictionaryValues(ctx context.Context, kind domain.DictionaryKind) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, fmt.Sprintf(`SELECT name FROM %s ORDER BY id`, kind.Table()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res = append(res, name)
	}
	return res, rows.Err()
}

// Dictionary returns every taxonomy plus the offering and category mappings.
func (r Repo) Dictionary(ctx context.Context) (domain.Dictionary, error) {
	var d domain.Dictionary
	lists := map[domain.DictionaryKind]*[]string{
		domain.DictOfferings:    &d.Offerings,
		domain.DictTechnologies: &d.Technologies,
		domain.DictStages:       &d.Stages,
		domain.DictSectors:      &d.Sectors,
		domain.DictGeos:         &d.Geos,
		domain.DictTags:         &d.Tags,
	}
	for _, kind := range domain.DictionaryKinds {
		values, err := r.DictionaryValues(ctx, kind)
		if err != nil {
			return d, fmt.Errorf("dictionary %s: %w", kind, err)
		}
		*lists[kind] = values
	}

	rows, err := r.DB.QueryContext(ctx, `SELECT t.name, COALESCE(t.category,''), COALESCE(o.name,'')
FROM technologies t LEFT JOIN offerings o ON o.id=t.offering_id ORDER BY t.id`)
	if err != nil {
		return d, err
	}
	defer rows.Close()
	d.OfferingToTechnologies = map[string][]string{}
	d.TechnologyCategories = map[string]string{}
	for _, o := range d.Offerings {
		d.OfferingToTechnologies[o] = []string{}
	}
	for rows.Next() {
		var tech, category, offering string
		if err := rows.Scan(&tech, &category, &offering); err != nil {
			return d, err
		}
		if category != "" {
			d.TechnologyCategories[tech] = category
		}
		if offering != "" {
			d.OfferingToTechnologies[offering] = append(d.OfferingToTechnologies[offering], tech)
		}
	}
	return d, rows.Err()
}

func (r Repo) DictionaryHasTx(ctx context.Context, tx *sql.Tx, kind domain.DictionaryKind, name string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT 1 FROM %s WHERE name=?`, kind.Table()), name).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) InsertDictionaryValueTx(ctx context.Context, tx *sql.Tx, kind domain.DictionaryKind, name string) error {
	_, err := tx.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s(name) VALUES (?)`, kind.Table()), name)
	return err
}

func (r Repo) RenameDictionaryValueTx(ctx context.Context, tx *sql.Tx, kind domain.DictionaryKind, oldName, newName string) error {
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET name=? WHERE name=?`, kind.Table()), newName, oldName)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteDictionaryValueTx(ctx context.Context, tx *sql.Tx, kind domain.DictionaryKind, name string) error {
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE name=?`, kind.Table()), name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetOfferingTechnologyTx links or unlinks a technology from an offering.
// Unlinking only clears the link when it points at that offering.
func (r Repo) SetOfferingTechnologyTx(ctx context.Context, tx *sql.Tx, offering, technology string, link bool) error {
	var res sql.Result
	var err error
	if link {
		res, err = tx.ExecContext(ctx, `UPDATE technologies SET offering_id=(SELECT id FROM offerings WHERE name=?) WHERE name=?`, offering, technology)
	} else {
		res, err = tx.ExecContext(ctx, `UPDATE technologies SET offering_id=NULL WHERE name=? AND offering_id=(SELECT id FROM offerings WHERE name=?)`, technology, offering)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 && link {
		return ErrNotFound
	}
	return nil
}
