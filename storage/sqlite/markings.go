package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/tailored-agentic-units/workflow/workflow"
)

// MarkingStore keeps subject markings in the markings table keyed by subject
// type, subject id and property. Subjects must implement
// workflow.SubjectIdentifier.
type MarkingStore struct {
	sqlDB    *sql.DB
	property string
}

// MarkingStore returns a marking store sharing the store's database.
func (s *Store) MarkingStore(property string) *MarkingStore {
	if property == "" {
		property = workflow.DefaultMarkingProperty
	}
	return &MarkingStore{sqlDB: s.sqlDB, property: property}
}

// MarkingStoreFactory adapts the store for workflow.RegisterMarkingStore.
// The single state flag does not change how markings are stored.
func (s *Store) MarkingStoreFactory() workflow.MarkingStoreFactory {
	return func(singleState bool, property string) (workflow.MarkingStore, error) {
		if s == nil || s.sqlDB == nil {
			return nil, fmt.Errorf("storage is not configured")
		}
		return s.MarkingStore(property), nil
	}
}

type subjectKey struct {
	subjectType string
	subjectID   string
}

func keyOf(subject any) (subjectKey, error) {
	id, err := workflow.IDOf(subject)
	if err != nil {
		return subjectKey{}, err
	}
	return subjectKey{subjectType: workflow.TypeOf(subject), subjectID: id}, nil
}

// Marking reads the stored places; a missing row is an empty marking.
func (m *MarkingStore) Marking(ctx context.Context, subject any) (workflow.Marking, error) {
	key, err := keyOf(subject)
	if err != nil {
		return workflow.Marking{}, err
	}

	var raw string
	err = m.sqlDB.QueryRowContext(ctx,
		`SELECT places FROM markings WHERE subject_type = ? AND subject_id = ? AND property = ?`,
		key.subjectType, key.subjectID, m.property,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Marking{}, nil
	}
	if err != nil {
		return workflow.Marking{}, fmt.Errorf("read marking: %w", err)
	}

	var places []string
	if err := json.Unmarshal([]byte(raw), &places); err != nil {
		return workflow.Marking{}, fmt.Errorf("decode marking: %w", err)
	}
	return workflow.NewMarking(places...), nil
}

// SetMarking upserts the marking row without comparing.
func (m *MarkingStore) SetMarking(ctx context.Context, subject any, marking workflow.Marking, payload map[string]any) error {
	key, err := keyOf(subject)
	if err != nil {
		return err
	}
	places, placesKey, err := encodeMarking(marking)
	if err != nil {
		return err
	}

	if _, err := m.sqlDB.ExecContext(ctx,
		`INSERT INTO markings (subject_type, subject_id, property, places, places_key, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (subject_type, subject_id, property)
		 DO UPDATE SET places = excluded.places, places_key = excluded.places_key, updated_at = excluded.updated_at`,
		key.subjectType, key.subjectID, m.property, places, placesKey, toMillis(time.Now()),
	); err != nil {
		return fmt.Errorf("write marking: %w", err)
	}
	return nil
}

// CompareAndSwap writes next only while the stored marking still equals old.
// The comparison runs inside the UPDATE statement so concurrent writers
// cannot interleave between the check and the write.
func (m *MarkingStore) CompareAndSwap(ctx context.Context, subject any, old, next workflow.Marking, payload map[string]any) error {
	key, err := keyOf(subject)
	if err != nil {
		return err
	}
	_, oldKey, err := encodeMarking(old)
	if err != nil {
		return err
	}
	places, placesKey, err := encodeMarking(next)
	if err != nil {
		return err
	}
	now := toMillis(time.Now())

	result, err := m.sqlDB.ExecContext(ctx,
		`UPDATE markings SET places = ?, places_key = ?, updated_at = ?
		  WHERE subject_type = ? AND subject_id = ? AND property = ? AND places_key = ?`,
		places, placesKey, now, key.subjectType, key.subjectID, m.property, oldKey,
	)
	if err != nil {
		return fmt.Errorf("swap marking: %w", err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("swap marking rows affected: %w", err)
	} else if affected == 1 {
		return nil
	}

	if old.IsEmpty() {
		result, err := m.sqlDB.ExecContext(ctx,
			`INSERT INTO markings (subject_type, subject_id, property, places, places_key, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (subject_type, subject_id, property) DO NOTHING`,
			key.subjectType, key.subjectID, m.property, places, placesKey, now,
		)
		if err != nil {
			return fmt.Errorf("insert marking: %w", err)
		}
		if affected, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("insert marking rows affected: %w", err)
		} else if affected == 1 {
			return nil
		}
	}

	return fmt.Errorf("%w: %s/%s/%s", workflow.ErrMarkingConflict, key.subjectType, key.subjectID, m.property)
}

// encodeMarking returns the ordered places and an order-insensitive key.
func encodeMarking(marking workflow.Marking) (string, string, error) {
	places := marking.Places()
	if places == nil {
		places = []string{}
	}
	ordered, err := json.Marshal(places)
	if err != nil {
		return "", "", fmt.Errorf("encode marking: %w", err)
	}

	sorted := slices.Clone(places)
	slices.Sort(sorted)
	key, err := json.Marshal(sorted)
	if err != nil {
		return "", "", fmt.Errorf("encode marking key: %w", err)
	}
	return string(ordered), string(key), nil
}

var (
	_ workflow.MarkingStore      = (*MarkingStore)(nil)
	_ workflow.CompareAndSwapper = (*MarkingStore)(nil)
)
