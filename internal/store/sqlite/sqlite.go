// Package sqlite implements the store interfaces on an embedded SQLite
// database. A single cabinet writes from one process, so the default
// connection settings are sufficient.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"medcab/internal/catalog"
	"medcab/internal/identity"
	"medcab/internal/store"
	"medcab/pkg/colorutil"
)

const schema = `
CREATE TABLE IF NOT EXISTS identities (
	id          TEXT PRIMARY KEY,
	code        TEXT NOT NULL,
	name        TEXT NOT NULL,
	embedding   TEXT NOT NULL DEFAULT '',
	enrolled_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS medications (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	generic_name      TEXT NOT NULL DEFAULT '',
	dosage            TEXT NOT NULL DEFAULT '',
	description       TEXT NOT NULL DEFAULT '',
	location          TEXT NOT NULL DEFAULT '',
	quantity          INTEGER NOT NULL DEFAULT 0,
	min_quantity      INTEGER NOT NULL DEFAULT 0,
	expiration        TIMESTAMP,
	shape             TEXT NOT NULL DEFAULT '',
	color             TEXT NOT NULL DEFAULT '',
	size              TEXT NOT NULL DEFAULT '',
	imprint           TEXT NOT NULL DEFAULT '',
	image_path        TEXT NOT NULL DEFAULT '',
	class_index       INTEGER,
	single_dose_limit INTEGER,
	daily_limit       INTEGER,
	warning_pct       INTEGER
);

CREATE TABLE IF NOT EXISTS checkouts (
	id            TEXT PRIMARY KEY,
	medication_id TEXT NOT NULL,
	subject_id    TEXT NOT NULL,
	subject_name  TEXT NOT NULL DEFAULT '',
	quantity      INTEGER NOT NULL,
	method        TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkouts_day
	ON checkouts (medication_id, subject_id, created_at);

CREATE TABLE IF NOT EXISTS warnings (
	id            TEXT PRIMARY KEY,
	medication_id TEXT NOT NULL,
	subject_id    TEXT NOT NULL,
	rule          TEXT NOT NULL,
	severity      TEXT NOT NULL,
	message       TEXT NOT NULL DEFAULT '',
	acknowledged  INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_events (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	subject    TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS inventory_logs (
	id             TEXT PRIMARY KEY,
	medication_id  TEXT NOT NULL,
	action         TEXT NOT NULL,
	quantity_delta INTEGER NOT NULL,
	quantity_after INTEGER NOT NULL,
	actor          TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMP NOT NULL
);
`

// Store is a SQLite-backed implementation of store.Store.
type Store struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) SaveIdentity(ctx context.Context, id identity.Identity) error {
	emb, err := json.Marshal(id.Embedding)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO identities (id, code, name, embedding, enrolled_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET code = excluded.code, name = excluded.name,
		    embedding = excluded.embedding`,
		id.ID, id.Code, id.Name, string(emb), id.EnrolledAt)
	if err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}
	return nil
}

func (s *Store) Identities(ctx context.Context) (identity.Snapshot, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, code, name, embedding, enrolled_at
		FROM identities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query identities: %w", err)
	}
	defer rows.Close()

	var out identity.Snapshot
	for rows.Next() {
		var (
			rec identity.Identity
			emb string
		)
		if err := rows.Scan(&rec.ID, &rec.Code, &rec.Name, &emb, &rec.EnrolledAt); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		if emb != "" {
			if err := json.Unmarshal([]byte(emb), &rec.Embedding); err != nil {
				return nil, fmt.Errorf("failed to decode embedding for %s: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) DeleteIdentity(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM identities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SaveEntry(ctx context.Context, e catalog.Entry) error {
	var sdl, dl, wp *int
	if e.Threshold != nil {
		sdl = &e.Threshold.SingleDoseLimit
		dl = &e.Threshold.DailyLimit
		wp = &e.Threshold.WarningPercentage
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO medications (
			id, name, generic_name, dosage, description, location,
			quantity, min_quantity, expiration, shape, color, size,
			imprint, image_path, class_index,
			single_dose_limit, daily_limit, warning_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, generic_name = excluded.generic_name,
			dosage = excluded.dosage, description = excluded.description,
			location = excluded.location, quantity = excluded.quantity,
			min_quantity = excluded.min_quantity,
			expiration = excluded.expiration, shape = excluded.shape,
			color = excluded.color, size = excluded.size,
			imprint = excluded.imprint, image_path = excluded.image_path,
			class_index = excluded.class_index,
			single_dose_limit = excluded.single_dose_limit,
			daily_limit = excluded.daily_limit,
			warning_pct = excluded.warning_pct`,
		e.ID, e.Name, e.GenericName, e.Dosage, e.Description, e.Location,
		e.Quantity, e.MinQuantity, e.Expiration, string(e.Shape),
		string(e.Color), string(e.Size), e.Imprint, e.ImagePath,
		e.ClassIndex, sdl, dl, wp)
	if err != nil {
		return fmt.Errorf("failed to save medication: %w", err)
	}
	return nil
}

func (s *Store) Entries(ctx context.Context) (catalog.Snapshot, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, name, generic_name, dosage, description, location,
		       quantity, min_quantity, expiration, shape, color, size,
		       imprint, image_path, class_index,
		       single_dose_limit, daily_limit, warning_pct
		FROM medications ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query medications: %w", err)
	}
	defer rows.Close()

	var out catalog.Snapshot
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) EntryByID(ctx context.Context, id string) (catalog.Entry, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, name, generic_name, dosage, description, location,
		       quantity, min_quantity, expiration, shape, color, size,
		       imprint, image_path, class_index,
		       single_dose_limit, daily_limit, warning_pct
		FROM medications WHERE id = ?`, id)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("failed to query medication: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return catalog.Entry{}, store.ErrNotFound
	}
	return scanEntry(rows)
}

func scanEntry(rows *sqlx.Rows) (catalog.Entry, error) {
	var (
		e             catalog.Entry
		shape, color  string
		size          string
		expiration    sql.NullTime
		classIdx      sql.NullInt64
		sdl, dl, warn sql.NullInt64
	)
	err := rows.Scan(&e.ID, &e.Name, &e.GenericName, &e.Dosage,
		&e.Description, &e.Location, &e.Quantity, &e.MinQuantity,
		&expiration, &shape, &color, &size, &e.Imprint, &e.ImagePath,
		&classIdx, &sdl, &dl, &warn)
	if err != nil {
		return catalog.Entry{}, fmt.Errorf("failed to scan medication: %w", err)
	}
	e.Shape = catalog.Shape(shape)
	e.Color = colorutil.Name(color)
	e.Size = catalog.SizeBucket(size)
	if expiration.Valid {
		t := expiration.Time
		e.Expiration = &t
	}
	if classIdx.Valid {
		v := int(classIdx.Int64)
		e.ClassIndex = &v
	}
	if sdl.Valid || dl.Valid || warn.Valid {
		e.Threshold = &catalog.Threshold{
			SingleDoseLimit:   int(sdl.Int64),
			DailyLimit:        int(dl.Int64),
			WarningPercentage: int(warn.Int64),
		}
	}
	return e, nil
}

func (s *Store) AdjustQuantity(ctx context.Context, id string, delta int) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current int
	err = tx.QueryRowxContext(ctx,
		`SELECT quantity FROM medications WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read quantity: %w", err)
	}

	next := current + delta
	if next < 0 {
		return current, store.ErrInsufficientStock
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE medications SET quantity = ? WHERE id = ?`, next, id); err != nil {
		return 0, fmt.Errorf("failed to update quantity: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit quantity change: %w", err)
	}
	return next, nil
}

func (s *Store) RecordCheckout(ctx context.Context, c store.Checkout) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkouts (id, medication_id, subject_id, subject_name,
			quantity, method, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.MedicationID, c.SubjectID, c.SubjectName, c.Quantity,
		c.Method, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record checkout: %w", err)
	}
	return nil
}

func (s *Store) TotalForDay(ctx context.Context, medicationID, subjectID string, at time.Time) (int, error) {
	dayStart := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	var total sql.NullInt64
	err := s.db.QueryRowxContext(ctx, `
		SELECT SUM(quantity) FROM checkouts
		WHERE medication_id = ? AND subject_id = ?
		  AND created_at >= ? AND created_at < ?`,
		medicationID, subjectID, dayStart, dayEnd).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum checkouts: %w", err)
	}
	return int(total.Int64), nil
}

func (s *Store) RecordWarning(ctx context.Context, w store.Warning) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO warnings (id, medication_id, subject_id, rule,
			severity, message, acknowledged, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.MedicationID, w.SubjectID, w.Rule, w.Severity, w.Message,
		w.Acknowledged, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record warning: %w", err)
	}
	return nil
}

func (s *Store) UnacknowledgedWarnings(ctx context.Context) ([]store.Warning, error) {
	var out []store.Warning
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, medication_id, subject_id, rule, severity, message,
		       acknowledged, created_at
		FROM warnings WHERE acknowledged = 0 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query warnings: %w", err)
	}
	return out, nil
}

func (s *Store) AcknowledgeWarning(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE warnings SET acknowledged = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to acknowledge warning: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RecordEvent(ctx context.Context, e store.AuditEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, kind, subject, detail, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.Subject, e.Detail, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

func (s *Store) RecentEvents(ctx context.Context, limit int) ([]store.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []store.AuditEvent
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, kind, subject, detail, created_at FROM audit_events
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	return out, nil
}

func (s *Store) RecordMovement(ctx context.Context, l store.InventoryLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_logs (id, medication_id, action,
			quantity_delta, quantity_after, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.MedicationID, l.Action, l.QuantityDelta, l.QuantityAfter,
		l.Actor, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record inventory movement: %w", err)
	}
	return nil
}
