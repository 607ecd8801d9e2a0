package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/cg-order-portal/internal/domain"
)

// SQLStore implements domain.ProjectStore on database/sql with SQLite syntax.
type SQLStore struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath and its schema.
func NewSQLiteStore(dbPath string, logger *logrus.Logger) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// one writer; sqlite serialises anyway
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting %q: %w", pragma, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return NewSQLStore(db, logger), nil
}

// NewSQLStore wraps an open database that already carries the schema.
func NewSQLStore(db *sql.DB, logger *logrus.Logger) *SQLStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &SQLStore{db: db, log: logger}
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS customer (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		scout_access INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS application_tag (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		category TEXT NOT NULL DEFAULT '',
		is_panel INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS application_tag_version (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tag_id INTEGER NOT NULL REFERENCES application_tag(id) ON DELETE CASCADE,
		version INTEGER NOT NULL,
		reads INTEGER NOT NULL DEFAULT 0,
		is_accredited INTEGER NOT NULL DEFAULT 0,
		valid_from DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(tag_id, version)
	);

	CREATE TABLE IF NOT EXISTS project (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL REFERENCES customer(id),
		name TEXT NOT NULL,
		is_locked INTEGER NOT NULL DEFAULT 0,
		lims_id TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(customer_id, name)
	);

	CREATE TABLE IF NOT EXISTS family (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES project(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		delivery_type TEXT NOT NULL,
		priority TEXT NOT NULL,
		require_qcok INTEGER NOT NULL DEFAULT 0,
		panels TEXT NOT NULL DEFAULT '',
		UNIQUE(project_id, name)
	);

	CREATE TABLE IF NOT EXISTS sample (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		family_id INTEGER NOT NULL REFERENCES family(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		sex TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		container TEXT NOT NULL DEFAULT '',
		container_name TEXT NOT NULL DEFAULT '',
		well_position TEXT NOT NULL DEFAULT '',
		application_tag TEXT NOT NULL,
		capture_kit TEXT NOT NULL DEFAULT '',
		quantity INTEGER,
		mother TEXT NOT NULL DEFAULT '',
		father TEXT NOT NULL DEFAULT '',
		UNIQUE(family_id, name)
	);

	CREATE INDEX IF NOT EXISTS idx_project_locked ON project(is_locked);
	CREATE INDEX IF NOT EXISTS idx_sample_family ON sample(family_id);
	`

	_, err := db.Exec(schema)
	return err
}

// SaveCustomer inserts the customer or updates it by customer id.
func (s *SQLStore) SaveCustomer(ctx context.Context, customer *domain.Customer) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customer (customer_id, name, scout_access) VALUES (?, ?, ?)
		ON CONFLICT(customer_id) DO UPDATE SET name = excluded.name, scout_access = excluded.scout_access
		RETURNING id
	`, customer.CustomerID, customer.Name, customer.ScoutAccess).Scan(&customer.ID)
	if err != nil {
		return fmt.Errorf("saving customer %s: %w", customer.CustomerID, err)
	}
	return nil
}

// GetCustomer returns the customer with the given customer id.
func (s *SQLStore) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	customer := &domain.Customer{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, customer_id, name, scout_access FROM customer WHERE customer_id = ?", customerID,
	).Scan(&customer.ID, &customer.CustomerID, &customer.Name, &customer.ScoutAccess)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, customerNotFound(customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting customer %s: %w", customerID, err)
	}
	return customer, nil
}

// SaveApplicationTag upserts the tag and replaces its versions.
func (s *SQLStore) SaveApplicationTag(ctx context.Context, tag *domain.ApplicationTag) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var tagID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO application_tag (name, category, is_panel) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET category = excluded.category, is_panel = excluded.is_panel
		RETURNING id
	`, tag.Name, tag.Category, tag.IsPanel).Scan(&tagID)
	if err != nil {
		return fmt.Errorf("saving application tag %s: %w", tag.Name, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM application_tag_version WHERE tag_id = ?", tagID); err != nil {
		return fmt.Errorf("clearing versions of %s: %w", tag.Name, err)
	}
	for _, version := range tag.Versions {
		validFrom := version.ValidFrom
		if validFrom.IsZero() {
			validFrom = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO application_tag_version (tag_id, version, reads, is_accredited, valid_from)
			VALUES (?, ?, ?, ?, ?)
		`, tagID, version.Version, version.Reads, version.IsAccredited, validFrom)
		if err != nil {
			return fmt.Errorf("saving version %d of %s: %w", version.Version, tag.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing application tag %s: %w", tag.Name, err)
	}
	return nil
}

// GetApplicationTag returns the tag with its versions, latest first.
func (s *SQLStore) GetApplicationTag(ctx context.Context, name string) (*domain.ApplicationTag, error) {
	tag := &domain.ApplicationTag{}
	var tagID int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, category, is_panel FROM application_tag WHERE name = ?", name,
	).Scan(&tagID, &tag.Name, &tag.Category, &tag.IsPanel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tagNotFound(name)
	}
	if err != nil {
		return nil, fmt.Errorf("getting application tag %s: %w", name, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT version, reads, is_accredited, valid_from
		FROM application_tag_version WHERE tag_id = ? ORDER BY version DESC
	`, tagID)
	if err != nil {
		return nil, fmt.Errorf("getting versions of %s: %w", name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var version domain.ApplicationTagVersion
		if err := rows.Scan(&version.Version, &version.Reads, &version.IsAccredited, &version.ValidFrom); err != nil {
			return nil, fmt.Errorf("scanning version of %s: %w", name, err)
		}
		tag.Versions = append(tag.Versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating versions of %s: %w", name, err)
	}
	return tag, nil
}

// SaveProject stores a new project with its families and samples.
func (s *SQLStore) SaveProject(ctx context.Context, project *domain.ProjectRecord) (int64, error) {
	if err := checkStorable(project); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var customerID int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM customer WHERE customer_id = ?", project.Customer).Scan(&customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, unknownCustomer(project.Customer)
	}
	if err != nil {
		return 0, fmt.Errorf("looking up customer %s: %w", project.Customer, err)
	}

	var existing int64
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM project WHERE customer_id = ? AND name = ?", customerID, project.Name,
	).Scan(&existing)
	if err == nil {
		return 0, duplicateProject(project)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("checking project %s: %w", project.Name, err)
	}

	result, err := tx.ExecContext(ctx,
		"INSERT INTO project (customer_id, name, created_at) VALUES (?, ?, ?)",
		customerID, project.Name, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("inserting project %s: %w", project.Name, err)
	}
	projectID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting project id: %w", err)
	}

	for _, family := range project.Families {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO family (project_id, name, delivery_type, priority, require_qcok, panels)
			VALUES (?, ?, ?, ?, ?, ?)
		`, projectID, family.Name, family.DeliveryType, family.Priority, family.RequireQCOK, joinPanels(family.Panels))
		if err != nil {
			return 0, fmt.Errorf("inserting family %s: %w", family.Name, err)
		}
		familyID, err := result.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("getting family id: %w", err)
		}

		for _, sample := range family.Samples {
			var quantity sql.NullInt64
			if sample.Quantity != nil {
				quantity = sql.NullInt64{Int64: int64(*sample.Quantity), Valid: true}
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO sample (family_id, name, sex, status, source, container, container_name,
					well_position, application_tag, capture_kit, quantity, mother, father)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, familyID, sample.Name, string(sample.Sex), sample.Status, sample.Source, sample.Container,
				sample.ContainerName, sample.WellPosition, sample.ApplicationTag, sample.CaptureKit,
				quantity, sample.Mother, sample.Father)
			if err != nil {
				return 0, fmt.Errorf("inserting sample %s: %w", sample.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing project %s: %w", project.Name, err)
	}

	s.log.WithFields(logrus.Fields{
		"project_id": projectID,
		"project":    project.Name,
		"customer":   project.Customer,
		"families":   len(project.Families),
	}).Info("Project stored")
	return projectID, nil
}

// GetProject loads a stored project and rebuilds its record.
func (s *SQLStore) GetProject(ctx context.Context, id int64) (*domain.StoredProject, error) {
	stored := &domain.StoredProject{ID: id}
	var name, customer string
	err := s.db.QueryRowContext(ctx, `
		SELECT p.name, c.customer_id, p.is_locked, p.lims_id, p.created_at
		FROM project p JOIN customer c ON c.id = p.customer_id
		WHERE p.id = ?
	`, id).Scan(&name, &customer, &stored.IsLocked, &stored.LimsID, &stored.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, projectNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting project %d: %w", id, err)
	}

	builder := newProjectBuilder(name, customer)
	if err := s.loadFamilies(ctx, id, builder); err != nil {
		return nil, err
	}
	if err := s.loadSamples(ctx, id, builder); err != nil {
		return nil, err
	}
	stored.Record = builder.record
	return stored, nil
}

func (s *SQLStore) loadFamilies(ctx context.Context, projectID int64, builder *projectBuilder) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, delivery_type, priority, require_qcok, panels
		FROM family WHERE project_id = ? ORDER BY id
	`, projectID)
	if err != nil {
		return fmt.Errorf("getting families of project %d: %w", projectID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var familyID int64
		var panels string
		family := &domain.FamilyRecord{}
		if err := rows.Scan(&familyID, &family.Name, &family.DeliveryType, &family.Priority, &family.RequireQCOK, &panels); err != nil {
			return fmt.Errorf("scanning family row: %w", err)
		}
		builder.addFamily(familyID, family, panels)
	}
	return rows.Err()
}

func (s *SQLStore) loadSamples(ctx context.Context, projectID int64, builder *projectBuilder) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.family_id, s.name, s.sex, s.status, s.source, s.container, s.container_name,
			s.well_position, s.application_tag, s.capture_kit, s.quantity, s.mother, s.father
		FROM sample s JOIN family f ON f.id = s.family_id
		WHERE f.project_id = ? ORDER BY s.id
	`, projectID)
	if err != nil {
		return fmt.Errorf("getting samples of project %d: %w", projectID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var familyID int64
		var sex string
		var quantity sql.NullInt64
		sample := &domain.SampleRecord{}
		err := rows.Scan(&familyID, &sample.Name, &sex, &sample.Status, &sample.Source, &sample.Container,
			&sample.ContainerName, &sample.WellPosition, &sample.ApplicationTag, &sample.CaptureKit,
			&quantity, &sample.Mother, &sample.Father)
		if err != nil {
			return fmt.Errorf("scanning sample row: %w", err)
		}
		sample.Sex = domain.Sex(sex)
		if quantity.Valid {
			value := int(quantity.Int64)
			sample.Quantity = &value
		}
		if err := builder.addSample(familyID, sample); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ListProjects lists stored projects, newest first.
func (s *SQLStore) ListProjects(ctx context.Context, submittedOnly bool) ([]*domain.ProjectSummary, error) {
	query := `
		SELECT p.id, p.name, c.customer_id, p.is_locked, p.lims_id, p.created_at
		FROM project p JOIN customer c ON c.id = p.customer_id`
	if submittedOnly {
		query += " WHERE p.is_locked = 1"
	}
	query += " ORDER BY p.id DESC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var projects []*domain.ProjectSummary
	for rows.Next() {
		summary := &domain.ProjectSummary{}
		if err := rows.Scan(&summary.ID, &summary.Name, &summary.CustomerID, &summary.IsLocked, &summary.LimsID, &summary.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning project row: %w", err)
		}
		projects = append(projects, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating project rows: %w", err)
	}
	return projects, nil
}

// LockProject marks the project as submitted.
func (s *SQLStore) LockProject(ctx context.Context, id int64) error {
	return s.updateProject(ctx, id, "UPDATE project SET is_locked = 1 WHERE id = ?", id)
}

// SetLimsID records the LIMS project id of a processed project.
func (s *SQLStore) SetLimsID(ctx context.Context, id int64, limsID string) error {
	return s.updateProject(ctx, id, "UPDATE project SET lims_id = ? WHERE id = ?", limsID, id)
}

func (s *SQLStore) updateProject(ctx context.Context, id int64, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating project %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating project %d: %w", id, err)
	}
	if affected == 0 {
		return projectNotFound(id)
	}
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

var _ domain.ProjectStore = (*SQLStore)(nil)
