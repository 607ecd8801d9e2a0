package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/cg-order-portal/internal/domain"
)

// PostgresStore implements domain.ProjectStore on a pgx connection pool.
// The schema is owned by the SQL migrations.
type PostgresStore struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPostgresStore creates a store on an established pool.
func NewPostgresStore(db *pgxpool.Pool, logger *logrus.Logger) *PostgresStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &PostgresStore{db: db, log: logger}
}

// SaveCustomer inserts the customer or updates it by customer id.
func (r *PostgresStore) SaveCustomer(ctx context.Context, customer *domain.Customer) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO customer (customer_id, name, scout_access) VALUES ($1, $2, $3)
		ON CONFLICT (customer_id) DO UPDATE SET name = EXCLUDED.name, scout_access = EXCLUDED.scout_access
		RETURNING id`,
		customer.CustomerID, customer.Name, customer.ScoutAccess,
	).Scan(&customer.ID)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"customer": customer.CustomerID,
			"error":    err,
		}).Error("Failed to save customer")
		return fmt.Errorf("saving customer %s: %w", customer.CustomerID, err)
	}
	return nil
}

// GetCustomer returns the customer with the given customer id.
func (r *PostgresStore) GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	customer := &domain.Customer{}
	err := r.db.QueryRow(ctx,
		`SELECT id, customer_id, name, scout_access FROM customer WHERE customer_id = $1`, customerID,
	).Scan(&customer.ID, &customer.CustomerID, &customer.Name, &customer.ScoutAccess)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, customerNotFound(customerID)
	}
	if err != nil {
		return nil, fmt.Errorf("getting customer %s: %w", customerID, err)
	}
	return customer, nil
}

// SaveApplicationTag upserts the tag and replaces its versions.
func (r *PostgresStore) SaveApplicationTag(ctx context.Context, tag *domain.ApplicationTag) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var tagID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO application_tag (name, category, is_panel) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET category = EXCLUDED.category, is_panel = EXCLUDED.is_panel
		RETURNING id`,
		tag.Name, tag.Category, tag.IsPanel,
	).Scan(&tagID)
	if err != nil {
		return fmt.Errorf("saving application tag %s: %w", tag.Name, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM application_tag_version WHERE tag_id = $1`, tagID); err != nil {
		return fmt.Errorf("clearing versions of %s: %w", tag.Name, err)
	}

	batch := &pgx.Batch{}
	for _, version := range tag.Versions {
		validFrom := version.ValidFrom
		if validFrom.IsZero() {
			validFrom = time.Now().UTC()
		}
		batch.Queue(`
			INSERT INTO application_tag_version (tag_id, version, reads, is_accredited, valid_from)
			VALUES ($1, $2, $3, $4, $5)`,
			tagID, version.Version, version.Reads, version.IsAccredited, validFrom)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("saving versions of %s: %w", tag.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing application tag %s: %w", tag.Name, err)
	}

	r.log.WithFields(logrus.Fields{
		"tag":      tag.Name,
		"versions": len(tag.Versions),
	}).Debug("Application tag saved")
	return nil
}

// GetApplicationTag returns the tag with its versions, latest first.
func (r *PostgresStore) GetApplicationTag(ctx context.Context, name string) (*domain.ApplicationTag, error) {
	tag := &domain.ApplicationTag{}
	var tagID int64
	err := r.db.QueryRow(ctx,
		`SELECT id, name, category, is_panel FROM application_tag WHERE name = $1`, name,
	).Scan(&tagID, &tag.Name, &tag.Category, &tag.IsPanel)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tagNotFound(name)
	}
	if err != nil {
		return nil, fmt.Errorf("getting application tag %s: %w", name, err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT version, reads, is_accredited, valid_from
		FROM application_tag_version WHERE tag_id = $1 ORDER BY version DESC`, tagID)
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

// SaveProject stores a new project with its families and samples in one transaction.
func (r *PostgresStore) SaveProject(ctx context.Context, project *domain.ProjectRecord) (int64, error) {
	if err := checkStorable(project); err != nil {
		return 0, err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var customerID int64
	err = tx.QueryRow(ctx, `SELECT id FROM customer WHERE customer_id = $1`, project.Customer).Scan(&customerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, unknownCustomer(project.Customer)
	}
	if err != nil {
		return 0, fmt.Errorf("looking up customer %s: %w", project.Customer, err)
	}

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM project WHERE customer_id = $1 AND name = $2)`, customerID, project.Name,
	).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("checking project %s: %w", project.Name, err)
	}
	if exists {
		return 0, duplicateProject(project)
	}

	var projectID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO project (customer_id, name) VALUES ($1, $2) RETURNING id`, customerID, project.Name,
	).Scan(&projectID)
	if err != nil {
		return 0, fmt.Errorf("inserting project %s: %w", project.Name, err)
	}

	for _, family := range project.Families {
		var familyID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO family (project_id, name, delivery_type, priority, require_qcok, panels)
			VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			projectID, family.Name, family.DeliveryType, family.Priority, family.RequireQCOK, joinPanels(family.Panels),
		).Scan(&familyID)
		if err != nil {
			return 0, fmt.Errorf("inserting family %s: %w", family.Name, err)
		}

		for _, sample := range family.Samples {
			_, err := tx.Exec(ctx, `
				INSERT INTO sample (family_id, name, sex, status, source, container, container_name,
					well_position, application_tag, capture_kit, quantity, mother, father)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
				familyID, sample.Name, string(sample.Sex), sample.Status, sample.Source, sample.Container,
				sample.ContainerName, sample.WellPosition, sample.ApplicationTag, sample.CaptureKit,
				sample.Quantity, sample.Mother, sample.Father)
			if err != nil {
				return 0, fmt.Errorf("inserting sample %s: %w", sample.Name, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing project %s: %w", project.Name, err)
	}

	r.log.WithFields(logrus.Fields{
		"project_id": projectID,
		"project":    project.Name,
		"customer":   project.Customer,
		"families":   len(project.Families),
	}).Info("Project stored")
	return projectID, nil
}

// GetProject loads a stored project and rebuilds its record.
func (r *PostgresStore) GetProject(ctx context.Context, id int64) (*domain.StoredProject, error) {
	stored := &domain.StoredProject{ID: id}
	var name, customer string
	err := r.db.QueryRow(ctx, `
		SELECT p.name, c.customer_id, p.is_locked, p.lims_id, p.created_at
		FROM project p JOIN customer c ON c.id = p.customer_id
		WHERE p.id = $1`, id,
	).Scan(&name, &customer, &stored.IsLocked, &stored.LimsID, &stored.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, projectNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting project %d: %w", id, err)
	}

	builder := newProjectBuilder(name, customer)

	rows, err := r.db.Query(ctx, `
		SELECT id, name, delivery_type, priority, require_qcok, panels
		FROM family WHERE project_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("getting families of project %d: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var familyID int64
		var panels string
		family := &domain.FamilyRecord{}
		if err := rows.Scan(&familyID, &family.Name, &family.DeliveryType, &family.Priority, &family.RequireQCOK, &panels); err != nil {
			return nil, fmt.Errorf("scanning family row: %w", err)
		}
		builder.addFamily(familyID, family, panels)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating family rows: %w", err)
	}

	samples, err := r.db.Query(ctx, `
		SELECT s.family_id, s.name, s.sex, s.status, s.source, s.container, s.container_name,
			s.well_position, s.application_tag, s.capture_kit, s.quantity, s.mother, s.father
		FROM sample s JOIN family f ON f.id = s.family_id
		WHERE f.project_id = $1 ORDER BY s.id`, id)
	if err != nil {
		return nil, fmt.Errorf("getting samples of project %d: %w", id, err)
	}
	defer samples.Close()
	for samples.Next() {
		var familyID int64
		var sex string
		var quantity *int32
		sample := &domain.SampleRecord{}
		err := samples.Scan(&familyID, &sample.Name, &sex, &sample.Status, &sample.Source, &sample.Container,
			&sample.ContainerName, &sample.WellPosition, &sample.ApplicationTag, &sample.CaptureKit,
			&quantity, &sample.Mother, &sample.Father)
		if err != nil {
			return nil, fmt.Errorf("scanning sample row: %w", err)
		}
		sample.Sex = domain.Sex(sex)
		if quantity != nil {
			value := int(*quantity)
			sample.Quantity = &value
		}
		if err := builder.addSample(familyID, sample); err != nil {
			return nil, err
		}
	}
	if err := samples.Err(); err != nil {
		return nil, fmt.Errorf("iterating sample rows: %w", err)
	}

	stored.Record = builder.record
	return stored, nil
}

// ListProjects lists stored projects, newest first.
func (r *PostgresStore) ListProjects(ctx context.Context, submittedOnly bool) ([]*domain.ProjectSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.name, c.customer_id, p.is_locked, p.lims_id, p.created_at
		FROM project p JOIN customer c ON c.id = p.customer_id
		WHERE NOT $1 OR p.is_locked
		ORDER BY p.id DESC`, submittedOnly)
	if err != nil {
		r.log.WithError(err).Error("Failed to list projects")
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
func (r *PostgresStore) LockProject(ctx context.Context, id int64) error {
	return r.updateProject(ctx, id, `UPDATE project SET is_locked = TRUE WHERE id = $1`, id)
}

// SetLimsID records the LIMS project id of a processed project.
func (r *PostgresStore) SetLimsID(ctx context.Context, id int64, limsID string) error {
	return r.updateProject(ctx, id, `UPDATE project SET lims_id = $2 WHERE id = $1`, id, limsID)
}

func (r *PostgresStore) updateProject(ctx context.Context, id int64, query string, args ...any) error {
	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"project_id": id,
			"error":      err,
		}).Error("Failed to update project")
		return fmt.Errorf("updating project %d: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return projectNotFound(id)
	}
	return nil
}

// Close is a no-op; the pool belongs to the caller.
func (r *PostgresStore) Close() error {
	return nil
}

var _ domain.ProjectStore = (*PostgresStore)(nil)
