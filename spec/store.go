package spec

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/skeinworks/spindle/errors"
)

// Store persists specifications in sqlite.
type Store struct {
	db *sql.DB
}

// NewStore creates a new specification store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new specification, generating its id when empty.
func (s *Store) Create(spec *Specification) error {
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	if spec.Params == nil {
		spec.Params = map[string]any{}
	}

	paramsJSON, err := json.Marshal(spec.Params)
	if err != nil {
		return errors.Wrap(err, "failed to marshal params")
	}

	now := time.Now().UTC()
	spec.CreatedAt = now
	spec.UpdatedAt = now

	_, err = s.db.Exec(
		`INSERT INTO specifications (id, name, params, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		spec.ID,
		spec.Name,
		string(paramsJSON),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create specification %s", spec.ID)
	}
	return nil
}

// Get retrieves a specification by id.
// Returns ErrSpecificationNotFound when absent.
func (s *Store) Get(id string) (*Specification, error) {
	row := s.db.QueryRow(
		`SELECT id, name, params, created_at, updated_at FROM specifications WHERE id = ?`, id)

	spec, err := scanSpecification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewSpecificationNotFound(id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get specification %s", id)
	}
	return spec, nil
}

// Update replaces a specification's name and params.
func (s *Store) Update(id string, name string, params map[string]any) error {
	if params == nil {
		params = map[string]any{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return errors.Wrap(err, "failed to marshal params")
	}

	result, err := s.db.Exec(
		`UPDATE specifications SET name = ?, params = ?, updated_at = ? WHERE id = ?`,
		name,
		string(paramsJSON),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update specification %s", id)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewSpecificationNotFound(id)
	}
	return nil
}

// Delete removes a specification. A specification still referenced by a
// scheduled job is not deletable; detach or delete the jobs first.
func (s *Store) Delete(id string) error {
	var refs int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM scheduled_jobs WHERE spec_id = ?`, id).Scan(&refs)
	if err != nil {
		return errors.Wrapf(err, "failed to count references to specification %s", id)
	}
	if refs > 0 {
		return errors.WithDetailf(
			errors.Wrapf(errors.ErrConflict, "specification %s is referenced by %d job(s)", id, refs),
			"Specification ID: %s", id)
	}

	result, err := s.db.Exec(`DELETE FROM specifications WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete specification %s", id)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewSpecificationNotFound(id)
	}
	return nil
}

// List returns all specifications ordered by creation time.
func (s *Store) List() ([]*Specification, error) {
	rows, err := s.db.Query(
		`SELECT id, name, params, created_at, updated_at FROM specifications ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list specifications")
	}
	defer rows.Close()

	var specs []*Specification
	for rows.Next() {
		spec, err := scanSpecification(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan specification")
		}
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSpecification(row scanner) (*Specification, error) {
	var spec Specification
	var paramsJSON, createdAt, updatedAt string

	if err := row.Scan(&spec.ID, &spec.Name, &paramsJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(paramsJSON), &spec.Params); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal params for specification %s", spec.ID)
	}

	var err error
	if spec.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for specification %s", spec.ID)
	}
	if spec.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for specification %s", spec.ID)
	}

	return &spec, nil
}
