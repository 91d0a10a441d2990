package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/rscoe-coding-club/codigo-registration-backend/internal/models"
	apperrors "github.com/rscoe-coding-club/codigo-registration-backend/pkg/errors"
)

// PublicRegistrationView is the write-restricted tier used by the public
// submission path. It can insert but never read.
type PublicRegistrationView interface {
	Create(ctx context.Context, registration *models.Registration) error
}

// PrivilegedRegistrationView is the elevated tier. Row-level security does
// not filter it, so an empty result means no rows rather than no access.
type PrivilegedRegistrationView interface {
	CountByEmailSince(ctx context.Context, email string, since time.Time) (int, error)
	GetByID(ctx context.Context, id string) (*models.Registration, error)
	ReferencedScreenshots(ctx context.Context, paths []string) (map[string]bool, error)
}

// RegistrationStore exposes the registrations table through two capability-scoped views
type RegistrationStore struct {
	public     *publicRegistrationView
	privileged *privilegedRegistrationView
}

// NewRegistrationStore creates a store over the public and privileged pools
func NewRegistrationStore(publicDB, privilegedDB *sql.DB) *RegistrationStore {
	return &RegistrationStore{
		public:     &publicRegistrationView{db: publicDB},
		privileged: &privilegedRegistrationView{db: privilegedDB},
	}
}

// Public returns the write-restricted view
func (s *RegistrationStore) Public() PublicRegistrationView {
	return s.public
}

// Privileged returns the elevated view
func (s *RegistrationStore) Privileged() PrivilegedRegistrationView {
	return s.privileged
}

type publicRegistrationView struct {
	db *sql.DB
}

func (r *publicRegistrationView) Create(ctx context.Context, registration *models.Registration) error {
	query := `
		SELECT id, created_at
		FROM insert_registration($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	err := r.db.QueryRowContext(ctx, query,
		registration.Email, registration.Name, registration.TeamName, registration.TeamID,
		registration.College, registration.Phone, registration.Member2Name, registration.Member3Name,
		registration.UpiID, registration.ScreenshotURL,
	).Scan(&registration.ID, &registration.CreatedAt)

	if err != nil {
		return fmt.Errorf("create registration: %w", err)
	}

	return nil
}

type privilegedRegistrationView struct {
	db *sql.DB
}

func (r *privilegedRegistrationView) CountByEmailSince(ctx context.Context, email string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM registrations WHERE email = $1 AND created_at > $2`

	var count int
	if err := r.db.QueryRowContext(ctx, query, email, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count registrations by email: %w", err)
	}

	return count, nil
}

func (r *privilegedRegistrationView) GetByID(ctx context.Context, id string) (*models.Registration, error) {
	query := `
		SELECT id, email, name, team_name, team_id, college, phone,
			member2_name, member3_name, upi_id, screenshot_url, created_at
		FROM registrations
		WHERE id = $1
	`

	registration := &models.Registration{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&registration.ID, &registration.Email, &registration.Name, &registration.TeamName,
		&registration.TeamID, &registration.College, &registration.Phone, &registration.Member2Name,
		&registration.Member3Name, &registration.UpiID, &registration.ScreenshotURL, &registration.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "registration %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get registration by id: %w", err)
	}

	return registration, nil
}

func (r *privilegedRegistrationView) ReferencedScreenshots(ctx context.Context, paths []string) (map[string]bool, error) {
	referenced := make(map[string]bool, len(paths))
	if len(paths) == 0 {
		return referenced, nil
	}

	query := `SELECT DISTINCT screenshot_url FROM registrations WHERE screenshot_url = ANY($1)`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(paths))
	if err != nil {
		return nil, fmt.Errorf("query referenced screenshots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scan screenshot reference: %w", err)
		}
		referenced[path] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return referenced, nil
}

// StoreMessage extracts the store's own message from a persistence error
func StoreMessage(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Message
	}
	return err.Error()
}
