package template

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/mailroom/pkg/sanitizer"
)

// Store persists templates in the email_templates table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a template store on the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const templateColumns = `id, name, description, subject, body_html, body_text, variables, created_at, updated_at`

// Get returns the template with the given name.
func (s *Store) Get(ctx context.Context, name string) (*Template, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM email_templates WHERE name = $1`, name)
	return scanTemplate(row)
}

// GetByID returns the template with the given id.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Template, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM email_templates WHERE id = $1`, id)
	return scanTemplate(row)
}

// List returns all templates ordered by name, without bodies.
func (s *Store) List(ctx context.Context) ([]ListItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, subject, variables, created_at, updated_at
		 FROM email_templates ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ListItem
	for rows.Next() {
		var it ListItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Description, &it.Subject, &it.Variables, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// UpsertParams holds the writable fields of a template.
type UpsertParams struct {
	Name        string
	Description string
	Subject     string
	BodyHTML    string
	BodyText    string
}

// Upsert creates or overwrites the template with the given name. The
// HTML body is sanitized and the variables set is recomputed from the
// subject and bodies on every write. No versioning; an update
// overwrites in place.
func (s *Store) Upsert(ctx context.Context, p UpsertParams) (*Template, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, ErrInvalidName
	}

	bodyHTML := sanitizer.SanitizeEmailHTML(p.BodyHTML)
	variables := ExtractVariables(p.Subject, bodyHTML, p.BodyText)

	row := s.pool.QueryRow(ctx, `
		INSERT INTO email_templates (name, description, subject, body_html, body_text, variables)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			subject     = EXCLUDED.subject,
			body_html   = EXCLUDED.body_html,
			body_text   = EXCLUDED.body_text,
			variables   = EXCLUDED.variables,
			updated_at  = now()
		RETURNING `+templateColumns,
		name, p.Description, p.Subject, bodyHTML, p.BodyText, variables)

	return scanTemplate(row)
}

// Delete removes the template with the given id.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM email_templates WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTemplate(row pgx.Row) (*Template, error) {
	var t Template
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Subject, &t.BodyHTML, &t.BodyText, &t.Variables, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}
