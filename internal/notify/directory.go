package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// User is the directory projection the notifier needs: identity plus
// the two candidate addresses.
type User struct {
	ID            uuid.UUID
	Email         *string
	PersonalEmail *string
	FullName      string
}

// NotifyAddress returns the address notifications should target:
// the personal email when present, the primary login address otherwise.
// Empty string means the user is unreachable.
func (u *User) NotifyAddress() string {
	if u.PersonalEmail != nil && *u.PersonalEmail != "" {
		return *u.PersonalEmail
	}
	if u.Email != nil {
		return *u.Email
	}
	return ""
}

// Directory resolves recipients from the admin panel's user tables.
// Read-only; mailroom never writes these rows.
type Directory interface {
	UserByID(ctx context.Context, id uuid.UUID) (*User, error)
	UsersAll(ctx context.Context) ([]User, error)
	UsersByRole(ctx context.Context, role string) ([]User, error)
	GroupMembers(ctx context.Context, groupID uuid.UUID, exclude uuid.UUID) ([]User, error)
	GroupName(ctx context.Context, groupID uuid.UUID) (string, error)
}

// PGDirectory implements Directory over Postgres.
type PGDirectory struct {
	pool *pgxpool.Pool
}

// NewPGDirectory creates a directory on the given pool.
func NewPGDirectory(pool *pgxpool.Pool) *PGDirectory {
	return &PGDirectory{pool: pool}
}

const userColumns = `id, email, personal_email, full_name`

func (d *PGDirectory) UserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := d.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.PersonalEmail, &u.FullName)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UsersAll returns every user with a non-null email.
func (d *PGDirectory) UsersAll(ctx context.Context) ([]User, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE email IS NOT NULL OR personal_email IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

// UsersByRole returns users whose role assignment resolves to the named
// role. A role with zero assignments yields an empty slice, not an error.
func (d *PGDirectory) UsersByRole(ctx context.Context, role string) ([]User, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT u.id, u.email, u.personal_email, u.full_name
		FROM users u
		JOIN user_roles ur ON ur.user_id = u.id
		JOIN roles r ON r.id = ur.role_id
		WHERE r.name = $1`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

// GroupMembers returns members of the chat group, excluding the given
// user (typically the message sender).
func (d *PGDirectory) GroupMembers(ctx context.Context, groupID uuid.UUID, exclude uuid.UUID) ([]User, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT u.id, u.email, u.personal_email, u.full_name
		FROM users u
		JOIN chat_group_members gm ON gm.user_id = u.id
		WHERE gm.group_id = $1 AND u.id <> $2`, groupID, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (d *PGDirectory) GroupName(ctx context.Context, groupID uuid.UUID) (string, error) {
	var name string
	err := d.pool.QueryRow(ctx, `SELECT name FROM chat_groups WHERE id = $1`, groupID).Scan(&name)
	return name, err
}

func collectUsers(rows pgx.Rows) ([]User, error) {
	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.PersonalEmail, &u.FullName); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
