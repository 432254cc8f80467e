package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"studentparent-server-go/models"
)

// accessColumns maps each method to its role-list column in Access.
var accessColumns = map[models.Method]string{
	models.MethodGet:    `"get"`,
	models.MethodHead:   `"head"`,
	models.MethodGets:   `"gets"`,
	models.MethodHeads:  `"heads"`,
	models.MethodPost:   `"post"`,
	models.MethodPut:    `"put"`,
	models.MethodDelete: `"delete"`,
}

// AccessFor loads the permission row of table. ErrNotFound if the table has none.
func (s *Store) AccessFor(ctx context.Context, table string) (models.Access, error) {
	cols := make([]string, 0, len(models.Methods))
	for _, m := range models.Methods {
		cols = append(cols, accessColumns[m])
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT name, COALESCE(alias, ''), `+strings.Join(cols, ", ")+`, COALESCE(detail, '') FROM Access WHERE name = ?`,
		table,
	)

	var (
		access models.Access
		lists  = make([]string, len(models.Methods))
	)
	dest := []any{&access.Name, &access.Alias}
	for i := range lists {
		dest = append(dest, &lists[i])
	}
	dest = append(dest, &access.Detail)

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Access{}, fmt.Errorf("access for %s: %w", table, ErrNotFound)
		}
		return models.Access{}, fmt.Errorf("load access for %s: %w", table, err)
	}

	access.Roles = make(map[models.Method][]models.Role, len(models.Methods))
	for i, m := range models.Methods {
		var names []string
		if err := json.Unmarshal([]byte(lists[i]), &names); err != nil {
			return models.Access{}, fmt.Errorf("decode %s roles of %s: %w", m, table, err)
		}
		roles := make([]models.Role, 0, len(names))
		for _, n := range names {
			roles = append(roles, models.ParseRole(n))
		}
		access.Roles[m] = roles
	}
	return access, nil
}

// PutAccess replaces the permission row of a table.
func (s *Store) PutAccess(ctx context.Context, access models.Access) error {
	cols := []string{"name", "alias", "detail"}
	args := []any{access.Name, access.Alias, access.Detail}
	for _, m := range models.Methods {
		roles := access.Roles[m]
		if roles == nil {
			roles = []models.Role{}
		}
		encoded, err := json.Marshal(roles)
		if err != nil {
			return fmt.Errorf("encode %s roles: %w", m, err)
		}
		cols = append(cols, accessColumns[m])
		args = append(args, string(encoded))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	_, err := s.Exec(ctx,
		`INSERT OR REPLACE INTO Access (`+strings.Join(cols, ", ")+`) VALUES (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to save access for %s: %w", access.Name, err)
	}
	return nil
}

// RequestStructure loads the newest structure registered for (method, tag).
func (s *Store) RequestStructure(ctx context.Context, method models.Method, tag string) (models.RequestStructure, error) {
	var rs models.RequestStructure
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, version, method, tag, structure, COALESCE(detail, '')
		 FROM Request WHERE method = ? AND tag = ? ORDER BY version DESC LIMIT 1`,
		string(method), tag,
	).Scan(&rs.ID, &rs.Version, &rs.Method, &rs.Tag, &rs.Structure, &rs.Detail)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RequestStructure{}, fmt.Errorf("request structure %s %s: %w", method, tag, ErrNotFound)
	}
	if err != nil {
		return models.RequestStructure{}, fmt.Errorf("load request structure %s %s: %w", method, tag, err)
	}
	return rs, nil
}

// PutRequestStructure inserts or replaces the structure for (tag, version, method).
func (s *Store) PutRequestStructure(ctx context.Context, rs models.RequestStructure) error {
	if rs.Version == 0 {
		rs.Version = 1
	}
	if !json.Valid([]byte(rs.Structure)) {
		return fmt.Errorf("structure of %s %s is not valid JSON", rs.Method, rs.Tag)
	}
	_, err := s.Exec(ctx,
		`INSERT INTO Request (version, method, tag, structure, detail) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (tag, version, method) DO UPDATE SET structure = excluded.structure, detail = excluded.detail`,
		rs.Version, string(rs.Method), rs.Tag, rs.Structure, rs.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to save request structure %s %s: %w", rs.Method, rs.Tag, err)
	}
	return nil
}

// UserByPhone returns the account registered with phone.
func (s *Store) UserByPhone(ctx context.Context, phone string) (models.User, error) {
	var (
		u    models.User
		role string
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, phone, name, role, password_hash FROM User WHERE phone = ?`, phone,
	).Scan(&u.ID, &u.Phone, &u.Name, &role, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %s: %w", phone, ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("load user %s: %w", phone, err)
	}
	u.Role = models.ParseRole(role)
	return u, nil
}

// PutUser creates the account or updates the one with the same phone.
func (s *Store) PutUser(ctx context.Context, u models.User) (int64, error) {
	if strings.TrimSpace(u.Phone) == "" || u.PasswordHash == "" {
		return 0, errors.New("user phone and password hash cannot be empty")
	}
	if u.Role == "" {
		u.Role = models.RoleLogin
	}
	if _, err := s.Exec(ctx,
		`INSERT INTO User (phone, name, role, password_hash) VALUES (?, ?, ?, ?)
		 ON CONFLICT (phone) DO UPDATE SET name = excluded.name, role = excluded.role, password_hash = excluded.password_hash`,
		u.Phone, u.Name, string(u.Role), u.PasswordHash,
	); err != nil {
		return 0, fmt.Errorf("failed to save user %s: %w", u.Phone, err)
	}
	saved, err := s.UserByPhone(ctx, u.Phone)
	if err != nil {
		return 0, err
	}
	return saved.ID, nil
}
