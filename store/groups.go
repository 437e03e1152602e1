package store

import (
	"database/sql"
	"encoding/json"

	"github.com/chainletter/chainletter/errors"
)

// PutGroup writes a membership snapshot unconditionally. Version arbitration
// belongs to the resolver; the store only persists what it is given.
func (s *Store) PutGroup(g *Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	members, err := json.Marshal(g.Members)
	if err != nil {
		return errors.Wrap(err, "marshal group members")
	}

	_, err = s.db.Exec(`
		INSERT INTO groups (group_id, name, members, creator, created_at, version)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET
			name = excluded.name,
			members = excluded.members,
			creator = excluded.creator,
			created_at = excluded.created_at,
			version = excluded.version`,
		g.GroupID, g.Name, string(members), g.Creator, g.CreatedAt.UTC(), g.Version)
	return errors.Wrap(err, "put group")
}

// GetGroup retrieves a group snapshot by id
func (s *Store) GetGroup(groupID string) (*Group, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRow(`
		SELECT group_id, name, members, creator, created_at, version
		FROM groups WHERE group_id = ?`, groupID)
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("group %s", groupID)
	}
	return g, err
}

// Groups lists every non-tombstoned group snapshot
func (s *Store) Groups() ([]*Group, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`
		SELECT g.group_id, g.name, g.members, g.creator, g.created_at, g.version
		FROM groups g
		LEFT JOIN left_groups l ON l.group_id = g.group_id
		WHERE l.group_id IS NULL
		ORDER BY g.created_at DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "query groups")
	}
	defer rows.Close()

	var out []*Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, errors.Wrap(rows.Err(), "iterate groups")
}

// DeleteGroup removes a snapshot (used when a leave tombstones it)
func (s *Store) DeleteGroup(groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM groups WHERE group_id = ?`, groupID)
	return errors.Wrap(err, "delete group")
}

// MarkLeft records a leave tombstone for this account, preventing
// resurrection of the group from older control operations.
func (s *Store) MarkLeft(groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.Exec(`
		INSERT INTO left_groups (group_id) VALUES (?)
		ON CONFLICT(group_id) DO NOTHING`, groupID)
	return errors.Wrap(err, "mark group left")
}

// HasLeft reports whether a leave tombstone exists for the group
func (s *Store) HasLeft(groupID string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	var exists bool
	err := s.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM left_groups WHERE group_id = ?)`, groupID).Scan(&exists)
	return exists, errors.Wrap(err, "check left tombstone")
}

// LeftGroups returns the set of tombstoned group ids
func (s *Store) LeftGroups() (map[string]bool, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT group_id FROM left_groups`)
	if err != nil {
		return nil, errors.Wrap(err, "query left groups")
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan left group")
		}
		out[id] = true
	}
	return out, errors.Wrap(rows.Err(), "iterate left groups")
}

func scanGroup(row rowScanner) (*Group, error) {
	var g Group
	var members string
	var createdAt sql.NullTime
	err := row.Scan(&g.GroupID, &g.Name, &members, &g.Creator, &createdAt, &g.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "scan group")
	}
	if createdAt.Valid {
		g.CreatedAt = createdAt.Time
	}
	if err := json.Unmarshal([]byte(members), &g.Members); err != nil {
		return nil, errors.Wrapf(err, "unmarshal members for group %s", g.GroupID)
	}
	return &g, nil
}
