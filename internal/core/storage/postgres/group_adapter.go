package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aevon-lab/compresolver/internal/core/group"
	"github.com/aevon-lab/compresolver/internal/core/storage"
	"github.com/aevon-lab/compresolver/internal/core/tsid"
)

// GroupAdapter implements storage.GroupStore. A group is one ts_groups row
// plus ordered member, subgroup and part-filter rows.
type GroupAdapter struct {
	db     *sql.DB
	layout *tsid.Layout
}

// NewGroupAdapter shares db with the time-series adapter.
func NewGroupAdapter(db *sql.DB, layout *tsid.Layout) *GroupAdapter {
	return &GroupAdapter{db: db, layout: layout}
}

// GetGroup implements storage.GroupStore.
func (a *GroupAdapter) GetGroup(ctx context.Context, id int64) (*group.TsGroup, error) {
	if id == 0 {
		return nil, fmt.Errorf("%w: group 0", storage.ErrNotFound)
	}
	groups, err := a.loadGroups(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: group %d", storage.ErrNotFound, id)
	}
	return groups[0], nil
}

// ListGroups implements storage.GroupStore.
func (a *GroupAdapter) ListGroups(ctx context.Context) ([]*group.TsGroup, error) {
	return a.loadGroups(ctx, 0)
}

// loadGroups reads one group, or all when id is 0, in four queries.
func (a *GroupAdapter) loadGroups(ctx context.Context, id int64) ([]*group.TsGroup, error) {
	rows, err := a.db.QueryContext(ctx, queryListGroups, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	var (
		groups []*group.TsGroup
		byID   = make(map[int64]*group.TsGroup)
	)
	for rows.Next() {
		g := &group.TsGroup{}
		if err := rows.Scan(&g.ID, &g.Name, &g.Type, &g.Description); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan group row: %w", err)
		}
		groups = append(groups, g)
		byID[g.ID] = g
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating groups: %w", err)
	}
	if len(groups) == 0 {
		return nil, nil
	}

	if err := a.loadMembers(ctx, id, byID); err != nil {
		return nil, err
	}
	if err := a.loadSubgroups(ctx, id, byID); err != nil {
		return nil, err
	}
	if err := a.loadFilters(ctx, id, byID); err != nil {
		return nil, err
	}
	return groups, nil
}

func (a *GroupAdapter) loadMembers(ctx context.Context, id int64, byID map[int64]*group.TsGroup) error {
	rows, err := a.db.QueryContext(ctx, queryListGroupMembers, id)
	if err != nil {
		return fmt.Errorf("failed to query group members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			groupID int64
			key     int64
			unique  string
		)
		if err := rows.Scan(&groupID, &key, &unique); err != nil {
			return fmt.Errorf("failed to scan group member row: %w", err)
		}
		g, ok := byID[groupID]
		if !ok {
			continue
		}
		member, err := a.layout.Parse(unique)
		if err != nil {
			return fmt.Errorf("group %d member %d: %w", groupID, key, err)
		}
		member.Key = key
		g.AddMember(member)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating group members: %w", err)
	}
	return nil
}

func (a *GroupAdapter) loadSubgroups(ctx context.Context, id int64, byID map[int64]*group.TsGroup) error {
	rows, err := a.db.QueryContext(ctx, queryListGroupSubgroups, id)
	if err != nil {
		return fmt.Errorf("failed to query subgroups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			groupID, subID int64
			combine        string
		)
		if err := rows.Scan(&groupID, &subID, &combine); err != nil {
			return fmt.Errorf("failed to scan subgroup row: %w", err)
		}
		if g, ok := byID[groupID]; ok {
			g.AddSubgroup(subID, group.ParseCombine(combine))
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating subgroups: %w", err)
	}
	return nil
}

func (a *GroupAdapter) loadFilters(ctx context.Context, id int64, byID map[int64]*group.TsGroup) error {
	rows, err := a.db.QueryContext(ctx, queryListGroupFilters, id)
	if err != nil {
		return fmt.Errorf("failed to query part filters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			groupID     int64
			part, value string
		)
		if err := rows.Scan(&groupID, &part, &value); err != nil {
			return fmt.Errorf("failed to scan part filter row: %w", err)
		}
		if g, ok := byID[groupID]; ok {
			g.AddFilter(part, value)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating part filters: %w", err)
	}
	return nil
}

// WriteGroup implements storage.GroupStore. The group row and all of its
// link rows are replaced in one transaction.
func (a *GroupAdapter) WriteGroup(ctx context.Context, g *group.TsGroup) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write group: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	id := g.ID
	if id == 0 {
		if err := tx.QueryRowContext(ctx, queryInsertGroup, g.Name, g.Type, g.Description).Scan(&id); err != nil {
			return mapWriteError("write group: insert", "group", err)
		}
	} else {
		result, err := tx.ExecContext(ctx, queryUpdateGroup, id, g.Name, g.Type, g.Description)
		if err != nil {
			return mapWriteError("write group: update", "group", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("write group: check update: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: group %d", storage.ErrNotFound, id)
		}
		for _, q := range []string{queryDeleteGroupMembers, queryDeleteGroupSubgroups, queryDeleteGroupFilters} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("write group: clear links: %w", err)
			}
		}
	}

	for i, m := range g.Members {
		key := m.Key
		if key == 0 {
			var found tsid.Identifier
			found, err = scanTimeSeries(tx.QueryRowContext(ctx, queryLookupTimeSeries, m.UniqueString()), a.layout)
			if errors.Is(err, sql.ErrNoRows) {
				return &storage.ValidationError{Object: "group", Message: fmt.Sprintf("member %s does not exist", m)}
			}
			if err != nil {
				return fmt.Errorf("write group: resolve member %s: %w", m, err)
			}
			key = found.Key
		}
		if _, err := tx.ExecContext(ctx, queryInsertGroupMember, id, key, i); err != nil {
			return mapWriteError("write group: insert member", "group", err)
		}
	}

	pos := 0
	for _, link := range []struct {
		ids     []int64
		combine group.Combine
	}{
		{g.Included, group.CombineInclude},
		{g.Excluded, group.CombineExclude},
		{g.Intersected, group.CombineIntersect},
	} {
		for _, sub := range link.ids {
			if _, err := tx.ExecContext(ctx, queryInsertGroupSubgroup, id, sub, string(link.combine), pos); err != nil {
				return mapWriteError("write group: insert subgroup", "group", err)
			}
			pos++
		}
	}

	pos = 0
	for _, f := range g.Filters {
		for _, v := range f.Values {
			if _, err := tx.ExecContext(ctx, queryInsertGroupFilter, id, f.Part, v, pos); err != nil {
				return mapWriteError("write group: insert part filter", "group", err)
			}
			pos++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write group: commit: %w", err)
	}

	g.ID = id
	slog.Debug("[Postgres] Wrote group",
		"group_id", id,
		"name", g.Name,
		"members", len(g.Members),
		"subgroups", len(g.Included)+len(g.Excluded)+len(g.Intersected))
	return nil
}
