package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aevon-lab/compresolver/internal/core/comp"
	"github.com/aevon-lab/compresolver/internal/core/storage"
	"github.com/aevon-lab/compresolver/internal/core/tsid"
)

// ComputationAdapter implements storage.ComputationStore. Parameter patterns
// and properties are stored as JSONB.
type ComputationAdapter struct {
	db *sql.DB
}

// NewComputationAdapter shares db with the time-series adapter.
func NewComputationAdapter(db *sql.DB) *ComputationAdapter {
	return &ComputationAdapter{db: db}
}

// ListComputationNames implements storage.ComputationStore.
func (a *ComputationAdapter) ListComputationNames(ctx context.Context, appID int64) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, queryListComputationNames, appID)
	if err != nil {
		return nil, fmt.Errorf("failed to query computation names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan computation name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating computation names: %w", err)
	}
	return names, nil
}

// GetComputationByName implements storage.ComputationStore.
func (a *ComputationAdapter) GetComputationByName(ctx context.Context, name string) (*comp.Computation, error) {
	var (
		c         comp.Computation
		propsJSON []byte
	)
	err := a.db.QueryRowContext(ctx, queryGetComputationByName, name).Scan(
		&c.ID,
		&c.Name,
		&c.AlgorithmID,
		&c.AlgorithmName,
		&c.AppID,
		&c.Enabled,
		&c.GroupID,
		&c.Comment,
		&propsJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: computation %q", storage.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read computation %q: %w", name, err)
	}

	c.Properties, err = unmarshalStringMap(propsJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal properties of %q: %w", name, err)
	}

	c.Parms, err = a.loadParms(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (a *ComputationAdapter) loadParms(ctx context.Context, compID int64) ([]comp.Parm, error) {
	rows, err := a.db.QueryContext(ctx, queryListCompParms, compID)
	if err != nil {
		return nil, fmt.Errorf("failed to query parms of computation %d: %w", compID, err)
	}
	defer rows.Close()

	var parms []comp.Parm
	for rows.Next() {
		var (
			role, direction string
			patternJSON     []byte
		)
		if err := rows.Scan(&role, &direction, &patternJSON); err != nil {
			return nil, fmt.Errorf("failed to scan parm row: %w", err)
		}
		dir, err := comp.ParseDirection(direction)
		if err != nil {
			return nil, fmt.Errorf("computation %d parm %s: %w", compID, role, err)
		}
		parts, err := unmarshalStringMap(patternJSON)
		if err != nil {
			return nil, fmt.Errorf("computation %d parm %s: failed to unmarshal pattern: %w", compID, role, err)
		}
		parms = append(parms, comp.Parm{Role: role, Direction: dir, Pattern: tsid.Pattern(parts)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating parms: %w", err)
	}
	return parms, nil
}

// WriteComputation implements storage.ComputationStore. The computation row
// and its parms are replaced in one transaction.
func (a *ComputationAdapter) WriteComputation(ctx context.Context, c *comp.Computation) error {
	propsJSON, err := marshalProperties(c.Properties)
	if err != nil {
		return err
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write computation: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	id := c.ID
	if id == 0 {
		err = tx.QueryRowContext(ctx, queryInsertComputation,
			c.Name,
			c.AlgorithmID,
			c.AppID,
			c.Enabled,
			nullableID(c.GroupID),
			c.Comment,
			propsJSON,
			now,
		).Scan(&id)
		if err != nil {
			return mapWriteError("write computation: insert", "computation", err)
		}
	} else {
		result, err := tx.ExecContext(ctx, queryUpdateComputation,
			id,
			c.Name,
			c.AlgorithmID,
			c.AppID,
			c.Enabled,
			nullableID(c.GroupID),
			c.Comment,
			propsJSON,
			now,
		)
		if err != nil {
			return mapWriteError("write computation: update", "computation", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("write computation: check update: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: computation %d", storage.ErrNotFound, id)
		}
		if _, err := tx.ExecContext(ctx, queryDeleteCompParms, id); err != nil {
			return fmt.Errorf("write computation: clear parms: %w", err)
		}
	}

	for i, p := range c.Parms {
		patternJSON, err := json.Marshal(map[string]string(p.Pattern))
		if err != nil {
			return fmt.Errorf("write computation: marshal parm %s: %w", p.Role, err)
		}
		if _, err := tx.ExecContext(ctx, queryInsertCompParm, id, p.Role, string(p.Direction), patternJSON, i); err != nil {
			return mapWriteError("write computation: insert parm", "computation", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write computation: commit: %w", err)
	}

	c.ID = id
	slog.Debug("[Postgres] Wrote computation",
		"computation_id", id,
		"name", c.Name,
		"enabled", c.Enabled,
		"group_id", c.GroupID)
	return nil
}

// DeleteComputation implements storage.ComputationStore. Parms cascade; rows
// in comp_task_list block the delete with storage.ErrReferentialIntegrity.
func (a *ComputationAdapter) DeleteComputation(ctx context.Context, id int64) error {
	result, err := a.db.ExecContext(ctx, queryDeleteComputation, id)
	if err != nil {
		return mapWriteError("delete computation", "computation", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete computation: check delete: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: computation %d", storage.ErrNotFound, id)
	}
	slog.Debug("[Postgres] Deleted computation", "computation_id", id)
	return nil
}

// AlgorithmAdapter implements storage.AlgorithmStore.
type AlgorithmAdapter struct {
	db *sql.DB
}

// NewAlgorithmAdapter shares db with the time-series adapter.
func NewAlgorithmAdapter(db *sql.DB) *AlgorithmAdapter {
	return &AlgorithmAdapter{db: db}
}

// GetAlgorithm implements storage.AlgorithmStore.
func (a *AlgorithmAdapter) GetAlgorithm(ctx context.Context, id int64) (*comp.Algorithm, error) {
	if id == 0 {
		return nil, fmt.Errorf("%w: algorithm 0", storage.ErrNotFound)
	}
	algos, err := a.loadAlgorithms(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(algos) == 0 {
		return nil, fmt.Errorf("%w: algorithm %d", storage.ErrNotFound, id)
	}
	return algos[0], nil
}

// ListAlgorithms implements storage.AlgorithmStore.
func (a *AlgorithmAdapter) ListAlgorithms(ctx context.Context) ([]*comp.Algorithm, error) {
	return a.loadAlgorithms(ctx, 0)
}

func (a *AlgorithmAdapter) loadAlgorithms(ctx context.Context, id int64) ([]*comp.Algorithm, error) {
	rows, err := a.db.QueryContext(ctx, queryListAlgorithms, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query algorithms: %w", err)
	}
	var (
		algos []*comp.Algorithm
		byID  = make(map[int64]*comp.Algorithm)
	)
	for rows.Next() {
		algo := &comp.Algorithm{}
		if err := rows.Scan(&algo.ID, &algo.Name, &algo.ExecClass, &algo.Description); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan algorithm row: %w", err)
		}
		algos = append(algos, algo)
		byID[algo.ID] = algo
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating algorithms: %w", err)
	}
	if len(algos) == 0 {
		return nil, nil
	}

	propRows, err := a.db.QueryContext(ctx, queryListAlgorithmProperties, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query algorithm properties: %w", err)
	}
	defer propRows.Close()
	for propRows.Next() {
		var (
			algoID int64
			spec   comp.PropertySpec
		)
		if err := propRows.Scan(&algoID, &spec.Name, &spec.Default); err != nil {
			return nil, fmt.Errorf("failed to scan algorithm property row: %w", err)
		}
		if algo, ok := byID[algoID]; ok {
			algo.Properties = append(algo.Properties, spec)
		}
	}
	if err := propRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating algorithm properties: %w", err)
	}
	return algos, nil
}
