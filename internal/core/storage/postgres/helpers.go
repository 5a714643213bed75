package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/aevon-lab/compresolver/internal/core/storage"
	"github.com/aevon-lab/compresolver/internal/core/tsid"
)

// Postgres SQLSTATE codes mapped onto storage errors.
const (
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
	codeCheckViolation      = "23514"
	codeNotNullViolation    = "23502"
)

// mapWriteError translates constraint violations into storage errors and
// wraps everything else with op.
func mapWriteError(op, object string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: %w: %s", op, storage.ErrReferentialIntegrity, pqErr.Message)
		case codeUniqueViolation, codeCheckViolation, codeNotNullViolation:
			return &storage.ValidationError{Object: object, Message: pqErr.Message}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTimeSeries reads (ts_key, unique_str) into an identifier.
func scanTimeSeries(row scanner, layout *tsid.Layout) (tsid.Identifier, error) {
	var (
		key    int64
		unique string
	)
	if err := row.Scan(&key, &unique); err != nil {
		return tsid.Identifier{}, err
	}
	id, err := layout.Parse(unique)
	if err != nil {
		return tsid.Identifier{}, fmt.Errorf("stored time series %d: %w", key, err)
	}
	id.Key = key
	return id, nil
}

// marshalProperties stores nil properties as an empty JSON object.
func marshalProperties(props map[string]string) ([]byte, error) {
	if len(props) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal properties: %w", err)
	}
	return data, nil
}

func unmarshalStringMap(data []byte) (map[string]string, error) {
	out := make(map[string]string)
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}
