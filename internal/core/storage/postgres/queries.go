package postgres

// SQL for the computation metadata tables. List queries that take a single
// ID argument treat 0 as "all rows".

const (
	// queryLookupTimeSeries matches the unique string case-insensitively,
	// served by the LOWER(unique_str) index.
	queryLookupTimeSeries = `
		SELECT ts_key, unique_str
		FROM time_series
		WHERE LOWER(unique_str) = LOWER($1)
	`

	// queryCreateTimeSeries returns no row when a concurrent writer created
	// the same identifier first; callers fall back to a lookup.
	queryCreateTimeSeries = `
		INSERT INTO time_series (unique_str, created_at)
		VALUES ($1, $2)
		ON CONFLICT ((LOWER(unique_str))) DO NOTHING
		RETURNING ts_key
	`

	queryListTimeSeries = `
		SELECT ts_key, unique_str
		FROM time_series
		ORDER BY ts_key ASC
	`

	queryListGroups = `
		SELECT group_id, name, group_type, description
		FROM ts_groups
		WHERE ($1::BIGINT = 0 OR group_id = $1::BIGINT)
		ORDER BY group_id ASC
	`

	queryListGroupMembers = `
		SELECT m.group_id, t.ts_key, t.unique_str
		FROM ts_group_members m
		JOIN time_series t ON t.ts_key = m.ts_key
		WHERE ($1::BIGINT = 0 OR m.group_id = $1::BIGINT)
		ORDER BY m.group_id ASC, m.position ASC
	`

	queryListGroupSubgroups = `
		SELECT group_id, subgroup_id, combine
		FROM ts_group_subgroups
		WHERE ($1::BIGINT = 0 OR group_id = $1::BIGINT)
		ORDER BY group_id ASC, position ASC
	`

	queryListGroupFilters = `
		SELECT group_id, part_name, part_value
		FROM ts_group_part_filters
		WHERE ($1::BIGINT = 0 OR group_id = $1::BIGINT)
		ORDER BY group_id ASC, position ASC
	`

	queryInsertGroup = `
		INSERT INTO ts_groups (name, group_type, description)
		VALUES ($1, $2, $3)
		RETURNING group_id
	`

	queryUpdateGroup = `
		UPDATE ts_groups
		SET name = $2, group_type = $3, description = $4
		WHERE group_id = $1
	`

	queryDeleteGroupMembers   = `DELETE FROM ts_group_members WHERE group_id = $1`
	queryDeleteGroupSubgroups = `DELETE FROM ts_group_subgroups WHERE group_id = $1`
	queryDeleteGroupFilters   = `DELETE FROM ts_group_part_filters WHERE group_id = $1`

	queryInsertGroupMember = `
		INSERT INTO ts_group_members (group_id, ts_key, position)
		VALUES ($1, $2, $3)
	`

	queryInsertGroupSubgroup = `
		INSERT INTO ts_group_subgroups (group_id, subgroup_id, combine, position)
		VALUES ($1, $2, $3, $4)
	`

	queryInsertGroupFilter = `
		INSERT INTO ts_group_part_filters (group_id, part_name, part_value, position)
		VALUES ($1, $2, $3, $4)
	`

	queryListComputationNames = `
		SELECT name
		FROM computations
		WHERE ($1::BIGINT = 0 OR app_id = $1::BIGINT)
		ORDER BY name ASC
	`

	queryGetComputationByName = `
		SELECT
			c.computation_id, c.name, c.algorithm_id, a.name, c.app_id,
			c.enabled, COALESCE(c.group_id, 0), c.comment, c.properties
		FROM computations c
		JOIN algorithms a ON a.algorithm_id = c.algorithm_id
		WHERE c.name = $1
	`

	queryListCompParms = `
		SELECT role_name, direction, pattern
		FROM comp_parms
		WHERE computation_id = $1
		ORDER BY position ASC
	`

	queryInsertComputation = `
		INSERT INTO computations (
			name, algorithm_id, app_id, enabled,
			group_id, comment, properties, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING computation_id
	`

	queryUpdateComputation = `
		UPDATE computations
		SET name = $2, algorithm_id = $3, app_id = $4, enabled = $5,
		    group_id = $6, comment = $7, properties = $8, updated_at = $9
		WHERE computation_id = $1
	`

	queryDeleteCompParms = `DELETE FROM comp_parms WHERE computation_id = $1`

	queryInsertCompParm = `
		INSERT INTO comp_parms (computation_id, role_name, direction, pattern, position)
		VALUES ($1, $2, $3, $4, $5)
	`

	// queryDeleteComputation fails with a foreign-key violation while
	// comp_task_list rows still reference the computation.
	queryDeleteComputation = `DELETE FROM computations WHERE computation_id = $1`

	queryListAlgorithms = `
		SELECT algorithm_id, name, exec_class, description
		FROM algorithms
		WHERE ($1::BIGINT = 0 OR algorithm_id = $1::BIGINT)
		ORDER BY algorithm_id ASC
	`

	queryListAlgorithmProperties = `
		SELECT algorithm_id, name, default_value
		FROM algorithm_properties
		WHERE ($1::BIGINT = 0 OR algorithm_id = $1::BIGINT)
		ORDER BY algorithm_id ASC, position ASC
	`
)
