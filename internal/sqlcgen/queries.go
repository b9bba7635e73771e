package sqlcgen

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX matches the minimal interface needed from pgxpool.Pool or pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const upsertDeviationSighting = `-- name: UpsertDeviationSighting :exec
INSERT INTO deviation_sightings (
  deviation_id,
  county_no,
  message_type_value,
  category,
  header,
  first_seen_at,
  last_seen_at,
  seen_count
)
VALUES ($1, $2, $3, $4, $5, $6, $6, 1)
ON CONFLICT (deviation_id, county_no) DO UPDATE
SET message_type_value = EXCLUDED.message_type_value,
    category = EXCLUDED.category,
    header = COALESCE(EXCLUDED.header, deviation_sightings.header),
    last_seen_at = GREATEST(deviation_sightings.last_seen_at, EXCLUDED.last_seen_at),
    seen_count = deviation_sightings.seen_count + 1
`

type UpsertDeviationSightingParams struct {
	DeviationID      string
	CountyNo         int32
	MessageTypeValue string
	Category         string
	Header           *string
	SeenAt           time.Time
}

func (q *Queries) UpsertDeviationSighting(ctx context.Context, arg UpsertDeviationSightingParams) error {
	_, err := q.db.Exec(ctx, upsertDeviationSighting,
		arg.DeviationID,
		arg.CountyNo,
		arg.MessageTypeValue,
		arg.Category,
		arg.Header,
		arg.SeenAt,
	)
	return err
}

const getDeviationSighting = `-- name: GetDeviationSighting :one
SELECT deviation_id,
       county_no,
       message_type_value,
       category,
       header,
       first_seen_at,
       last_seen_at,
       seen_count
FROM deviation_sightings
WHERE deviation_id = $1
  AND county_no = $2
`

func (q *Queries) GetDeviationSighting(ctx context.Context, deviationID string, countyNo int32) (DeviationSighting, error) {
	row := q.db.QueryRow(ctx, getDeviationSighting, deviationID, countyNo)
	var i DeviationSighting
	err := row.Scan(
		&i.DeviationID,
		&i.CountyNo,
		&i.MessageTypeValue,
		&i.Category,
		&i.Header,
		&i.FirstSeenAt,
		&i.LastSeenAt,
		&i.SeenCount,
	)
	return i, err
}

const listDeviationStats = `-- name: ListDeviationStats :many
SELECT county_no,
       category,
       COUNT(*)::bigint AS deviations,
       MAX(last_seen_at)::timestamptz AS last_seen_at
FROM deviation_sightings
WHERE last_seen_at >= $1
  AND ($2::int IS NULL OR county_no = $2::int)
GROUP BY county_no, category
ORDER BY county_no, category
`

type ListDeviationStatsParams struct {
	Since    time.Time
	CountyNo *int32
}

func (q *Queries) ListDeviationStats(ctx context.Context, arg ListDeviationStatsParams) ([]DeviationStat, error) {
	rows, err := q.db.Query(ctx, listDeviationStats, arg.Since, arg.CountyNo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DeviationStat
	for rows.Next() {
		var i DeviationStat
		if err := rows.Scan(&i.CountyNo, &i.Category, &i.Deviations, &i.LastSeenAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertPollRun = `-- name: InsertPollRun :one
INSERT INTO poll_runs (
  started_at,
  finished_at,
  counties_polled,
  counties_failed,
  deviations_seen
)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, started_at, finished_at, counties_polled, counties_failed, deviations_seen
`

type InsertPollRunParams struct {
	StartedAt      time.Time
	FinishedAt     time.Time
	CountiesPolled int32
	CountiesFailed int32
	DeviationsSeen int32
}

func (q *Queries) InsertPollRun(ctx context.Context, arg InsertPollRunParams) (PollRun, error) {
	row := q.db.QueryRow(ctx, insertPollRun,
		arg.StartedAt,
		arg.FinishedAt,
		arg.CountiesPolled,
		arg.CountiesFailed,
		arg.DeviationsSeen,
	)
	var i PollRun
	err := row.Scan(&i.ID, &i.StartedAt, &i.FinishedAt, &i.CountiesPolled, &i.CountiesFailed, &i.DeviationsSeen)
	return i, err
}

const getLatestPollRun = `-- name: GetLatestPollRun :one
SELECT id, started_at, finished_at, counties_polled, counties_failed, deviations_seen
FROM poll_runs
ORDER BY started_at DESC
LIMIT 1
`

func (q *Queries) GetLatestPollRun(ctx context.Context) (PollRun, error) {
	row := q.db.QueryRow(ctx, getLatestPollRun)
	var i PollRun
	err := row.Scan(&i.ID, &i.StartedAt, &i.FinishedAt, &i.CountiesPolled, &i.CountiesFailed, &i.DeviationsSeen)
	return i, err
}
