package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openmeet/scheduler/internal/db"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dialect"
	"github.com/stephenafamo/bob/dialect/psql/dm"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"
)

// AvailabilityRule is the stored form of a weekly availability window.
// Times of day are minutes from midnight in the owner's timezone; day 0 is Monday.
type AvailabilityRule struct {
	ID            string     `db:"id"`
	UserID        string     `db:"user_id"`
	DayOfWeek     int        `db:"day_of_week"`
	StartMinute   int        `db:"start_minute"`
	EndMinute     int        `db:"end_minute"`
	IsRecurring   bool       `db:"is_recurring"`
	EffectiveDate *time.Time `db:"effective_date"`
}

type AvailabilityRulePatch struct {
	ID          string `db:"id"`
	UserID      string `db:"user_id"`
	DayOfWeek   *int   `db:"day_of_week"`
	StartMinute *int   `db:"start_minute"`
	EndMinute   *int   `db:"end_minute"`
}

type AvailabilityRepository interface {
	ListByUser(ctx context.Context, userID string) ([]*AvailabilityRule, error)
	Create(ctx context.Context, rule *AvailabilityRule) error
	Patch(ctx context.Context, patch *AvailabilityRulePatch) (*AvailabilityRule, error)
	Delete(ctx context.Context, id, userID string) error
}

type pgxAvailabilityRepository struct {
	pool *pgxpool.Pool
}

func NewPgxAvailabilityRepository(pool *pgxpool.Pool) AvailabilityRepository {
	return &pgxAvailabilityRepository{pool: pool}
}

func scanAvailabilityRule(row pgx.Row) (*AvailabilityRule, error) {
	rule := &AvailabilityRule{}
	err := row.Scan(
		&rule.ID,
		&rule.UserID,
		&rule.DayOfWeek,
		&rule.StartMinute,
		&rule.EndMinute,
		&rule.IsRecurring,
		&rule.EffectiveDate,
	)
	if err != nil {
		return nil, err
	}
	return rule, nil
}

func (p *pgxAvailabilityRepository) ListByUser(ctx context.Context, userID string) ([]*AvailabilityRule, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("id", "user_id", "day_of_week", "start_minute", "end_minute", "is_recurring", "effective_date"),
		sm.From("availability"),
		sm.Where(psql.Quote("user_id").EQ(psql.Arg(userID))),
		sm.OrderBy("day_of_week"),
		sm.OrderBy("start_minute"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*AvailabilityRule, error) {
		return scanAvailabilityRule(row)
	})
	if err != nil {
		return nil, err
	}

	return rules, nil
}

func (p *pgxAvailabilityRepository) Create(ctx context.Context, rule *AvailabilityRule) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("availability", "id", "user_id", "day_of_week", "start_minute", "end_minute", "is_recurring", "effective_date"),
		im.Values(
			psql.Arg(rule.ID),
			psql.Arg(rule.UserID),
			psql.Arg(rule.DayOfWeek),
			psql.Arg(rule.StartMinute),
			psql.Arg(rule.EndMinute),
			psql.Arg(rule.IsRecurring),
			psql.Arg(rule.EffectiveDate),
		),
		im.Returning("id", "user_id", "day_of_week", "start_minute", "end_minute", "is_recurring", "effective_date"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	created, err := scanAvailabilityRule(e.QueryRow(ctx, sql, args...))

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrAlreadyExists
		case "23503": // owning user does not exist
			return ErrNotFound
		}
	}
	if err != nil {
		return err
	}

	*rule = *created
	return nil
}

func (p *pgxAvailabilityRepository) Patch(ctx context.Context, patch *AvailabilityRulePatch) (*AvailabilityRule, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	sets := make([]bob.Mod[*dialect.UpdateQuery], 0, 3)
	if patch.DayOfWeek != nil {
		sets = append(sets, um.SetCol("day_of_week").ToArg(*patch.DayOfWeek))
	}
	if patch.StartMinute != nil {
		sets = append(sets, um.SetCol("start_minute").ToArg(*patch.StartMinute))
	}
	if patch.EndMinute != nil {
		sets = append(sets, um.SetCol("end_minute").ToArg(*patch.EndMinute))
	}

	q := psql.Update(
		um.Table("availability"),
		um.Where(psql.Quote("id").EQ(psql.Arg(patch.ID))),
		um.Where(psql.Quote("user_id").EQ(psql.Arg(patch.UserID))),
		um.Returning("id", "user_id", "day_of_week", "start_minute", "end_minute", "is_recurring", "effective_date"),
	)

	q.Apply(sets...)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	rule, err := scanAvailabilityRule(e.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rule, nil
}

func (p *pgxAvailabilityRepository) Delete(ctx context.Context, id, userID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("availability"),
		dm.Where(psql.Quote("id").EQ(psql.Arg(id))),
		dm.Where(psql.Quote("user_id").EQ(psql.Arg(userID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	tag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
