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

type Meeting struct {
	ID         string    `db:"id"`
	Title      string    `db:"title"`
	StartTime  time.Time `db:"start_time"`
	EndTime    time.Time `db:"end_time"`
	CalendarID string    `db:"calendar_id"`
	TeamID     *string   `db:"team_id"`
}

type MeetingPatch struct {
	ID        string     `db:"id"`
	Title     *string    `db:"title"`
	StartTime *time.Time `db:"start_time"`
	EndTime   *time.Time `db:"end_time"`
}

type MeetingRepository interface {
	Get(ctx context.Context, meetingID string) (*Meeting, error)
	// ListOverlapping returns meetings the user attends that overlap the
	// half-open window [from, to).
	ListOverlapping(ctx context.Context, userID string, from, to time.Time) ([]*Meeting, error)
	GetAttendees(ctx context.Context, meetingID string) ([]string, error)
	Create(ctx context.Context, meeting *Meeting) error
	Patch(ctx context.Context, patch *MeetingPatch) (*Meeting, error)
	Delete(ctx context.Context, meetingID string) error
	SetAttendees(ctx context.Context, meetingID string, userIDs []string) error
}

type pgxMeetingRepository struct {
	pool *pgxpool.Pool
}

func NewPgxMeetingRepository(pool *pgxpool.Pool) MeetingRepository {
	return &pgxMeetingRepository{pool: pool}
}

func scanMeeting(row pgx.Row) (*Meeting, error) {
	m := &Meeting{}
	err := row.Scan(
		&m.ID,
		&m.Title,
		&m.StartTime,
		&m.EndTime,
		&m.CalendarID,
		&m.TeamID,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (p *pgxMeetingRepository) Get(ctx context.Context, meetingID string) (*Meeting, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("id", "title", "start_time", "end_time", "calendar_id", "team_id"),
		sm.From("meeting"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(meetingID))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	m, err := scanMeeting(e.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (p *pgxMeetingRepository) ListOverlapping(ctx context.Context, userID string, from, to time.Time) ([]*Meeting, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	// Half-open overlap: meeting.start < to AND meeting.end > from.
	q := psql.Select(
		sm.Columns("meeting.id", "meeting.title", "meeting.start_time", "meeting.end_time", "meeting.calendar_id", "meeting.team_id"),
		sm.From("meeting"),
		sm.InnerJoin("meeting_attendee").On(psql.Quote("meeting_attendee", "meeting_id").EQ(psql.Quote("meeting", "id"))),
		sm.Where(psql.Quote("meeting_attendee", "user_id").EQ(psql.Arg(userID))),
		sm.Where(psql.Quote("meeting", "start_time").LT(psql.Arg(to))),
		sm.Where(psql.Quote("meeting", "end_time").GT(psql.Arg(from))),
		sm.OrderBy("meeting.start_time"),
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

	meetings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Meeting, error) {
		return scanMeeting(row)
	})
	if err != nil {
		return nil, err
	}

	return meetings, nil
}

func (p *pgxMeetingRepository) GetAttendees(ctx context.Context, meetingID string) ([]string, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("user_id"),
		sm.From("meeting_attendee"),
		sm.Where(psql.Quote("meeting_id").EQ(psql.Arg(meetingID))),
		sm.OrderBy("user_id"),
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

	attendees, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var userID string
		if err = row.Scan(&userID); err != nil {
			return "", err
		}
		return userID, nil
	})
	if err != nil {
		return nil, err
	}

	return attendees, nil
}

func (p *pgxMeetingRepository) Create(ctx context.Context, meeting *Meeting) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("meeting", "id", "title", "start_time", "end_time", "calendar_id", "team_id"),
		im.Values(
			psql.Arg(meeting.ID),
			psql.Arg(meeting.Title),
			psql.Arg(meeting.StartTime),
			psql.Arg(meeting.EndTime),
			psql.Arg(meeting.CalendarID),
			psql.Arg(meeting.TeamID),
		),
		im.Returning("id", "title", "start_time", "end_time", "calendar_id", "team_id"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	created, err := scanMeeting(e.QueryRow(ctx, sql, args...))

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrAlreadyExists
		case "23503": // calendar or team does not exist
			return ErrNotFound
		}
	}
	if err != nil {
		return err
	}

	*meeting = *created
	return nil
}

func (p *pgxMeetingRepository) Patch(ctx context.Context, patch *MeetingPatch) (*Meeting, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	sets := make([]bob.Mod[*dialect.UpdateQuery], 0, 3)
	if patch.Title != nil {
		sets = append(sets, um.SetCol("title").ToArg(*patch.Title))
	}
	if patch.StartTime != nil {
		sets = append(sets, um.SetCol("start_time").ToArg(*patch.StartTime))
	}
	if patch.EndTime != nil {
		sets = append(sets, um.SetCol("end_time").ToArg(*patch.EndTime))
	}

	q := psql.Update(
		um.Table("meeting"),
		um.Where(psql.Quote("id").EQ(psql.Arg(patch.ID))),
		um.Returning("id", "title", "start_time", "end_time", "calendar_id", "team_id"),
	)

	q.Apply(sets...)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	m, err := scanMeeting(e.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

// Delete removes the meeting and its attendee rows, freeing every attendee's
// busy time immediately.
func (p *pgxMeetingRepository) Delete(ctx context.Context, meetingID string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	attendees := psql.Delete(
		dm.From("meeting_attendee"),
		dm.Where(psql.Quote("meeting_id").EQ(psql.Arg(meetingID))),
	)

	sql, args, err := attendees.Build(ctx)
	if err != nil {
		return err
	}
	if _, err = e.Exec(ctx, sql, args...); err != nil {
		return err
	}

	q := psql.Delete(
		dm.From("meeting"),
		dm.Where(psql.Quote("id").EQ(psql.Arg(meetingID))),
	)

	sql, args, err = q.Build(ctx)
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

// SetAttendees replaces the meeting's attendee set.
func (p *pgxMeetingRepository) SetAttendees(ctx context.Context, meetingID string, userIDs []string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	clear := psql.Delete(
		dm.From("meeting_attendee"),
		dm.Where(psql.Quote("meeting_id").EQ(psql.Arg(meetingID))),
	)

	sql, args, err := clear.Build(ctx)
	if err != nil {
		return err
	}
	if _, err = e.Exec(ctx, sql, args...); err != nil {
		return err
	}

	for _, userID := range userIDs {
		q := psql.Insert(
			im.Into("meeting_attendee", "meeting_id", "user_id"),
			im.Values(psql.Arg(meetingID), psql.Arg(userID)),
		)

		sql, args, err = q.Build(ctx)
		if err != nil {
			return err
		}

		_, err = e.Exec(ctx, sql, args...)

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
	}
	return nil
}
