package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/xaenox/concern-cloud/internal/apperr"
	"github.com/xaenox/concern-cloud/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

// dialect captures what differs between the SQL backends.
type dialect struct {
	name        string
	placeholder func(n int) string
}

var (
	postgresDialect = dialect{name: "postgres", placeholder: func(n int) string { return "$" + strconv.Itoa(n) }}
	sqliteDialect   = dialect{name: "sqlite", placeholder: func(int) string { return "?" }}
)

// rebind rewrites ? markers into the dialect's placeholders.
func (d dialect) rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(d.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStorage implements Storage on database/sql.
type SQLStorage struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
}

func newSQLStorage(db *sql.DB, d dialect, logger *zap.Logger) (*SQLStorage, error) {
	s := &SQLStorage{db: db, dialect: d, logger: logger}
	if err := s.initializeSchema(); err != nil {
		return nil, errors.Wrap(err, "error initializing database schema")
	}
	return s, nil
}

func (s *SQLStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return errors.Wrap(err, "error reading migrations file")
	}

	for _, stmt := range strings.Split(string(migrationSQL), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrapf(err, "error executing migration %q", firstLine(stmt))
		}
	}
	return nil
}

func firstLine(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}

func (s *SQLStorage) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStorage) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
}

const flowColumns = `id, name, description, flowchart, submission_instance, version, created_date, created_ts, updated_ts`

func (s *SQLStorage) CreateFlow(ctx context.Context, flow *models.Flow) error {
	if flow.ID == "" {
		flow.ID = uuid.NewString()
	}
	ts := now()
	flow.CreatedAt = ts
	flow.UpdatedAt = ts
	if flow.CreatedDate.IsZero() {
		flow.CreatedDate = ts
	}

	_, err := s.exec(ctx, `
		INSERT INTO flows (`+flowColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		flow.ID,
		flow.Name,
		flow.Description,
		flow.Flowchart,
		flow.SubmissionInstance,
		flow.Version,
		toMillis(flow.CreatedDate),
		toMillis(flow.CreatedAt),
		toMillis(flow.UpdatedAt),
	)
	if err != nil {
		return errors.Wrap(err, "error creating flow")
	}
	return nil
}

func scanFlow(row interface{ Scan(...any) error }) (models.Flow, error) {
	var (
		f                             models.Flow
		createdDate, created, updated int64
	)
	err := row.Scan(
		&f.ID,
		&f.Name,
		&f.Description,
		&f.Flowchart,
		&f.SubmissionInstance,
		&f.Version,
		&createdDate,
		&created,
		&updated,
	)
	if err != nil {
		return f, err
	}
	f.CreatedDate = fromMillis(createdDate)
	f.CreatedAt = fromMillis(created)
	f.UpdatedAt = fromMillis(updated)
	return f, nil
}

func (s *SQLStorage) ListFlows(ctx context.Context) ([]models.Flow, error) {
	rows, err := s.query(ctx, `SELECT `+flowColumns+` FROM flows ORDER BY created_ts ASC, id ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "error querying flows")
	}
	defer rows.Close()

	flows := []models.Flow{}
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, errors.Wrap(err, "error scanning flow")
		}
		flows = append(flows, f)
	}
	return flows, errors.Wrap(rows.Err(), "error iterating flows")
}

func (s *SQLStorage) GetFlow(ctx context.Context, id string) (*models.Flow, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`SELECT `+flowColumns+` FROM flows WHERE id = ?`), id)
	f, err := scanFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("flow %s not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "error fetching flow")
	}
	return &f, nil
}

func (s *SQLStorage) UpdateFlowchart(ctx context.Context, id, flowchart string) (*models.Flow, error) {
	result, err := s.exec(ctx, `UPDATE flows SET flowchart = ?, updated_ts = ? WHERE id = ?`,
		flowchart, toMillis(now()), id)
	if err != nil {
		return nil, errors.Wrap(err, "error updating flowchart")
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, errors.Wrap(err, "error getting rows affected")
	}
	if rowsAffected == 0 {
		return nil, apperr.NotFoundf("flow %s not found", id)
	}
	return s.GetFlow(ctx, id)
}

func (s *SQLStorage) CreateConcern(ctx context.Context, concern *models.Concern) error {
	if concern.ID == "" {
		concern.ID = uuid.NewString()
	}
	if concern.Timestamp.IsZero() {
		concern.Timestamp = now()
	}
	nodeIDs, err := json.Marshal(cloneStrings(concern.NodeIDs))
	if err != nil {
		return errors.Wrap(err, "error encoding node ids")
	}
	nodeLabels, err := json.Marshal(cloneStrings(concern.NodeLabels))
	if err != nil {
		return errors.Wrap(err, "error encoding node labels")
	}

	_, err = s.exec(ctx, `
		INSERT INTO concerns (id, flow_id, session_id, text, comment_type, node_ids, node_labels, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		concern.ID,
		concern.FlowID,
		concern.SessionID,
		concern.Text,
		concern.CommentType,
		string(nodeIDs),
		string(nodeLabels),
		toMillis(concern.Timestamp),
	)
	if err != nil {
		return errors.Wrap(err, "error creating concern")
	}
	return nil
}

func (s *SQLStorage) ListConcerns(ctx context.Context, flowID, sessionID string) ([]models.Concern, error) {
	rows, err := s.query(ctx, `
		SELECT id, flow_id, session_id, text, comment_type, node_ids, node_labels, created_ts
		FROM concerns
		WHERE flow_id = ? AND session_id = ?
		ORDER BY created_ts DESC, id DESC`, flowID, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "error querying concerns")
	}
	defer rows.Close()

	concerns := []models.Concern{}
	for rows.Next() {
		var (
			c                   models.Concern
			nodeIDs, nodeLabels string
			created             int64
		)
		err := rows.Scan(
			&c.ID,
			&c.FlowID,
			&c.SessionID,
			&c.Text,
			&c.CommentType,
			&nodeIDs,
			&nodeLabels,
			&created,
		)
		if err != nil {
			return nil, errors.Wrap(err, "error scanning concern")
		}
		if err := json.Unmarshal([]byte(nodeIDs), &c.NodeIDs); err != nil {
			return nil, errors.Wrapf(err, "error decoding node ids of concern %s", c.ID)
		}
		if err := json.Unmarshal([]byte(nodeLabels), &c.NodeLabels); err != nil {
			return nil, errors.Wrapf(err, "error decoding node labels of concern %s", c.ID)
		}
		c.Timestamp = fromMillis(created)
		concerns = append(concerns, c)
	}
	return concerns, errors.Wrap(rows.Err(), "error iterating concerns")
}

func (s *SQLStorage) DeleteConcern(ctx context.Context, id string) error {
	result, err := s.exec(ctx, `DELETE FROM concerns WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "error deleting concern")
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "error getting rows affected")
	}
	if rowsAffected == 0 {
		return apperr.NotFoundf("comment not found")
	}
	return nil
}

func (s *SQLStorage) CreateThemeComment(ctx context.Context, comment *models.ThemeComment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	if comment.Timestamp.IsZero() {
		comment.Timestamp = now()
	}
	_, err := s.exec(ctx, `
		INSERT INTO theme_comments (id, flow_id, session_id, theme_name, text, created_ts)
		VALUES (?, ?, ?, ?, ?, ?)`,
		comment.ID,
		comment.FlowID,
		comment.SessionID,
		comment.ThemeName,
		comment.Text,
		toMillis(comment.Timestamp),
	)
	if err != nil {
		return errors.Wrap(err, "error creating theme comment")
	}
	return nil
}

func (s *SQLStorage) ListThemeComments(ctx context.Context, flowID, sessionID, themeName string) ([]models.ThemeComment, error) {
	rows, err := s.query(ctx, `
		SELECT id, flow_id, session_id, theme_name, text, created_ts
		FROM theme_comments
		WHERE flow_id = ? AND session_id = ? AND theme_name = ?
		ORDER BY created_ts DESC, id DESC`, flowID, sessionID, themeName)
	if err != nil {
		return nil, errors.Wrap(err, "error querying theme comments")
	}
	defer rows.Close()

	comments := []models.ThemeComment{}
	for rows.Next() {
		var (
			c       models.ThemeComment
			created int64
		)
		if err := rows.Scan(&c.ID, &c.FlowID, &c.SessionID, &c.ThemeName, &c.Text, &created); err != nil {
			return nil, errors.Wrap(err, "error scanning theme comment")
		}
		c.Timestamp = fromMillis(created)
		comments = append(comments, c)
	}
	return comments, errors.Wrap(rows.Err(), "error iterating theme comments")
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}
