package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"taskit/internal/models"
	"taskit/internal/storage"
)

// Store wraps access to the SQLite database and persists whole projects.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open initializes a new SQLite store and runs the required migrations.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("empty database path")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=ON", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	s := &Store{db: conn, logger: logger}
	if err := s.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the database resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            state INTEGER NOT NULL DEFAULT 0,
            start_date DATETIME NOT NULL,
            end_date DATETIME,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS tasks (
            id TEXT PRIMARY KEY,
            project_id TEXT NOT NULL,
            title TEXT NOT NULL,
            details TEXT NOT NULL DEFAULT '',
            state INTEGER NOT NULL DEFAULT 0,
            priority INTEGER NOT NULL DEFAULT 0,
            estimated_duration INTEGER NOT NULL DEFAULT 0,
            position INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
        );`,
		`CREATE TABLE IF NOT EXISTS sprints (
            id TEXT PRIMARY KEY,
            project_id TEXT NOT NULL,
            seq INTEGER NOT NULL,
            start_date DATETIME NOT NULL,
            duration_seconds INTEGER NOT NULL,
            FOREIGN KEY(project_id) REFERENCES projects(id) ON DELETE CASCADE
        );`,
		`CREATE TABLE IF NOT EXISTS sprint_tasks (
            sprint_id TEXT NOT NULL,
            task_id TEXT NOT NULL,
            position INTEGER NOT NULL,
            PRIMARY KEY(sprint_id, task_id),
            FOREIGN KEY(sprint_id) REFERENCES sprints(id) ON DELETE CASCADE,
            FOREIGN KEY(task_id) REFERENCES tasks(id) ON DELETE CASCADE
        );`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id, position);`,
		`CREATE INDEX IF NOT EXISTS idx_sprints_project ON sprints(project_id, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_projects_state ON projects(state);`,
		`CREATE TRIGGER IF NOT EXISTS trg_projects_updated
            AFTER UPDATE ON projects
            FOR EACH ROW BEGIN
                UPDATE projects SET updated_at = CURRENT_TIMESTAMP WHERE id = OLD.id;
            END;`,
		`CREATE TRIGGER IF NOT EXISTS trg_tasks_updated
            AFTER UPDATE ON tasks
            FOR EACH ROW BEGIN
                UPDATE tasks SET updated_at = CURRENT_TIMESTAMP WHERE id = OLD.id;
            END;`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// CreateProject inserts a project with its tasks and sprints.
func (s *Store) CreateProject(ctx context.Context, p models.Project) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO projects(id, name, state, start_date, end_date) VALUES(?, ?, ?, ?, ?)`,
			p.ID, p.Name, int(p.State), p.StartDate.UTC(), nullTime(p.EndDate))
		if err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		return saveChildren(ctx, tx, p)
	})
}

// GetProject loads a project with its tasks and sprints.
func (s *Store) GetProject(ctx context.Context, id string) (models.Project, error) {
	return loadProject(ctx, s.db, id)
}

// ListProjects returns projects ordered by start date.
func (s *Store) ListProjects(ctx context.Context, f storage.Filter) ([]models.Project, error) {
	query := `SELECT id FROM projects`
	switch f {
	case storage.ActiveProjects:
		query += fmt.Sprintf(` WHERE state != %d`, models.ProjectFinished)
	case storage.FinishedProjects:
		query += fmt.Sprintf(` WHERE state = %d`, models.ProjectFinished)
	}
	query += ` ORDER BY start_date ASC, created_at ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan project: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	projects := make([]models.Project, 0, len(ids))
	for _, id := range ids {
		p, err := loadProject(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// Update loads the project inside a transaction, applies fn and writes the
// result back. Nothing is written when fn fails.
func (s *Store) Update(ctx context.Context, id string, fn storage.Mutator) (models.Project, error) {
	var out models.Project
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		p, err := loadProject(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(&p); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `UPDATE projects SET name = ?, state = ?, start_date = ?, end_date = ? WHERE id = ?`,
			p.Name, int(p.State), p.StartDate.UTC(), nullTime(p.EndDate), id)
		if err != nil {
			return fmt.Errorf("update project: %w", err)
		}
		if err := saveChildren(ctx, tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return models.Project{}, err
	}
	s.logger.Debug("project saved", slog.String("project", id), slog.Int("tasks", len(out.Tasks)), slog.Int("sprints", len(out.Sprints)))
	return out, nil
}

// DeleteProject removes a project along with its tasks and sprints.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func loadProject(ctx context.Context, q querier, id string) (models.Project, error) {
	var (
		p     models.Project
		state int
		end   sql.NullTime
	)
	err := q.QueryRowContext(ctx, `SELECT id, name, state, start_date, end_date FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &state, &p.StartDate, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Project{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Project{}, fmt.Errorf("get project: %w", err)
	}
	p.State = models.ProjectState(state)
	if end.Valid {
		t := end.Time
		p.EndDate = &t
	}

	if p.Tasks, err = loadTasks(ctx, q, id); err != nil {
		return models.Project{}, err
	}
	if p.Sprints, err = loadSprints(ctx, q, id); err != nil {
		return models.Project{}, err
	}
	return p, nil
}

func loadTasks(ctx context.Context, q querier, projectID string) ([]models.Task, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, title, details, state, priority, estimated_duration
        FROM tasks WHERE project_id = ? ORDER BY position, id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var (
			t     models.Task
			state int
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.Details, &state, &t.Priority, &t.EstimatedDuration); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.State = models.TaskState(state)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func loadSprints(ctx context.Context, q querier, projectID string) ([]models.Sprint, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, start_date, duration_seconds FROM sprints WHERE project_id = ? ORDER BY seq`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list sprints: %w", err)
	}
	var sprints []models.Sprint
	for rows.Next() {
		var (
			sp      models.Sprint
			seconds int64
		)
		if err := rows.Scan(&sp.ID, &sp.StartDate, &seconds); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan sprint: %w", err)
		}
		sp.Duration = time.Duration(seconds) * time.Second
		sprints = append(sprints, sp)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sprints: %w", err)
	}

	for i := range sprints {
		ids, err := loadSprintTasks(ctx, q, sprints[i].ID)
		if err != nil {
			return nil, err
		}
		sprints[i].TaskIDs = ids
	}
	return sprints, nil
}

func loadSprintTasks(ctx context.Context, q querier, sprintID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT task_id FROM sprint_tasks WHERE sprint_id = ? ORDER BY position`, sprintID)
	if err != nil {
		return nil, fmt.Errorf("list sprint tasks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan sprint task: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// saveChildren writes tasks in master order and rewrites the sprint lists.
func saveChildren(ctx context.Context, q querier, p models.Project) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM sprints WHERE project_id = ?`, p.ID); err != nil {
		return fmt.Errorf("clear sprints: %w", err)
	}

	ids := make([]any, 0, len(p.Tasks)+1)
	ids = append(ids, p.ID)
	for _, t := range p.Tasks {
		ids = append(ids, t.ID)
	}
	stale := `DELETE FROM tasks WHERE project_id = ?`
	if len(p.Tasks) > 0 {
		stale += ` AND id NOT IN (` + strings.TrimSuffix(strings.Repeat("?,", len(p.Tasks)), ",") + `)`
	}
	if _, err := q.ExecContext(ctx, stale, ids...); err != nil {
		return fmt.Errorf("delete tasks: %w", err)
	}

	for pos, t := range p.Tasks {
		_, err := q.ExecContext(ctx, `INSERT INTO tasks(id, project_id, title, details, state, priority, estimated_duration, position)
            VALUES(?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(id) DO UPDATE SET title = excluded.title, details = excluded.details, state = excluded.state,
                priority = excluded.priority, estimated_duration = excluded.estimated_duration, position = excluded.position`,
			t.ID, p.ID, t.Title, t.Details, int(t.State), t.Priority, t.EstimatedDuration, pos)
		if err != nil {
			return fmt.Errorf("upsert task: %w", err)
		}
	}

	for seq, sp := range p.Sprints {
		_, err := q.ExecContext(ctx, `INSERT INTO sprints(id, project_id, seq, start_date, duration_seconds) VALUES(?, ?, ?, ?, ?)`,
			sp.ID, p.ID, seq, sp.StartDate.UTC(), int64(sp.Duration/time.Second))
		if err != nil {
			return fmt.Errorf("insert sprint: %w", err)
		}
		for pos, taskID := range sp.TaskIDs {
			_, err := q.ExecContext(ctx, `INSERT INTO sprint_tasks(sprint_id, task_id, position) VALUES(?, ?, ?)`, sp.ID, taskID, pos)
			if err != nil {
				return fmt.Errorf("insert sprint task: %w", err)
			}
		}
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
