// Package sqlite implements the storage.Repository interface on an embedded
// SQLite database.
//
// The database runs in embedded mode using the ncruces/go-sqlite3 driver
// with WAL for concurrent reads. The schema mirrors the sync model:
//   - tables / tasks: identity rows (local id, global id, update time)
//   - table_changes / task_changes: append-only change journal rows
//   - comments: append-only, ordered by (table, task, time)
//   - permissions: one row per live grant; NONE is the absence of a row
//   - users: participants seen in remote changes
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/open-schedule/schedule-client/internal/model"
	"github.com/open-schedule/schedule-client/internal/storage"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Repository is the SQLite-backed implementation of storage.Repository.
type Repository struct {
	conn *sql.DB
	path string
}

var _ storage.Repository = (*Repository)(nil)

// Open creates a connection to the database at path, creating the file and
// schema when missing.
//
// The caller MUST call Close() when done to checkpoint the WAL.
func Open(path string) (*Repository, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// A single writer (the entity store) plus occasional CLI readers.
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)

	r := &Repository{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := r.conn.Exec(pragma); err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := r.initSchema(context.Background()); err != nil {
		_ = r.Close()
		return nil, err
	}

	return r, nil
}

// Close checkpoints the WAL and closes the connection.
func (r *Repository) Close() error {
	if r.conn == nil {
		return nil
	}

	if _, err := r.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := r.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	r.conn = nil
	return nil
}

// initSchema creates the schema if it doesn't exist. Idempotent.
func (r *Repository) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tables (
		local_id INTEGER PRIMARY KEY,
		global_id INTEGER NOT NULL DEFAULT 0,
		update_time INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		local_id INTEGER PRIMARY KEY,
		table_id INTEGER NOT NULL,
		global_id INTEGER NOT NULL DEFAULT 0,
		update_time INTEGER NOT NULL,
		FOREIGN KEY (table_id) REFERENCES tables(local_id) ON DELETE CASCADE
	);

	-- Append-only change journals. No uniqueness on time: duplicate
	-- timestamps are retained, insertion order preserved by rowid.
	CREATE TABLE IF NOT EXISTS table_changes (
		table_id INTEGER NOT NULL,
		time INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		FOREIGN KEY (table_id) REFERENCES tables(local_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS task_changes (
		table_id INTEGER NOT NULL,
		task_id INTEGER NOT NULL,
		time INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		start_date TEXT NOT NULL DEFAULT '',
		end_date TEXT NOT NULL DEFAULT '',
		start_time TEXT NOT NULL DEFAULT '',
		end_time TEXT NOT NULL DEFAULT '',
		period INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (task_id) REFERENCES tasks(local_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS comments (
		table_id INTEGER NOT NULL,
		task_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		time INTEGER NOT NULL,
		text TEXT NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(local_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS permissions (
		table_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		permission INTEGER NOT NULL,
		PRIMARY KEY (table_id, user_id),
		FOREIGN KEY (table_id) REFERENCES tables(local_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS users (
		user_id INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_table_changes_table ON table_changes(table_id, time);
	CREATE INDEX IF NOT EXISTS idx_task_changes_task ON task_changes(task_id, time);
	CREATE INDEX IF NOT EXISTS idx_tasks_table ON tasks(table_id);
	CREATE INDEX IF NOT EXISTS idx_comments_order ON comments(table_id, task_id, time);
	`

	if _, err := r.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// LoadAll implements storage.Repository.
func (r *Repository) LoadAll(ctx context.Context) (*storage.Snapshot, error) {
	snap := &storage.Snapshot{}

	if err := r.loadTables(ctx, snap); err != nil {
		return nil, err
	}
	if err := r.loadTableChanges(ctx, snap); err != nil {
		return nil, err
	}
	if err := r.loadTasks(ctx, snap); err != nil {
		return nil, err
	}
	if err := r.loadTaskChanges(ctx, snap); err != nil {
		return nil, err
	}
	if err := r.loadComments(ctx, snap); err != nil {
		return nil, err
	}
	if err := r.loadPermissions(ctx, snap); err != nil {
		return nil, err
	}
	if err := r.loadUsers(ctx, snap); err != nil {
		return nil, err
	}

	return snap, nil
}

func (r *Repository) loadTables(ctx context.Context, snap *storage.Snapshot) error {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT local_id, global_id, update_time FROM tables ORDER BY local_id`)
	if err != nil {
		return fmt.Errorf("failed to load tables: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row storage.TableRow
		if err := rows.Scan(&row.LocalID, &row.GlobalID, &row.UpdateTime); err != nil {
			return fmt.Errorf("failed to scan table row: %w", err)
		}
		snap.Tables = append(snap.Tables, row)
	}
	return rows.Err()
}

func (r *Repository) loadTableChanges(ctx context.Context, snap *storage.Snapshot) error {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT table_id, time, user_id, name, description FROM table_changes ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("failed to load table changes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row storage.TableChangeRow
		if err := rows.Scan(&row.TableLocalID, &row.Time, &row.UserID, &row.Name, &row.Description); err != nil {
			return fmt.Errorf("failed to scan table change row: %w", err)
		}
		snap.TableChanges = append(snap.TableChanges, row)
	}
	return rows.Err()
}

func (r *Repository) loadTasks(ctx context.Context, snap *storage.Snapshot) error {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT local_id, table_id, global_id, update_time FROM tasks ORDER BY local_id`)
	if err != nil {
		return fmt.Errorf("failed to load tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row storage.TaskRow
		if err := rows.Scan(&row.LocalID, &row.TableLocalID, &row.GlobalID, &row.UpdateTime); err != nil {
			return fmt.Errorf("failed to scan task row: %w", err)
		}
		snap.Tasks = append(snap.Tasks, row)
	}
	return rows.Err()
}

func (r *Repository) loadTaskChanges(ctx context.Context, snap *storage.Snapshot) error {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT table_id, task_id, time, user_id, name, description,
		        start_date, end_date, start_time, end_time, period
		 FROM task_changes ORDER BY rowid`)
	if err != nil {
		return fmt.Errorf("failed to load task changes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row storage.TaskChangeRow
		if err := rows.Scan(&row.TableLocalID, &row.TaskLocalID, &row.Time, &row.UserID,
			&row.Name, &row.Description,
			&row.StartDate, &row.EndDate, &row.StartTime, &row.EndTime, &row.Period); err != nil {
			return fmt.Errorf("failed to scan task change row: %w", err)
		}
		snap.TaskChanges = append(snap.TaskChanges, row)
	}
	return rows.Err()
}

func (r *Repository) loadComments(ctx context.Context, snap *storage.Snapshot) error {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT table_id, task_id, user_id, time, text
		 FROM comments ORDER BY table_id, task_id, time`)
	if err != nil {
		return fmt.Errorf("failed to load comments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row storage.CommentRow
		if err := rows.Scan(&row.TableLocalID, &row.TaskLocalID, &row.UserID, &row.Time, &row.Text); err != nil {
			return fmt.Errorf("failed to scan comment row: %w", err)
		}
		snap.Comments = append(snap.Comments, row)
	}
	return rows.Err()
}

func (r *Repository) loadPermissions(ctx context.Context, snap *storage.Snapshot) error {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT table_id, user_id, permission FROM permissions`)
	if err != nil {
		return fmt.Errorf("failed to load permissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row storage.PermissionRow
		var ordinal uint8
		if err := rows.Scan(&row.TableLocalID, &row.UserID, &ordinal); err != nil {
			return fmt.Errorf("failed to scan permission row: %w", err)
		}
		row.Permission = model.Permission(ordinal)
		snap.Permissions = append(snap.Permissions, row)
	}
	return rows.Err()
}

func (r *Repository) loadUsers(ctx context.Context, snap *storage.Snapshot) error {
	rows, err := r.conn.QueryContext(ctx, `SELECT user_id, name FROM users`)
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row storage.UserRow
		if err := rows.Scan(&row.UserID, &row.Name); err != nil {
			return fmt.Errorf("failed to scan user row: %w", err)
		}
		snap.Users = append(snap.Users, row)
	}
	return rows.Err()
}

// CreateTableRow implements storage.Repository.
func (r *Repository) CreateTableRow(ctx context.Context, localID int32, updateTime int64) error {
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO tables (local_id, global_id, update_time) VALUES (?, 0, ?)`,
		localID, updateTime)
	if err != nil {
		return fmt.Errorf("failed to create table row %d: %w", localID, err)
	}
	return nil
}

// CreateTaskRow implements storage.Repository.
func (r *Repository) CreateTaskRow(ctx context.Context, taskLocalID, tableLocalID int32, updateTime int64) error {
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO tasks (local_id, table_id, global_id, update_time) VALUES (?, ?, 0, ?)`,
		taskLocalID, tableLocalID, updateTime)
	if err != nil {
		return fmt.Errorf("failed to create task row %d: %w", taskLocalID, err)
	}
	return nil
}

// AppendTableChange implements storage.Repository.
func (r *Repository) AppendTableChange(ctx context.Context, tableLocalID int32, time int64, change model.TableInfo) error {
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO table_changes (table_id, time, user_id, name, description)
		 VALUES (?, ?, ?, ?, ?)`,
		tableLocalID, time, change.UserID, change.Name, change.Description)
	if err != nil {
		return fmt.Errorf("failed to append table change for %d: %w", tableLocalID, err)
	}
	return nil
}

// AppendTaskChange implements storage.Repository.
func (r *Repository) AppendTaskChange(ctx context.Context, tableLocalID, taskLocalID int32, time int64, change model.TaskChange) error {
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO task_changes (table_id, task_id, time, user_id, name, description,
		                           start_date, end_date, start_time, end_time, period)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tableLocalID, taskLocalID, time, change.UserID, change.Name, change.Description,
		model.FormatDate(change.StartDate), model.FormatDate(change.EndDate),
		model.FormatClock(change.StartTime), model.FormatClock(change.EndTime),
		change.Period)
	if err != nil {
		return fmt.Errorf("failed to append task change for %d/%d: %w", tableLocalID, taskLocalID, err)
	}
	return nil
}

// AppendComment implements storage.Repository.
func (r *Repository) AppendComment(ctx context.Context, tableLocalID, taskLocalID int32, comment model.Comment) error {
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO comments (table_id, task_id, user_id, time, text) VALUES (?, ?, ?, ?, ?)`,
		tableLocalID, taskLocalID, comment.UserID, comment.Time, comment.Text)
	if err != nil {
		return fmt.Errorf("failed to append comment for %d/%d: %w", tableLocalID, taskLocalID, err)
	}
	return nil
}

// UpsertPermission implements storage.Repository. Setting PermissionNone
// deletes the stored grant.
func (r *Repository) UpsertPermission(ctx context.Context, tableLocalID, userID int32, permission model.Permission) error {
	if permission == model.PermissionNone {
		_, err := r.conn.ExecContext(ctx,
			`DELETE FROM permissions WHERE table_id = ? AND user_id = ?`,
			tableLocalID, userID)
		if err != nil {
			return fmt.Errorf("failed to delete permission for %d/%d: %w", tableLocalID, userID, err)
		}
		return nil
	}

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO permissions (table_id, user_id, permission) VALUES (?, ?, ?)
		 ON CONFLICT(table_id, user_id) DO UPDATE SET permission = excluded.permission`,
		tableLocalID, userID, uint8(permission))
	if err != nil {
		return fmt.Errorf("failed to upsert permission for %d/%d: %w", tableLocalID, userID, err)
	}
	return nil
}

// UpdateTableGlobalID implements storage.Repository.
func (r *Repository) UpdateTableGlobalID(ctx context.Context, localID, globalID int32) error {
	res, err := r.conn.ExecContext(ctx,
		`UPDATE tables SET global_id = ? WHERE local_id = ?`, globalID, localID)
	if err != nil {
		return fmt.Errorf("failed to update table %d global id: %w", localID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no table row with local id %d", localID)
	}
	return nil
}

// UpdateTaskGlobalID implements storage.Repository.
func (r *Repository) UpdateTaskGlobalID(ctx context.Context, tableLocalID, taskLocalID, globalID int32) error {
	res, err := r.conn.ExecContext(ctx,
		`UPDATE tasks SET global_id = ? WHERE local_id = ? AND table_id = ?`,
		globalID, taskLocalID, tableLocalID)
	if err != nil {
		return fmt.Errorf("failed to update task %d global id: %w", taskLocalID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no task row with local id %d in table %d", taskLocalID, tableLocalID)
	}
	return nil
}

// SaveUser implements storage.Repository.
func (r *Repository) SaveUser(ctx context.Context, userID int32, name string) error {
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO users (user_id, name) VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET name = excluded.name`,
		userID, name)
	if err != nil {
		return fmt.Errorf("failed to save user %d: %w", userID, err)
	}
	return nil
}
