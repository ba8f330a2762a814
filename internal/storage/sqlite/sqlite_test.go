package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-schedule/schedule-client/internal/model"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "schedule.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestOpenCreatesFileAndSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "schedule.db")

	repo, err := Open(path)
	require.NoError(t, err)
	defer repo.Close()

	_, err = os.Stat(path)
	require.NoError(t, err, "database file should exist")

	// Schema init must be idempotent across reopen.
	require.NoError(t, repo.Close())
	repo2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, repo2.Close())
}

func TestLoadAllEmpty(t *testing.T) {
	repo := openTestRepo(t)

	snap, err := repo.LoadAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Tables)
	assert.Empty(t, snap.Tasks)
	assert.Empty(t, snap.Comments)
	assert.Empty(t, snap.Permissions)
}

func TestTableRoundTrip(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateTableRow(ctx, 1, 1000))
	require.NoError(t, repo.AppendTableChange(ctx, 1, 1000,
		model.TableInfo{UserID: 7, Name: "Sprint", Description: "Q1 plan"}))
	require.NoError(t, repo.AppendTableChange(ctx, 1, 2000,
		model.TableInfo{UserID: 8, Name: "Sprint v2", Description: "revised"}))
	require.NoError(t, repo.UpdateTableGlobalID(ctx, 1, 501))

	snap, err := repo.LoadAll(ctx)
	require.NoError(t, err)

	require.Len(t, snap.Tables, 1)
	assert.Equal(t, int32(1), snap.Tables[0].LocalID)
	assert.Equal(t, int32(501), snap.Tables[0].GlobalID)

	require.Len(t, snap.TableChanges, 2)
	assert.Equal(t, "Sprint", snap.TableChanges[0].Name)
	assert.Equal(t, "Sprint v2", snap.TableChanges[1].Name)
	assert.Equal(t, int64(2000), snap.TableChanges[1].Time)
}

func TestTaskChangePersistsDatesAsText(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	at := time.Date(0, 1, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreateTableRow(ctx, 1, 1000))
	require.NoError(t, repo.CreateTaskRow(ctx, 1, 1, 1000))
	require.NoError(t, repo.AppendTaskChange(ctx, 1, 1, 1000, model.TaskChange{
		UserID:      7,
		Name:        "Design",
		Description: "v1",
		StartDate:   &start,
		EndDate:     &end,
		StartTime:   &at,
		Period:      7,
	}))

	snap, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, snap.TaskChanges, 1)

	row := snap.TaskChanges[0]
	assert.Equal(t, "2024-01-01", row.StartDate)
	assert.Equal(t, "2024-01-02", row.EndDate)
	assert.Equal(t, "09:00:00", row.StartTime)
	assert.Equal(t, "", row.EndTime, "absent time stored as empty string")
	assert.Equal(t, int32(7), row.Period)
}

func TestUpsertPermissionNoneDeletesRow(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateTableRow(ctx, 1, 1000))
	require.NoError(t, repo.UpsertPermission(ctx, 1, 9, model.PermissionWrite))

	snap, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Permissions, 1)
	assert.Equal(t, model.PermissionWrite, snap.Permissions[0].Permission)

	// Overwrite, then revoke.
	require.NoError(t, repo.UpsertPermission(ctx, 1, 9, model.PermissionRead))
	snap, err = repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Permissions, 1)
	assert.Equal(t, model.PermissionRead, snap.Permissions[0].Permission)

	require.NoError(t, repo.UpsertPermission(ctx, 1, 9, model.PermissionNone))
	snap, err = repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Permissions, "NONE must be represented by row absence")
}

func TestCommentsLoadOrdered(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateTableRow(ctx, 1, 1000))
	require.NoError(t, repo.CreateTaskRow(ctx, 1, 1, 1000))
	require.NoError(t, repo.AppendComment(ctx, 1, 1, model.Comment{UserID: 1, Time: 300, Text: "late"}))
	require.NoError(t, repo.AppendComment(ctx, 1, 1, model.Comment{UserID: 2, Time: 100, Text: "early"}))

	snap, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Comments, 2)
	assert.Equal(t, "early", snap.Comments[0].Text)
	assert.Equal(t, "late", snap.Comments[1].Text)
}

func TestUpdateGlobalIDUnknownRow(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	assert.Error(t, repo.UpdateTableGlobalID(ctx, 42, 501))
	assert.Error(t, repo.UpdateTaskGlobalID(ctx, 1, 42, 900))
}

func TestSaveUserUpsert(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveUser(ctx, 5, "ana"))
	require.NoError(t, repo.SaveUser(ctx, 5, "ana b"))

	snap, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Users, 1)
	assert.Equal(t, "ana b", snap.Users[0].Name)
}
