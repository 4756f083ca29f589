package sqlite_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/aihq/internal/log"
	"github.com/slok/aihq/internal/model"
	"github.com/slok/aihq/internal/storage"
	"github.com/slok/aihq/internal/storage/sqlite"
)

func projectFixture(id, name string) model.Project {
	return model.Project{
		ID:              id,
		Name:            name,
		Description:     "A test project",
		GitHubRepo:      "acme/" + name,
		VercelProjectID: "prj_" + id,
		CreatedAt:       time.Now().UTC(),
	}
}

func taskFixture(id, projectID string, createdAt time.Time) model.Task {
	return model.Task{
		ID:        id,
		ProjectID: projectID,
		Prompt:    "Add a README",
		Status:    model.TaskStatusPending,
		CreatedAt: createdAt,
	}
}

func newRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.NewRepository(context.Background(), sqlite.RepositoryConfig{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: log.Noop,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestNewRepositoryReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{DBPath: dbPath})
	require.NoError(t, err)
	require.NoError(t, repo.CreateProject(ctx, projectFixture("p1", "web")))
	require.NoError(t, repo.Close())

	// Migrations must be idempotent on an existing database.
	repo, err = sqlite.NewRepository(ctx, sqlite.RepositoryConfig{DBPath: dbPath})
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "web", got.Name)
}

func TestNewRepositoryInvalidConfig(t *testing.T) {
	_, err := sqlite.NewRepository(context.Background(), sqlite.RepositoryConfig{})
	assert.Error(t, err)
}

func TestRepositoryProjects(t *testing.T) {
	tests := map[string]struct {
		setup  func(t *testing.T, repo *sqlite.Repository)
		create model.Project
		expErr error
	}{
		"Creating a project should store it with the default branch.": {
			create: projectFixture("p1", "web"),
		},

		"Creating a project with a duplicated name should fail.": {
			setup: func(t *testing.T, repo *sqlite.Repository) {
				require.NoError(t, repo.CreateProject(context.Background(), projectFixture("p0", "web")))
			},
			create: projectFixture("p1", "web"),
			expErr: model.ErrAlreadyExists,
		},

		"Creating a project with a duplicated ID should fail.": {
			setup: func(t *testing.T, repo *sqlite.Repository) {
				require.NoError(t, repo.CreateProject(context.Background(), projectFixture("p1", "api")))
			},
			create: projectFixture("p1", "web"),
			expErr: model.ErrAlreadyExists,
		},

		"Creating a project with an invalid repository should fail.": {
			create: model.Project{ID: "p1", Name: "web", GitHubRepo: "web"},
			expErr: model.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)
			ctx := context.Background()

			repo := newRepo(t)
			if test.setup != nil {
				test.setup(t, repo)
			}

			err := repo.CreateProject(ctx, test.create)
			if test.expErr != nil {
				assert.ErrorIs(err, test.expErr)
				return
			}
			require.NoError(err)

			got, err := repo.GetProject(ctx, test.create.ID)
			require.NoError(err)
			assert.Equal(test.create.Name, got.Name)
			assert.Equal(test.create.GitHubRepo, got.GitHubRepo)
			assert.Equal(model.DefaultBranch, got.Branch)
			assert.Equal(test.create.VercelProjectID, got.VercelProjectID)
			assert.Equal(test.create.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())

			gotByName, err := repo.GetProjectByName(ctx, test.create.Name)
			require.NoError(err)
			assert.Equal(test.create.ID, gotByName.ID)
		})
	}
}

func TestRepositoryProjectsNotFoundAndList(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	_, err := repo.GetProject(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = repo.GetProjectByName(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, repo.CreateProject(ctx, projectFixture("p2", "web")))
	require.NoError(t, repo.CreateProject(ctx, projectFixture("p1", "api")))

	projects, err := repo.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "api", projects[0].Name)
	assert.Equal(t, "web", projects[1].Name)
}

func TestRepositoryTasks(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	require.NoError(t, repo.CreateProject(ctx, projectFixture("p1", "web")))
	require.NoError(t, repo.CreateProject(ctx, projectFixture("p2", "api")))

	now := time.Now().UTC()
	require.NoError(t, repo.CreateTask(ctx, taskFixture("t1", "p1", now.Add(-3*time.Minute))))
	require.NoError(t, repo.CreateTask(ctx, taskFixture("t2", "p1", now.Add(-2*time.Minute))))
	require.NoError(t, repo.CreateTask(ctx, taskFixture("t3", "p2", now.Add(-1*time.Minute))))

	err := repo.CreateTask(ctx, taskFixture("t1", "p1", now))
	assert.ErrorIs(t, err, model.ErrAlreadyExists)

	err = repo.CreateTask(ctx, taskFixture("t4", "missing", now))
	assert.ErrorIs(t, err, model.ErrNotFound)

	got, err := repo.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusPending, got.Status)
	assert.Equal(t, "Add a README", got.Prompt)
	assert.Nil(t, got.Result)
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)

	_, err = repo.GetTask(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)

	pending := model.TaskStatusPending
	completed := model.TaskStatusCompleted
	tests := map[string]struct {
		filter model.TaskFilter
		expIDs []string
	}{
		"Without filter all tasks should be returned newest first.": {
			filter: model.TaskFilter{},
			expIDs: []string{"t3", "t2", "t1"},
		},

		"Filtering by project should return only its tasks.": {
			filter: model.TaskFilter{ProjectID: "p1"},
			expIDs: []string{"t2", "t1"},
		},

		"Filtering by status should return only the tasks in that status.": {
			filter: model.TaskFilter{Status: &pending},
			expIDs: []string{"t3", "t2", "t1"},
		},

		"Filtering by a status without tasks should return nothing.": {
			filter: model.TaskFilter{Status: &completed},
			expIDs: nil,
		},

		"Limiting should return the newest tasks.": {
			filter: model.TaskFilter{Limit: 1},
			expIDs: []string{"t3"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			tasks, err := repo.ListTasks(ctx, test.filter)
			require.NoError(t, err)

			var gotIDs []string
			for _, task := range tasks {
				gotIDs = append(gotIDs, task.ID)
			}
			assert.Equal(t, test.expIDs, gotIDs)
		})
	}
}

func TestRepositoryUpdateTaskStatus(t *testing.T) {
	tests := map[string]struct {
		updates   []storage.TaskStatusUpdate
		expErr    error
		expStatus model.TaskStatus
		expResult *model.TaskResult
		expError  string
		expLogs   []string
	}{
		"Starting a pending task should set it in progress with the log.": {
			updates: []storage.TaskStatusUpdate{
				{
					From: []model.TaskStatus{model.TaskStatusPending},
					To:   model.TaskStatusInProgress,
					Log:  &storage.LogEntry{Message: "Starting execution: Add a README", Kind: model.LogKindInfo},
				},
			},
			expStatus: model.TaskStatusInProgress,
			expLogs:   []string{"Starting execution: Add a README"},
		},

		"Starting a task twice should fail and not append the second log.": {
			updates: []storage.TaskStatusUpdate{
				{
					From: []model.TaskStatus{model.TaskStatusPending},
					To:   model.TaskStatusInProgress,
					Log:  &storage.LogEntry{Message: "first", Kind: model.LogKindInfo},
				},
				{
					From: []model.TaskStatus{model.TaskStatusPending},
					To:   model.TaskStatusInProgress,
					Log:  &storage.LogEntry{Message: "second", Kind: model.LogKindInfo},
				},
			},
			expErr:    model.ErrInvalidTransition,
			expStatus: model.TaskStatusInProgress,
			expLogs:   []string{"first"},
		},

		"Completing an in progress task should store the result.": {
			updates: []storage.TaskStatusUpdate{
				{From: []model.TaskStatus{model.TaskStatusPending}, To: model.TaskStatusInProgress},
				{
					From:   []model.TaskStatus{model.TaskStatusInProgress},
					To:     model.TaskStatusCompleted,
					Result: &model.TaskResult{Summary: "Added README", Actions: 1},
				},
			},
			expStatus: model.TaskStatusCompleted,
			expResult: &model.TaskResult{Summary: "Added README", Actions: 1},
		},

		"Failing a task from pending or in progress should store the error.": {
			updates: []storage.TaskStatusUpdate{
				{
					From:  []model.TaskStatus{model.TaskStatusPending, model.TaskStatusInProgress},
					To:    model.TaskStatusFailed,
					Error: "boom",
					Log:   &storage.LogEntry{Message: "Execution failed: boom", Kind: model.LogKindError},
				},
			},
			expStatus: model.TaskStatusFailed,
			expError:  "boom",
			expLogs:   []string{"Execution failed: boom"},
		},

		"A terminal task should not be transitioned.": {
			updates: []storage.TaskStatusUpdate{
				{From: []model.TaskStatus{model.TaskStatusPending}, To: model.TaskStatusFailed, Error: "boom"},
				{From: []model.TaskStatus{model.TaskStatusInProgress}, To: model.TaskStatusCompleted},
			},
			expErr:    model.ErrInvalidTransition,
			expStatus: model.TaskStatusFailed,
			expError:  "boom",
		},

		"An update without source statuses should fail.": {
			updates: []storage.TaskStatusUpdate{
				{To: model.TaskStatusCompleted},
			},
			expErr:    model.ErrNotValid,
			expStatus: model.TaskStatusPending,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)
			ctx := context.Background()

			repo := newRepo(t)
			require.NoError(repo.CreateProject(ctx, projectFixture("p1", "web")))
			require.NoError(repo.CreateTask(ctx, taskFixture("t1", "p1", time.Now().UTC())))

			var err error
			for _, u := range test.updates {
				if err = repo.UpdateTaskStatus(ctx, "t1", u); err != nil {
					break
				}
			}
			if test.expErr != nil {
				assert.ErrorIs(err, test.expErr)
			} else {
				require.NoError(err)
			}

			got, err := repo.GetTask(ctx, "t1")
			require.NoError(err)
			assert.Equal(test.expStatus, got.Status)
			assert.Equal(test.expResult, got.Result)
			assert.Equal(test.expError, got.Error)
			if got.Status.Terminal() {
				assert.NotNil(got.CompletedAt)
			}

			logs, err := repo.ListLogs(ctx, "t1", 0)
			require.NoError(err)
			var gotLogs []string
			for _, l := range logs {
				gotLogs = append(gotLogs, l.Message)
			}
			assert.Equal(test.expLogs, gotLogs)
		})
	}
}

func TestRepositoryUpdateTaskStatusMissingTask(t *testing.T) {
	repo := newRepo(t)
	err := repo.UpdateTaskStatus(context.Background(), "missing", storage.TaskStatusUpdate{
		From: []model.TaskStatus{model.TaskStatusPending},
		To:   model.TaskStatusInProgress,
	})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRepositoryConcurrentStartIsExclusive(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	require.NoError(t, repo.CreateProject(ctx, projectFixture("p1", "web")))
	require.NoError(t, repo.CreateTask(ctx, taskFixture("t1", "p1", time.Now().UTC())))

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.UpdateTaskStatus(ctx, "t1", storage.TaskStatusUpdate{
				From: []model.TaskStatus{model.TaskStatusPending},
				To:   model.TaskStatusInProgress,
				Log:  &storage.LogEntry{Message: "start", Kind: model.LogKindInfo},
			})
			if err == nil {
				mu.Lock()
				started++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, started)
	logs, err := repo.ListLogs(ctx, "t1", 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestRepositoryLogs(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	require.NoError(t, repo.CreateProject(ctx, projectFixture("p1", "web")))
	require.NoError(t, repo.CreateTask(ctx, taskFixture("t1", "p1", time.Now().UTC())))
	require.NoError(t, repo.CreateTask(ctx, taskFixture("t2", "p1", time.Now().UTC())))

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.AppendLog(ctx, "t1", storage.LogEntry{Message: fmt.Sprintf("log %d", i), Kind: model.LogKindInfo}))
		require.NoError(t, repo.AppendLog(ctx, "t2", storage.LogEntry{Message: "other", Kind: model.LogKindWarning}))
	}

	err := repo.AppendLog(ctx, "missing", storage.LogEntry{Message: "x", Kind: model.LogKindInfo})
	assert.ErrorIs(t, err, model.ErrNotFound)

	logs, err := repo.ListLogs(ctx, "t1", 0)
	require.NoError(t, err)
	require.Len(t, logs, 5)
	for i, l := range logs {
		assert.Equal(t, fmt.Sprintf("log %d", i), l.Message)
		assert.Equal(t, "t1", l.TaskID)
		assert.Equal(t, model.LogKindInfo, l.Kind)
		if i > 0 {
			assert.Greater(t, l.Sequence, logs[i-1].Sequence)
			assert.False(t, l.Timestamp.Before(logs[i-1].Timestamp))
		}
	}

	// Paging from a sequence should return only the newer logs.
	newer, err := repo.ListLogs(ctx, "t1", logs[2].Sequence)
	require.NoError(t, err)
	require.Len(t, newer, 2)
	assert.Equal(t, "log 3", newer[0].Message)
	assert.Equal(t, "log 4", newer[1].Message)

	none, err := repo.ListLogs(ctx, "t1", logs[4].Sequence)
	require.NoError(t, err)
	assert.Empty(t, none)
}
