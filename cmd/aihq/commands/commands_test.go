package commands

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/aihq/internal/model"
	"github.com/slok/aihq/internal/storage/memory"
)

func TestResolveProject(t *testing.T) {
	tests := map[string]struct {
		idOrName string
		expID    string
		expErr   error
	}{
		"Resolving by ID should return the project.": {
			idOrName: "p1",
			expID:    "p1",
		},
		"Resolving by name should return the project.": {
			idOrName: "landing",
			expID:    "p2",
		},
		"Resolving a missing project should fail with not found.": {
			idOrName: "missing",
			expErr:   model.ErrNotFound,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			repo, err := memory.NewRepository(memory.RepositoryConfig{})
			require.NoError(err)

			now := time.Now().UTC()
			require.NoError(repo.CreateProject(context.TODO(), model.Project{ID: "p1", Name: "blog", GitHubRepo: "acme/blog", CreatedAt: now}))
			require.NoError(repo.CreateProject(context.TODO(), model.Project{ID: "p2", Name: "landing", GitHubRepo: "acme/landing", CreatedAt: now}))

			p, err := resolveProject(context.TODO(), repo, test.idOrName)
			if test.expErr != nil {
				assert.ErrorIs(err, test.expErr)
				return
			}

			require.NoError(err)
			assert.Equal(test.expID, p.ID)
		})
	}
}

func TestRootCommandDBPath(t *testing.T) {
	tests := map[string]struct {
		cmd       RootCommand
		expDBPath string
	}{
		"Without a DB path it should use the data dir.": {
			cmd:       RootCommand{DataDir: "/tmp/aihq"},
			expDBPath: "/tmp/aihq/aihq.db",
		},
		"A custom DB path should have priority.": {
			cmd:       RootCommand{DataDir: "/tmp/aihq", DBPath: "/var/lib/aihq.db"},
			expDBPath: "/var/lib/aihq.db",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expDBPath, test.cmd.dbPath())
		})
	}
}
