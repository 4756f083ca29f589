package io

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/aihq/internal/model"
)

func TestProjectRegistryYAMLRepository_ListProjects(t *testing.T) {
	tests := map[string]struct {
		fs          fstest.MapFS
		path        string
		expProjects []model.Project
		expErr      bool
		errMsg      string
	}{
		"A valid registry should load successfully.": {
			fs: fstest.MapFS{
				"projects.yaml": &fstest.MapFile{
					Data: []byte(`projects:
  - name: web
    description: Marketing site
    github:
      repo: acme/web
      branch: develop
    vercel:
      project_id: prj_123
  - name: api
    github:
      repo: acme/api
`),
				},
			},
			path: "projects.yaml",
			expProjects: []model.Project{
				{
					Name:            "web",
					Description:     "Marketing site",
					GitHubRepo:      "acme/web",
					Branch:          "develop",
					VercelProjectID: "prj_123",
				},
				{
					Name:       "api",
					GitHubRepo: "acme/api",
					Branch:     "main",
				},
			},
		},

		"An empty registry should load without projects.": {
			fs: fstest.MapFS{
				"empty.yaml": &fstest.MapFile{Data: []byte("---\n")},
			},
			path:        "empty.yaml",
			expProjects: []model.Project{},
		},

		"A missing file should fail.": {
			fs:     fstest.MapFS{},
			path:   "missing.yaml",
			expErr: true,
			errMsg: "reading project registry file",
		},

		"Invalid YAML should fail.": {
			fs: fstest.MapFS{
				"bad.yaml": &fstest.MapFile{Data: []byte("projects: [\n")},
			},
			path:   "bad.yaml",
			expErr: true,
			errMsg: "parsing YAML",
		},

		"A project without name should fail.": {
			fs: fstest.MapFS{
				"projects.yaml": &fstest.MapFile{
					Data: []byte(`projects:
  - github:
      repo: acme/web
`),
				},
			},
			path:   "projects.yaml",
			expErr: true,
			errMsg: "name is required",
		},

		"A project with an invalid repository should fail.": {
			fs: fstest.MapFS{
				"projects.yaml": &fstest.MapFile{
					Data: []byte(`projects:
  - name: web
    github:
      repo: web
`),
				},
			},
			path:   "projects.yaml",
			expErr: true,
			errMsg: "owner/repo",
		},

		"Duplicated project names should fail.": {
			fs: fstest.MapFS{
				"projects.yaml": &fstest.MapFile{
					Data: []byte(`projects:
  - name: web
    github:
      repo: acme/web
  - name: web
    github:
      repo: acme/web2
`),
				},
			},
			path:   "projects.yaml",
			expErr: true,
			errMsg: "duplicated name",
		},

		"A vercel section without project id should fail.": {
			fs: fstest.MapFS{
				"projects.yaml": &fstest.MapFile{
					Data: []byte(`projects:
  - name: web
    github:
      repo: acme/web
    vercel: {}
`),
				},
			},
			path:   "projects.yaml",
			expErr: true,
			errMsg: "vercel project_id is required",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			repo := NewProjectRegistryYAMLRepository(test.fs)
			projects, err := repo.ListProjects(context.Background(), test.path)

			if test.expErr {
				require.Error(err)
				assert.Contains(err.Error(), test.errMsg)
				return
			}
			require.NoError(err)
			assert.Equal(test.expProjects, projects)
		})
	}
}
