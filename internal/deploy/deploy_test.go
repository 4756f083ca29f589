package deploy_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/aihq/internal/deploy"
	"github.com/slok/aihq/internal/model"
)

func TestNewVercelClient(t *testing.T) {
	_, err := deploy.NewVercelClient(deploy.VercelClientConfig{})
	assert.Error(t, err)

	_, err = deploy.NewVercelClient(deploy.VercelClientConfig{Token: "t"})
	assert.NoError(t, err)
}

func TestVercelClientTrigger(t *testing.T) {
	tests := map[string]struct {
		projectID     string
		ref           string
		handler       func(t *testing.T) http.HandlerFunc
		expDeployment *model.Deployment
		expErr        string
	}{
		"A triggered deployment should return its data.": {
			projectID: "prj_1",
			ref:       "develop",
			handler: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					assert.Equal(t, http.MethodPost, r.Method)
					assert.Equal(t, "/v13/deployments", r.URL.Path)
					assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

					var body map[string]any
					require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
					assert.Equal(t, map[string]any{
						"projectId": "prj_1",
						"gitSource": map[string]any{"type": "github", "ref": "develop"},
					}, body)

					fmt.Fprint(w, `{"id":"dpl_1","url":"web-abc.vercel.app","readyState":"QUEUED"}`)
				}
			},
			expDeployment: &model.Deployment{ID: "dpl_1", URL: "web-abc.vercel.app", State: "QUEUED"},
		},

		"A missing state should default to building and a missing ref to main.": {
			projectID: "prj_1",
			handler: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					var body struct {
						GitSource struct {
							Ref string `json:"ref"`
						} `json:"gitSource"`
					}
					require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
					assert.Equal(t, "main", body.GitSource.Ref)

					fmt.Fprint(w, `{"id":"dpl_2","url":"web-def.vercel.app"}`)
				}
			},
			expDeployment: &model.Deployment{ID: "dpl_2", URL: "web-def.vercel.app", State: "BUILDING"},
		},

		"An API error should return the provider message.": {
			projectID: "prj_1",
			handler: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusForbidden)
					fmt.Fprint(w, `{"error":{"code":"forbidden","message":"Not authorized"}}`)
				}
			},
			expErr: "Not authorized",
		},

		"An API error without body should fail.": {
			projectID: "prj_1",
			handler: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusInternalServerError)
				}
			},
			expErr: "failed to trigger deployment",
		},

		"A missing project ID should fail.": {
			handler: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					t.Errorf("unexpected request")
				}
			},
			expErr: "project id is required",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(test.handler(t))
			defer srv.Close()

			c, err := deploy.NewVercelClient(deploy.VercelClientConfig{
				Token:   "secret",
				BaseURL: srv.URL,
			})
			require.NoError(t, err)

			gotDeployment, err := c.Trigger(context.Background(), test.projectID, test.ref)
			if test.expErr != "" {
				require.Error(t, err)
				var derr *model.DeploymentError
				assert.True(t, errors.As(err, &derr))
				assert.Contains(t, err.Error(), test.expErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expDeployment, gotDeployment)
		})
	}
}
