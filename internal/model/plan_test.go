package model_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/aihq/internal/model"
)

func TestPlanValidate(t *testing.T) {
	tests := map[string]struct {
		plan   model.Plan
		expErr bool
	}{
		"An empty plan should be valid.": {
			plan: model.Plan{Summary: "nothing"},
		},

		"A plan with valid actions should be valid.": {
			plan: model.Plan{Actions: []model.Action{
				{Type: model.ActionTypeRead, File: "README.md"},
				{Type: model.ActionTypeCreate, File: "health.txt", Content: "ok"},
				{Type: model.ActionTypeModify, File: "src/app.go", Content: "package app"},
				{Type: model.ActionTypeWrite, File: "./docs/a.md", Content: "# a"},
			}},
		},

		"A write action without content should fail.": {
			plan: model.Plan{Actions: []model.Action{
				{Type: model.ActionTypeRead, File: "README.md"},
				{Type: model.ActionTypeWrite, File: "a.txt"},
			}},
			expErr: true,
		},

		"A create action without content should fail.": {
			plan:   model.Plan{Actions: []model.Action{{Type: model.ActionTypeCreate, File: "a.txt"}}},
			expErr: true,
		},

		"A modify action without content should fail.": {
			plan:   model.Plan{Actions: []model.Action{{Type: model.ActionTypeModify, File: "a.txt"}}},
			expErr: true,
		},

		"An unknown action type should fail.": {
			plan:   model.Plan{Actions: []model.Action{{Type: "delete", File: "a.txt"}}},
			expErr: true,
		},

		"An action without file should fail.": {
			plan:   model.Plan{Actions: []model.Action{{Type: model.ActionTypeRead}}},
			expErr: true,
		},

		"An action with an absolute path should fail.": {
			plan:   model.Plan{Actions: []model.Action{{Type: model.ActionTypeCreate, File: "/etc/passwd", Content: "x"}}},
			expErr: true,
		},

		"An action escaping the workspace should fail.": {
			plan:   model.Plan{Actions: []model.Action{{Type: model.ActionTypeCreate, File: "a/../../b", Content: "x"}}},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			err := test.plan.Validate()

			if test.expErr {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, model.ErrNotValid))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
