package apply_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/aihq/internal/app/apply"
	"github.com/slok/aihq/internal/model"
	"github.com/slok/aihq/internal/storage"
	"github.com/slok/aihq/internal/storage/storagemock"
	"github.com/slok/aihq/internal/workspace/workspacemock"
)

func TestNewService(t *testing.T) {
	tests := map[string]struct {
		config apply.ServiceConfig
		expErr bool
	}{
		"A valid config should create the service.": {
			config: apply.ServiceConfig{
				Files:      &workspacemock.MockManager{},
				Repository: &storagemock.MockRepository{},
			},
		},

		"Missing file store should fail.": {
			config: apply.ServiceConfig{
				Repository: &storagemock.MockRepository{},
			},
			expErr: true,
		},

		"Missing repository should fail.": {
			config: apply.ServiceConfig{
				Files: &workspacemock.MockManager{},
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			svc, err := apply.NewService(test.config)
			if test.expErr {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func expLog(m *storagemock.MockRepository, kind model.LogKind, msg string) {
	m.On("AppendLog", mock.Anything, "task-1", storage.LogEntry{Kind: kind, Message: msg}).Once().Return(nil)
}

func TestServiceApply(t *testing.T) {
	const ws = "/repos/acme/web"

	tests := map[string]struct {
		action    model.Action
		mock      func(mr *storagemock.MockRepository, mf *workspacemock.MockManager)
		expErr    bool
		expAction bool
		expErrIs  error
	}{
		"A read action should read the file and only log the intent.": {
			action: model.Action{Type: model.ActionTypeRead, File: "package.json", Description: "Check deps"},
			mock: func(mr *storagemock.MockRepository, mf *workspacemock.MockManager) {
				expLog(mr, model.LogKindInfo, "read: package.json - Check deps")
				mf.On("ReadFile", ws, "package.json").Once().Return("{}", nil)
			},
		},

		"A write action should write the file and log success.": {
			action: model.Action{Type: model.ActionTypeWrite, File: "src/a.ts", Content: "a", Description: "Write a"},
			mock: func(mr *storagemock.MockRepository, mf *workspacemock.MockManager) {
				expLog(mr, model.LogKindInfo, "write: src/a.ts - Write a")
				mf.On("WriteFile", ws, "src/a.ts", "a").Once().Return(nil)
				expLog(mr, model.LogKindSuccess, "Created/updated: src/a.ts")
			},
		},

		"A create action should write the file and log success.": {
			action: model.Action{Type: model.ActionTypeCreate, File: "src/new/b.ts", Content: "b", Description: "New b"},
			mock: func(mr *storagemock.MockRepository, mf *workspacemock.MockManager) {
				expLog(mr, model.LogKindInfo, "create: src/new/b.ts - New b")
				mf.On("WriteFile", ws, "src/new/b.ts", "b").Once().Return(nil)
				expLog(mr, model.LogKindSuccess, "Created/updated: src/new/b.ts")
			},
		},

		"A modify action should overwrite the existing file and log success.": {
			action: model.Action{Type: model.ActionTypeModify, File: "README.md", Content: "# New", Description: "Title"},
			mock: func(mr *storagemock.MockRepository, mf *workspacemock.MockManager) {
				expLog(mr, model.LogKindInfo, "modify: README.md - Title")
				mf.On("ReadFile", ws, "README.md").Once().Return("# Old", nil)
				mf.On("WriteFile", ws, "README.md", "# New").Once().Return(nil)
				expLog(mr, model.LogKindSuccess, "Modified: README.md")
			},
		},

		"A modify action on a missing file should fail with not found.": {
			action: model.Action{Type: model.ActionTypeModify, File: "missing.md", Content: "x", Description: "d"},
			mock: func(mr *storagemock.MockRepository, mf *workspacemock.MockManager) {
				expLog(mr, model.LogKindInfo, "modify: missing.md - d")
				mf.On("ReadFile", ws, "missing.md").Once().Return("", fmt.Errorf("file: %w", model.ErrNotFound))
			},
			expErr:    true,
			expAction: true,
			expErrIs:  model.ErrNotFound,
		},

		"A read action on a missing file should fail.": {
			action: model.Action{Type: model.ActionTypeRead, File: "missing.md", Description: "d"},
			mock: func(mr *storagemock.MockRepository, mf *workspacemock.MockManager) {
				expLog(mr, model.LogKindInfo, "read: missing.md - d")
				mf.On("ReadFile", ws, "missing.md").Once().Return("", fmt.Errorf("file: %w", model.ErrNotFound))
			},
			expErr:    true,
			expAction: true,
			expErrIs:  model.ErrNotFound,
		},

		"A write action without content should fail without writing.": {
			action: model.Action{Type: model.ActionTypeWrite, File: "a.txt", Description: "d"},
			mock: func(mr *storagemock.MockRepository, mf *workspacemock.MockManager) {
				expLog(mr, model.LogKindInfo, "write: a.txt - d")
			},
			expErr:    true,
			expAction: true,
			expErrIs:  model.ErrNotValid,
		},

		"A write error should fail.": {
			action: model.Action{Type: model.ActionTypeCreate, File: "a.txt", Content: "a", Description: "d"},
			mock: func(mr *storagemock.MockRepository, mf *workspacemock.MockManager) {
				expLog(mr, model.LogKindInfo, "create: a.txt - d")
				mf.On("WriteFile", ws, "a.txt", "a").Once().Return(errors.New("disk full"))
			},
			expErr:    true,
			expAction: true,
		},

		"A log store error should fail without touching the workspace.": {
			action: model.Action{Type: model.ActionTypeCreate, File: "a.txt", Content: "a", Description: "d"},
			mock: func(mr *storagemock.MockRepository, mf *workspacemock.MockManager) {
				mr.On("AppendLog", mock.Anything, mock.Anything, mock.Anything).Once().Return(errors.New("db locked"))
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			mr := &storagemock.MockRepository{}
			mf := &workspacemock.MockManager{}
			test.mock(mr, mf)

			svc, err := apply.NewService(apply.ServiceConfig{
				Files:      mf,
				Repository: mr,
			})
			require.NoError(t, err)

			err = svc.Apply(context.Background(), test.action, ws, "task-1")
			if test.expErr {
				require.Error(t, err)
				var aerr *model.ActionError
				assert.Equal(t, test.expAction, errors.As(err, &aerr))
				if test.expErrIs != nil {
					assert.ErrorIs(t, err, test.expErrIs)
				}
			} else {
				assert.NoError(t, err)
			}

			mr.AssertExpectations(t)
			mf.AssertExpectations(t)
		})
	}
}
