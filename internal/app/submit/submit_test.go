package submit_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/aihq/internal/app/submit"
	"github.com/slok/aihq/internal/model"
	"github.com/slok/aihq/internal/queue/queuemock"
	"github.com/slok/aihq/internal/storage/storagemock"
)

func TestNewService(t *testing.T) {
	_, err := submit.NewService(submit.ServiceConfig{Queue: &queuemock.MockQueue{}})
	assert.Error(t, err)

	_, err = submit.NewService(submit.ServiceConfig{Repository: &storagemock.MockRepository{}})
	assert.Error(t, err)

	_, err = submit.NewService(submit.ServiceConfig{Repository: &storagemock.MockRepository{}, Queue: &queuemock.MockQueue{}})
	assert.NoError(t, err)
}

func TestServiceCreate(t *testing.T) {
	tests := map[string]struct {
		req      submit.CreateRequest
		mock     func(m *storagemock.MockRepository)
		expErrIs error
		expErr   bool
	}{
		"A valid request should create a pending task.": {
			req: submit.CreateRequest{ProjectID: "p1", Prompt: "  Add a footer "},
			mock: func(m *storagemock.MockRepository) {
				m.On("GetProject", mock.Anything, "p1").Once().Return(&model.Project{ID: "p1"}, nil)
				m.On("CreateTask", mock.Anything, mock.MatchedBy(func(t model.Task) bool {
					return t.ID != "" && t.ProjectID == "p1" && t.Prompt == "Add a footer" &&
						t.Status == model.TaskStatusPending && !t.CreatedAt.IsZero()
				})).Once().Return(nil)
			},
		},

		"An empty prompt should fail.": {
			req:      submit.CreateRequest{ProjectID: "p1", Prompt: "   "},
			mock:     func(m *storagemock.MockRepository) {},
			expErr:   true,
			expErrIs: model.ErrNotValid,
		},

		"A missing project should fail.": {
			req: submit.CreateRequest{ProjectID: "p1", Prompt: "p"},
			mock: func(m *storagemock.MockRepository) {
				m.On("GetProject", mock.Anything, "p1").Once().Return(nil, fmt.Errorf("project: %w", model.ErrNotFound))
			},
			expErr:   true,
			expErrIs: model.ErrNotFound,
		},

		"A store error should fail.": {
			req: submit.CreateRequest{ProjectID: "p1", Prompt: "p"},
			mock: func(m *storagemock.MockRepository) {
				m.On("GetProject", mock.Anything, "p1").Once().Return(&model.Project{ID: "p1"}, nil)
				m.On("CreateTask", mock.Anything, mock.Anything).Once().Return(errors.New("whatever"))
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			mr := &storagemock.MockRepository{}
			test.mock(mr)

			svc, err := submit.NewService(submit.ServiceConfig{Repository: mr, Queue: &queuemock.MockQueue{}})
			require.NoError(t, err)

			task, err := svc.Create(context.Background(), test.req)
			if test.expErr {
				assert.Error(t, err)
				if test.expErrIs != nil {
					assert.ErrorIs(t, err, test.expErrIs)
				}
			} else if assert.NoError(t, err) {
				assert.Equal(t, model.TaskStatusPending, task.Status)
			}

			mr.AssertExpectations(t)
		})
	}
}

func TestServiceExecute(t *testing.T) {
	tests := map[string]struct {
		mock     func(mr *storagemock.MockRepository, mq *queuemock.MockQueue)
		expJobID string
		expErr   bool
		expErrIs error
	}{
		"A pending task should be enqueued.": {
			mock: func(mr *storagemock.MockRepository, mq *queuemock.MockQueue) {
				mr.On("GetTask", mock.Anything, "t1").Once().Return(&model.Task{ID: "t1", Status: model.TaskStatusPending}, nil)
				mq.On("Enqueue", mock.Anything, "t1").Once().Return("job-1", nil)
			},
			expJobID: "job-1",
		},

		"A task not pending should not be enqueued.": {
			mock: func(mr *storagemock.MockRepository, mq *queuemock.MockQueue) {
				mr.On("GetTask", mock.Anything, "t1").Once().Return(&model.Task{ID: "t1", Status: model.TaskStatusCompleted}, nil)
			},
			expErr:   true,
			expErrIs: model.ErrTaskNotPending,
		},

		"A missing task should fail.": {
			mock: func(mr *storagemock.MockRepository, mq *queuemock.MockQueue) {
				mr.On("GetTask", mock.Anything, "t1").Once().Return(nil, fmt.Errorf("task: %w", model.ErrNotFound))
			},
			expErr:   true,
			expErrIs: model.ErrNotFound,
		},

		"A queue error should fail.": {
			mock: func(mr *storagemock.MockRepository, mq *queuemock.MockQueue) {
				mr.On("GetTask", mock.Anything, "t1").Once().Return(&model.Task{ID: "t1", Status: model.TaskStatusPending}, nil)
				mq.On("Enqueue", mock.Anything, "t1").Once().Return("", errors.New("whatever"))
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			mr := &storagemock.MockRepository{}
			mq := &queuemock.MockQueue{}
			test.mock(mr, mq)

			svc, err := submit.NewService(submit.ServiceConfig{Repository: mr, Queue: mq})
			require.NoError(t, err)

			jobID, err := svc.Execute(context.Background(), "t1")
			if test.expErr {
				assert.Error(t, err)
				if test.expErrIs != nil {
					assert.ErrorIs(t, err, test.expErrIs)
				}
			} else if assert.NoError(t, err) {
				assert.Equal(t, test.expJobID, jobID)
			}

			mr.AssertExpectations(t)
			mq.AssertExpectations(t)
		})
	}
}
