package log_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/aihq/internal/log"
)

func TestCtxValues(t *testing.T) {
	tests := map[string]struct {
		ctx    func() context.Context
		expKvs log.Kv
	}{
		"A context without values should return empty values.": {
			ctx:    context.Background,
			expKvs: log.Kv{},
		},
		"Values set multiple times should be merged, last ones winning.": {
			ctx: func() context.Context {
				ctx := log.CtxWithValues(context.Background(), log.Kv{"task-id": "t1", "a": 1})
				return log.CtxWithValues(ctx, log.Kv{"a": 2, "job-id": "j1"})
			},
			expKvs: log.Kv{"task-id": "t1", "a": 2, "job-id": "j1"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expKvs, log.ValuesFromCtx(test.ctx()))
		})
	}
}

func TestNoopLogger(t *testing.T) {
	ctx := context.Background()
	l := log.Noop.WithValues(log.Kv{"k": "v"}).WithCtxValues(ctx)
	l.Infof("nothing %s", "here")

	assert.Equal(t, ctx, l.SetValuesOnCtx(ctx, log.Kv{"k": "v"}))
}
