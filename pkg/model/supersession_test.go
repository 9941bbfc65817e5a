package model_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/hiraku-dev/kioku/pkg/model"
)

func TestSupersessionColumnRoundTrip(t *testing.T) {
	live := model.Live()
	gt.True(t, live.IsLive())
	gt.Nil(t, live.ColumnValue())
	gt.True(t, model.SupersessionFromColumn(nil).IsLive())

	next := model.NewMemoryID()
	forwarded := model.SupersededBy(next)
	gt.False(t, forwarded.IsLive())
	col := forwarded.ColumnValue()
	gt.NotNil(t, col)
	parsed := model.SupersessionFromColumn(col)
	succ, ok := parsed.Successor()
	gt.True(t, ok)
	gt.Equal(t, succ, next)

	dead := model.Tombstone()
	gt.True(t, dead.IsDeleted())
	col = dead.ColumnValue()
	gt.NotNil(t, col)
	gt.True(t, model.SupersessionFromColumn(col).IsDeleted())

	// Empty string means the column was never written
	empty := ""
	gt.True(t, model.SupersessionFromColumn(&empty).IsLive())
}

func TestIntentValidate(t *testing.T) {
	for _, intent := range model.Intents() {
		gt.NoError(t, intent.Validate())
	}

	gt.Error(t, model.Intent("").Validate())
	gt.Error(t, model.Intent("recent").Validate())
}
