package database

import (
	"context"
	"testing"

	"studyqa-bot/internal/database/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoPostLogRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("LogPostInserts", func(mt *mtest.T) {
		repo := NewMongoPostLogRepository(mt.DB)
		entry := models.NewPostLog(approvedQuestion(), 9)

		mt.AddMockResponses(mtest.CreateSuccessResponse())

		require.NoError(t, repo.LogPost(ctx, entry))
		assert.False(t, entry.ID.IsZero())

		evt := mt.GetStartedEvent()
		require.NotNil(t, evt)
		assert.Equal(t, "insert", evt.CommandName)
		postID, ok := evt.Command.Lookup("documents", "0", "channelPostId").Int32OK()
		assert.True(t, ok)
		assert.Equal(t, int32(77), postID)
	})

	mt.Run("ListByQuestion", func(mt *mtest.T) {
		repo := NewMongoPostLogRepository(mt.DB)
		q := approvedQuestion()
		entry := models.NewPostLog(q, 9)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, "studyqa.post_logs", mtest.FirstBatch, toDoc(t, entry)))

		logs, err := repo.ListByQuestion(ctx, q.ID)

		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, q.ID, logs[0].QuestionID)
		assert.Equal(t, int64(9), logs[0].ApprovedBy)
	})
}
