package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"studyqa-bot/internal/database/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTransitions(t *testing.T) {
	s := New()
	assert.True(t, s.IsIdle())

	s.PendingDeepLink = &DeepLink{Action: DeepLinkView, QuestionID: "abc"}
	s.BeginQuestion()
	assert.Equal(t, StateAwaitingQuestion, s.State)

	s.AwaitGrade(models.Payload{Content: "What is a prime?", MediaType: models.MediaText})
	assert.Equal(t, StateAwaitingGrade, s.State)
	require.NotNil(t, s.QuestionDraft)

	s.BeginAnswer("q1", true)
	assert.Equal(t, StateAwaitingAnswer, s.State)
	assert.Nil(t, s.QuestionDraft, "starting another flow drops old drafts")
	assert.True(t, s.IsAuthorAnswer)

	s.StageAnswer(models.Payload{Content: "Because", MediaType: models.MediaText})
	assert.True(t, s.ConfirmingAnswer)
	s.EditAnswer()
	assert.False(t, s.ConfirmingAnswer)
	assert.Nil(t, s.AnswerDraft)
	assert.Equal(t, StateAwaitingAnswer, s.State)

	s.BeginReply("q1", 3)
	assert.Equal(t, StateAwaitingReply, s.State)
	assert.Equal(t, 3, s.AnswerIndex)

	s.Reset()
	assert.True(t, s.IsIdle())
	assert.Empty(t, s.QuestionID)

	link := s.ConsumeDeepLink()
	require.NotNil(t, link, "reset keeps the pending deep link")
	assert.Equal(t, DeepLinkView, link.Action)
	assert.Nil(t, s.ConsumeDeepLink())
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	t.Run("MissingKeyIsIdle", func(t *testing.T) {
		s, err := store.Load(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, StateIdle, s.State)
	})

	t.Run("SaveCopiesSession", func(t *testing.T) {
		s := New()
		s.AwaitGrade(models.Payload{Content: "draft"})
		require.NoError(t, store.Save(ctx, 2, s))

		s.QuestionDraft.Content = "mutated after save"

		loaded, err := store.Load(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, "draft", loaded.QuestionDraft.Content)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, 2))
		loaded, err := store.Load(ctx, 2)
		require.NoError(t, err)
		assert.True(t, loaded.IsIdle())
	})

	t.Run("Sweep", func(t *testing.T) {
		now := time.Now()
		store.now = func() time.Time { return now.Add(-2 * time.Hour) }
		require.NoError(t, store.Save(ctx, 10, New()))
		store.now = func() time.Time { return now }
		require.NoError(t, store.Save(ctx, 11, New()))

		assert.Equal(t, 1, store.Sweep(time.Hour))
		assert.Equal(t, 1, store.Len())
	})
}

func TestKeyedLockerSerializesPerKey(t *testing.T) {
	locker := NewKeyedLocker[int64]()
	counter := 0
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locker.Lock(42)
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, locker.Held())
}

func TestKeyedLockerUnlockIsIdempotent(t *testing.T) {
	locker := NewKeyedLocker[int64]()
	unlock := locker.Lock(7)
	unlock()
	unlock()

	done := make(chan struct{})
	go func() {
		locker.Lock(7)()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock was not released")
	}
}

func TestDecodeSessionDefaultsToIdle(t *testing.T) {
	s, err := decodeSession([]byte(`{"questionId":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, StateIdle, s.State)

	_, err = decodeSession([]byte(`{`))
	assert.Error(t, err)
}
