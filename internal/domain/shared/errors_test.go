package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Is(t *testing.T) {
	err := WrapError("quest", "Create", ErrPersistence, "insert failed", errors.New("connection refused"))

	assert.True(t, IsPersistence(err))
	assert.False(t, IsNotFound(err))
	assert.Equal(t, "quest.Create: insert failed: connection refused", err.Error())

	wrapped := fmt.Errorf("issue quest: %w", err)
	assert.True(t, IsPersistence(wrapped))
}

func TestPersistence_KeepsDomainKinds(t *testing.T) {
	assert.Nil(t, Persistence("quest", "Get", nil))

	notFound := Persistence("quest", "Get", ErrQuestNotFound)
	assert.True(t, IsNotFound(notFound))
	assert.False(t, IsPersistence(notFound))

	raw := Persistence("quest", "Get", errors.New("boom"))
	assert.True(t, IsPersistence(raw))
}

func TestGenerationAndInvalidArgument(t *testing.T) {
	gen := Generation("Generate", "empty task list", nil)
	assert.True(t, IsGeneration(gen))
	assert.Equal(t, "generator.Generate: empty task list", gen.Error())

	inv := InvalidArgument("quest", "ToggleTask", "task index out of range")
	assert.True(t, IsInvalidArgument(inv))
	assert.False(t, IsGeneration(inv))
}

func TestPredefinedErrors(t *testing.T) {
	assert.True(t, IsNotFound(ErrUserNotFound))
	assert.True(t, IsNotFound(ErrQuestNotFound))
	assert.True(t, IsAlreadyExists(ErrUserExists))
	assert.True(t, IsForbidden(ErrNotAdmin))
}
