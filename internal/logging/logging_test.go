package logging

import (
	"context"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/require"
)

func TestContextID(t *testing.T) {
	assert := require.New(t)

	assert.Equal(uuid.Nil, ContextID(context.Background()))
	_, ok := FromContext(context.Background()).Data["ctx_id"]
	assert.False(ok)

	ctx, err := WithContextID(context.Background())
	assert.NoError(err)

	id := ContextID(ctx)
	assert.NotEqual(uuid.Nil, id)
	assert.Equal(id, FromContext(ctx).Data["ctx_id"])

	ctx2, err := WithContextID(context.Background())
	assert.NoError(err)
	assert.NotEqual(id, ContextID(ctx2))
}
