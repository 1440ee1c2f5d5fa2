package spqrerror

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorFormat(t *testing.T) {
	assert := assert.New(t)

	err := New(SPQR_ROUTE_COMPLEXITY, "product of 4096 units")
	assert.Equal("Code: SPQRO. Name: route complexity exceeded. Description: product of 4096 units.", err.Error())

	err = Newf(SPQR_CONDITION_RESOLUTION, "parameter $%d is missing", 3)
	assert.Equal("Code: SPQRP. Name: sharding condition resolution error. Description: parameter $3 is missing.", err.Error())

	assert.Equal("Unexpected error", GetMessageByCode("NOPE"))
}

func TestHasCodeThroughWrap(t *testing.T) {
	assert := assert.New(t)

	base := NewByCode(SPQR_FEDERATION_REQUIRED)
	wrapped := errors.Wrap(base, "route")
	wrapped = fmt.Errorf("router: %w", wrapped)

	assert.True(HasCode(wrapped, SPQR_FEDERATION_REQUIRED))
	assert.False(HasCode(wrapped, SPQR_CROSS_SHARD_QUERY))
	assert.Equal(SPQR_FEDERATION_REQUIRED, Code(wrapped))
	assert.Equal(SPQR_UNEXPECTED, Code(fmt.Errorf("plain")))
}
