package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chainletter/chainletter/errors"
)

func TestClassifyError(t *testing.T) {
	assert.Equal(t, ReasonDeclined, ClassifyError(errors.ErrUserDeclined))
	assert.Equal(t, ReasonDeclined, ClassifyError(errors.Wrap(errors.ErrUserDeclined, "memo 3")))
	assert.Equal(t, ReasonExpired, ClassifyError(errors.ErrSessionExpired))
	assert.Equal(t, ReasonUnknown, ClassifyError(errors.New("socket hangup")))
}
