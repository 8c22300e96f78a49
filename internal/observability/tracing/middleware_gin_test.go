package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type lookupError struct{ name string }

func (e *lookupError) Error() string { return "lookup failed for " + e.name }

func TestErrorKindHidesMessage(t *testing.T) {
	assert.Equal(t, "tracing.lookupError", errorKind(&lookupError{name: "Asha"}))
	assert.Equal(t, "errors.errorString", errorKind(errors.New("secret")))
	assert.Equal(t, "unknown", errorKind(nil))
}
