package errors

import (
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMatching(t *testing.T) {
	err := fmt.Errorf("loading commit: %w", CorruptObject("decoding commit", fmt.Errorf("bad json")))

	assert.True(t, Is(err, ErrCorruptObject))
	assert.False(t, Is(err, ErrCorruptHistory))
	assert.Equal(t, CodeIntegrity, ExitCode(err))

	var e *Error
	if assert.True(t, As(err, &e)) {
		assert.True(t, e.Fatal())
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	err := ReadFailure("a.txt", fs.ErrPermission)

	assert.True(t, Is(err, fs.ErrPermission))
	assert.True(t, Is(err, ErrReadFailure))
	assert.Equal(t, "reading file: a.txt: permission denied", err.Error())
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", PathNotFound("x"), CodeNotFound},
		{"history", CorruptHistory("broken chain"), CodeIntegrity},
		{"validation", Validation("bad"), CodeGeneric},
		{"plain", New("boom"), CodeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}
