// Created by Yanjunhui

package fxerr

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	e := NotFound(`collection "a" does not exist`).WithOp("openMap")
	assert.Equal(t, `NotFound (9): openMap: collection "a" does not exist`, e.Error())

	w := IO(io.ErrUnexpectedEOF, "failed to read page")
	assert.Equal(t, "IO (2): failed to read page: unexpected EOF", w.Error())
	assert.ErrorIs(t, w, io.ErrUnexpectedEOF)
}

func TestWithOpReturnsCopy(t *testing.T) {
	base := Closed("store is closed")
	tagged := base.WithOp("commit")
	assert.Empty(t, base.Op)
	assert.Equal(t, "commit", tagged.Op)
}

func TestKindsAndLookup(t *testing.T) {
	cases := []struct {
		err  *Error
		code int
		kind Kind
	}{
		{Corruption("x"), CodeCorruption, KindFormat},
		{IllegalArgument("x"), CodeIllegalArgument, KindValidation},
		{OutOfRange(5, 3), CodeOutOfRange, KindValidation},
		{TooLarge("key", 10, 5), CodeTooLarge, KindValidation},
		{New(CodePendingChanges, "x"), CodePendingChanges, KindState},
		{NotConfigured("x"), CodeNotConfigured, KindConfiguration},
		{IO(io.EOF, "x"), CodeIO, KindIO},
	}
	for _, c := range cases {
		t.Run(c.err.CodeName, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", c.err)
			assert.True(t, Is(wrapped, c.code))
			assert.Equal(t, c.kind, KindOf(wrapped))
			assert.True(t, IsKind(wrapped, c.kind))
			require.NotNil(t, As(wrapped))
			assert.Same(t, c.err, As(wrapped))
		})
	}

	assert.Nil(t, As(errors.New("plain")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.False(t, Is(nil, CodeIO))
	assert.Equal(t, "Unknown", New(999, "x").CodeName)
	assert.Equal(t, "index 5 out of range [0, 3)", OutOfRange(5, 3).Message)
}
