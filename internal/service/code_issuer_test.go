package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"go-inventory-ledger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var codePattern = regexp.MustCompile(`^ITM-\d{6}-[0-9A-HJKMNP-TV-Z]{5}$`)

func TestCodeIssuer_Format(t *testing.T) {
	issuer := NewCodeIssuer(zap.NewNop())
	issuer.now = func() time.Time { return time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC) }

	code := issuer.Issue(EntityItem)
	assert.Regexp(t, codePattern, code)
	assert.Contains(t, code, "-260309-")
}

func TestCodeIssuer_RetriesOnDuplicate(t *testing.T) {
	issuer := NewCodeIssuer(zap.NewNop())
	suffixes := []string{"AAAAA", "AAAAA", "BBBBB"}
	issuer.suffix = func() string {
		s := suffixes[0]
		suffixes = suffixes[1:]
		return s
	}

	taken := map[string]bool{}
	var calls int
	create := func(code string) error {
		calls++
		if taken[code] {
			return gorm.ErrDuplicatedKey
		}
		taken[code] = true
		return nil
	}

	first, err := issuer.IssueWith(context.Background(), EntityLocation, create)
	require.NoError(t, err)
	second, err := issuer.IssueWith(context.Background(), EntityLocation, create)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, 3, calls)
}

func TestCodeIssuer_Exhausted(t *testing.T) {
	issuer := NewCodeIssuer(zap.NewNop())
	var calls int

	_, err := issuer.IssueWith(context.Background(), EntityCategory, func(string) error {
		calls++
		return gorm.ErrDuplicatedKey
	})

	assert.ErrorIs(t, err, model.ErrCodeGenerationExhausted)
	assert.Equal(t, defaultCodeAttempts, calls)
}

func TestCodeIssuer_OtherErrorsStopImmediately(t *testing.T) {
	issuer := NewCodeIssuer(zap.NewNop())
	boom := errors.New("disk full")
	var calls int

	_, err := issuer.IssueWith(context.Background(), EntityItem, func(string) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}
