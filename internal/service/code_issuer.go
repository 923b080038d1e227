package service

import (
	"context"
	"encoding/base32"
	"errors"
	"fmt"
	"time"

	"go-inventory-ledger/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EntityType selects the code prefix.
type EntityType string

const (
	EntityItem     EntityType = "ITM"
	EntityLocation EntityType = "LOC"
	EntityCategory EntityType = "CAT"
)

const (
	codeSuffixLen       = 5
	defaultCodeAttempts = 5
)

// Crockford's alphabet drops I, L, O and U to keep codes readable.
var codeEncoding = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

// CodeIssuer hands out PREFIX-YYMMDD-XXXXX codes. It takes no locks: the
// unique index on the code column decides, and a collision just means
// another suffix.
type CodeIssuer struct {
	now         func() time.Time
	suffix      func() string
	maxAttempts int
	log         *zap.Logger
}

func NewCodeIssuer(log *zap.Logger) *CodeIssuer {
	return &CodeIssuer{
		now:         func() time.Time { return time.Now().UTC() },
		suffix:      randomSuffix,
		maxAttempts: defaultCodeAttempts,
		log:         log,
	}
}

func randomSuffix() string {
	id := uuid.New()
	return codeEncoding.EncodeToString(id[:])[:codeSuffixLen]
}

// Issue returns a candidate code. Uniqueness is only settled on insert; use
// IssueWith to get the retry loop.
func (c *CodeIssuer) Issue(entity EntityType) string {
	return fmt.Sprintf("%s-%s-%s", entity, c.now().Format("060102"), c.suffix())
}

// IssueWith calls create with fresh codes until it succeeds, fails with
// something other than a duplicate key, or the attempts run out. create must
// not run inside an outer Postgres transaction: a failed insert aborts it.
func (c *CodeIssuer) IssueWith(ctx context.Context, entity EntityType, create func(code string) error) (string, error) {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code := c.Issue(entity)
		err := create(code)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", err
		}
		c.log.Debug("code collision, retrying",
			zap.String("entity", string(entity)),
			zap.String("code", code),
			zap.Int("attempt", attempt))
	}
	c.log.Warn("code generation exhausted", zap.String("entity", string(entity)), zap.Int("attempts", c.maxAttempts))
	return "", fmt.Errorf("%s: %w", entity, model.ErrCodeGenerationExhausted)
}
