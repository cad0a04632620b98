package aws

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
	"github.com/picklr-io/provprobe/internal/engine"
)

const (
	codeCacheClusterNotFound = "CacheClusterNotFound"
	codeInstanceNotFound     = "InvalidInstanceID.NotFound"
	codeDBInstanceNotFound   = "DBInstanceNotFound"
)

// hasErrorCode reports whether err is an AWS API error with one of codes.
func hasErrorCode(err error, codes ...string) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	for _, code := range codes {
		if ae.ErrorCode() == code {
			return true
		}
	}
	return false
}

// notFound wraps err so callers can match engine.ErrNotFound.
func notFound(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, engine.ErrNotFound, err)
}
