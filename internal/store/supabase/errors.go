package supabase

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/briangreenhill/communitysite/internal/store"
)

// postgrest-go reports a PostgREST error response as "(code) message"
var errCode = regexp.MustCompile(`^\(([0-9A-Z]+)\) `)

// rejectedCode reports whether a PostgREST or SQLSTATE code describes the
// request rather than the health of the server. PGRST0xx are connection and
// pool errors; the SQLSTATE classes listed are data, constraint, auth,
// syntax and raised exceptions.
func rejectedCode(code string) bool {
	if strings.HasPrefix(code, "PGRST") {
		return !strings.HasPrefix(code, "PGRST0")
	}
	if len(code) != 5 {
		return false
	}
	switch code[:2] {
	case "22", "23", "28", "2F", "42", "44", "P0":
		return true
	}
	return false
}

// classify marks rejections with store.ErrRejected
func classify(err error) error {
	if err == nil {
		return nil
	}
	if m := errCode.FindStringSubmatch(err.Error()); m != nil && rejectedCode(m[1]) {
		return fmt.Errorf("%w: %w", store.ErrRejected, err)
	}
	return err
}

// breakerSuccess counts rejections as successes: the server answered
func breakerSuccess(err error) bool {
	return err == nil || errors.Is(err, store.ErrRejected)
}
