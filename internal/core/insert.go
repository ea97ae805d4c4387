package core

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/mg15best/impulsa-lov-sub001/pkg/domain"
)

// DefaultInsertAttempts is the initial attempt budget of InsertWithSchemaFallback.
const DefaultInsertAttempts = 5

// ErrInsertAttemptsExhausted is returned when the attempt budget runs out
// before the backend accepts or terminally rejects the payload.
var ErrInsertAttemptsExhausted = errors.New("attempts exhausted")

var missingColumnPattern = regexp.MustCompile(`Could not find the '([^']+)' column of '([^']+)' in the schema cache`)

// ParseMissingColumn extracts the column and table named by a schema-cache
// miss. Any other error text yields ok=false.
func ParseMissingColumn(err error) (column, table string, ok bool) {
	if err == nil {
		return "", "", false
	}
	m := missingColumnPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// InsertFunc performs one insert attempt with the given payload.
type InsertFunc func(ctx context.Context, payload domain.Row) (domain.Row, error)

// InsertRequest describes one resilient insert.
type InsertRequest struct {
	Table   string
	Payload domain.Row
	Insert  InsertFunc
	// MaxAttempts is the initial budget; values <= 0 use DefaultInsertAttempts.
	MaxAttempts int
	// Protected columns are never pruned. A drift error naming one is terminal.
	Protected []string
	Logger    Logger
}

// InsertResult reports the outcome of InsertWithSchemaFallback.
type InsertResult struct {
	Data           domain.Row
	Err            error
	Attempts       int
	RemovedColumns []string
	FinalPayload   domain.Row
}

// InsertWithSchemaFallback inserts req.Payload, dropping columns the backend
// reports as unknown and retrying. Each pruned column grows the budget by one,
// so the loop is bounded by the number of distinct unknown columns. Errors
// other than a schema-cache miss on a prunable payload column are returned
// unchanged. The caller's payload is never modified.
func InsertWithSchemaFallback(ctx context.Context, req InsertRequest) InsertResult {
	logger := req.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	budget := req.MaxAttempts
	if budget <= 0 {
		budget = DefaultInsertAttempts
	}
	protected := make(map[string]struct{}, len(req.Protected))
	for _, col := range req.Protected {
		protected[col] = struct{}{}
	}

	payload := req.Payload.Clone()
	removed := []string{}
	attempts := 0
	for attempts < budget {
		attempts++
		data, err := req.Insert(ctx, payload)
		if err == nil {
			return InsertResult{Data: data, Attempts: attempts, RemovedColumns: removed, FinalPayload: payload}
		}
		column, _, ok := ParseMissingColumn(err)
		if !ok {
			return InsertResult{Err: err, Attempts: attempts, RemovedColumns: removed, FinalPayload: payload}
		}
		if _, present := payload[column]; !present {
			return InsertResult{Err: err, Attempts: attempts, RemovedColumns: removed, FinalPayload: payload}
		}
		if _, keep := protected[column]; keep {
			logger.Error("required column missing from backend schema", "table", req.Table, "column", column)
			return InsertResult{Err: err, Attempts: attempts, RemovedColumns: removed, FinalPayload: payload}
		}
		delete(payload, column)
		removed = append(removed, column)
		budget++
		logger.Warn("dropping column unknown to backend schema", "table", req.Table, "column", column, "attempt", attempts)
	}
	return InsertResult{
		Err:            fmt.Errorf("insert into %s: %w after %d attempts", req.Table, ErrInsertAttemptsExhausted, attempts),
		Attempts:       attempts,
		RemovedColumns: removed,
		FinalPayload:   payload,
	}
}
