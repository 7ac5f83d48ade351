package bigquery

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/finance-runway/internal/bigquery"
	"google.golang.org/api/googleapi"
)

// ErrInvalidIdentifier is returned when a dataset or table name cannot be
// safely interpolated into SQL.
var ErrInvalidIdentifier = errors.New("invalid identifier")

// Table and dataset names are never bound as query parameters, so they are
// restricted to the characters BigQuery allows unquoted.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const maxIdentifierLen = 1024

// ValidateIdentifier checks that name is a plain dataset or table name of at
// most 1024 characters.
func ValidateIdentifier(name string) error {
	if len(name) > maxIdentifierLen || !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// tableRef renders the fully qualified, backquoted table reference.
func tableRef(projectID, datasetID, table string) (string, error) {
	if err := ValidateIdentifier(datasetID); err != nil {
		return "", err
	}
	if err := ValidateIdentifier(table); err != nil {
		return "", err
	}
	return fmt.Sprintf("`%s.%s.%s`", projectID, datasetID, table), nil
}

// IsNotFound reports whether err means the table or dataset does not exist.
// The API reports this either as an HTTP 404 or as a job error with reason
// "notFound".
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return true
	}
	var jobErr *bigquery.Error
	if errors.As(err, &jobErr) && jobErr.Reason == "notFound" {
		return true
	}
	return false
}

// mapNotFound attaches bq.ErrTableNotFound to not-found errors so callers can
// match on the sentinel without importing the client libraries.
func mapNotFound(err error) error {
	if IsNotFound(err) {
		return fmt.Errorf("%w: %w", bq.ErrTableNotFound, err)
	}
	return err
}
