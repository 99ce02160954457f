package ingest

import (
	"errors"

	"github.com/japaniel/yomikomi/pkg/source"
)

// Error kinds recorded by an import. Only ErrSourceUnavailable is returned to
// callers; the others end up in Summary.Errors and Summary.ErrorDetails.
var (
	ErrSourceUnavailable = source.ErrSourceUnavailable
	ErrRecordInvalid     = source.ErrRecordInvalid
	ErrAnalysisFailure   = errors.New("analysis failure")
	ErrPersistence       = errors.New("persistence failure")
	ErrCanceled          = errors.New("import canceled")
)
