package handler

import (
	"context"
	stderrors "errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/pkg/rag/docutil"
	"github.com/kart-io/docqa/pkg/utils/errors"
)

// toErrno maps business errors to API errors.
// Deadline errors are checked first so a provider call cut short by the
// query timeout reports 408 rather than a provider failure.
func toErrno(err error) *errors.Errno {
	var errno *errors.Errno
	switch {
	case err == nil:
		return nil
	case stderrors.As(err, &errno):
		return errno
	case stderrors.Is(err, context.DeadlineExceeded):
		return errors.ErrQueryTimeout.WithCause(err)
	case stderrors.Is(err, context.Canceled):
		return errors.ErrRequestTimeout.WithCause(err)
	case stderrors.Is(err, store.ErrNotFound):
		return errors.ErrDocumentNotFound
	case stderrors.Is(err, docutil.ErrUnsupportedType):
		return errors.ErrUnsupportedFile.
			WithMessagef("Unsupported file type, expected one of %s", strings.Join(docutil.SupportedExtensions(), ", ")).
			WithCause(err)
	case stderrors.Is(err, docutil.ErrFileTooLarge):
		return errors.ErrFileTooLarge
	case stderrors.Is(err, biz.ErrQueueFull):
		return errors.ErrIngestQueueFull
	case stderrors.Is(err, biz.ErrQueueClosed):
		return errors.ErrServiceUnavailable.WithCause(err)
	case stderrors.Is(err, biz.ErrNotRetryable):
		return errors.ErrDocumentNotRetryable.WithCause(err)
	case stderrors.Is(err, biz.ErrEmptyQuery):
		return errors.ErrInvalidQuery.WithMessage("query must not be empty")
	case stderrors.Is(err, biz.ErrEmbeddingProvider):
		logger.Warnw("embedding provider error", "error", err.Error())
		return errors.ErrEmbeddingProvider.WithCause(err)
	case stderrors.Is(err, biz.ErrCompletionProvider):
		logger.Warnw("completion provider error", "error", err.Error())
		return errors.ErrCompletionProvider.WithCause(err)
	default:
		logger.Errorw("unhandled request error", "error", err.Error())
		return errors.ErrInternal.WithCause(err)
	}
}

// uploadFormError maps multipart parsing failures.
func uploadFormError(err error) *errors.Errno {
	var maxBytes *http.MaxBytesError
	switch {
	case stderrors.As(err, &maxBytes), stderrors.Is(err, multipart.ErrMessageTooLarge):
		return errors.ErrFileTooLarge
	case stderrors.Is(err, http.ErrMissingFile):
		return errors.ErrMissingFile
	default:
		return errors.ErrMissingFile.WithCause(err)
	}
}
