package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/hvacsearch/internal/domain"
)

// Operation names attached to provider errors.
const (
	OpEmbed       = "embedding.create"
	OpSelectTools = "chat.tools"
	OpComplete    = "chat.summary"
	OpListModels  = "models.list"
)

// classifyError turns a go-openai failure into a typed upstream error.
// Retry and HTTP mapping both key off the resulting class.
func classifyError(op string, err error) *domain.UpstreamError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.NewUpstreamError(op, 0, domain.ErrTimeout, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return domain.NewUpstreamError(op, apiErr.HTTPStatusCode, kindForStatus(apiErr.HTTPStatusCode),
			errors.New(apiErr.Message))
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		cause := reqErr.Err
		if detail := extractDetail(reqErr.Body); detail != "" {
			cause = errors.New(detail)
		}
		if cause == nil {
			cause = fmt.Errorf("status %d", reqErr.HTTPStatusCode)
		}
		return domain.NewUpstreamError(op, reqErr.HTTPStatusCode, kindForStatus(reqErr.HTTPStatusCode), cause)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.NewUpstreamError(op, 0, domain.ErrTimeout, err)
		}
		return domain.NewUpstreamError(op, 0, domain.ErrNetwork, err)
	}

	return domain.NewUpstreamError(op, 0, domain.ErrInternal, err)
}

func kindForStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized:
		return domain.ErrUnauthenticated
	case code == http.StatusForbidden:
		return domain.ErrForbidden
	case code == http.StatusNotFound:
		return domain.ErrNotFound
	case code == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case code == http.StatusRequestTimeout:
		return domain.ErrTimeout
	case code >= http.StatusInternalServerError:
		return domain.ErrUpstreamUnavailable
	default:
		// Remaining 4xx: the provider rejected our request (model, parameters).
		return domain.ErrInternal
	}
}

// errorClass is the metrics label for a classified error.
func errorClass(err error) string {
	return strings.ReplaceAll(domain.ClassOf(err).Error(), " ", "_")
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
