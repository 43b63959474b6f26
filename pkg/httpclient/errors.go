package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/Bulldog-Master/xxvpn-sub001/pkg/errors"
)

type upstreamError struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError drains a non-2xx response and turns it into an error.
// Bodies in the {"error":{"code","message"}} shape keep their message; other
// bodies are reported raw, truncated to 1 KiB.
func ParseResponseError(resp *http.Response, upstream string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
	if err != nil {
		return fmt.Errorf("%s returned status %d (read body: %w)", upstream, resp.StatusCode, err)
	}

	message := string(body)
	var parsed upstreamError
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil {
		message = parsed.Error.Message
	}
	qualified := fmt.Sprintf("%s: %s", upstream, message)

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return apperrors.InvalidInput(qualified)
	case http.StatusUnauthorized:
		return apperrors.Unauthorized(qualified)
	case http.StatusForbidden:
		return apperrors.Forbidden(qualified)
	case http.StatusNotFound:
		return apperrors.NotFound(upstream, "resource")
	case http.StatusConflict:
		return apperrors.Conflict(qualified)
	case http.StatusGone:
		return apperrors.Gone(qualified)
	case http.StatusTooManyRequests:
		return apperrors.TooManyRequests(qualified)
	case http.StatusServiceUnavailable:
		return apperrors.Unavailable(qualified, nil)
	default:
		return fmt.Errorf("%s returned status %d: %s", upstream, resp.StatusCode, message)
	}
}
