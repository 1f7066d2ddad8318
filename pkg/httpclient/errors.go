package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/JoaquinSabater/EcommerceCPF-sub000/pkg/errors"
)

// upstreamError mirrors the error envelope written by httputil.WriteError.
type upstreamError struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes and closes a non-2xx response body and turns it
// into an error. Structured error bodies keep their code and message.
func ParseResponseError(resp *http.Response, upstream string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (read body: %w)", upstream, resp.StatusCode, err)
	}

	var parsed upstreamError
	if json.Unmarshal(body, &parsed) != nil || parsed.Error == nil {
		return fmt.Errorf("%s returned status %d: %s", upstream, resp.StatusCode, string(body))
	}

	msg := fmt.Sprintf("%s: %s", upstream, parsed.Error.Message)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NotFound(upstream, parsed.Error.Message)
	case resp.StatusCode == http.StatusBadRequest:
		return apperrors.InvalidInput(msg)
	case resp.StatusCode == http.StatusConflict:
		return apperrors.Conflict(msg)
	case resp.StatusCode == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(msg)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s server error (%d/%s): %s", upstream, resp.StatusCode, parsed.Error.Code, parsed.Error.Message)
	default:
		return &apperrors.AppError{Code: parsed.Error.Code, Message: msg, Status: resp.StatusCode}
	}
}
