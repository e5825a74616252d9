package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"

	"github.com/BemiHQ/BemiSync/common"
)

const (
	HTTP_REQUEST_TIMEOUT = 60 * time.Second
	USER_AGENT           = "BemiSync/" + common.VERSION
)

func newHttpClient() *http.Client {
	return &http.Client{Timeout: HTTP_REQUEST_TIMEOUT}
}

func newRequest(httpClient *http.Client, url string, accessToken string) *requests.Builder {
	return requests.
		URL(url).
		Client(httpClient).
		UserAgent(USER_AGENT).
		Accept("application/json").
		Bearer(accessToken)
}

// classifyRequestError separates retryable provider failures (throttling, timeouts, 5xx)
// from failures that need the user to act (revoked auth, malformed requests)
func classifyRequestError(err error, providerName string, operation string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || (errors.Is(err, context.DeadlineExceeded) && !isTimeout(err)) {
		return common.NewSyncError(common.ErrorKindCancelled, err, "%s %s", providerName, operation)
	}

	var responseErr *requests.ResponseError
	if errors.As(err, &responseErr) {
		statusCode := responseErr.StatusCode
		kind := common.ErrorKindPermanentRemote
		if statusCode == http.StatusTooManyRequests || statusCode == http.StatusRequestTimeout || statusCode >= http.StatusInternalServerError {
			kind = common.ErrorKindTransientRemote
		}
		return common.NewSyncError(kind, err, "%s %s failed with status %d", providerName, operation, statusCode)
	}

	var syntaxErr *json.SyntaxError
	var unmarshalTypeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &unmarshalTypeErr) {
		return common.NewSyncError(common.ErrorKindTransientRemote, err, "%s %s returned an undecodable response", providerName, operation)
	}

	return common.NewSyncError(common.ErrorKindTransientRemote, err, "%s %s failed", providerName, operation)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
