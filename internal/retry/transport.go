package retry

import (
	"io"
	"net/http"
	"time"
)

// Transport retries idempotent requests without a body, which is every
// request the image fetcher issues.
type Transport struct {
	Base          http.RoundTripper
	RetryStrategy Strategy
	RetryOn       *On
}

func (t *Transport) RoundTrip(request *http.Request) (*http.Response, error) {
	for retryCount := uint(0); ; retryCount++ {
		sleep, exceeded := t.retryStrategy().Sleep(retryCount)

		response, err := t.base().RoundTrip(request)
		if exceeded || t.RetryOn == nil || !t.shouldRetry(response, err) {
			return response, err
		}
		if response != nil {
			_, _ = io.Copy(io.Discard, response.Body)
			response.Body.Close()
		}

		timer := time.NewTimer(sleep)
		select {
		case <-request.Context().Done():
			timer.Stop()
			return nil, request.Context().Err()
		case <-timer.C:
		}
	}
}

func (t *Transport) shouldRetry(response *http.Response, err error) bool {
	if err != nil {
		return t.RetryOn.CheckError(err)
	}
	return t.RetryOn.CheckResponse(response)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) retryStrategy() Strategy {
	if t.RetryStrategy != nil {
		return t.RetryStrategy
	}
	return NewNever()
}
