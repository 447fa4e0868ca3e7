package retry

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// On decides which failed image fetches are worth another attempt. The
// condition names follow envoy's retry_on.
type On struct {
	_5xx           bool
	gatewayError   bool
	connectFailure bool
	retriable4xx   bool
	rateLimited    bool
	statusCodes    []int
}

func NewDefaultRetryOn() *On {
	return &On{
		gatewayError:   true,
		connectFailure: true,
		rateLimited:    true,
	}
}

func NewRetryOnFromString(s string) (*On, error) {
	o := &On{}
	for _, condition := range strings.Split(s, ",") {
		switch condition = strings.TrimSpace(condition); condition {
		case "":
		case "5xx":
			o._5xx = true
		case "gateway-error":
			o.gatewayError = true
		case "connect-failure":
			o.connectFailure = true
		case "retriable-4xx":
			o.retriable4xx = true
		case "rate-limited":
			o.rateLimited = true
		default:
			statusCode, err := strconv.Atoi(condition)
			if err != nil {
				return nil, xerrors.Errorf("invalid retryOn: %s", condition)
			}
			o.statusCodes = append(o.statusCodes, statusCode)
		}
	}
	return o, nil
}

// ref https://github.com/envoyproxy/envoy/blob/70d6ec1df6384118cf2fa2f02c0041edb76b2377/source/common/router/retry_state_impl.cc#L387
func (o *On) CheckResponse(response *http.Response) bool {
	code := response.StatusCode
	switch {
	case o._5xx && code >= 500 && code < 600:
		return true
	case o.gatewayError && code >= 502 && code < 505:
		return true
	case o.retriable4xx && code == http.StatusConflict:
		return true
	case o.rateLimited && code == http.StatusTooManyRequests:
		return true
	}

	for _, statusCode := range o.statusCodes {
		if statusCode == code {
			return true
		}
	}

	return false
}

func (o *On) CheckError(err error) bool {
	if !o.connectFailure && !o._5xx {
		return false
	}
	type temporary interface{ Temporary() bool }
	var terr temporary
	return (errors.As(err, &terr) && terr.Temporary()) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
