package utils

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/realclientip/realclientip-go"
)

type HttpRes struct {
	Message    string `json:"message,omitempty" example:"status ok"`
	StatusCode int    `json:"statusCode,omitempty" example:"200"`
}

func HttpResOk() HttpRes {
	return HttpRes{
		Message:    "OK",
		StatusCode: http.StatusOK,
	}
}

func HttpResError(errMsg string, statusCode int) (int, HttpRes) {
	return statusCode, HttpRes{
		Message:    errMsg,
		StatusCode: statusCode,
	}
}

func ExtractOrigin(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if u.Scheme == "" || u.Host == "" {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}

var remoteAddrStrategy = realclientip.RemoteAddrStrategy{}

// RealIPExtractor resolves the client IP behind trusted reverse proxies.
type RealIPExtractor struct {
	strategy realclientip.RightmostTrustedRangeStrategy
}

// NewRealIPExtractor creates an extractor trusting X-Forwarded-For entries
// added from within the given CIDR ranges.
func NewRealIPExtractor(trustedRanges []string) (*RealIPExtractor, error) {
	ipNets, err := realclientip.AddressesAndRangesToIPNets(trustedRanges...)
	if err != nil {
		return nil, err
	}
	strategy, err := realclientip.NewRightmostTrustedRangeStrategy("X-Forwarded-For", ipNets)
	if err != nil {
		return nil, err
	}
	return &RealIPExtractor{strategy: strategy}, nil
}

func (e *RealIPExtractor) Extract(request *http.Request) string {
	remoteAddr := remoteAddrStrategy.ClientIP(nil, request.RemoteAddr)

	forwarded := request.Header.Get("X-Forwarded-For")
	if forwarded == "" || remoteAddr == "" {
		return remoteAddr
	}

	// The peer that delivered the request is the rightmost hop; append it
	// so that the trusted-range strategy can walk the chain from there.
	headers := request.Header.Clone()
	headers.Set("X-Forwarded-For", strings.Join([]string{forwarded, remoteAddr}, ", "))

	rightmostTrusted := e.strategy.ClientIP(headers, "")
	if rightmostTrusted == "" {
		return remoteAddr
	}
	return rightmostTrusted
}
