package middleware

import (
	"net/http"
	"testing"

	"github.com/streamware/wsbridge/internal/utils"
)

func requestFrom(addr string) *http.Request {
	return &http.Request{Header: make(http.Header), RemoteAddr: addr}
}

func TestConnectionsLimiter(t *testing.T) {
	extractor, err := utils.NewRealIPExtractor([]string{"0.0.0.0/0"})
	if err != nil {
		t.Fatalf("failed to create extractor: %v", err)
	}
	limiter := NewConnectionLimiter(2, extractor)

	release1, err := limiter.LeaseConnection(requestFrom("203.0.113.1:1111"))
	if err != nil {
		t.Fatalf("first lease failed: %v", err)
	}
	release2, err := limiter.LeaseConnection(requestFrom("203.0.113.1:2222"))
	if err != nil {
		t.Fatalf("second lease failed: %v", err)
	}

	if _, err := limiter.LeaseConnection(requestFrom("203.0.113.1:3333")); err == nil {
		t.Fatal("third lease should have hit the limit")
	}

	// other IPs are unaffected
	releaseOther, err := limiter.LeaseConnection(requestFrom("203.0.113.2:1111"))
	if err != nil {
		t.Fatalf("lease for another IP failed: %v", err)
	}
	releaseOther()

	release1()
	release3, err := limiter.LeaseConnection(requestFrom("203.0.113.1:3333"))
	if err != nil {
		t.Fatalf("lease after release failed: %v", err)
	}
	release3()
	release2()
}
