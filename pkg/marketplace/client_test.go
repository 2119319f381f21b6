package marketplace

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/angelmondragon/voucherredeem-backend/pkg/config"
	"github.com/angelmondragon/voucherredeem-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voucherredeem-backend/pkg/errors"
)

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient(
		config.MarketplaceConfig{BaseURL: "http://market.test/api/", APIKey: "market-key"},
		WithHTTPClient(&http.Client{Transport: rt}),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestVerifyOrderRequest(t *testing.T) {
	const expectedURL = "http://market.test/api/orders/ORD%2F42"

	var capturedURL string
	var capturedHeaders http.Header

	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		capturedHeaders = req.Header.Clone()
		return jsonResponse(http.StatusOK, `{"ok":true,"status":"paid"}`), nil
	})

	result, err := client.VerifyOrder(context.Background(), "  ORD/42 ")
	if err != nil {
		t.Fatalf("verify order: %v", err)
	}
	if capturedURL != expectedURL {
		t.Fatalf("unexpected URL %q", capturedURL)
	}
	if capturedHeaders.Get("Authorization") != "Bearer market-key" {
		t.Fatalf("authorization header missing")
	}
	if !result.OK || result.Status != enums.OrderStatusPaid {
		t.Fatalf("unexpected result %+v", result)
	}
	if !result.Eligible() {
		t.Fatalf("paid order should be eligible")
	}
}

func TestVerifyOrderNotFound(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusNotFound, `{"error":"missing"}`), nil
	})

	result, err := client.VerifyOrder(context.Background(), "ORD-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OK || result.Eligible() {
		t.Fatalf("missing order must not be eligible: %+v", result)
	}
}

func TestVerifyOrderUnknownStatusIsIneligible(t *testing.T) {
	client := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"ok":true,"status":"shipped"}`), nil
	})

	result, err := client.VerifyOrder(context.Background(), "ORD-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != "SHIPPED" || result.Eligible() {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestVerifyOrderFailures(t *testing.T) {
	tests := []struct {
		name string
		rt   roundTripFunc
		code pkgerrors.Code
	}{
		{
			name: "server error",
			rt: func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusInternalServerError, `oops`), nil
			},
			code: pkgerrors.CodeDependency,
		},
		{
			name: "transport error",
			rt: func(*http.Request) (*http.Response, error) {
				return nil, errors.New("dial tcp: refused")
			},
			code: pkgerrors.CodeDependency,
		},
		{
			name: "bad json",
			rt: func(*http.Request) (*http.Response, error) {
				return jsonResponse(http.StatusOK, `{"ok":`), nil
			},
			code: pkgerrors.CodeDependency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestClient(t, tt.rt).VerifyOrder(context.Background(), "ORD-1")
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := pkgerrors.CodeOf(err); got != tt.code {
				t.Fatalf("expected code %s, got %s", tt.code, got)
			}
		})
	}
}

func TestVerifyOrderRequiresID(t *testing.T) {
	client := newTestClient(t, func(*http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	})
	_, err := client.VerifyOrder(context.Background(), "   ")
	if got := pkgerrors.CodeOf(err); got != pkgerrors.CodeValidation {
		t.Fatalf("expected validation code, got %s", got)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(config.MarketplaceConfig{}); !errors.Is(err, errBaseURLRequired) {
		t.Fatalf("expected base url error, got %v", err)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
