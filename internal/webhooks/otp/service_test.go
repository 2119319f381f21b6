package otpwebhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/angelmondragon/voucherredeem-backend/internal/redemption"
	"github.com/angelmondragon/voucherredeem-backend/pkg/db"
	"github.com/angelmondragon/voucherredeem-backend/pkg/db/dbtest"
	"github.com/angelmondragon/voucherredeem-backend/pkg/db/models"
	"github.com/angelmondragon/voucherredeem-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voucherredeem-backend/pkg/errors"
	"github.com/angelmondragon/voucherredeem-backend/pkg/logger"
	"github.com/angelmondragon/voucherredeem-backend/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "s3cret"
	testEndpoint = "/webhooks/otp"
)

type fixture struct {
	svc         *Service
	client      *db.Client
	logs        LogRepository
	redemptions redemption.Repository
	registry    *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	logs := NewLogRepository(client.DB())
	redemptions := redemption.NewRepository(client.DB())
	reg := prometheus.NewRegistry()

	svc, err := NewService(ServiceParams{
		Logs:        logs,
		Redemptions: redemptions,
		Tx:          client,
		Secret:      testSecret,
		Logger:      logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Metrics:     metrics.NewRedemptionMetrics(reg),
	})
	require.NoError(t, err)
	return &fixture{svc: svc, client: client, logs: logs, redemptions: redemptions, registry: reg}
}

func (f *fixture) seed(t *testing.T, leaseRef string) *models.Redemption {
	t.Helper()
	number := "60123456789"
	ref := leaseRef
	record := &models.Redemption{
		OrderID:       "ORD-1",
		ServiceLabel:  "zus",
		ServiceCode:   "aik",
		VoucherNumber: &number,
		LeaseRef:      &ref,
		State:         enums.RedemptionStateWaitingOTP,
	}
	require.NoError(t, f.redemptions.Create(context.Background(), record))
	return record
}

func authed(token string) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	if token != "" {
		h.Set("Authorization", token)
	}
	return h
}

func (f *fixture) logCount(t *testing.T) int {
	t.Helper()
	rows, err := f.logs.ListByEndpoint(context.Background(), testEndpoint)
	require.NoError(t, err)
	return len(rows)
}

func (f *fixture) outcome(t *testing.T, outcome string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "webhook_deliveries_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "outcome" && label.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestApplyCompletesRedemption(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.seed(t, "12345")
	body := []byte(`{"activationId":"12345","code":"9876"}`)

	res, err := f.svc.Apply(ctx, Request{Endpoint: testEndpoint, Headers: authed("Bearer " + testSecret), Body: body})
	require.NoError(t, err)
	require.Equal(t, record.ID, res.RedemptionID)

	stored, err := f.redemptions.FindByID(ctx, record.ID)
	require.NoError(t, err)
	require.Equal(t, enums.RedemptionStateSuccess, stored.State)

	event, err := f.redemptions.FindLatestOTPEvent(ctx, record.ID)
	require.NoError(t, err)
	require.Equal(t, "9876", event.OTPCode)
	require.Equal(t, string(body), event.RawPayload)

	rows, err := f.logs.ListByEndpoint(ctx, testEndpoint)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, rows[0].ValidSignature)
	require.Equal(t, string(body), rows[0].Payload)
	require.Equal(t, "Bearer "+testSecret, rows[0].Headers.Get("Authorization"))
	require.Equal(t, 1.0, f.outcome(t, OutcomeApplied))
}

func TestApplyRejectsBadTokens(t *testing.T) {
	cases := map[string]string{
		"missing": "",
		"wrong":   "Bearer nope",
		"blank":   "Bearer   ",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			record := f.seed(t, "12345")

			_, err := f.svc.Apply(context.Background(), Request{
				Endpoint: testEndpoint,
				Headers:  authed(header),
				Body:     []byte(`{"activationId":"12345","code":"9876"}`),
			})
			require.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))

			rows, err := f.logs.ListByEndpoint(context.Background(), testEndpoint)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			require.False(t, rows[0].ValidSignature)

			stored, err := f.redemptions.FindByID(context.Background(), record.ID)
			require.NoError(t, err)
			require.Equal(t, enums.RedemptionStateWaitingOTP, stored.State)
		})
	}
}

func TestApplyAcceptsCaseInsensitiveBearer(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "12345")
	_, err := f.svc.Apply(context.Background(), Request{
		Endpoint: testEndpoint,
		Headers:  authed("bEaReR  " + testSecret + " "),
		Body:     []byte(`{"activationId":"12345","code":"1"}`),
	})
	require.NoError(t, err)
}

func TestApplyAcceptsBareToken(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "12345")
	_, err := f.svc.Apply(context.Background(), Request{
		Endpoint: testEndpoint,
		Headers:  authed(testSecret),
		Body:     []byte(`{"activationId":"12345","code":"1"}`),
	})
	require.NoError(t, err)
}

func TestApplyMalformedPayloads(t *testing.T) {
	bodies := map[string]string{
		"not json":     `activationId=1&code=2`,
		"array":        `[1,2]`,
		"missing code": `{"activationId":"12345"}`,
		"missing ref":  `{"code":"9876"}`,
		"empty values": `{"activationId":"","code":""}`,
		"empty body":   ``,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, "12345")

			_, err := f.svc.Apply(context.Background(), Request{
				Endpoint: testEndpoint,
				Headers:  authed("Bearer " + testSecret),
				Body:     []byte(body),
			})
			require.Equal(t, pkgerrors.CodeMalformedPayload, pkgerrors.CodeOf(err))
			require.Equal(t, 1, f.logCount(t))
			require.Equal(t, 1.0, f.outcome(t, OutcomeMalformed))
		})
	}
}

func TestApplyUnknownLeaseRef(t *testing.T) {
	f := newFixture(t)
	record := f.seed(t, "12345")

	_, err := f.svc.Apply(context.Background(), Request{
		Endpoint: testEndpoint,
		Headers:  authed("Bearer " + testSecret),
		Body:     []byte(`{"activationId":"99999","code":"1"}`),
	})
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
	require.Equal(t, 1, f.logCount(t))

	count, err := f.redemptions.CountOTPEvents(context.Background(), record.ID)
	require.NoError(t, err)
	require.Zero(t, count)
	require.Equal(t, 1.0, f.outcome(t, OutcomeUnmatched))
}

func TestApplyAliasesAndNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.seed(t, "777")

	_, err := f.svc.Apply(ctx, Request{
		Endpoint: testEndpoint,
		Headers:  authed("Bearer " + testSecret),
		Body:     []byte(`{"ref_id":777,"otp":4242}`),
	})
	require.NoError(t, err)

	event, err := f.redemptions.FindLatestOTPEvent(ctx, record.ID)
	require.NoError(t, err)
	require.Equal(t, "4242", event.OTPCode)
}

func TestApplyRepeatedDeliveryStaysSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.seed(t, "12345")
	headers := authed("Bearer " + testSecret)

	for _, code := range []string{"1111", "2222"} {
		_, err := f.svc.Apply(ctx, Request{
			Endpoint: testEndpoint,
			Headers:  headers,
			Body:     []byte(`{"activationId":"12345","code":"` + code + `"}`),
		})
		require.NoError(t, err)
	}

	count, err := f.redemptions.CountOTPEvents(ctx, record.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	latest, err := f.redemptions.FindLatestOTPEvent(ctx, record.ID)
	require.NoError(t, err)
	require.Equal(t, "2222", latest.OTPCode)

	stored, err := f.redemptions.FindByID(ctx, record.ID)
	require.NoError(t, err)
	require.Equal(t, enums.RedemptionStateSuccess, stored.State)
	require.Equal(t, 2, f.logCount(t))
}

func TestApplyOldLeaseAfterRetryIsUnmatched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	record := f.seed(t, "old-ref")

	ok, err := f.redemptions.SwapLease(ctx, record.ID, 0, "60999", "new-ref")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.Apply(ctx, Request{
		Endpoint: testEndpoint,
		Headers:  authed("Bearer " + testSecret),
		Body:     []byte(`{"activationId":"old-ref","code":"1"}`),
	})
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	_, err = f.svc.Apply(ctx, Request{
		Endpoint: testEndpoint,
		Headers:  authed("Bearer " + testSecret),
		Body:     []byte(`{"activationId":"new-ref","code":"2"}`),
	})
	require.NoError(t, err)
}

type failingLogs struct{ LogRepository }

func (failingLogs) Create(context.Context, *models.WebhookLog) error {
	return errors.New("disk full")
}

func TestApplyLogFailure(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "12345")
	f.svc.logs = failingLogs{f.logs}
	body := []byte(`{"activationId":"12345","code":"1"}`)

	_, err := f.svc.Apply(context.Background(), Request{Endpoint: testEndpoint, Headers: authed("Bearer " + testSecret), Body: body})
	require.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))

	_, err = f.svc.Apply(context.Background(), Request{Endpoint: testEndpoint, Headers: authed("Bearer x"), Body: body})
	require.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.CodeOf(err))
}

func TestNewServiceRequiresSecret(t *testing.T) {
	client := dbtest.OpenEmpty(t)
	_, err := NewService(ServiceParams{
		Logs:        NewLogRepository(client.DB()),
		Redemptions: redemption.NewRepository(client.DB()),
		Tx:          client,
		Secret:      "  ",
		Logger:      logger.New(logger.Options{Output: io.Discard}),
	})
	require.Error(t, err)
}

func TestParseDelivery(t *testing.T) {
	cases := []struct {
		body string
		want Delivery
		ok   bool
	}{
		{`{"activationId":"a","ref_id":"b","id":"c","code":"1","otp":"2"}`, Delivery{"a", "1"}, true},
		{`{"activationId":"","ref_id":"b","otp":"2"}`, Delivery{"b", "2"}, true},
		{`{"id":12345678901234567890,"code":"7"}`, Delivery{"12345678901234567890", "7"}, true},
		{`{"id":true,"code":"7"}`, Delivery{}, false},
		{`null`, Delivery{}, false},
	}
	for _, tc := range cases {
		got, ok := parseDelivery([]byte(tc.body))
		if ok != tc.ok || got != tc.want {
			t.Fatalf("parseDelivery(%s) = %+v %v, want %+v %v", tc.body, got, ok, tc.want, tc.ok)
		}
	}
}
