package otpwebhook

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/voucherredeem-backend/internal/redemption"
	"github.com/angelmondragon/voucherredeem-backend/pkg/config"
	"github.com/angelmondragon/voucherredeem-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/voucherredeem-backend/pkg/errors"
	"github.com/angelmondragon/voucherredeem-backend/pkg/logger"
	"github.com/angelmondragon/voucherredeem-backend/pkg/marketplace"
	"github.com/angelmondragon/voucherredeem-backend/pkg/numberprovider"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/require"
)

const (
	providerHost = "https://provider.test"
	providerPath = "/stubs/handler_api.php"
)

type paidOrders struct{}

func (paidOrders) VerifyOrder(context.Context, string) (*marketplace.OrderVerification, error) {
	return &marketplace.OrderVerification{OK: true, Status: enums.OrderStatusPaid}, nil
}

func newLifecycleService(t *testing.T, f *fixture) redemption.Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	provider, err := numberprovider.NewClient(config.ProviderConfig{
		BaseURL: providerHost + providerPath,
		APIKey:  "key",
		Country: "6",
		Timeout: time.Second,
	}, numberprovider.WithLogger(logg))
	require.NoError(t, err)

	svc, err := redemption.NewService(redemption.ServiceParams{
		Repo:     f.redemptions,
		Provider: provider,
		Orders:   paidOrders{},
		Policy:   redemption.DefaultPolicy(),
		Logger:   logg,
	})
	require.NoError(t, err)
	return svc
}

func mockGetNumber(service, body string) {
	gock.New(providerHost).
		Get(providerPath).
		MatchParam("action", "getNumber").
		MatchParam("service", service).
		Reply(200).
		BodyString(body)
}

func TestRedemptionLifecycle(t *testing.T) {
	defer gock.Off()
	f := newFixture(t)
	svc := newLifecycleService(t, f)
	ctx := context.Background()

	mockGetNumber("aik", "ACCESS_NUMBER:REF100:5551000")
	started, err := svc.Start(ctx, "ORD1", "zus")
	require.NoError(t, err)
	require.Equal(t, "5551000", started.VoucherNumber)

	view, err := svc.Status(ctx, started.RedemptionID)
	require.NoError(t, err)
	require.Equal(t, enums.RedemptionStateWaitingOTP, view.State)
	require.Equal(t, 0, view.Attempts)
	require.True(t, view.CanRetry)

	gock.New(providerHost).
		Get(providerPath).
		MatchParam("action", "setStatus").
		MatchParam("status", "8").
		MatchParam("id", "REF100").
		Reply(500).
		BodyString("ERROR_SQL")
	mockGetNumber("aik", "ACCESS_NUMBER:REF101:5551001")
	retried, err := svc.Retry(ctx, started.RedemptionID)
	require.NoError(t, err, "a failed release must not fail the retry")
	require.Equal(t, 1, retried.Attempts)
	require.Equal(t, "5551001", retried.VoucherNumber)

	stored, err := f.redemptions.FindByID(ctx, started.RedemptionID)
	require.NoError(t, err)
	require.Equal(t, "REF101", *stored.LeaseRef)

	_, err = f.svc.Apply(ctx, Request{
		Endpoint: testEndpoint,
		Headers:  authed("Bearer wrong"),
		Body:     []byte(`{"activationId":"REF101","code":"9981"}`),
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
	count, err := f.redemptions.CountOTPEvents(ctx, started.RedemptionID)
	require.NoError(t, err)
	require.Zero(t, count)

	_, err = f.svc.Apply(ctx, Request{
		Endpoint: testEndpoint,
		Headers:  authed("Bearer " + testSecret),
		Body:     []byte(`{"activationId":"REF100","code":"1111"}`),
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "superseded lease must not correlate")

	res, err := f.svc.Apply(ctx, Request{
		Endpoint: testEndpoint,
		Headers:  authed("Bearer " + testSecret),
		Body:     []byte(`{"activationId":"REF101","code":"9981"}`),
	})
	require.NoError(t, err)
	require.Equal(t, started.RedemptionID, res.RedemptionID)

	view, err = svc.Status(ctx, started.RedemptionID)
	require.NoError(t, err)
	require.Equal(t, enums.RedemptionStateSuccess, view.State)
	require.Equal(t, "9981", *view.OTP)
	require.False(t, view.CanRetry)

	rows, err := f.logs.ListByEndpoint(ctx, testEndpoint)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.False(t, rows[0].ValidSignature)
	require.True(t, rows[1].ValidSignature)
	require.True(t, rows[2].ValidSignature)

	require.True(t, gock.IsDone())
}

func TestStartUnknownServiceMakesNoProviderCall(t *testing.T) {
	defer gock.Off()
	gock.Intercept()
	f := newFixture(t)
	svc := newLifecycleService(t, f)

	_, err := svc.Start(context.Background(), "ORD1", "dominos")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	none, err := f.redemptions.FindLatestByOrderID(context.Background(), "ORD1")
	require.NoError(t, err)
	require.Nil(t, none)
	require.False(t, gock.HasUnmatchedRequest())
}
