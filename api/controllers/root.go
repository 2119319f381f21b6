package controllers

import (
	"net/http"

	"github.com/angelmondragon/voucherredeem-backend/api/responses"
)

const serviceName = "voucher-redeem"

// Root answers on / when no static buyer UI is configured.
func Root() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"service": serviceName, "status": "ok"})
	}
}
