package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/marketplace-orders/pkg/auth"
)

func TestRequire(t *testing.T) {
	v := auth.NewVerifier("cust-secret", "vendor-secret", "admin-secret")

	var got auth.Principal
	h := v.Require(auth.RoleVendor)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.FromContext(r.Context())
	}))

	vendorTok, err := auth.Sign("vendor-secret", auth.Principal{ID: "v1", Role: auth.RoleVendor})
	require.NoError(t, err)
	customerTok, err := auth.Sign("cust-secret", auth.Principal{ID: "c1", Role: auth.RoleCustomer})
	require.NoError(t, err)
	// right secret, wrong role claim
	forged, err := auth.Sign("vendor-secret", auth.Principal{ID: "c1", Role: auth.RoleCustomer})
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusForbidden},
		{"not bearer", "Basic abc", http.StatusForbidden},
		{"other role secret", "Bearer " + customerTok, http.StatusUnauthorized},
		{"role mismatch", "Bearer " + forged, http.StatusUnauthorized},
		{"garbage", "Bearer x.y.z", http.StatusUnauthorized},
		{"valid", "Bearer " + vendorTok, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
	assert.Equal(t, "v1", got.ID)
	assert.Equal(t, auth.RoleVendor, got.Role)
}
