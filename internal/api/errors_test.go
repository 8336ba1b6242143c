package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nerrad567/lexgate-core/internal/autherr"
	"github.com/nerrad567/lexgate-core/internal/identity"
)

func TestWriteAuthError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		taxonomy bool
		status   int
		code     string
	}{
		{"no session", autherr.NoSession(), true, http.StatusUnauthorized, "NO_SESSION"},
		{"no organization", autherr.NoOrganization(nil), true, http.StatusConflict, "NO_ORGANIZATION"},
		{"no membership", autherr.NoActiveMembership(), true, http.StatusForbidden, "NO_ACTIVE_MEMBERSHIP"},
		{"org denied", autherr.OrgAccessDenied(), true, http.StatusForbidden, "ORG_ACCESS_DENIED"},
		{"role", autherr.PermissionDenied("role"), true, http.StatusForbidden, "PERMISSION_DENIED"},
		{"pkce", autherr.PKCEStateMismatch("state"), true, http.StatusBadRequest, "PKCE_STATE_MISMATCH"},
		{"crypto", autherr.CryptoIntegrityFailure(errors.New("tag")), true, http.StatusInternalServerError, "CRYPTO_INTEGRITY_FAILURE"},
		{"wrapped", fmt.Errorf("resolving: %w", autherr.NoSession()), true, http.StatusUnauthorized, "NO_SESSION"},
		{"store down", fmt.Errorf("%w: timeout", identity.ErrStoreUnavailable), false, http.StatusServiceUnavailable, ErrCodeUnavailable},
		{"other", errors.New("boom"), false, http.StatusInternalServerError, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			if got := writeAuthError(rec, tt.err); got != tt.taxonomy {
				t.Errorf("writeAuthError() = %v, want %v", got, tt.taxonomy)
			}
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			var body Error
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if body.Code != tt.code || body.Status != tt.status {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestWriteAuthError_StoreDownSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	writeAuthError(rec, identity.ErrStoreUnavailable)
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q, want 1", rec.Header().Get("Retry-After"))
	}
}
