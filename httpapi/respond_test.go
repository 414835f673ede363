package httpapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"fundflow/auth"
	"fundflow/contingency"
	"fundflow/pkg/validate"
	"fundflow/timeline"
	"fundflow/wallet"
)

func TestRespondError_StatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", validate.Errorf("amount", "must be greater than zero"), http.StatusBadRequest},
		{"invalid credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{"duplicate email", auth.ErrDuplicateEmail, http.StatusConflict},
		{"forbidden", timeline.ErrForbidden, http.StatusForbidden},
		{"timeline missing", timeline.ErrNotFound, http.StatusNotFound},
		{"stage missing", contingency.ErrStageNotFound, http.StatusNotFound},
		{"wallet missing", wallet.ErrWalletNotFound, http.StatusNotFound},
		{"gate decided", timeline.ErrAlreadyDecided, http.StatusConflict},
		{"form decided", contingency.ErrAlreadyDecided, http.StatusConflict},
		{"live timeline exists", timeline.ErrTimelineExists, http.StatusConflict},
		{"version conflict", timeline.ErrVersionConflict, http.StatusConflict},
		{"invalid state", timeline.ErrInvalidState, http.StatusUnprocessableEntity},
		{"not eligible", contingency.ErrNotEligible, http.StatusUnprocessableEntity},
		{"insufficient funds", wallet.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			respondError(c, tc.err)

			if w.Code != tc.want {
				t.Errorf("expected status %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestRespondError_ValidationIncludesField(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondError(c, validate.Errorf("receiver_id", "must differ from sender"))

	if !strings.Contains(w.Body.String(), "receiver_id") {
		t.Errorf("expected field name in body, got %s", w.Body.String())
	}
}

func TestRespondError_UnknownErrorIsOpaque(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondError(c, errors.New("pq: secret dsn leaked"))

	if strings.Contains(w.Body.String(), "dsn") {
		t.Errorf("expected internal error to be opaque, got %s", w.Body.String())
	}
}
