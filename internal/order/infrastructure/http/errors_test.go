package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmehra2102/orderflow/internal/order/domain"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		msg    string
	}{
		{domain.ErrNegativeSum, http.StatusBadRequest, "Order sum cannot be negative"},
		{fmt.Errorf("create: %w", domain.ErrNonPositiveQuantity), http.StatusBadRequest, "Quantity must be a positive integer"},
		{domain.ErrOrderNotFound, http.StatusNotFound, "Order not found"},
		{fmt.Errorf("save: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "Request timed out"},
		{errors.New("pq: relation does not exist"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, httpStatus(tt.err))
			assert.Equal(t, tt.msg, clientMessage(tt.err))
		})
	}
	assert.Equal(t, http.StatusOK, httpStatus(nil))
}
