package http

import (
	"context"
	"errors"
	"net/http"
)

// kinder is satisfied by domain errors that carry a classification kind.
type kinder interface {
	error
	Kind() string
}

var kindToStatus = map[string]int{
	"invalid":   http.StatusBadRequest,
	"not_found": http.StatusNotFound,
	"timeout":   http.StatusGatewayTimeout,
	"canceled":  http.StatusRequestTimeout,
}

func errorKind(err error) string {
	if err == nil {
		return ""
	}
	var k kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "internal"
	}
}

func httpStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if s, ok := kindToStatus[errorKind(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// clientMessage is what a caller may see for err. Only classified domain
// errors expose their text.
func clientMessage(err error) string {
	var k kinder
	if errors.As(err, &k) {
		return k.Error()
	}
	switch errorKind(err) {
	case "timeout":
		return "Request timed out"
	case "canceled":
		return "Request canceled"
	}
	return "Internal server error"
}
