package main

import (
	"encoding/json"
	"errors"
	"net/http"
)

// apiError is an error kind surfaced to clients. The code doubles as the
// HTTP status and the envelope code, matching the wire contract.
type apiError struct {
	code int
	msg  string
	data any
}

func (e *apiError) Error() string {
	return e.msg
}

func errBadRequest(msg string) *apiError {
	if msg == "" {
		msg = "bad request"
	}
	return &apiError{code: http.StatusBadRequest, msg: msg}
}

func errUnauthorized(msg string) *apiError {
	return &apiError{code: http.StatusUnauthorized, msg: msg}
}

func errForbidden(msg string) *apiError {
	return &apiError{code: http.StatusForbidden, msg: msg}
}

func errNotFound(msg string) *apiError {
	return &apiError{code: http.StatusNotFound, msg: msg}
}

func errConflict(msg string) *apiError {
	return &apiError{code: http.StatusConflict, msg: msg}
}

func errTooManyRequests(msg string, retryAfter int) *apiError {
	return &apiError{
		code: http.StatusTooManyRequests,
		msg:  msg,
		data: map[string]int{"retry_after": retryAfter},
	}
}

func errInternal(msg string) *apiError {
	if msg == "" {
		msg = "internal error"
	}
	return &apiError{code: http.StatusInternalServerError, msg: msg}
}

func errUnavailable(msg string) *apiError {
	return &apiError{code: http.StatusServiceUnavailable, msg: msg}
}

// writeSuccess sends the success envelope {code:0, msg:"success", data}
func writeSuccess(w http.ResponseWriter, data any) {
	writeEnvelope(w, http.StatusOK, Envelope{Code: 0, Msg: "success", Data: data})
}

// writeError maps err onto the envelope; unknown error values become 500
func writeError(w http.ResponseWriter, err error) {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		apiErr = errInternal("")
	}
	writeEnvelope(w, apiErr.code, Envelope{Code: apiErr.code, Msg: apiErr.msg, Data: apiErr.data})
}

func writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
