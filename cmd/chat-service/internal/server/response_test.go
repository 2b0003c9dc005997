package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"chatbackend/cmd/chat-service/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestParseError_StatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", domain.ErrConversationNotFound, http.StatusNotFound},
		{"unauthorized", domain.ErrUnauthorized, http.StatusForbidden},
		{"message too large", fmt.Errorf("%w: 120 tokens, ceiling 80", domain.ErrMessageTooLarge), http.StatusUnprocessableEntity},
		{"completion unavailable", fmt.Errorf("%w: 3 attempts", domain.ErrCompletionUnavailable), http.StatusBadGateway},
		{"malformed completion", domain.ErrMalformedCompletion, http.StatusBadGateway},
		{"empty document", domain.ErrEmptyDocument, http.StatusBadRequest},
		{"file type", domain.ErrFileTypeNotAllowed, http.StatusBadRequest},
		{"file too large", domain.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, _, _ := parseError(tc.err)
			assert.Equal(t, tc.status, status)
		})
	}
}

func TestParseError_UnknownErrorIsOpaque(t *testing.T) {
	// 内部错误不向客户端泄露细节
	status, code, message := parseError(errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, 500, code)
	assert.Equal(t, "internal server error", message)
}
