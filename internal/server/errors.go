package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rickgao/livepredict/internal/ledger"
	"github.com/rickgao/livepredict/internal/livesync"
	"github.com/rickgao/livepredict/internal/matchfeed"
	"github.com/rickgao/livepredict/internal/wallet"
)

// Error kinds reported to clients beside the ledger kinds.
const (
	kindBadRequest  = "bad_request"
	kindNotFound    = "not_found"
	kindWallet      = "wallet"
	kindRejected    = "rejected"
	kindFeed        = "feed"
	kindUnavailable = "unavailable"
	kindInternal    = "internal"
	kindExtension   = "extension_missing"
)

var (
	errWalletRequired = errors.New("wallet not connected")
)

// badRequestError is returned for malformed input.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string {
	return e.msg
}

func badRequest(msg string) error {
	return &badRequestError{msg: msg}
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error      string `json:"error"`
	Kind       string `json:"kind"`
	Guidance   string `json:"guidance,omitempty"`
	InstallURL string `json:"installUrl,omitempty"`
}

// classify maps err to an HTTP status and a response body.
func classify(err error) (int, errorResponse) {
	resp := errorResponse{Error: err.Error()}

	var badReq *badRequestError
	var rejected *wallet.UserRejectedError
	var feedErr *matchfeed.APIError

	switch {
	case errors.As(err, &badReq),
		errors.Is(err, livesync.ErrInvalidAmount),
		errors.Is(err, livesync.ErrUnknownTopic):
		resp.Kind = kindBadRequest
		return http.StatusBadRequest, resp

	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, matchfeed.ErrNotFound):
		resp.Kind = kindNotFound
		return http.StatusNotFound, resp

	case errors.Is(err, wallet.ErrExtensionNotFound), errors.Is(err, wallet.ErrProviderNotFound):
		resp.Kind = kindExtension
		resp.InstallURL = wallet.DefaultInstallURL
		resp.Guidance = "install the wallet extension"
		return http.StatusNotFound, resp

	case errors.As(err, &rejected):
		resp.Kind = kindRejected
		return http.StatusConflict, resp

	case errors.Is(err, errWalletRequired),
		errors.Is(err, wallet.ErrNoAccount),
		errors.Is(err, wallet.ErrInterrupted):
		resp.Kind = kindWallet
		resp.Guidance = "connect the wallet"
		return http.StatusConflict, resp

	case errors.Is(err, livesync.ErrNoFeed):
		resp.Kind = kindUnavailable
		return http.StatusServiceUnavailable, resp

	case errors.As(err, &feedErr):
		resp.Kind = kindFeed
		return http.StatusBadGateway, resp
	}

	resp.Guidance = ledger.Guidance(err)
	switch ledger.Classify(err) {
	case ledger.KindRemote:
		resp.Kind = string(ledger.KindRemote)
		return http.StatusUnprocessableEntity, resp
	case ledger.KindTimeout:
		resp.Kind = string(ledger.KindTimeout)
		return http.StatusGatewayTimeout, resp
	case ledger.KindUnreachable:
		resp.Kind = string(ledger.KindUnreachable)
		return http.StatusServiceUnavailable, resp
	case ledger.KindTransport:
		resp.Kind = string(ledger.KindTransport)
		return http.StatusBadGateway, resp
	}

	if errors.Is(err, context.DeadlineExceeded) {
		resp.Kind = string(ledger.KindTimeout)
		resp.Guidance = "retry"
		return http.StatusGatewayTimeout, resp
	}
	resp.Kind = kindInternal
	return http.StatusInternalServerError, resp
}

// errorKind returns the client-facing kind of err.
func errorKind(err error) string {
	_, resp := classify(err)
	return resp.Kind
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := classify(err)
	if resp.InstallURL != "" && s.session != nil {
		resp.InstallURL = s.session.State().InstallURL
	}
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, resp)
}
