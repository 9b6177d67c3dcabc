package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Provider events.
const (
	EventAccountsChanged = "accountsChanged"
	EventChainChanged    = "chainChanged"
	EventDisconnect      = "disconnect"
)

// Provider methods.
const (
	MethodRequestAccounts = "eth_requestAccounts"
	MethodChainID         = "eth_chainId"
	MethodDisconnect      = "wallet_disconnect"
)

// CodeUserRejected is the EIP-1193 error code for a request declined by the user.
const CodeUserRejected = 4001

// DefaultInstallURL points users without the extension to its installation guide.
const DefaultInstallURL = "https://github.com/respeer-ai/linera-wallet"

// Errors
var (
	ErrExtensionNotFound = errors.New("wallet extension not found: please install the extension")
	ErrProviderNotFound  = errors.New("provider not injected")
	ErrNoAccount         = errors.New("failed to connect to wallet: no account returned")
	ErrInterrupted       = errors.New("connection interrupted by a wallet event")
)

// Provider is the request side of the signing extension.
type Provider interface {
	Request(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// EventSource is implemented by providers that push events.
type EventSource interface {
	On(event string, handler func(data json.RawMessage))
}

// Locator looks up the injected provider. It returns ErrProviderNotFound while the
// extension has not injected itself yet.
type Locator interface {
	Locate(ctx context.Context) (Provider, error)
}

// LocatorFunc is a function adapter for Locator.
type LocatorFunc func(ctx context.Context) (Provider, error)

func (f LocatorFunc) Locate(ctx context.Context) (Provider, error) {
	return f(ctx)
}

// StaticLocator always returns p.
func StaticLocator(p Provider) Locator {
	return LocatorFunc(func(context.Context) (Provider, error) {
		if p == nil {
			return nil, ErrProviderNotFound
		}
		return p, nil
	})
}

// ProviderError is a JSON-RPC error returned by the provider.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// UserRejectedError is returned when the user declines the connect request.
type UserRejectedError struct {
	Reason string
}

func (e *UserRejectedError) Error() string {
	if e.Reason == "" {
		return "connection request rejected"
	}
	return "connection request rejected: " + e.Reason
}

// translateProviderError maps provider rejections onto UserRejectedError.
func translateProviderError(err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Code == CodeUserRejected {
		return &UserRejectedError{Reason: pe.Message}
	}
	return err
}

// parseAccounts accepts a list of address strings or of {address} objects.
func parseAccounts(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	accounts := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			var obj struct {
				Address string `json:"address"`
			}
			if err := json.Unmarshal(item, &obj); err != nil {
				continue
			}
			s = obj.Address
		}
		if addr, ok := normalizeAddress(s); ok {
			accounts = append(accounts, addr)
		}
	}
	return accounts
}

// normalizeAddress lower-cases 0x-prefixed hex addresses and rejects malformed ones.
// Non-hex owner identifiers are passed through trimmed.
func normalizeAddress(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return s, true
	}
	b, err := hexutil.Decode("0x" + s[2:])
	if err != nil || len(b) == 0 {
		return "", false
	}
	return hexutil.Encode(b), true
}

// parseChainID accepts a JSON string or a bare value.
func parseChainID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.Trim(strings.TrimSpace(string(raw)), `"`)
}
