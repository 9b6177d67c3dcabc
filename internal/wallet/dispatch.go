package wallet

import (
	"github.com/shopspring/decimal"

	"github.com/rickgao/livepredict/internal/model"
)

type eventKind int

const (
	evDetecting eventKind = iota
	evUnavailable
	evAvailable
	evConnectRequested
	evConnectFailed
	evConnected
	evAccountChanged
	evChainResolved
	evChainChanged
	evBalance
	evBalanceFailed
	evReset
)

type event struct {
	kind       eventKind
	gen        uint64
	provider   Provider
	address    string
	chainID    string
	balance    decimal.Decimal
	err        error
	clearError bool
}

// effect tells the caller what to do outside the lock.
type effect struct {
	connect      bool
	connected    bool
	fetchBalance bool
	provider     Provider
	gen          uint64
	address      string
}

// dispatch applies ev to the session and notifies subscribers when the state changed.
//
// gen advances whenever the account identity changes (connect, account switch,
// reset). Results carrying an older gen are dropped, so an in-flight balance fetch
// can never overwrite a later reset.
func (s *Session) dispatch(ev event) (effect, error) {
	s.mu.Lock()
	eff, changed, err := s.applyLocked(ev)
	var st State
	if changed {
		st = s.snapshotLocked()
	}
	s.mu.Unlock()

	if changed {
		s.notify(st)
	}
	return eff, err
}

func (s *Session) applyLocked(ev event) (effect, bool, error) {
	switch ev.kind {
	case evDetecting:
		if s.phase != PhaseUninitialized {
			return effect{}, false, nil
		}
		s.phase = PhaseDetecting
		return effect{}, true, nil

	case evUnavailable:
		s.provider = nil
		s.phase = PhaseUnavailable
		return effect{}, true, nil

	case evAvailable:
		if s.provider != nil {
			return effect{}, false, nil
		}
		s.provider = ev.provider
		s.phase = PhaseDisconnected
		s.installGuide = false
		return effect{}, true, nil

	case evConnectRequested:
		if s.provider == nil {
			s.errMsg = ErrExtensionNotFound.Error()
			s.installGuide = true
			return effect{}, true, ErrExtensionNotFound
		}
		if s.phase == PhaseConnecting {
			return effect{}, false, nil
		}
		s.phase = PhaseConnecting
		s.errMsg = ""
		return effect{connect: true, provider: s.provider, gen: s.gen}, true, nil

	case evConnectFailed:
		if s.phase != PhaseConnecting {
			return effect{}, false, nil
		}
		s.phase = PhaseDisconnected
		if s.wallet.Connected {
			s.phase = PhaseConnected
		}
		s.errMsg = ev.err.Error()
		return effect{}, true, nil

	case evConnected:
		if ev.gen != s.gen || s.phase != PhaseConnecting {
			// An event already switched or reset the account meanwhile.
			if s.isCurrentLocked(ev.address) {
				return effect{connected: true}, false, nil
			}
			return effect{}, false, nil
		}
		s.gen++
		addr, chain := ev.address, ev.chainID
		s.wallet = model.WalletState{
			Connected: true,
			Address:   &addr,
			ChainID:   &chain,
			Balance:   model.ZeroBalance(),
		}
		s.phase = PhaseConnected
		s.errMsg = ""
		s.balanceErr = ""
		s.installGuide = false
		return effect{connected: true, fetchBalance: true, gen: s.gen, address: addr}, true, nil

	case evAccountChanged:
		if s.provider == nil || s.isCurrentLocked(ev.address) {
			return effect{}, false, nil
		}
		s.gen++
		addr := ev.address
		s.wallet = model.WalletState{
			Connected: true,
			Address:   &addr,
			ChainID:   s.wallet.ChainID,
			Balance:   model.ZeroBalance(),
		}
		s.phase = PhaseConnected
		s.balanceErr = ""
		return effect{fetchBalance: true, gen: s.gen, address: addr}, true, nil

	case evChainResolved:
		if ev.gen != s.gen || !s.wallet.Connected {
			return effect{}, false, nil
		}
		chain := ev.chainID
		s.wallet.ChainID = &chain
		return effect{}, true, nil

	case evChainChanged:
		if !s.wallet.Connected || ev.chainID == "" {
			return effect{}, false, nil
		}
		if s.wallet.ChainID != nil && *s.wallet.ChainID == ev.chainID {
			return effect{}, false, nil
		}
		chain := ev.chainID
		s.wallet.ChainID = &chain
		return effect{}, true, nil

	case evBalance:
		if ev.gen != s.gen || !s.isCurrentLocked(ev.address) {
			return effect{}, false, nil
		}
		s.wallet.Balance = model.NewBalance(ev.balance, decimal.Zero)
		s.balanceErr = ""
		return effect{}, true, nil

	case evBalanceFailed:
		if ev.gen != s.gen || !s.isCurrentLocked(ev.address) {
			return effect{}, false, nil
		}
		s.wallet.Balance = model.ZeroBalance()
		s.balanceErr = ev.err.Error()
		return effect{}, true, nil

	case evReset:
		changed := !s.wallet.IsBaseline() || s.phase == PhaseConnecting || s.phase == PhaseConnected
		s.gen++
		s.wallet = model.BaselineWalletState()
		s.balanceErr = ""
		if s.provider != nil {
			s.phase = PhaseDisconnected
		}
		if ev.clearError && (s.errMsg != "" || s.installGuide) {
			s.errMsg = ""
			s.installGuide = false
			changed = true
		}
		return effect{}, changed, nil
	}

	return effect{}, false, nil
}

func (s *Session) isCurrentLocked(address string) bool {
	return s.wallet.Connected && s.wallet.Address != nil && *s.wallet.Address == address
}
