package wallet

import (
	"maps"
	"strings"

	"github.com/sudo-init-do/servicehub/internal/apperr"
)

const (
	PolicyDeferred     = "deferred"
	PolicyVerification = "verification"
)

// Admission is a policy's decision on a payment request.
type Admission struct {
	Status Status
	// Settle schedules settlement right away.
	Settle bool
	// MerchantNumbers, when set, are returned as manual payment instructions.
	MerchantNumbers map[string]string
}

// PaymentPolicy decides how a new payment enters the lifecycle.
type PaymentPolicy interface {
	Name() string
	Admit(req PaymentRequest) (Admission, error)
}

// DeferredPolicy accepts every payment and settles it after a delay.
type DeferredPolicy struct{}

func (DeferredPolicy) Name() string { return PolicyDeferred }

func (DeferredPolicy) Admit(PaymentRequest) (Admission, error) {
	return Admission{Status: StatusPending, Settle: true}, nil
}

// VerificationPolicy requires a known confirmation code and parks the payment
// until an operator confirms the off-band transfer.
type VerificationPolicy struct {
	codes     map[string]struct{}
	merchants map[string]string
}

func NewVerificationPolicy(codes []string, merchants map[string]string) *VerificationPolicy {
	p := &VerificationPolicy{codes: make(map[string]struct{}, len(codes)), merchants: maps.Clone(merchants)}
	for _, c := range codes {
		if c = strings.TrimSpace(c); c != "" {
			p.codes[c] = struct{}{}
		}
	}
	return p
}

func (p *VerificationPolicy) Name() string { return PolicyVerification }

func (p *VerificationPolicy) Admit(req PaymentRequest) (Admission, error) {
	if _, ok := p.codes[strings.TrimSpace(req.ConfirmCode)]; !ok {
		return Admission{}, apperr.ErrInvalidVerificationCode
	}
	merchants := p.merchants
	if n, ok := p.merchants[strings.ToLower(req.Operator)]; ok {
		merchants = map[string]string{strings.ToLower(req.Operator): n}
	}
	return Admission{Status: StatusAwaitingConfirmation, MerchantNumbers: maps.Clone(merchants)}, nil
}

// NewPolicy builds the policy named by configuration.
func NewPolicy(name string, codes []string, merchants map[string]string) (PaymentPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyDeferred:
		return DeferredPolicy{}, nil
	case PolicyVerification:
		return NewVerificationPolicy(codes, merchants), nil
	default:
		return nil, apperr.Validation("unknown payment policy " + name)
	}
}
