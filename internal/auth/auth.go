// Package auth provides handshake admission checks: shared secrets and
// endpoint allow lists.
//
// It avoids policy decisions and storage concerns.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/netip"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Validator admits or refuses a handshake secret presented from an endpoint.
type Validator interface {
	Validate(secret string, from netip.AddrPort) error
}

// SharedSecret accepts exactly one secret, compared in constant time.
// An empty configured secret refuses everything.
type SharedSecret struct {
	Secret string
}

func (s SharedSecret) Validate(secret string, _ netip.AddrPort) error {
	if s.Secret == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Secret), []byte(secret)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// AllowList admits endpoints whose address falls in one of Prefixes.
type AllowList struct {
	Prefixes []netip.Prefix
}

// ParseAllowList parses CIDR strings; a bare address is a single-host prefix.
func ParseAllowList(entries []string) (AllowList, error) {
	out := AllowList{Prefixes: make([]netip.Prefix, 0, len(entries))}
	for _, raw := range entries {
		p, err := netip.ParsePrefix(raw)
		if err != nil {
			addr, addrErr := netip.ParseAddr(raw)
			if addrErr != nil {
				return AllowList{}, fmt.Errorf("auth: allow entry %q: %w", raw, err)
			}
			p = netip.PrefixFrom(addr, addr.BitLen())
		}
		out.Prefixes = append(out.Prefixes, p.Masked())
	}
	return out, nil
}

func (a AllowList) Validate(_ string, from netip.AddrPort) error {
	addr := from.Addr().Unmap()
	for _, p := range a.Prefixes {
		if p.Contains(addr) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s not allowed", ErrUnauthorized, addr)
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(secret string, from netip.AddrPort) error

func (f FuncValidator) Validate(secret string, from netip.AddrPort) error {
	return f(secret, from)
}

// All requires every validator to pass.
func All(validators ...Validator) Validator {
	return FuncValidator(func(secret string, from netip.AddrPort) error {
		for _, v := range validators {
			if err := v.Validate(secret, from); err != nil {
				return err
			}
		}
		return nil
	})
}

// Predicate turns v into the boolean form handshake hooks take.
func Predicate(v Validator) func(secret string, from netip.AddrPort) bool {
	return func(secret string, from netip.AddrPort) bool {
		return v.Validate(secret, from) == nil
	}
}
