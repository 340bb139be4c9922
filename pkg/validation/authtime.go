package validation

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/StricklySoft/firebase-jwt/pkg/clock"
	"github.com/StricklySoft/firebase-jwt/pkg/token"
)

// maxUnixSeconds is 9999-12-31T23:59:59Z.
const maxUnixSeconds = 253402300799

// authTimeValidAt checks when the user signed in, as opposed to when the
// token was minted. Only session cookies are required to carry it.
type authTimeValidAt struct {
	clock  clock.Clock
	leeway time.Duration
}

// AuthTimeValidAt requires the auth_time claim to be a numeric timestamp
// no later than now plus leeway. Fractional seconds are kept to the
// microsecond.
//
// auth_time may arrive as a JSON number or as a numeric string; both are
// accepted. Values that are not finite or that fall outside the years 0001
// to 9999 are reported as not parseable. A negative leeway fails with
// ErrLeewayCannotBeNegative.
func AuthTimeValidAt(c clock.Clock, leeway time.Duration) (Constraint, error) {
	if leeway < 0 {
		return nil, ErrLeewayCannotBeNegative
	}
	return &authTimeValidAt{clock: c, leeway: leeway}, nil
}

func (c *authTimeValidAt) Name() string { return "AuthTimeValidAt" }

// Assert implements Constraint. The clock is read once per call.
func (c *authTimeValidAt) Assert(_ context.Context, tok token.Token) error {
	p, err := plain(c, tok)
	if err != nil {
		return err
	}
	raw, ok := p.Claim("auth_time")
	if !ok {
		return violation(c, "`auth_time` claim missing")
	}
	authTime, ok := parseAuthTime(raw)
	if !ok {
		return violation(c, "`auth_time` claim is not parseable")
	}
	if c.clock.Now().Add(c.leeway).Before(authTime) {
		return violation(c, "The token was authenticated in the future")
	}
	return nil
}

// parseAuthTime converts the decoded claim into a UTC instant. It accepts
// the numeric types produced by encoding/json (float64, json.Number) as
// well as integers set by hand in tests and trimmed numeric strings.
func parseAuthTime(v any) (time.Time, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		x, err := n.Float64()
		if err != nil {
			return time.Time{}, false
		}
		f = x
	case string:
		x, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return time.Time{}, false
		}
		f = x
	default:
		return time.Time{}, false
	}
	if math.IsNaN(f) || math.Abs(f) > maxUnixSeconds {
		return time.Time{}, false
	}
	sec, frac := math.Modf(f)
	usec := math.Round(frac * 1e6)
	return time.Unix(int64(sec), int64(usec)*int64(time.Microsecond)).UTC(), true
}
