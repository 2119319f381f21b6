package enums

import "fmt"

// RedemptionState tracks where a voucher redemption is in its lifecycle.
type RedemptionState string

const (
	// RedemptionStateWaitingOTP means a number is leased and no passcode has arrived yet.
	RedemptionStateWaitingOTP RedemptionState = "WAITING_OTP"
	// RedemptionStateSuccess is terminal. Only an authenticated OTP webhook sets it.
	RedemptionStateSuccess RedemptionState = "SUCCESS"
)

var validRedemptionStates = []RedemptionState{
	RedemptionStateWaitingOTP,
	RedemptionStateSuccess,
}

// String implements fmt.Stringer.
func (s RedemptionState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known RedemptionState.
func (s RedemptionState) IsValid() bool {
	for _, candidate := range validRedemptionStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further leasing is allowed.
func (s RedemptionState) IsTerminal() bool {
	return s == RedemptionStateSuccess
}

// ParseRedemptionState converts raw input into a RedemptionState.
func ParseRedemptionState(value string) (RedemptionState, error) {
	for _, candidate := range validRedemptionStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid redemption state %q", value)
}
