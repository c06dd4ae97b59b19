package bounty

import "fmt"

// ResubmitPolicy decides what a second SubmitTask by the same party does.
type ResubmitPolicy uint8

const (
	// ResubmitReject refuses the second submission before any transfer,
	// keeping total_stake_amount = stake_amount x submitters.
	ResubmitReject ResubmitPolicy = iota
	// ResubmitChargeAgain overwrites the payload, transfers the stake again
	// and adds it to the total a second time.
	ResubmitChargeAgain
)

func (p ResubmitPolicy) String() string {
	if p == ResubmitChargeAgain {
		return "charge_again"
	}
	return "reject"
}

// Rules holds the authorization and phase checks that differ between the
// hardened processor and the original program.
type Rules struct {
	CreatorMustSign       bool
	ManagerMustSignVoting bool
	EnforcePhaseOrder     bool
	VoterMustSign         bool
	Resubmission          ResubmitPolicy
}

// StrictRules is the default rule set.
func StrictRules() Rules {
	return Rules{
		CreatorMustSign:       true,
		ManagerMustSignVoting: true,
		EnforcePhaseOrder:     true,
		VoterMustSign:         true,
		Resubmission:          ResubmitReject,
	}
}

// LegacyRules relaxes the permission checks: any signer may open voting
// from any phase, votes need no signature and resubmission is charged again.
// The voting deadline must still lie in the future under every rule set.
func LegacyRules() Rules {
	return Rules{Resubmission: ResubmitChargeAgain}
}

// RulesByName resolves "strict" or "legacy".
func RulesByName(name string) (Rules, error) {
	switch name {
	case "", "strict":
		return StrictRules(), nil
	case "legacy":
		return LegacyRules(), nil
	default:
		return Rules{}, fmt.Errorf("unknown rules mode %q", name)
	}
}
