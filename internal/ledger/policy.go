package ledger

import "fmt"

// BundlePolicy decides what a repeated all-blocks purchase does.
type BundlePolicy string

const (
	// PolicyIdempotent writes no second bundle but audits every attempt.
	PolicyIdempotent BundlePolicy = "idempotent"
	// PolicyAppend records every bundle purchase as a new row.
	PolicyAppend BundlePolicy = "append"
	// PolicyReject refuses a repeated bundle with a conflict error.
	PolicyReject BundlePolicy = "reject"
)

func ParseBundlePolicy(s string) (BundlePolicy, error) {
	switch p := BundlePolicy(s); p {
	case PolicyIdempotent, PolicyAppend, PolicyReject:
		return p, nil
	case "":
		return PolicyIdempotent, nil
	default:
		return "", fmt.Errorf("unknown bundle policy %q", s)
	}
}

// Mode gates the purchase endpoints.
type Mode string

const (
	// ModeSimulated grants access on request without any payment provider.
	ModeSimulated Mode = "simulated"
	ModeDisabled  Mode = "disabled"
)
