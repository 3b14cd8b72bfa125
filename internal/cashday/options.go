// Package cashday drives the reconciliation workflow of one branch cash
// register for one date key: load the day, record and void movements, open
// and close the day. All ledger truth comes from the backend; the
// controller only keeps view state consistent with it.
package cashday

import "github.com/boddenberg/cash-console-bfa/internal/domain"

// Options parameterises the controller per role. One controller serves
// every role; only these knobs differ.
type Options struct {
	// AllowOverride permits closing with the admin override flag.
	AllowOverride bool `json:"allowOverride"`
	// BranchScope is sent as branchId on every call; empty means no filter.
	BranchScope string `json:"branchScope,omitempty"`
	// HideDatePicker pins the controller to today's date key.
	HideDatePicker bool `json:"hideDatePicker"`
}

// OptionsFor derives the options for actor. requestedBranch is honoured
// for privileged actors only.
func OptionsFor(actor domain.Actor, requestedBranch string) Options {
	switch {
	case actor.IsPrivileged():
		return Options{AllowOverride: true, BranchScope: requestedBranch}
	case actor.HasRole(domain.RoleManager):
		return Options{BranchScope: actor.BranchID}
	default:
		return Options{HideDatePicker: true}
	}
}
