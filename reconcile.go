package cpufeatures

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPolicy is returned by [ParsePolicy] for unrecognized names.
var ErrUnknownPolicy = errors.New("unknown reconciliation policy")

// Policy selects how [Reconcile] treats owned tags.
type Policy int

const (
	// PolicyCarryForward produces new ∪ (orig − owned). It is the default.
	PolicyCarryForward Policy = iota
	// PolicyAvailabilityGated behaves like PolicyCarryForward but only adds
	// an owned new tag when it appears in the available list.
	PolicyAvailabilityGated
)

var policyNames = map[Policy]string{
	PolicyCarryForward:      "carry-forward",
	PolicyAvailabilityGated: "availability-gated",
}

func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// PolicyIdentifiers maps each policy to the names it is parsed from.
func PolicyIdentifiers() map[Policy][]string {
	ids := make(map[Policy][]string, len(policyNames))
	for p, name := range policyNames {
		ids[p] = []string{name}
	}
	return ids
}

// ParsePolicy returns the policy with the given name, case-insensitively.
// The empty name selects [PolicyCarryForward].
func ParsePolicy(name string) (Policy, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return PolicyCarryForward, nil
	}
	for p, n := range policyNames {
		if strings.EqualFold(n, name) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
}

// Reconcile merges newly detected tags into a node's existing tag list.
//
// The result holds every new tag (subject to the policy) followed by the
// existing tags this package does not own, in input order and without
// duplicates. Owned existing tags that are not in the new list are dropped.
// When newTags is empty nothing was detected, and orig is returned as is;
// when orig is empty the (gated) new tags are returned.
func Reconcile(newTags, orig, avail string, policy Policy) string {
	if newTags == "" {
		return orig
	}

	var out []string
	seen := make(map[string]struct{})
	add := func(tok string) {
		if _, ok := seen[tok]; ok {
			return
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}

	for _, tok := range SplitTags(newTags) {
		if policy == PolicyAvailabilityGated && IsOwned(tok) && !ContainsToken(avail, tok, tagSeparator) {
			continue
		}
		add(tok)
	}
	for _, tok := range SplitTags(orig) {
		if !IsOwned(tok) {
			add(tok)
		}
	}
	return strings.Join(out, tagSeparator)
}

// Reorder returns the final node feature list. No reordering is applied.
func Reorder(features string) string {
	return features
}
