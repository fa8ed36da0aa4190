// Package safety risk-tiers candidate command strings before execution. The
// classifier is a pure function over the command text and the auto-run flag:
// no I/O, deterministic, inspectable independent of execution.
package safety

import (
	"errors"
	"regexp"
)

// Classification is the safety tier assigned to a command prior to execution.
type Classification int

const (
	// Safe commands run without confirmation.
	Safe Classification = iota
	// RequiresConfirmation commands run only after explicit approval.
	RequiresConfirmation
	// Blocked commands never execute; no recovery attempt is made.
	Blocked
)

func (c Classification) String() string {
	switch c {
	case Safe:
		return "safe"
	case RequiresConfirmation:
		return "requires_confirmation"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// ErrBlocked is the terminal error for commands refused outright by policy.
var ErrBlocked = errors.New("command blocked by safety policy")

// Rule is one pattern entry in the ordered rule list.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Result  Classification
}

// defaultRules is ordered most dangerous first; the first match wins.
var defaultRules = []Rule{
	{
		Name:    "recursive delete of root-like path",
		Pattern: regexp.MustCompile(`(?i)rm\s+(-[a-z]*r[a-z]*f|-[a-z]*f[a-z]*r|-rf|-fr)[a-z]*\s+("?/"?|/\*|~|\$HOME)(\s|$|;)`),
		Result:  Blocked,
	},
	{
		Name:    "filesystem format",
		Pattern: regexp.MustCompile(`(?i)(^|\s|;)mkfs(\.[a-z0-9]+)?\s`),
		Result:  Blocked,
	},
	{
		Name:    "raw write to block device",
		Pattern: regexp.MustCompile(`(?i)(dd\s+[^|;]*of=/dev/(sd|hd|nvme|vd)|>\s*/dev/(sd|hd|nvme|vd))`),
		Result:  Blocked,
	},
	{
		Name:    "fork bomb",
		Pattern: regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\}\s*;?\s*:`),
		Result:  Blocked,
	},
	{
		Name:    "privilege escalation with destructive verb",
		Pattern: regexp.MustCompile(`(?i)sudo\s+.*\b(rm|dd|mkfs|shred|chown|chmod)\b`),
		Result:  RequiresConfirmation,
	},
	{
		Name:    "recursive force delete",
		Pattern: regexp.MustCompile(`(?i)rm\s+(-[a-z]*r[a-z]*f|-[a-z]*f[a-z]*r|-rf|-fr)`),
		Result:  RequiresConfirmation,
	},
	{
		Name:    "recursive permission change",
		Pattern: regexp.MustCompile(`(?i)\b(chmod|chown)\s+(-[a-z]*R|--recursive)`),
		Result:  RequiresConfirmation,
	},
	{
		Name:    "host power control",
		Pattern: regexp.MustCompile(`(?i)(^|\s|;)(shutdown|reboot|halt|poweroff)(\s|$)`),
		Result:  RequiresConfirmation,
	},
	{
		Name:    "disk overwrite utility",
		Pattern: regexp.MustCompile(`(?i)(^|\s|;)(shred|wipefs|fdisk|parted)\s`),
		Result:  RequiresConfirmation,
	},
}

// Classifier applies the ordered rule list to literal command text.
type Classifier struct {
	rules   []Rule
	autoRun bool
}

// NewClassifier builds a classifier with the default rule set. With autoRun
// set, unmatched commands default to Safe; otherwise they require
// confirmation.
func NewClassifier(autoRun bool) *Classifier {
	return &Classifier{rules: defaultRules, autoRun: autoRun}
}

// NewClassifierWithRules builds a classifier with a caller-supplied rule list.
// Order is precedence: the first matching rule wins.
func NewClassifierWithRules(rules []Rule, autoRun bool) *Classifier {
	return &Classifier{rules: rules, autoRun: autoRun}
}

// Classify assigns a safety tier to the command text.
func (c *Classifier) Classify(command string) Classification {
	for _, rule := range c.rules {
		if rule.Pattern.MatchString(command) {
			return rule.Result
		}
	}
	if c.autoRun {
		return Safe
	}
	return RequiresConfirmation
}

// MatchedRule returns the name of the first matching rule, or "" if none.
func (c *Classifier) MatchedRule(command string) string {
	for _, rule := range c.rules {
		if rule.Pattern.MatchString(command) {
			return rule.Name
		}
	}
	return ""
}
