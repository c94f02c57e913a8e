package lifecycle

import (
	"sort"
	"strconv"
	"strings"

	"github.com/spec-kit/complaint-service/internal/domain"
	apperrors "github.com/spec-kit/complaint-service/pkg/util/errorutil"
)

// Attributes are the complaint fields routing rules match against.
type Attributes struct {
	Category string
	Location string
	Priority domain.ComplaintPriority
}

// TargetKind describes what a routing decision points at.
type TargetKind string

const (
	TargetNone TargetKind = "none"
	TargetUser TargetKind = "user"
	TargetRole TargetKind = "role"
)

// RoutingTarget is the outcome of evaluating the rule set.
type RoutingTarget struct {
	Kind   TargetKind
	UserID string
	RoleID string
	RuleID string
}

// AssignedTo returns the user the complaint is assigned to, or nil when unassigned.
func (t RoutingTarget) AssignedTo() *string {
	if t.Kind != TargetUser {
		return nil
	}
	id := t.UserID
	return &id
}

// PendingRoleDispatch reports a role match awaiting an external member pick.
func (t RoutingTarget) PendingRoleDispatch() bool {
	return t.Kind == TargetRole
}

// RuleSet is an immutable, ordered snapshot of active routing rules.
type RuleSet struct {
	rules []domain.RoutingRule
}

// NewRuleSet copies the active rules with a well-formed target and orders them by (Order, ID).
func NewRuleSet(rules []domain.RoutingRule) *RuleSet {
	active := make([]domain.RoutingRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.IsActive || ValidateRule(rule) != nil {
			continue
		}
		active = append(active, rule)
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Order != active[j].Order {
			return active[i].Order < active[j].Order
		}
		return compareIDs(active[i].ID, active[j].ID) < 0
	})
	return &RuleSet{rules: active}
}

// Rules returns the ordered rules in the snapshot.
func (s *RuleSet) Rules() []domain.RoutingRule {
	if s == nil {
		return nil
	}
	out := make([]domain.RoutingRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Route returns the target of the first matching rule. No match yields TargetNone.
func (s *RuleSet) Route(attrs Attributes) RoutingTarget {
	if s == nil {
		return RoutingTarget{Kind: TargetNone}
	}
	for _, rule := range s.rules {
		if !matches(rule, attrs) {
			continue
		}
		if rule.UserID != nil {
			return RoutingTarget{Kind: TargetUser, UserID: *rule.UserID, RuleID: rule.ID}
		}
		return RoutingTarget{Kind: TargetRole, RoleID: *rule.RoleID, RuleID: rule.ID}
	}
	return RoutingTarget{Kind: TargetNone}
}

// ValidateRule rejects rules that do not name exactly one of a user or a role.
func ValidateRule(rule domain.RoutingRule) error {
	hasUser := populated(rule.UserID)
	hasRole := populated(rule.RoleID)
	if hasUser == hasRole {
		return apperrors.NewValidationError("routing rule must target exactly one of user or role", map[string]any{
			"rule_id": rule.ID,
		})
	}
	return nil
}

func matches(rule domain.RoutingRule, attrs Attributes) bool {
	if populated(rule.Category) && *rule.Category != attrs.Category {
		return false
	}
	if populated(rule.Location) && *rule.Location != attrs.Location {
		return false
	}
	if rule.Priority != nil && *rule.Priority != "" && *rule.Priority != attrs.Priority {
		return false
	}
	return true
}

func populated(v *string) bool {
	return v != nil && strings.TrimSpace(*v) != ""
}

// compareIDs orders numeric ids numerically and everything else lexically.
func compareIDs(a, b string) int {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	if aErr == nil && bErr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}
