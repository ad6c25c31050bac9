package querybuilder

import (
	"fmt"
	"strings"
)

// CondType joins a condition to the one before it
type CondType int

const (
	CondTypeAnd CondType = iota + 1
	CondTypeOr
)

func (c CondType) String() string {
	switch c {
	case CondTypeAnd:
		return "AND"
	case CondTypeOr:
		return "OR"
	default:
		return ""
	}
}

// Condition is either a single clause with its placeholder args or a parenthesized group
type Condition struct {
	join    CondType
	clause  string
	args    []interface{}
	members []Condition
	grouped bool
}

func clauseCondition(join CondType, clause string, args []interface{}) Condition {
	return Condition{join: join, clause: clause, args: args}
}

func groupCondition(join CondType, members []Condition) Condition {
	return Condition{join: join, members: members, grouped: true}
}

// empty groups render nothing, not "()"
func (c Condition) empty() bool {
	return c.grouped && len(c.members) == 0
}

// renderConditions joins conditions left to right; the join of the first rendered one is dropped
func renderConditions(conditions []Condition) (string, []interface{}) {
	parts := make([]string, 0, len(conditions)*2)
	args := make([]interface{}, 0)

	for _, cond := range conditions {
		if cond.empty() {
			continue
		}
		if len(parts) > 0 {
			parts = append(parts, cond.join.String())
		}
		if !cond.grouped {
			parts = append(parts, cond.clause)
			args = append(args, cond.args...)
			continue
		}
		clause, memberArgs := renderConditions(cond.members)
		parts = append(parts, fmt.Sprintf("(%s)", clause))
		args = append(args, memberArgs...)
	}

	return strings.Join(parts, " "), args
}
