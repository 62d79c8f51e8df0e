package ormtest

import (
	"fmt"
	"strings"

	"github.com/astra-lucid/lucidorm/contracts"
	"github.com/astra-lucid/lucidorm/orm"
)

// evalCondition interprets a Condition tree against a joined-row
// combination keyed by alias, standing in for SQL evaluation in
// FakeDriver.
func evalCondition(cond *orm.Condition, combo map[string]orm.Row) (bool, error) {
	if cond == nil {
		return true, nil
	}
	switch cond.Operator {
	case contracts.OpAnd:
		for _, c := range cond.Children {
			ok, err := evalCondition(c, combo)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case contracts.OpOr:
		for _, c := range cond.Children {
			ok, err := evalCondition(c, combo)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case contracts.OpExists, contracts.OpNExists:
		return false, fmt.Errorf("ormtest: FakeDriver does not support %s; use the testcontainers harness", cond.Operator)
	default:
		return evalLeaf(cond, combo)
	}
}

func evalLeaf(cond *orm.Condition, combo map[string]orm.Row) (bool, error) {
	left, err := resolveColumn(cond.Column, combo)
	if err != nil {
		return false, err
	}

	var args []any
	for _, a := range cond.Args {
		if ref, ok := orm.AsColumnRef(a); ok {
			v, err := resolveColumn(ref, combo)
			if err != nil {
				return false, err
			}
			args = append(args, v)
		} else {
			args = append(args, a)
		}
	}

	switch cond.Operator {
	case contracts.OpEq:
		if len(args) == 1 && args[0] == nil {
			return left == nil, nil
		}
		return compareAny(left, arg0(args)) == 0, nil
	case contracts.OpNe:
		if len(args) == 1 && args[0] == nil {
			return left != nil, nil
		}
		return compareAny(left, arg0(args)) != 0, nil
	case contracts.OpGt:
		return left != nil && compareAny(left, arg0(args)) > 0, nil
	case contracts.OpGte:
		return left != nil && compareAny(left, arg0(args)) >= 0, nil
	case contracts.OpLt:
		return left != nil && compareAny(left, arg0(args)) < 0, nil
	case contracts.OpLte:
		return left != nil && compareAny(left, arg0(args)) <= 0, nil
	case contracts.OpLike:
		return likeMatch(fmt.Sprintf("%v", left), fmt.Sprintf("%v", arg0(args))), nil
	case contracts.OpIn:
		for _, a := range args {
			if compareAny(left, a) == 0 {
				return true, nil
			}
		}
		return false, nil
	case contracts.OpNin:
		for _, a := range args {
			if compareAny(left, a) == 0 {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("ormtest: unsupported operator %q", cond.Operator)
	}
}

func arg0(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

func resolveColumn(qualified string, combo map[string]orm.Row) (any, error) {
	alias := qualified
	col := qualified
	if i := strings.IndexByte(qualified, '.'); i >= 0 {
		alias, col = qualified[:i], qualified[i+1:]
	}
	row, ok := combo[alias]
	if !ok {
		return nil, fmt.Errorf("ormtest: no row bound for alias %q (column %q)", alias, qualified)
	}
	if row == nil {
		return nil, nil
	}
	return row[col], nil
}

func likeMatch(value, pattern string) bool {
	regexLike := "^" + strings.ReplaceAll(strings.ReplaceAll(pattern, "%", ".*"), "_", ".") + "$"
	return simpleGlobMatch(regexLike, value)
}

// simpleGlobMatch is a tiny anchored matcher for the "^...$" pattern
// likeMatch builds, avoiding a regexp compile per row for the common
// case of a LIKE with only leading/trailing "%" wildcards.
func simpleGlobMatch(pattern, value string) bool {
	inner := strings.TrimSuffix(strings.TrimPrefix(pattern, "^"), "$")
	switch {
	case inner == ".*":
		return true
	case strings.HasPrefix(inner, ".*") && strings.HasSuffix(inner, ".*"):
		return strings.Contains(value, strings.TrimSuffix(strings.TrimPrefix(inner, ".*"), ".*"))
	case strings.HasPrefix(inner, ".*"):
		return strings.HasSuffix(value, strings.TrimPrefix(inner, ".*"))
	case strings.HasSuffix(inner, ".*"):
		return strings.HasPrefix(value, strings.TrimSuffix(inner, ".*"))
	default:
		return value == inner
	}
}

func compareAny(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
	return strings.Compare(as, bs)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
