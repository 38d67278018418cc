package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kingerharshit/toolgate/internal/store"
)

// matchOperator evaluates one policy condition against an extracted value.
//
// Equality is type-exact: a numeric 5 never equals the string "5", and by the
// same token is notEqual to it. The substring, prefix/suffix, and regex
// operators are string-only and never match non-string values. A regex
// pattern is compiled from its stored source at evaluation time; a pattern
// that fails to compile is a configuration error, never a silent false.
func matchOperator(op store.Operator, policyValue string, v Value) (bool, error) {
	switch op {
	case store.OpEqual:
		return v.Kind == KindString && v.Str == policyValue, nil
	case store.OpNotEqual:
		return v.Kind != KindString || v.Str != policyValue, nil
	case store.OpContains:
		return v.Kind == KindString && strings.Contains(v.Str, policyValue), nil
	case store.OpNotContains:
		return v.Kind == KindString && !strings.Contains(v.Str, policyValue), nil
	case store.OpStartsWith:
		return v.Kind == KindString && strings.HasPrefix(v.Str, policyValue), nil
	case store.OpEndsWith:
		return v.Kind == KindString && strings.HasSuffix(v.Str, policyValue), nil
	case store.OpRegex:
		re, err := regexp.Compile(policyValue)
		if err != nil {
			return false, fmt.Errorf("invalid regex %q: %v", policyValue, err)
		}
		return v.Kind == KindString && re.MatchString(v.Str), nil
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}
