package workflow

import (
	"fmt"
	"strconv"
	"strings"
)

// met reports whether c's operator holds between the resolved field and
// the literal. A missing field never meets a condition.
func (c Condition) met(pc *PipelineContext) bool {
	got, ok := pc.resolve(c.Field)
	if !ok {
		return false
	}

	switch c.Operator {
	case ">", "<":
		a, okA := toFloat(got)
		b, okB := toFloat(c.Value)
		if !okA || !okB {
			return false
		}
		if c.Operator == ">" {
			return a > b
		}
		return a < b
	case "==":
		if a, okA := toFloat(got); okA {
			if b, okB := toFloat(c.Value); okB {
				return a == b
			}
		}
		return fmt.Sprint(got) == fmt.Sprint(c.Value)
	case "contains":
		want := strings.ToLower(fmt.Sprint(c.Value))
		switch v := got.(type) {
		case string:
			return strings.Contains(strings.ToLower(v), want)
		case []any:
			for _, item := range v {
				if strings.ToLower(fmt.Sprint(item)) == want {
					return true
				}
			}
		}
		return false
	default:
		return false
	}
}

// shouldSkip applies the two skip polarities: a skip_if_true condition that
// holds skips the stage, and any other condition that does not hold skips
// it too.
func shouldSkip(conds []Condition, pc *PipelineContext) (bool, string) {
	for _, c := range conds {
		m := c.met(pc)
		if c.SkipIfTrue && m {
			return true, fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value)
		}
		if !c.SkipIfTrue && !m {
			return true, fmt.Sprintf("not (%s %s %v)", c.Field, c.Operator, c.Value)
		}
	}
	return false, ""
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
