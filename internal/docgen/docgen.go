// Package docgen expands document templates into concrete documents, for
// seeding collections and driving benchmarks. A template is a document whose
// values may be operator objects, e.g.
//
//	{"age": {"#RAND_INT": [18, 65]}}
//	{"name": {"#CONCAT": ["user-", {"#RAND_INT": [0, 100]}]}}
//
// Operators appear only in values, never in field names, and an operator's
// arguments may not themselves be operators; #CONCAT parts are the one
// exception.
package docgen

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

const alphanum = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Evaluator expands templates. It is not safe for concurrent use; benchmark
// workers each hold their own.
type Evaluator struct {
	rng  *rand.Rand
	seqs map[string]int64
}

// New creates an evaluator seeded deterministically.
func New(seed int64) *Evaluator {
	return &Evaluator{
		rng:  rand.New(rand.NewSource(seed)),
		seqs: make(map[string]int64),
	}
}

// Evaluate expands every operator in the template, recursing into
// subdocuments. The template itself is never modified.
func (e *Evaluator) Evaluate(tpl map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(tpl))
	for key, value := range tpl {
		if strings.HasPrefix(key, "#") {
			return nil, fmt.Errorf("docgen: operators are not allowed in field names: %s", key)
		}
		expanded, err := e.evalValue(value)
		if err != nil {
			return nil, fmt.Errorf("docgen: field %s: %w", key, err)
		}
		out[key] = expanded
	}
	return out, nil
}

func (e *Evaluator) evalValue(value any) (any, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return value, nil
	}
	if op, args, ok := operatorOf(obj); ok {
		return e.evalOperator(op, args)
	}
	return e.Evaluate(obj)
}

// operatorOf reports whether obj is an operator object: exactly one key,
// starting with '#'.
func operatorOf(obj map[string]any) (string, any, bool) {
	if len(obj) != 1 {
		return "", nil, false
	}
	for key, args := range obj {
		if strings.HasPrefix(key, "#") {
			return key, args, true
		}
	}
	return "", nil, false
}

func (e *Evaluator) evalOperator(op string, args any) (any, error) {
	switch op {
	case "#RAND_INT":
		return e.randInt(args)
	case "#RAND_NORMAL":
		return e.randNormal(args)
	case "#RAND_STRING":
		return e.randString(args)
	case "#SEQ_INT":
		return e.seqInt(args)
	case "#CONCAT":
		return e.concat(args)
	default:
		return nil, fmt.Errorf("unknown template operator %s", op)
	}
}

// randInt draws a uniform integer from [min, max).
func (e *Evaluator) randInt(args any) (any, error) {
	bounds, err := intArgs("#RAND_INT", args, 2)
	if err != nil {
		return nil, err
	}
	min, max := bounds[0], bounds[1]
	if min >= max {
		return nil, fmt.Errorf("#RAND_INT requires min < max, got [%d, %d)", min, max)
	}
	return float64(min + e.rng.Int63n(max-min)), nil
}

// randNormal draws from a normal distribution given [mean, stddev].
func (e *Evaluator) randNormal(args any) (any, error) {
	list, ok := args.([]any)
	if !ok || len(list) != 2 {
		return nil, fmt.Errorf("#RAND_NORMAL requires [mean, stddev]")
	}
	mu, okMu := asFloat(list[0])
	sigma, okSigma := asFloat(list[1])
	if !okMu || !okSigma || sigma <= 0 {
		return nil, fmt.Errorf("#RAND_NORMAL requires numeric mean and positive stddev")
	}
	return distuv.Normal{Mu: mu, Sigma: sigma, Src: e.rng}.Rand(), nil
}

func (e *Evaluator) randString(args any) (any, error) {
	lens, err := intArgs("#RAND_STRING", args, 1)
	if err != nil {
		return nil, err
	}
	n := lens[0]
	if n <= 0 {
		return nil, fmt.Errorf("#RAND_STRING requires a positive length, got %d", n)
	}
	var sb strings.Builder
	sb.Grow(int(n))
	for i := int64(0); i < n; i++ {
		sb.WriteByte(alphanum[e.rng.Intn(len(alphanum))])
	}
	return sb.String(), nil
}

// seqInt returns the next value of a named arithmetic sequence:
// {"seq_id": name, "start": s, "step": d} with an optional "mod".
func (e *Evaluator) seqInt(args any) (any, error) {
	spec, ok := args.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("#SEQ_INT requires an object argument")
	}
	id, ok := spec["seq_id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("#SEQ_INT requires a seq_id")
	}
	start := int64(0)
	if v, ok := spec["start"]; ok {
		f, ok := asFloat(v)
		if !ok {
			return nil, fmt.Errorf("#SEQ_INT start must be an integer")
		}
		start = int64(f)
	}
	step := int64(1)
	if v, ok := spec["step"]; ok {
		f, ok := asFloat(v)
		if !ok {
			return nil, fmt.Errorf("#SEQ_INT step must be an integer")
		}
		step = int64(f)
	}

	cur, seen := e.seqs[id]
	if !seen {
		cur = start
	} else {
		cur += step
	}
	e.seqs[id] = cur

	value := cur
	if v, ok := spec["mod"]; ok {
		f, ok := asFloat(v)
		if !ok || int64(f) <= 0 {
			return nil, fmt.Errorf("#SEQ_INT mod must be a positive integer")
		}
		value = ((value % int64(f)) + int64(f)) % int64(f)
	}
	return float64(value), nil
}

// concat renders each part and joins them. Parts may themselves be operator
// objects.
func (e *Evaluator) concat(args any) (any, error) {
	parts, ok := args.([]any)
	if !ok {
		return nil, fmt.Errorf("#CONCAT requires an array of parts")
	}
	var sb strings.Builder
	for _, part := range parts {
		value, err := e.evalValue(part)
		if err != nil {
			return nil, err
		}
		switch v := value.(type) {
		case string:
			sb.WriteString(v)
		case float64:
			sb.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		default:
			sb.WriteString(fmt.Sprint(v))
		}
	}
	return sb.String(), nil
}

func intArgs(op string, args any, n int) ([]int64, error) {
	list, ok := args.([]any)
	if !ok || len(list) != n {
		return nil, fmt.Errorf("%s requires %d integer argument(s)", op, n)
	}
	out := make([]int64, n)
	for i, arg := range list {
		f, ok := asFloat(arg)
		if !ok {
			return nil, fmt.Errorf("%s arguments must be integers", op)
		}
		out[i] = int64(f)
	}
	return out, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
