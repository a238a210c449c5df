package attributes

import (
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/mrzor/oomguard/internal/config"
	"github.com/mrzor/oomguard/internal/procmeta"
	"go.opentelemetry.io/otel/attribute"
)

// Evaluator handles compilation and evaluation of custom attribute expressions.
type Evaluator struct {
	customAttrs   []config.CustomAttribute
	compiledExprs []*vm.Program
}

// NewEvaluator pre-compiles every expression, failing on the first that does
// not type-check.
func NewEvaluator(customAttrs []config.CustomAttribute) (*Evaluator, error) {
	exprEnv := map[string]interface{}{
		"args":     []string{},
		"cmdline":  "",
		"basename": "",
		"pid":      0,
	}

	compiledExprs := make([]*vm.Program, len(customAttrs))
	for i, attr := range customAttrs {
		program, err := expr.Compile(attr.Expression, expr.Env(exprEnv))
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression for attribute %q: %w", attr.Name, err)
		}
		compiledExprs[i] = program
	}

	return &Evaluator{
		customAttrs:   customAttrs,
		compiledExprs: compiledExprs,
	}, nil
}

// Len returns the number of configured attributes.
func (e *Evaluator) Len() int {
	if e == nil {
		return 0
	}
	return len(e.customAttrs)
}

// Evaluate runs every expression against cmd. Attributes whose expression
// fails at runtime are left out and reported in the returned error; the
// others are still returned.
func (e *Evaluator) Evaluate(pid int, cmd procmeta.CommandLine) ([]attribute.KeyValue, error) {
	if e.Len() == 0 {
		return nil, nil
	}

	args := cmd.Args
	if args == nil {
		args = []string{}
	}
	env := map[string]interface{}{
		"args":     args,
		"cmdline":  cmd.Full(),
		"basename": cmd.Basename(),
		"pid":      pid,
	}

	var (
		attrs []attribute.KeyValue
		errs  []error
	)
	for i, customAttr := range e.customAttrs {
		output, err := expr.Run(e.compiledExprs[i], env)
		if err != nil {
			errs = append(errs, fmt.Errorf("attribute %q: %w", customAttr.Name, err))
			continue
		}
		attrs = append(attrs, expand(customAttr.Name, output)...)
	}

	return attrs, errors.Join(errs...)
}

// expand turns one expression result into attributes. Maps become one
// attribute per key, sorted by key.
func expand(name string, output interface{}) []attribute.KeyValue {
	outputValue := reflect.ValueOf(output)
	if outputValue.Kind() != reflect.Map {
		return []attribute.KeyValue{attribute.String(name, fmt.Sprint(output))}
	}

	keys := outputValue.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
	})

	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, key := range keys {
		attrName := name + "." + sanitizeAttributeName(fmt.Sprint(key.Interface()))
		attrs = append(attrs, attribute.String(attrName, fmt.Sprintf("%v", outputValue.MapIndex(key).Interface())))
	}
	return attrs
}

// sanitizeAttributeName replaces non-alphanumeric characters with underscores.
func sanitizeAttributeName(name string) string {
	result := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result[i] = c
		} else {
			result[i] = '_'
		}
	}
	return string(result)
}
