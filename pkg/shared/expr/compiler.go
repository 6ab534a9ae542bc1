/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package expr evaluates user supplied expressions against tuples, for example to
// derive a partition key from a JSON payload.
package expr

import (
	"fmt"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"

	"github.com/numaproj/numawindow/pkg/tuple"
)

// Program is a compiled expression that can be run against many tuples.
type Program struct {
	source  string
	program *vm.Program
}

// Compile compiles expression once; see expr_test.go for examples.
func Compile(expression string) (*Program, error) {
	program, err := expr.Compile(expression, expr.Env(tupleEnv(&tuple.Tuple{})))
	if err != nil {
		return nil, fmt.Errorf("unable to compile expression '%s': %s", expression, err)
	}
	return &Program{source: expression, program: program}, nil
}

// String returns the source expression.
func (p *Program) String() string {
	return p.source
}

// EvalString runs the program against t and formats the result as a string.
func (p *Program) EvalString(t *tuple.Tuple) (string, error) {
	result, err := p.run(t)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%v", result), nil
}

// EvalBool runs the program against t and requires a bool result.
func (p *Program) EvalBool(t *tuple.Tuple) (bool, error) {
	result, err := p.run(t)
	if err != nil {
		return false, err
	}
	resultBool, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("unable to cast expression result '%v' to bool", result)
	}
	return resultBool, nil
}

func (p *Program) run(t *tuple.Tuple) (result interface{}, err error) {
	// the helper functions panic on bad input
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unable to evaluate expression '%s': %v", p.source, r)
		}
	}()
	result, err = expr.Run(p.program, tupleEnv(t))
	if err != nil {
		return nil, fmt.Errorf("unable to execute compiled program %v", err)
	}
	return result, nil
}
