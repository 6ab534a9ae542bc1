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

package expr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numawindow/pkg/tuple"
)

func Test_compile_expression(t *testing.T) {
	t.Run("test a simple compile case", func(t *testing.T) {
		p, err := Compile(`json(payload).a`)
		require.NoError(t, err)
		b, err := p.EvalString(tuple.New(time.Now(), []byte(`{"a": "b"}`)))
		assert.NoError(t, err)
		assert.Equal(t, "b", b)
	})

	t.Run("test nested json compile case", func(t *testing.T) {
		p, err := Compile(`json(payload).a.b`)
		require.NoError(t, err)
		c, err := p.EvalString(tuple.New(time.Now(), []byte(`{"a": {"b": "c"}}`)))
		assert.NoError(t, err)
		assert.Equal(t, "c", c)
	})

	t.Run("test keys and headers", func(t *testing.T) {
		p, err := Compile(`keys[0] + "-" + headers.region`)
		require.NoError(t, err)
		tp := tuple.New(time.Now(), nil, "k1")
		tp.Headers = map[string]string{"region": "us"}
		out, err := p.EvalString(tp)
		assert.NoError(t, err)
		assert.Equal(t, "k1-us", out)
	})

	t.Run("test sprig functions", func(t *testing.T) {
		p, err := Compile(`sprig.upper(keys[0])`)
		require.NoError(t, err)
		out, err := p.EvalString(tuple.New(time.Now(), nil, "bala"))
		assert.NoError(t, err)
		assert.Equal(t, "BALA", out)
	})

	t.Run("test invalid expression", func(t *testing.T) {
		_, err := Compile(`ab\na`)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unable to compile expression")
	})

	t.Run("test invalid payload", func(t *testing.T) {
		p, err := Compile(`json(payload).a`)
		require.NoError(t, err)
		_, err = p.EvalString(tuple.New(time.Now(), []byte(`not json`)))
		assert.Error(t, err)
	})
}

func TestEvalBool(t *testing.T) {
	p, err := Compile(`json(payload).id == "11"`)
	require.NoError(t, err)
	ok, err := p.EvalBool(tuple.New(time.Now(), []byte(`{"id": "11"}`)))
	assert.NoError(t, err)
	assert.True(t, ok)
	ok, err = p.EvalBool(tuple.New(time.Now(), []byte(`{"id": "3"}`)))
	assert.NoError(t, err)
	assert.False(t, ok)

	p, err = Compile(`payload`)
	require.NoError(t, err)
	_, err = p.EvalBool(tuple.New(time.Now(), []byte(`x`)))
	assert.Error(t, err)
}

func TestDottedHeaders(t *testing.T) {
	p, err := Compile(`headers.trace.id + "/" + headers.region`)
	require.NoError(t, err)
	tp := tuple.New(time.Now(), nil)
	tp.Headers = map[string]string{"trace.id": "t1", "region": "eu"}
	out, err := p.EvalString(tp)
	require.NoError(t, err)
	assert.Equal(t, "t1/eu", out)

	h := expandHeaders(map[string]string{"a": "1", "a.b": "2", "c.d.e": "3"})
	assert.Equal(t, map[string]interface{}{"b": "2"}, h["a"])
	assert.Equal(t, "3", h["c"].(map[string]interface{})["d"].(map[string]interface{})["e"])
}
