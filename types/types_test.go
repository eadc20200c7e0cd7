/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageRequest(t *testing.T) {
	p := NewDefaultPageRequest(0, 0)
	assert.Equal(t, 1, p.GetPage())
	assert.Equal(t, 10, p.GetPageSize())
	assert.Equal(t, 0, p.GetOffset())

	p = NewPageRequestWithOrders(3, 20, []string{"id DESC"})
	assert.Equal(t, 40, p.GetOffset())
	assert.Equal(t, []string{"id DESC"}, p.GetOrders())
	assert.Nil(t, p.GetFilter())

	p = NewPageRequestWithFilter(1, MaxPageSize+1, NewQueryFilter("user_id = ?", 7))
	assert.Equal(t, MaxPageSize, p.GetPageSize())
	assert.Equal(t, []interface{}{7}, p.GetFilter().Args)
}

func TestPagination(t *testing.T) {
	p := NewDefaultPagination[int](1, 10)
	assert.Zero(t, p.TotalPages())
	assert.False(t, p.HasNext())

	p.Total = 21
	assert.Equal(t, 3, p.TotalPages())
	assert.True(t, p.HasNext())
	p.Page = 3
	assert.False(t, p.HasNext())
}

func TestJsonObject(t *testing.T) {
	obj := JsonObject{"model": "small", "temperature": 0.5}
	v, err := obj.Value()
	require.NoError(t, err)

	var scanned JsonObject
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, "small", scanned.Get("model"))
	assert.Equal(t, 0.5, scanned.Get("temperature"))

	require.NoError(t, scanned.Scan([]byte(`{"a":1}`)))
	assert.EqualValues(t, 1, scanned.Get("a"))

	require.NoError(t, scanned.Scan(nil))
	assert.Empty(t, scanned)
	assert.Error(t, scanned.Scan(42))

	var empty JsonObject
	v, err = empty.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Nil(t, empty.Get("x"))
}

func TestJsonArray(t *testing.T) {
	var arr JsonArray
	require.NoError(t, arr.Scan(`[{"role":"user"},{"role":"agent"}]`))
	require.Len(t, arr, 2)
	assert.Equal(t, "agent", arr[1]["role"])

	require.NoError(t, arr.Scan(nil))
	assert.Empty(t, arr)
}

type color int

func (c color) IsValid() bool  { return c >= 0 && c < 2 }
func (c color) Number() int    { return int(c) }
func (c color) String() string { return c.Name() }
func (c color) Desc() string   { return c.Name() }
func (c color) Name() string   { return [...]string{"red", "blue"}[c] }

func TestLookupEnum(t *testing.T) {
	c, ok := LookupEnum("BLUE", color(0), color(1))
	assert.True(t, ok)
	assert.Equal(t, color(1), c)

	_, ok = LookupEnum("green", color(0), color(1))
	assert.False(t, ok)
}
