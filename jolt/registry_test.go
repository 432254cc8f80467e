package jolt

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{"grade-distribution", "gender-distribution", "age-distribution"}, r.Names())

	grade, ok := r.Lookup("grade-distribution")
	require.True(t, ok)
	assert.Equal(t, "bar", grade.ChartType)
	out, err := grade.Apply(decode(t, `{"Student[]":[{"grade":"七年级","count":3},{"grade":"八年级","count":2}]}`))
	require.NoError(t, err)
	assert.Equal(t, decode(t, `{"categories":["七年级","八年级"],"values":[3,2]}`), out)

	gender, ok := r.Lookup("gender-distribution")
	require.True(t, ok)
	assert.Equal(t, "pie", gender.ChartType)
	out, err = gender.Apply(decode(t, `{"Student[]":[{"gender":"男","count":3},{"gender":"女","count":2}]}`))
	require.NoError(t, err)
	assert.Equal(t, decode(t, `[{"gender":"男","name":"男","value":3},{"gender":"女","name":"女","value":2}]`), out)

	age, ok := r.Lookup("age-distribution")
	require.True(t, ok)
	out, err = age.Apply(decode(t, `{"Student[]":[{"age":13,"count":1},{"age":14,"count":1}]}`))
	require.NoError(t, err)
	assert.Equal(t, decode(t, `{"categories":[13,14],"values":[1,1]}`), out)

	_, ok = r.Lookup("class-distribution")
	assert.False(t, ok)
}

func TestRegisterRejectsBadTransforms(t *testing.T) {
	r := NewRegistry()
	assert.ErrorIs(t, r.Register(Transform{Spec: []any{}}), ErrInvalidSpec)
	assert.ErrorIs(t, r.Register(Transform{Name: "x", Spec: map[string]any{}}), ErrInvalidSpec)
	assert.Empty(t, r.Names())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transforms.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transforms:
  - name: class-distribution
    chartType: bar
    title: 班级分布
    spec:
      - operation: shift
        spec:
          Student\[\]:
            "*":
              class_name: categories[]
              count: values[]
  - name: grade-distribution
    chartType: line
    title: 年级折线
    spec: '[{"operation":"shift","spec":{"Student\\[\\]":{"*":{"grade":"categories[]","count":"values[]"}}}}]'
`), 0o600))

	r := DefaultRegistry()
	n, err := r.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"grade-distribution", "gender-distribution", "age-distribution", "class-distribution"}, r.Names())

	grade, _ := r.Lookup("grade-distribution")
	assert.Equal(t, "line", grade.ChartType)

	class, ok := r.Lookup("class-distribution")
	require.True(t, ok)
	out, err := class.Apply(decode(t, `{"Student[]":[{"class_name":"九年级(1)班","count":2}]}`))
	require.NoError(t, err)
	assert.Equal(t, decode(t, `{"categories":["九年级(1)班"],"values":[2]}`), out)

	_, err = r.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyIsRepeatable(t *testing.T) {
	r := DefaultRegistry()
	input := `{"Student[]":[{"grade":"九年级","count":3},{"grade":"七年级","count":1}]}`

	tests := []struct {
		name string
		want string
	}{
		{"grade-distribution", `{"categories":["九年级","七年级"],"values":[3,1]}`},
		{"gender-distribution", `[{"value":3},{"value":1}]`},
		{"age-distribution", `{"values":[3,1]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, ok := r.Lookup(tt.name)
			require.True(t, ok)
			first, err := tr.Apply(decode(t, input))
			require.NoError(t, err)
			second, err := tr.Apply(decode(t, input))
			require.NoError(t, err)
			if diff := cmp.Diff(first, second); diff != "" {
				t.Errorf("second apply differs (-first +second):\n%s", diff)
			}
			var want any
			require.NoError(t, json.Unmarshal([]byte(tt.want), &want))
			if diff := cmp.Diff(want, first); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
