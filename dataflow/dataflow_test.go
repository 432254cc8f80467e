package dataflow

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studentparent-server-go/charts"
	"studentparent-server-go/db"
	"studentparent-server-go/jolt"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newService(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()
	store, err := db.Open(ctx, db.MemoryPath, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Seed(ctx, db.SeedOptions{DemoData: true}))
	return NewService(store, jolt.DefaultRegistry(), quietLogger())
}

func TestGradeFlow(t *testing.T) {
	res, err := newService(t).Flow(context.Background(), charts.Grade)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "完整数据流演示成功", res.Message)
	assert.Equal(t, Pipeline, res.Dataflow)
	assert.Len(t, res.RawData, 3)
	assert.Len(t, res.APIJSON["Student[]"], 3)

	data := res.EChartsData.(map[string]any)
	assert.ElementsMatch(t, []any{"七年级", "八年级", "九年级"}, data["categories"])
	assert.ElementsMatch(t, []any{int64(1), int64(1), int64(3)}, data["values"])

	assert.Equal(t, map[string]any{"text": "学生年级分布"}, res.EChartsConfig["title"])
	series := res.EChartsConfig["series"].([]any)[0].(map[string]any)
	assert.Equal(t, "bar", series["type"])
	assert.Equal(t, data["values"], series["data"])
}

func TestGenderFlow(t *testing.T) {
	res, err := newService(t).Flow(context.Background(), charts.Gender)
	require.NoError(t, err)
	assert.Equal(t, "性别分布数据流演示成功", res.Message)
	assert.Empty(t, res.Dataflow)

	series := res.EChartsConfig["series"].([]any)[0].(map[string]any)
	assert.Equal(t, "pie", series["type"])
	assert.ElementsMatch(t, []any{
		map[string]any{"name": "男", "value": int64(3)},
		map[string]any{"name": "女", "value": int64(2)},
	}, series["data"])
}

func TestAgeFlow(t *testing.T) {
	res, err := newService(t).Flow(context.Background(), charts.Age)
	require.NoError(t, err)
	assert.Equal(t, "年龄分布数据流演示成功", res.Message)

	data := res.EChartsData.(map[string]any)
	assert.Equal(t, []any{int64(13), int64(14), int64(15), int64(16)}, data["categories"])
	assert.Equal(t, []any{int64(1), int64(1), int64(2), int64(1)}, data["values"])
	assert.Equal(t, "axis", res.EChartsConfig["tooltip"].(map[string]any)["trigger"])
}

func TestUnknownFlow(t *testing.T) {
	_, err := newService(t).Flow(context.Background(), charts.Kind("class-distribution"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.False(t, IsFlow("class-distribution"))
	assert.True(t, IsFlow(charts.Age))
}

func TestTestTransform(t *testing.T) {
	s := newService(t)
	input := map[string]any{"Student[]": []any{map[string]any{"grade": "测试年级", "count": 10.0}}}

	res, err := s.TestTransform("grade", input)
	require.NoError(t, err)
	assert.Equal(t, "grade", res.TransformType)
	assert.Equal(t, map[string]any{"categories": []any{"测试年级"}, "values": []any{10.0}}, res.Output)
	assert.NotNil(t, res.JoltSpec)

	_, err = s.TestTransform("x", input)
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.EqualError(t, err, "不支持的转换类型: x")
}

func TestStatus(t *testing.T) {
	report := newService(t).Status(context.Background())
	assert.True(t, report.Success)
	assert.True(t, report.DatabaseConnected)
	assert.Equal(t, int64(5), report.StudentCount)
	assert.Equal(t, int64(3), report.ParentCount)
	assert.Equal(t, Endpoints, report.AvailableEndpoints)
}

type brokenStore struct{}

func (brokenStore) QueryMaps(context.Context, string, ...any) ([]map[string]any, error) {
	return nil, errors.New("database is closed")
}

func (brokenStore) CountRows(context.Context, string) (int64, error) {
	return 0, errors.New("database is closed")
}

func TestStatusReportsStorageFailure(t *testing.T) {
	s := NewService(brokenStore{}, jolt.DefaultRegistry(), quietLogger())
	report := s.Status(context.Background())
	assert.False(t, report.Success)
	assert.False(t, report.DatabaseConnected)
	assert.Equal(t, "database is closed", report.Error)

	_, err := s.Flow(context.Background(), charts.Grade)
	assert.Error(t, err)
}
