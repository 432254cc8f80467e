// Package dataflow runs the four-step demonstration pipeline: SQL aggregate,
// query result format, registered transform, chart option.
package dataflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"studentparent-server-go/charts"
	"studentparent-server-go/jolt"
)

// ErrUnsupportedType is returned for an unknown flow or transform type.
var ErrUnsupportedType = errors.New("不支持的转换类型")

// Storage is the read access the pipeline needs.
type Storage interface {
	QueryMaps(ctx context.Context, query string, args ...any) ([]map[string]any, error)
	CountRows(ctx context.Context, table string) (int64, error)
}

type flow struct {
	field   string
	sql     string
	message string
}

var flows = map[charts.Kind]flow{
	charts.Grade: {
		field:   "grade",
		sql:     `SELECT grade, COUNT(*) AS count FROM Student WHERE status = 1 GROUP BY grade ORDER BY grade`,
		message: "完整数据流演示成功",
	},
	charts.Gender: {
		field: "gender",
		sql: `SELECT CASE gender WHEN 0 THEN '男' WHEN 1 THEN '女' ELSE '未知' END AS gender, COUNT(*) AS count
		      FROM Student WHERE status = 1 GROUP BY gender ORDER BY gender`,
		message: "性别分布数据流演示成功",
	},
	charts.Age: {
		field:   "age",
		sql:     `SELECT age, COUNT(*) AS count FROM Student WHERE status = 1 GROUP BY age ORDER BY age`,
		message: "年龄分布数据流演示成功",
	},
}

// testTypes maps the short names accepted by TestTransform.
var testTypes = map[string]charts.Kind{
	"grade":  charts.Grade,
	"gender": charts.Gender,
	"age":    charts.Age,
}

// Endpoints lists the routes of the pipeline.
var Endpoints = []string{
	"/dataflow/grade-distribution",
	"/dataflow/gender-distribution",
	"/dataflow/age-distribution",
	"/dataflow/test-jolt-transform",
	"/dataflow/status",
}

// Pipeline describes the steps of a flow.
const Pipeline = "数据库 → APIJSON格式 → JOLT转换 → ECharts配置"

// Service runs the chart data flows over the student tables.
type Service struct {
	store    Storage
	registry *jolt.Registry
	log      *logrus.Logger
}

// NewService returns a Service reading store and transforming with registry.
func NewService(store Storage, registry *jolt.Registry, log *logrus.Logger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{store: store, registry: registry, log: log}
}

// FlowResult carries every intermediate stage of a flow.
type FlowResult struct {
	RawData       []map[string]any `json:"step1_raw_data"`
	APIJSON       map[string]any   `json:"step2_apijson_format"`
	JoltSpec      any              `json:"step3_jolt_spec"`
	EChartsData   any              `json:"step3_echarts_data"`
	EChartsConfig map[string]any   `json:"step4_echarts_config"`
	Success       bool             `json:"success"`
	Message       string           `json:"message"`
	Dataflow      string           `json:"dataflow,omitempty"`
}

// IsFlow reports whether kind has a pipeline.
func IsFlow(kind charts.Kind) bool {
	_, ok := flows[kind]
	return ok
}

// Flow runs the pipeline for kind.
func (s *Service) Flow(ctx context.Context, kind charts.Kind) (*FlowResult, error) {
	f, ok := flows[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, kind)
	}
	log := s.log.WithField("flow", kind)

	raw, err := s.store.QueryMaps(ctx, f.sql)
	if err != nil {
		return nil, fmt.Errorf("load %s rows: %w", f.field, err)
	}

	items := make([]any, 0, len(raw))
	for _, row := range raw {
		items = append(items, map[string]any{f.field: row[f.field], "count": row["count"]})
	}
	apiData := map[string]any{"Student[]": items}

	t, ok := s.registry.Lookup(string(kind))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, kind)
	}
	data, err := t.Apply(apiData)
	if err != nil {
		return nil, fmt.Errorf("transform %s: %w", kind, err)
	}

	chartData := data
	if kind == charts.Gender {
		chartData = charts.PostProcess(kind, data)
	}
	option, err := charts.Option(t.ChartType, t.Title, chartData)
	if err != nil {
		return nil, err
	}

	log.WithField("rows", len(raw)).Info("数据流执行完成")
	res := &FlowResult{
		RawData:       raw,
		APIJSON:       apiData,
		JoltSpec:      t.Spec,
		EChartsData:   data,
		EChartsConfig: option,
		Success:       true,
		Message:       f.message,
	}
	if kind == charts.Grade {
		res.Dataflow = Pipeline
	}
	return res, nil
}

// TestResult is the answer of TestTransform.
type TestResult struct {
	Success       bool   `json:"success"`
	Input         any    `json:"input"`
	JoltSpec      any    `json:"jolt_spec"`
	Output        any    `json:"output"`
	TransformType string `json:"transform_type"`
}

// TestTransform applies the transform named by a short type (grade, gender, age) to data.
func (s *Service) TestTransform(typ string, data any) (*TestResult, error) {
	kind, ok := testTypes[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, typ)
	}
	t, ok := s.registry.Lookup(string(kind))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, typ)
	}
	out, err := t.Apply(data)
	if err != nil {
		return nil, err
	}
	return &TestResult{Success: true, Input: data, JoltSpec: t.Spec, Output: out, TransformType: typ}, nil
}

// StatusReport describes the pipeline and its storage.
type StatusReport struct {
	Success                bool     `json:"success"`
	DatabaseConnected      bool     `json:"database_connected"`
	StudentCount           int64    `json:"student_count"`
	ParentCount            int64    `json:"parent_count"`
	DataflowAvailable      bool     `json:"dataflow_available"`
	JoltTransformAvailable bool     `json:"jolt_transform_available"`
	EChartsConfigAvailable bool     `json:"echarts_config_available"`
	Message                string   `json:"message,omitempty"`
	AvailableEndpoints     []string `json:"available_endpoints,omitempty"`
	Error                  string   `json:"error,omitempty"`
}

// Status counts students and parents. A storage failure is reported in the
// result rather than returned.
func (s *Service) Status(ctx context.Context) StatusReport {
	students, err := s.store.CountRows(ctx, "Student")
	if err == nil {
		var parents int64
		if parents, err = s.store.CountRows(ctx, "Parent"); err == nil {
			return StatusReport{
				Success:                true,
				DatabaseConnected:      true,
				StudentCount:           students,
				ParentCount:            parents,
				DataflowAvailable:      true,
				JoltTransformAvailable: true,
				EChartsConfigAvailable: true,
				Message:                "数据流演示系统正常运行",
				AvailableEndpoints:     Endpoints,
			}
		}
	}
	s.log.WithError(err).Error("数据流状态检查失败")
	return StatusReport{Error: err.Error()}
}
