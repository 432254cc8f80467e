package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"studentparent-server-go/charts"
)

// chartColumns maps each chart to the column it groups by.
var chartColumns = map[charts.Kind]string{
	charts.Grade:  "grade",
	charts.Gender: "gender",
	charts.Age:    "age",
}

// Transform turns query data into chart data through POST /jolt/<kind>.
// Whenever the service fails the local transform is used instead.
func (c *Client) Transform(ctx context.Context, kind charts.Kind, apiData map[string]any) any {
	data, err := c.remoteTransform(ctx, kind, apiData)
	if err != nil {
		c.log.WithError(err).WithField("kind", kind).Warn("⚠️ JOLT服务不可用，使用本地转换")
		return charts.LocalTransform(kind, apiData)
	}
	return charts.PostProcess(kind, data)
}

func (c *Client) remoteTransform(ctx context.Context, kind charts.Kind, apiData map[string]any) (any, error) {
	raw, status, err := c.post(ctx, "/jolt/"+string(kind), apiData)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("JOLT API请求失败: %d", status)
	}
	res := gjson.ParseBytes(raw)
	if !res.Get("success").Bool() {
		msg := res.Get("error").String()
		if msg == "" {
			msg = "JOLT转换失败"
		}
		return nil, fmt.Errorf("%s", msg)
	}
	return res.Get("data").Value(), nil
}

// Chart is one rendered dashboard chart.
type Chart struct {
	Kind   charts.Kind
	Data   any
	Option map[string]any
}

// Dashboard holds everything the overview page shows.
type Dashboard struct {
	Charts map[charts.Kind]Chart
	Stats  charts.Stats
}

// LoadChart queries the grouped counts of kind and transforms them.
func (c *Client) LoadChart(ctx context.Context, kind charts.Kind) (Chart, error) {
	column, ok := chartColumns[kind]
	if !ok {
		return Chart{}, fmt.Errorf("unknown chart %s", kind)
	}
	resp, err := c.Get(ctx, ChartRequest(column))
	if err != nil {
		return Chart{}, fmt.Errorf("load %s: %w", kind, err)
	}
	apiData, err := resp.Data()
	if err != nil {
		return Chart{}, err
	}
	data := c.Transform(ctx, kind, apiData)
	return Chart{Kind: kind, Data: data, Option: charts.DashboardOption(kind, data)}, nil
}

// LoadStats computes the overview numbers from four independent queries.
func (c *Client) LoadStats(ctx context.Context) (charts.Stats, error) {
	var (
		total, grades, male int64
		avgAge              float64
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		n, err := c.Count(egCtx, "Student", nil)
		total = n
		return err
	})
	eg.Go(func() error {
		resp, err := c.Get(egCtx, list("Student", obj("@column", "count(distinct grade):grade_count")))
		if err != nil {
			return err
		}
		grades = resp.Field("Student[]", "0.grade_count").Int()
		return nil
	})
	eg.Go(func() error {
		resp, err := c.Get(egCtx, list("Student", obj("@column", "avg(age):avg_age")))
		if err != nil {
			return err
		}
		avgAge = resp.Field("Student[]", "0.avg_age").Float()
		return nil
	})
	eg.Go(func() error {
		n, err := c.Count(egCtx, "Student", map[string]any{"gender": 0})
		male = n
		return err
	})
	if err := eg.Wait(); err != nil {
		return charts.Stats{}, fmt.Errorf("load stats: %w", err)
	}
	return charts.NewStats(total, grades, avgAge, male), nil
}

// LoadDashboard loads the three charts and the stats concurrently. The first
// failure cancels the rest.
func (c *Client) LoadDashboard(ctx context.Context) (*Dashboard, error) {
	results := make([]Chart, len(charts.Kinds))
	var stats charts.Stats

	eg, egCtx := errgroup.WithContext(ctx)
	for i, kind := range charts.Kinds {
		eg.Go(func() error {
			chart, err := c.LoadChart(egCtx, kind)
			if err != nil {
				return err
			}
			results[i] = chart
			return nil
		})
	}
	eg.Go(func() error {
		s, err := c.LoadStats(egCtx)
		stats = s
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	d := &Dashboard{Charts: make(map[charts.Kind]Chart, len(results)), Stats: stats}
	for _, chart := range results {
		d.Charts[chart.Kind] = chart
	}
	c.log.WithFields(logrus.Fields{"charts": len(d.Charts), "total": stats.Total}).Info("✅ 仪表板数据加载完成")
	return d, nil
}
