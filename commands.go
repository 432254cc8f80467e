package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"studentparent-server-go/charts"
	"studentparent-server-go/client"
)

var (
	flowParams = client.DefaultParams()
	chartsJSON bool
	inputFile  string
	outputFile string
)

var demoCmd = &cobra.Command{
	Use:   "demo [flow]",
	Short: "Run a demo query flow and print the result tables",
	Long: `Runs one of the demo page queries against the server.

Without a flow name the available flows are listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			for _, name := range client.FlowNames() {
				fmt.Fprintf(out, "  %-22s %s\n", name, client.Flows[name].Title)
			}
			return nil
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		tables, err := c.RunFlow(cmd.Context(), args[0], flowParams)
		if err != nil {
			return err
		}
		fmt.Fprint(out, client.RenderTables(tables))
		return nil
	},
}

var chartsCmd = &cobra.Command{
	Use:   "charts",
	Short: "Load the dashboard charts and overview numbers",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(baseURL, client.WithLogger(logger))
		d, err := c.LoadDashboard(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if chartsJSON {
			options := make(map[string]any, len(d.Charts))
			for kind, chart := range d.Charts {
				options[string(kind)] = chart.Option
			}
			return writeJSON(out, map[string]any{"stats": d.Stats, "charts": options})
		}

		stats := client.Table{
			Title:   "数据概览",
			Headers: []string{"学生总数", "年级数", "平均年龄", "男生比例"},
			Rows: [][]string{{
				fmt.Sprint(d.Stats.Total), fmt.Sprint(d.Stats.Grades),
				fmt.Sprint(d.Stats.AvgAge), fmt.Sprintf("%d%%", d.Stats.MaleRatio),
			}},
		}
		tables := []client.Table{stats}
		for _, kind := range charts.Kinds {
			tables = append(tables, chartTable(kind, d.Charts[kind].Data))
		}
		fmt.Fprint(out, client.RenderTables(tables))
		return nil
	},
}

// chartTable lists the categories and values of one chart.
func chartTable(kind charts.Kind, data any) client.Table {
	t := client.Table{Title: kind.Title(), Headers: []string{"类别", "数量"}}
	switch v := data.(type) {
	case map[string]any:
		cats, _ := v["categories"].([]any)
		vals, _ := v["values"].([]any)
		for i := range cats {
			var val any
			if i < len(vals) {
				val = vals[i]
			}
			t.Rows = append(t.Rows, []string{fmt.Sprint(cats[i]), fmt.Sprint(val)})
		}
	case []any:
		for _, e := range v {
			if item, ok := e.(map[string]any); ok {
				t.Rows = append(t.Rows, []string{fmt.Sprint(item["name"]), fmt.Sprint(item["value"])})
			}
		}
	}
	return t
}

var transformCmd = &cobra.Command{
	Use:   "transform <kind>",
	Short: "Transform query output into chart data, falling back to the local transform",
	Long: `Reads a query response (JSON with a "Student[]" list) from --file or stdin
and transforms it with /jolt/<kind>. Kinds: grade-distribution,
gender-distribution, age-distribution.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := charts.Kind(args[0])
		known := false
		for _, k := range charts.Kinds {
			known = known || k == kind
		}
		if !known {
			return fmt.Errorf("unknown transform %s", kind)
		}

		in := cmd.InOrStdin()
		if inputFile != "" {
			f, err := os.Open(inputFile)
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		var apiData map[string]any
		if err := json.NewDecoder(in).Decode(&apiData); err != nil {
			return fmt.Errorf("decode input: %w", err)
		}

		c := client.New(baseURL, client.WithLogger(logger))
		return writeJSON(cmd.OutOrStdout(), c.Transform(cmd.Context(), kind, apiData))
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file.xlsx>",
	Short: "Import students from an Excel workbook (admin login required)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := c.ImportStudents(cmd.Context(), filepath.Base(args[0]), f)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "导入成功: %d 名学生\n", n)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <table>",
	Short: "Export a table to an Excel workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table := args[0]
		path := outputFile
		if path == "" {
			path = table + "-" + time.Now().Format("20060102150405") + ".xlsx"
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		c := client.New(baseURL, client.WithLogger(logger))
		if err := c.ExportTable(cmd.Context(), table, f); err != nil {
			f.Close()
			_ = os.Remove(path)
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "已导出 %s\n", path)
		return nil
	},
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func init() {
	demoCmd.Flags().Int64Var(&flowParams.ID, "id", flowParams.ID, "student id")
	demoCmd.Flags().StringVar(&flowParams.Grade, "grade", flowParams.Grade, "grade name")
	demoCmd.Flags().IntVar(&flowParams.MinAge, "min-age", flowParams.MinAge, "lower age bound")
	demoCmd.Flags().IntVar(&flowParams.MaxAge, "max-age", flowParams.MaxAge, "upper age bound")
	demoCmd.Flags().IntVar(&flowParams.Page, "page", flowParams.Page, "page number, from 0")
	demoCmd.Flags().IntVar(&flowParams.Size, "size", flowParams.Size, "page size")

	chartsCmd.Flags().BoolVar(&chartsJSON, "json", false, "print the ECharts options as JSON")
	transformCmd.Flags().StringVarP(&inputFile, "file", "f", "", "input JSON file (default stdin)")
	exportCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output path")
}
