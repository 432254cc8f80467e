package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

// ImportStudents uploads an xlsx workbook to /import/students and returns the
// number of imported rows. Requires an admin login.
func (c *Client) ImportStudents(ctx context.Context, filename string, r io.Reader) (int, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return 0, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return 0, fmt.Errorf("read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return 0, fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/import/students", &body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("upload %s: %w", filename, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read import response: %w", err)
	}
	res := gjson.ParseBytes(data)
	if resp.StatusCode != http.StatusOK {
		return 0, &APIError{Code: resp.StatusCode, Msg: res.Get("message").String()}
	}
	return int(res.Get("importedCount").Int()), nil
}

// ExportTable downloads table as an xlsx workbook into w.
func (c *Client) ExportTable(ctx context.Context, table string, w io.Writer) error {
	data, status, err := c.send(ctx, http.MethodGet, "/export/"+url.PathEscape(table), nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &APIError{Code: status, Msg: gjson.GetBytes(data, "message").String()}
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s export: %w", table, err)
	}
	return nil
}
