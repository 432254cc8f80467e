package client

import (
	"context"

	"studentparent-server-go/models"
)

// AddStudent inserts st and returns its new id.
func (c *Client) AddStudent(ctx context.Context, st models.Student) (int64, error) {
	st.ID = 0
	resp, err := c.Post(ctx, StudentRequest(st))
	if err != nil {
		return 0, err
	}
	return resp.Field("Student", "id").Int(), nil
}

// UpdateStudent rewrites the non-empty fields of st; st.ID selects the row.
func (c *Client) UpdateStudent(ctx context.Context, st models.Student) error {
	_, err := c.Put(ctx, StudentRequest(st))
	return err
}

func (c *Client) AddParent(ctx context.Context, p models.Parent) (int64, error) {
	p.ID = 0
	resp, err := c.Post(ctx, ParentRequest(p))
	if err != nil {
		return 0, err
	}
	return resp.Field("Parent", "id").Int(), nil
}

func (c *Client) UpdateParent(ctx context.Context, p models.Parent) error {
	_, err := c.Put(ctx, ParentRequest(p))
	return err
}

// DeleteRow removes row id of table ("Student" or "Parent").
func (c *Client) DeleteRow(ctx context.Context, table string, id int64) error {
	_, err := c.Delete(ctx, DeleteRequest(table, id))
	return err
}
