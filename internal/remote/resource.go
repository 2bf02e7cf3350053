package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/crewsync/crewsync/internal/entity"
)

// Resource is one REST collection, e.g. /api/workers. It satisfies
// offline.Remote[T].
type Resource[T any] struct {
	client *Client
	entity string
	path   string
}

// NewResource binds a collection path to a client. entity labels errors.
func NewResource[T any](client *Client, entity, path string) *Resource[T] {
	return &Resource[T]{client: client, entity: entity, path: path}
}

// Workers returns the /api/workers collection.
func (c *Client) Workers() *Resource[entity.Worker] {
	return NewResource[entity.Worker](c, entity.Workers, "/api/workers")
}

// WorkEntries returns the /api/work-entries collection.
func (c *Client) WorkEntries() *Resource[entity.WorkEntry] {
	return NewResource[entity.WorkEntry](c, entity.WorkEntries, "/api/work-entries")
}

// LeaveRequests returns the /api/leave-requests collection.
func (c *Client) LeaveRequests() *Resource[entity.LeaveRequest] {
	return NewResource[entity.LeaveRequest](c, entity.LeaveRequests, "/api/leave-requests")
}

func (r *Resource[T]) List(ctx context.Context) ([]T, error) {
	var out []T
	err := r.client.do(ctx, call{op: "list", entity: r.entity, method: http.MethodGet, path: r.path, out: &out})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resource[T]) Create(ctx context.Context, v T) (T, error) {
	var out T
	err := r.client.do(ctx, call{op: "create", entity: r.entity, method: http.MethodPost, path: r.path, body: v, out: &out})
	return out, err
}

func (r *Resource[T]) Update(ctx context.Context, id int64, v T) (T, error) {
	var out T
	err := r.client.do(ctx, call{op: "update", entity: r.entity, method: http.MethodPut,
		path: fmt.Sprintf("%s/%d", r.path, id), body: v, out: &out})
	return out, err
}

func (r *Resource[T]) Delete(ctx context.Context, id int64) error {
	return r.client.do(ctx, call{op: "delete", entity: r.entity, method: http.MethodDelete,
		path: fmt.Sprintf("%s/%d", r.path, id)})
}
