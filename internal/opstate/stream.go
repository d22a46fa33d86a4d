package opstate

import (
	"context"
	"fmt"

	"github.com/shaiso/Foreman/internal/domain"
)

// Operation — оба представления operation, загруженные вместе.
type Operation struct {
	State *domain.ActionState
	Info  *domain.ActionInfo
}

// Collect вычитывает stream (не больше limit элементов, 0 = все)
// и загружает оба представления каждого элемента. Stream закрывается.
func Collect(ctx context.Context, stream Stream, limit int) ([]Operation, error) {
	defer stream.Close()

	var out []Operation
	for (limit <= 0 || len(out) < limit) && stream.Next(ctx) {
		res := stream.Result()

		state, err := res.AsState(ctx)
		if err != nil {
			return nil, fmt.Errorf("get action state %s: %w", res.OperationID(), err)
		}
		info, err := res.AsActionInfo(ctx)
		if err != nil {
			return nil, fmt.Errorf("get action info %s: %w", res.OperationID(), err)
		}
		out = append(out, Operation{State: state, Info: info})
	}

	if err := stream.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Get возвращает одну operation по ID.
func Get(ctx context.Context, m Manager, id domain.OperationID) (*Operation, error) {
	stream, err := m.FilterOperations(ctx, Filter{OperationID: id, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("filter operations: %w", err)
	}

	ops, err := Collect(ctx, stream, 1)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("operation %s: %w", id, domain.ErrNotFound)
	}
	return &ops[0], nil
}
