package ports

import "context"

type Gate interface {
	Admit(ctx context.Context, name string, op func(context.Context) error) error
}
