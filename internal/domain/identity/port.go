package identity

import "context"

type Repo interface {
	GetByID(ctx context.Context, id string) (*Identity, error)
}
