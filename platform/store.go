package platform

import "context"

// Store persists the platform singleton. GetPlatform returns a not-found
// error until the first save.
type Store interface {
	GetPlatform(ctx context.Context) (*State, error)
	SavePlatform(ctx context.Context, s *State) error
}
