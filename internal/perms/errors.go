package perms

import (
	"errors"
	"fmt"

	"github.com/bredsky212/Logiq212/internal/audit"
)

var (
	ErrInvalidInput        = errors.New("perms: invalid input")
	ErrInvalidFeatureKey   = errors.New("perms: invalid feature key")
	ErrAlreadyBootstrapped = errors.New("perms: security already bootstrapped")
	ErrNotBootstrapped     = errors.New("perms: security not bootstrapped")
	ErrLastProtectedGroup  = errors.New("perms: cannot remove the last protected group")
	ErrStoreUnavailable    = audit.ErrStoreUnavailable

	// ErrNotFound is returned by stores for absent records. Services never
	// surface it; an absent record means default state.
	ErrNotFound = errors.New("perms: not found")
)

func storeErr(op string, err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}
