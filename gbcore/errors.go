package gbcore

import (
	"errors"
	"fmt"

	"github.com/mlang/gbcore/cart"
)

// ErrBadCartridgeHeader is returned by New when the ROM is too small or
// names an unrecognized cartridge type (spec.md §7).
var ErrBadCartridgeHeader = cart.ErrBadCartridgeHeader

func wrapCartError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, cart.ErrBadCartridgeHeader) {
		return fmt.Errorf("gbcore: %w", err)
	}
	return err
}
