package simulate

import "errors"

var ErrInvalidScript = errors.New("invalid script")
