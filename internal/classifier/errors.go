package classifier

import "errors"

// ErrInvalidRules is returned by New when the rule tables cannot be compiled.
var ErrInvalidRules = errors.New("classifier: invalid rules")
