package bot

import "errors"

// ErrNotOwner rejects privileged commands from anyone but the community owner.
var ErrNotOwner = errors.New("only the community owner may use this command")
