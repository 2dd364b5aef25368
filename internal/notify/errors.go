package notify

import (
	"errors"

	cidxerrors "github.com/cidx-dev/cidx/internal/errors"
)

var errNotRelative = errors.New("target is not under base")

var errSubscriptionLimitReached = cidxerrors.NewKind(
	cidxerrors.KindInvalidInput,
	"session has reached its maximum number of subscriptions",
	nil,
)
