package ledger

import "errors"

// Rejections. Each one aborts the operation before anything is written.
var (
	ErrProfileAlreadyExists = errors.New("profile already exists")
	ErrProfileNotFound      = errors.New("profile not found")
	ErrCannotRateSelf       = errors.New("cannot rate self")
	ErrAlreadyRated         = errors.New("already rated")
	ErrInvalidScore         = errors.New("invalid score")
	ErrInsufficientStake    = errors.New("insufficient stake")
	ErrProfileNotActive     = errors.New("profile not active")
	ErrTooManyReviews       = errors.New("too many reviews")
)

var rejections = []error{
	ErrProfileAlreadyExists,
	ErrProfileNotFound,
	ErrCannotRateSelf,
	ErrAlreadyRated,
	ErrInvalidScore,
	ErrInsufficientStake,
	ErrProfileNotActive,
	ErrTooManyReviews,
}

// IsRejection reports whether err is one of the ledger's precondition
// failures, as opposed to a storage fault.
func IsRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}
