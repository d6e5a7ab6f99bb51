package profile

import "errors"

// State errors
var (
	ErrAlreadyApplied    = errors.New("profile: already applied")
	ErrUnsupportedRevert = errors.New("profile: cannot revert recorded profile")
	ErrRebootPending     = errors.New("profile: persistent setup has not finished, reboot the target first")
)

// Configuration errors
var (
	ErrUnknownVariant = errors.New("profile: unknown variant")
	ErrNoProvisioner  = errors.New("profile: variant provisions guests but no provisioner is configured")
	ErrClosed         = errors.New("profile: closed")
)
