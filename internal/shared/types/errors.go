package types

import "errors"

// Error taxonomy. Domain packages wrap these with context via
// fmt.Errorf("%w: ...") and callers match them with errors.Is.
var (
	ErrConfigMissingKey   = errors.New("config missing required key")
	ErrAppNotFound        = errors.New("app not found")
	ErrInvalidAppName     = errors.New("invalid app name")
	ErrManifestMissing    = errors.New("can not load app config file")
	ErrManifestInvalid    = errors.New("invalid app config file")
	ErrEntryPointMissing  = errors.New("missing entry point")
	ErrArgParse           = errors.New("arg parse error")
	ErrSpawnFailure       = errors.New("failed to start app")
	ErrCredentialsMissing = errors.New("connection parameters are not configured")
	ErrInstallFailure     = errors.New("install failed")
	ErrAuthFailure        = errors.New("incorrect username or password")
	ErrInstanceNotFound   = errors.New("app with provided pid was not found")
)
