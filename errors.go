package redshow

import "github.com/sarchlab/redshow/rerror"

// ErrorKind and Error re-export the result-code taxonomy from rerror at the
// package boundary, so callers only need to import redshow.
type (
	ErrorKind = rerror.Kind
	Error     = rerror.Error
)

// Sentinel errors for use with errors.Is. They compare by Kind only — Op
// and Err are ignored by (*Error).Is.
var (
	ErrNoSuchFile          = &rerror.Error{Kind: rerror.NoSuchFile}
	ErrFailedAnalyzeCubin  = &rerror.Error{Kind: rerror.FailedAnalyzeCubin}
	ErrNotExistEntry       = &rerror.Error{Kind: rerror.NotExistEntry}
	ErrDuplicateEntry      = &rerror.Error{Kind: rerror.DuplicateEntry}
	ErrNoSuchApprox        = &rerror.Error{Kind: rerror.NoSuchApprox}
	ErrNotRegisterCallback = &rerror.Error{Kind: rerror.NotRegisterCallback}
)
