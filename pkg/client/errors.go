package client

import pkgerrors "github.com/pkg/errors"

var (
	ErrDaemonNotRunning = pkgerrors.New("gazed daemon is not running")
	ErrPermissionDenied = pkgerrors.New("permission denied when connecting to gazed daemon")
	ErrNotFound         = pkgerrors.New("api not found")
)
