package dispatch

import "errors"

var (
	ErrRideNotFound       = errors.New("ride not found")
	ErrDriverNotFound     = errors.New("driver not found")
	ErrDriverBusy         = errors.New("driver already holds an active assignment")
	ErrDriverNotEligible  = errors.New("driver not eligible for this ride")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrTerminalState      = errors.New("assignment already in a terminal state")
	ErrInvalidTransition  = errors.New("invalid assignment transition")
	ErrBadCoordinates     = errors.New("coordinates out of range")
)
