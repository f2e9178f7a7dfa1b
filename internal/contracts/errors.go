package contracts

import "errors"

var (
	ErrRunNotFound        = errors.New("run not found")
	ErrRunTerminal        = errors.New("run already finished")
	ErrInvalidTransition  = errors.New("invalid run state transition")
	ErrNoCompletedRun     = errors.New("no completed run")
	ErrInvalidFormulaMode = errors.New("invalid formula mode")
	ErrEmptyUniverse      = errors.New("empty symbol universe")
)
