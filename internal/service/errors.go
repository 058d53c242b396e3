package service

import "errors"

var (
	ErrQuery            = errors.New("query error")
	ErrIneligibleWinner = errors.New("ineligible winner")
	ErrPersistence      = errors.New("persistence error")
)
