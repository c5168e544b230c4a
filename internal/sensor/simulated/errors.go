package simulated

import "github.com/pkg/errors"

var errSimulatedFailure = errors.New("simulated failure")
