package pipeline

import (
	"fmt"
	"strings"
)

// OverlapPolicy decides what happens when a new recording or import is
// requested while earlier runs are still processing.
type OverlapPolicy int

const (
	// OverlapAllow runs every pipeline concurrently.
	OverlapAllow OverlapPolicy = iota
	// OverlapReject refuses new work while anything is processing.
	OverlapReject
	// OverlapQueue runs pipelines one at a time in arrival order.
	OverlapQueue
)

func (p OverlapPolicy) String() string {
	switch p {
	case OverlapAllow:
		return "allow"
	case OverlapReject:
		return "reject"
	case OverlapQueue:
		return "queue"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

func ParsePolicy(s string) (OverlapPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "allow":
		return OverlapAllow, nil
	case "reject":
		return OverlapReject, nil
	case "queue":
		return OverlapQueue, nil
	}
	return OverlapAllow, fmt.Errorf("unknown overlap policy %q", s)
}

type dispatch int

const (
	dispatchNow dispatch = iota
	dispatchQueued
)

type request int

const (
	// requestNew is a new recording or an import.
	requestNew request = iota
	// requestHandoff is a finished recording that must be processed.
	requestHandoff
)

// admit is the only place the overlap policy is consulted. Callers hold o.mu.
func (o *Orchestrator) admit(req request) (dispatch, error) {
	how := dispatchNow
	if o.cfg.Policy == OverlapQueue {
		how = dispatchQueued
	}
	if o.cfg.Policy == OverlapReject && req == requestNew && o.inFlight > 0 {
		return how, ErrBusy
	}
	return how, nil
}
