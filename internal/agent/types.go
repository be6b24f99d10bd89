// Package agent implements the update agent: a caching proxy that applies the
// cache policy table, precaches build assets and detects new deployments.
package agent

import (
	"errors"
	"net/http"
	"time"
)

var (
	// ErrRegistration reports that the first version could not be installed.
	ErrRegistration = errors.New("agent registration failed")
	// ErrUpdateCheck reports a failed check for a newer version.
	ErrUpdateCheck = errors.New("update check failed")
	// ErrNetwork reports that the network could not answer a request.
	ErrNetwork = errors.New("network error")
	// ErrNoWaitingVersion is returned by skipWaiting when nothing is installed and waiting.
	ErrNoWaitingVersion = errors.New("no waiting version")
)

// Source tells where a response came from.
type Source string

const (
	SourceNetwork  Source = "network"
	SourceCache    Source = "cache"
	SourcePrecache Source = "precache"
)

// Response is a value copy of an HTTP response. It never references
// transport buffers.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	Source   Source
	Version  string
	StoredAt time.Time
}

// OK reports a 2xx status.
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// EventType names a lifecycle event emitted by a registration.
type EventType string

const (
	EventUpdateFound      EventType = "updatefound"
	EventStateChange      EventType = "statechange"
	EventControllerChange EventType = "controllerchange"
)

// WorkerState is the lifecycle state of one agent version.
type WorkerState string

const (
	StateInstalling WorkerState = "installing"
	StateInstalled  WorkerState = "installed"
	StateActivating WorkerState = "activating"
	StateActivated  WorkerState = "activated"
	StateRedundant  WorkerState = "redundant"
)

// Event crosses from the agent to the page session.
type Event struct {
	Type    EventType
	Version string
	State   WorkerState
}

// MessageType names an instruction sent from the page session to the agent.
type MessageType string

const (
	MessageSkipWaiting MessageType = "skipWaiting"
	MessageCheckUpdate MessageType = "checkUpdate"
)

// Message crosses from the page session to the agent.
type Message struct {
	Type MessageType
}
