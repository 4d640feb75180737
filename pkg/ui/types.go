package ui

import (
	"github.com/xlttj/ssmfwd/pkg/config"
	"github.com/xlttj/ssmfwd/pkg/ssm"
)

// UIState represents the different views/states of the UI
type UIState int

const (
	StateList    UIState = iota // Tunnel table view
	StateForm                   // Add or edit form
	StateConfirm                // Delete confirmation
)

// formField indexes the inputs of the add/edit form.
type formField int

const (
	fieldNickname formField = iota
	fieldIdentifier
	fieldEnv
	fieldLocalPort
	fieldRemotePort
	fieldCount
)

var fieldLabels = [fieldCount]string{
	fieldNickname:   "Name",
	fieldIdentifier: "Instance ID",
	fieldEnv:        "Profile",
	fieldLocalPort:  "Local port",
	fieldRemotePort: "Remote port",
}

// storeEventMsg carries a store notification into the update loop.
type storeEventMsg struct{ event config.Event }

// sessionEventMsg carries a supervisor notification into the update loop.
type sessionEventMsg struct{ event ssm.Event }

// subscriptionClosedMsg is sent when a notification channel closes.
type subscriptionClosedMsg struct{}
