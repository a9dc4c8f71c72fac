package actions

import (
	"github.com/flowchat-io/flowchat/flow"
)

const (
	// RestartActionName clears the conversation and confirms to the user.
	RestartActionName = "restart"

	restartText = "Conversation has been restarted"
)

// RestartAction clears every currently set slot and emits a confirmation.
type RestartAction struct{}

func NewRestartAction() *RestartAction {
	return &RestartAction{}
}

func (a *RestartAction) Name() string {
	return RestartActionName
}

func (a *RestartAction) Call(_ *flow.Intent, _ []flow.Entity, slots flow.Slots) flow.EventOutput {
	patch := make(flow.SlotPatch, len(slots))
	for name := range slots {
		patch[name] = nil
	}
	return flow.EventOutput{SetSlot: patch, Text: restartText}
}
