package workflow

import (
	"fmt"

	domainwf "github.com/garyjia/issueflow/internal/domain/workflow"
)

// IssueWorkflowName is the default name of the issue workflow
const IssueWorkflowName = "issue"

// Issue workflow states
const (
	StateReadyForDevelopment domainwf.StateID = "ReadyForDevelopment"
	StateInDevelopment       domainwf.StateID = "InDevelopment"
	StateReadyForTest        domainwf.StateID = "ReadyForTest"
	StateInTest              domainwf.StateID = "InTest"
	StateClosed              domainwf.StateID = "Closed"
)

// Issue workflow triggers
const (
	TriggerStartDevelopment    domainwf.Trigger = "StartDevelopment"
	TriggerDevelopmentFinished domainwf.Trigger = "DevelopmentFinished"
	TriggerStartTest           domainwf.Trigger = "StartTest"
	TriggerTestPassed          domainwf.Trigger = "TestPassed"
	TriggerTestFailed          domainwf.Trigger = "TestFailed"
)

// BuildIssueWorkflow creates the issue state machine starting in
// ReadyForDevelopment. Every state announces entry and exit; InDevelopment
// additionally runs the StyleCop reminder while it is current.
func BuildIssueWorkflow(hooks *Hooks, opts ...domainwf.MachineOption) (domainwf.StateMachine, error) {
	announceIn, err := hooks.Entry(HookAnnounce)
	if err != nil {
		return nil, err
	}
	announceOut, err := hooks.Exit(HookAnnounce)
	if err != nil {
		return nil, err
	}
	developing, err := hooks.Entry(HookAnnounce, HookStyleCopReminder)
	if err != nil {
		return nil, err
	}

	registry := domainwf.NewRegistry()
	for _, def := range []struct {
		id      domainwf.StateID
		onEntry domainwf.EntryAction
	}{
		{StateReadyForDevelopment, announceIn},
		{StateInDevelopment, developing},
		{StateReadyForTest, announceIn},
		{StateInTest, announceIn},
		{StateClosed, announceIn},
	} {
		if _, err := registry.Define(def.id, def.onEntry, announceOut); err != nil {
			return nil, fmt.Errorf("define issue state: %w", err)
		}
	}

	builder := domainwf.NewBuilder(registry)

	builder.Configure(StateReadyForDevelopment).
		Permit(TriggerStartDevelopment, StateInDevelopment)

	builder.Configure(StateInDevelopment).
		Permit(TriggerDevelopmentFinished, StateReadyForTest)

	builder.Configure(StateReadyForTest).
		Permit(TriggerStartTest, StateInTest)

	builder.Configure(StateInTest).
		Permit(TriggerTestPassed, StateClosed).
		Permit(TriggerTestFailed, StateInDevelopment)

	// Closed is terminal - no outgoing transitions

	return builder.Build(StateReadyForDevelopment, opts...)
}
