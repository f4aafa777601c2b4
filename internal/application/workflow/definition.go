package workflow

import (
	"errors"
	"fmt"
	"os"

	domainwf "github.com/garyjia/issueflow/internal/domain/workflow"
	"gopkg.in/yaml.v3"
)

// Definition is a workflow described in YAML. Hooks and guards are referenced
// by name and bound from a Hooks catalogue at build time.
type Definition struct {
	Name        string                 `yaml:"name"`
	Initial     string                 `yaml:"initial"`
	States      []StateDefinition      `yaml:"states"`
	Transitions []TransitionDefinition `yaml:"transitions"`
}

// StateDefinition declares one state and its hooks
type StateDefinition struct {
	Name    string   `yaml:"name"`
	OnEntry []string `yaml:"on_entry,omitempty"`
	OnExit  []string `yaml:"on_exit,omitempty"`
}

// TransitionDefinition declares one edge
type TransitionDefinition struct {
	From    string `yaml:"from"`
	Trigger string `yaml:"trigger"`
	To      string `yaml:"to"`
	Guard   string `yaml:"guard,omitempty"`
}

// LoadDefinition reads a workflow definition from a YAML file
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow definition: %w", err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// ParseDefinition decodes and validates a YAML workflow definition
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse workflow definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Marshal encodes the definition as YAML
func (d *Definition) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}

// Validate checks the parts of a definition that do not need hooks
func (d *Definition) Validate() error {
	var errs []error

	if d.Name == "" {
		errs = append(errs, fmt.Errorf("workflow name is required"))
	}
	if d.Initial == "" {
		errs = append(errs, fmt.Errorf("initial state is required"))
	}
	if len(d.States) == 0 {
		errs = append(errs, fmt.Errorf("at least one state is required"))
	}
	for i, tr := range d.Transitions {
		if tr.From == "" || tr.Trigger == "" || tr.To == "" {
			errs = append(errs, fmt.Errorf("transition %d: from, trigger and to are required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid workflow definition: %w", errors.Join(errs...))
	}
	return nil
}

// Build binds the definition's hooks from the catalogue and builds a machine.
// Unknown hook or guard names are errors.
func (d *Definition) Build(hooks *Hooks, opts ...domainwf.MachineOption) (domainwf.StateMachine, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	registry := domainwf.NewRegistry()
	for _, s := range d.States {
		onEntry, err := hooks.Entry(s.OnEntry...)
		if err != nil {
			return nil, fmt.Errorf("state %s: %w", s.Name, err)
		}
		onExit, err := hooks.Exit(s.OnExit...)
		if err != nil {
			return nil, fmt.Errorf("state %s: %w", s.Name, err)
		}
		if _, err := registry.Define(domainwf.StateID(s.Name), onEntry, onExit); err != nil {
			return nil, fmt.Errorf("state %q: %w", s.Name, err)
		}
	}

	builder := domainwf.NewBuilder(registry)
	for _, tr := range d.Transitions {
		guard, err := hooks.Guard(tr.Guard)
		if err != nil {
			return nil, fmt.Errorf("transition %s --%s--> %s: %w", tr.From, tr.Trigger, tr.To, err)
		}
		if err := builder.PermitIf(domainwf.StateID(tr.From), domainwf.Trigger(tr.Trigger), domainwf.StateID(tr.To), guard); err != nil {
			return nil, fmt.Errorf("transition %s --%s--> %s: %w", tr.From, tr.Trigger, tr.To, err)
		}
	}

	return builder.Build(domainwf.StateID(d.Initial), opts...)
}

// DefaultIssueDefinition describes the same machine as BuildIssueWorkflow
func DefaultIssueDefinition() *Definition {
	announce := []string{HookAnnounce}
	return &Definition{
		Name:    IssueWorkflowName,
		Initial: string(StateReadyForDevelopment),
		States: []StateDefinition{
			{Name: string(StateReadyForDevelopment), OnEntry: announce, OnExit: announce},
			{Name: string(StateInDevelopment), OnEntry: []string{HookAnnounce, HookStyleCopReminder}, OnExit: announce},
			{Name: string(StateReadyForTest), OnEntry: announce, OnExit: announce},
			{Name: string(StateInTest), OnEntry: announce, OnExit: announce},
			{Name: string(StateClosed), OnEntry: announce, OnExit: announce},
		},
		Transitions: []TransitionDefinition{
			{From: string(StateReadyForDevelopment), Trigger: string(TriggerStartDevelopment), To: string(StateInDevelopment)},
			{From: string(StateInDevelopment), Trigger: string(TriggerDevelopmentFinished), To: string(StateReadyForTest)},
			{From: string(StateReadyForTest), Trigger: string(TriggerStartTest), To: string(StateInTest)},
			{From: string(StateInTest), Trigger: string(TriggerTestPassed), To: string(StateClosed)},
			{From: string(StateInTest), Trigger: string(TriggerTestFailed), To: string(StateInDevelopment)},
		},
	}
}
