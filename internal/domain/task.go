package domain

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RepositoryRef identifies the source tree a task operates on.
type RepositoryRef struct {
	Path     string `yaml:"path"`
	Revision string `yaml:"revision,omitempty"`
}

// TaskDescriptor describes one bug-fix task. It is read-only input to the
// agent driver: loaded once before the run starts and never written back.
type TaskDescriptor struct {
	TaskID            string        `yaml:"task_id"`
	Repository        RepositoryRef `yaml:"repository_ref"`
	ProblemStatement  string        `yaml:"problem_statement"`
	AcceptanceCommand string        `yaml:"acceptance_command,omitempty"`
	SetupCommands     []string      `yaml:"setup_commands,omitempty"`
}

// LoadTask reads and validates a task descriptor from a YAML file.
func LoadTask(path string) (*TaskDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading task file: %w", err)
	}

	var task TaskDescriptor
	if err := yaml.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("parsing task file: %w", err)
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return &task, nil
}

// Validate checks that the required descriptor fields are present.
// acceptance_command is optional: without one, success is judged by the
// agent's own completion signal.
func (t *TaskDescriptor) Validate() error {
	if t.TaskID == "" {
		return fmt.Errorf("task descriptor: task_id is required")
	}
	if t.Repository.Path == "" {
		return fmt.Errorf("task descriptor: repository_ref.path is required")
	}
	if t.ProblemStatement == "" {
		return fmt.Errorf("task descriptor: problem_statement is required")
	}
	return nil
}
