package cmdregistry

import (
	"sync"

	"github.com/spf13/cobra"
)

// CommandRegistry collects subcommands from init functions so that each
// command lives in its own file and the parent only calls FillCommands.
type CommandRegistry struct {
	mu         sync.Mutex
	registrars []func(*cobra.Command)
}

// Register adds a function that attaches commands to the parent.
func (r *CommandRegistry) Register(fn func(parent *cobra.Command)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registrars = append(r.registrars, fn)
}

// FromGetter registers a command constructor.
func (r *CommandRegistry) FromGetter(getter func() *cobra.Command) {
	r.Register(func(parent *cobra.Command) {
		parent.AddCommand(getter())
	})
}

// FillCommands attaches every registered command to parent.
func (r *CommandRegistry) FillCommands(parent *cobra.Command) {
	r.mu.Lock()
	registrars := append([]func(*cobra.Command){}, r.registrars...)
	r.mu.Unlock()
	for _, fn := range registrars {
		fn(parent)
	}
}
