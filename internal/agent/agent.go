// Package agent defines the capability contract user agents implement and the
// Host that drives one agent through its lifecycle, one tick at a time.
package agent

// Agent is the capability contract. The runtime calls Initialize once, then
// Execute once per tick while the agent is running, then Shutdown exactly
// once. A returned error or a panic moves the agent toward termination.
type Agent interface {
	Initialize(ctx Context) error
	Execute(ctx Context) error
	Shutdown(ctx Context) error
}

// Named agents supply a display name for logs and status.
type Named interface {
	Name() string
}

// Progress is a read-only summary an agent may expose to observers.
type Progress struct {
	Stage   string         `json:"stage,omitempty"`
	Done    int            `json:"done"`
	Total   int            `json:"total"`
	Details map[string]any `json:"details,omitempty"`
}

// ProgressReporter is implemented by agents that expose progress through the
// runtime's status snapshots. Progress is called from observer goroutines, so
// implementations must be safe for concurrent use.
type ProgressReporter interface {
	Progress() Progress
}

// Funcs builds an Agent from plain functions. Nil fields are no-ops.
type Funcs struct {
	AgentName  string
	OnInit     func(Context) error
	OnExecute  func(Context) error
	OnShutdown func(Context) error
}

func (f *Funcs) Name() string { return f.AgentName }

func (f *Funcs) Initialize(ctx Context) error {
	if f.OnInit == nil {
		return nil
	}
	return f.OnInit(ctx)
}

func (f *Funcs) Execute(ctx Context) error {
	if f.OnExecute == nil {
		return nil
	}
	return f.OnExecute(ctx)
}

func (f *Funcs) Shutdown(ctx Context) error {
	if f.OnShutdown == nil {
		return nil
	}
	return f.OnShutdown(ctx)
}
