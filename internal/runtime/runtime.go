// Package runtime abstracts where edit sessions and containerized rounds
// run: a real Docker backend wrapping the CLI, and a host backend that fakes
// each container with a temp directory. Both expose the same create, exec,
// copy-to, copy-from, remove surface.
package runtime

import "context"

// Mount binds a host path into a container.
type Mount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// Spec describes a container to create.
type Spec struct {
	Image   string
	Workdir string
	Env     map[string]string
	Mounts  []Mount
}

// ExecOpts adjust one exec invocation.
type ExecOpts struct {
	Cwd string
	Env map[string]string
}

// ExecResult is the captured outcome of one exec. A non-zero exit code is
// not an error at this layer; callers interpret it.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runtime is the capability set both backends implement. Create returns an
// opaque handle every other call takes. Management operations (create,
// copies, remove) fail with the backend's stderr attached; Exec only fails
// when the command cannot run at all.
type Runtime interface {
	Create(ctx context.Context, spec Spec) (string, error)
	Exec(ctx context.Context, id string, argv []string, opts ExecOpts) (ExecResult, error)
	CopyTo(ctx context.Context, id, hostPath, containerPath string) error
	CopyFrom(ctx context.Context, id, containerPath, hostPath string) error
	Remove(ctx context.Context, id string) error
}
