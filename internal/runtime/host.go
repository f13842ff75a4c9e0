package runtime

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HostRuntime fakes each container with a temp directory: absolute
// container paths resolve beneath that root, exec runs on the host with the
// mapped working directory, and copies are plain file copies. Tests and
// docker-less environments use it in place of the real backend.
type HostRuntime struct {
	baseDir string

	mu         sync.Mutex
	containers map[string]*hostContainer
}

type hostContainer struct {
	root    string
	workdir string
	env     map[string]string
}

// NewHostRuntime creates a host backend. baseDir is where container roots
// are made; empty means the system temp directory.
func NewHostRuntime(baseDir string) *HostRuntime {
	return &HostRuntime{baseDir: baseDir, containers: make(map[string]*hostContainer)}
}

func (h *HostRuntime) get(id string) (*hostContainer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.containers[id]
	if !ok {
		return nil, fmt.Errorf("no such container %s", id)
	}
	return c, nil
}

// resolve maps a container path onto the host: absolute paths land beneath
// the root, relative paths beneath the workdir.
func (c *hostContainer) resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Join(c.root, strings.TrimPrefix(path, "/"))
	}
	base := c.workdir
	if base == "" {
		base = "/"
	}
	return filepath.Join(c.root, strings.TrimPrefix(base, "/"), path)
}

// Create makes the container root and materializes mounts as copies.
func (h *HostRuntime) Create(_ context.Context, spec Spec) (string, error) {
	root, err := os.MkdirTemp(h.baseDir, "solclash-host-*")
	if err != nil {
		return "", fmt.Errorf("create host container root: %w", err)
	}
	c := &hostContainer{root: root, workdir: spec.Workdir, env: spec.Env}
	if spec.Workdir != "" {
		if err := os.MkdirAll(c.resolve(spec.Workdir), 0o755); err != nil {
			return "", fmt.Errorf("create workdir: %w", err)
		}
	}
	for _, m := range spec.Mounts {
		src := m.HostPath
		// a directory bind mount replaces the target, it never nests
		if info, err := os.Stat(src); err == nil && info.IsDir() {
			src += "/."
		}
		if err := CopyPath(src, c.resolve(m.ContainerPath)); err != nil {
			return "", fmt.Errorf("materialize mount %s: %w", m.ContainerPath, err)
		}
	}

	id := "host-" + uuid.NewString()
	h.mu.Lock()
	h.containers[id] = c
	h.mu.Unlock()
	return id, nil
}

// Exec runs argv on the host with the container's cwd and environment. The
// container root is exported as CONTAINER_ROOT so scripts can resolve
// container-absolute paths themselves.
func (h *HostRuntime) Exec(ctx context.Context, id string, argv []string, opts ExecOpts) (ExecResult, error) {
	c, err := h.get(id)
	if err != nil {
		return ExecResult{}, err
	}
	if len(argv) == 0 {
		return ExecResult{}, fmt.Errorf("empty argv")
	}

	cwd := opts.Cwd
	if cwd == "" {
		cwd = c.workdir
	}
	dir := c.root
	if cwd != "" {
		dir = c.resolve(cwd)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	// orphaned children must not pin the stdio pipes open after a kill
	cmd.WaitDelay = 2 * time.Second
	cmd.Dir = dir
	cmd.Env = os.Environ()
	cmd.Env = append(cmd.Env, "CONTAINER_ROOT="+c.root)
	for _, k := range sortedEnvKeys(c.env) {
		cmd.Env = append(cmd.Env, k+"="+c.env[k])
	}
	for _, k := range sortedEnvKeys(opts.Env) {
		cmd.Env = append(cmd.Env, k+"="+opts.Env[k])
	}

	var out, errb strings.Builder
	cmd.Stdout = &out
	cmd.Stderr = &errb
	runErr := cmd.Run()
	code := 0
	if runErr != nil {
		ee, ok := runErr.(*exec.ExitError)
		if !ok {
			return ExecResult{}, fmt.Errorf("exec %s: %w", argv[0], runErr)
		}
		code = ee.ExitCode()
	}
	return ExecResult{ExitCode: code, Stdout: out.String(), Stderr: errb.String()}, nil
}

// CopyTo copies a host path beneath the container root.
func (h *HostRuntime) CopyTo(_ context.Context, id, hostPath, containerPath string) error {
	c, err := h.get(id)
	if err != nil {
		return err
	}
	dst := c.resolve(strings.TrimSuffix(containerPath, "/."))
	if strings.HasSuffix(containerPath, "/.") {
		dst += string(filepath.Separator) + "."
	}
	return CopyPath(hostPath, dst)
}

// CopyFrom copies a container path out to the host.
func (h *HostRuntime) CopyFrom(_ context.Context, id, containerPath, hostPath string) error {
	c, err := h.get(id)
	if err != nil {
		return err
	}
	src := c.resolve(strings.TrimSuffix(containerPath, "/."))
	if strings.HasSuffix(containerPath, "/.") {
		src += string(filepath.Separator) + "."
	}
	return CopyPath(src, hostPath)
}

// Remove deletes the container root.
func (h *HostRuntime) Remove(_ context.Context, id string) error {
	h.mu.Lock()
	c, ok := h.containers[id]
	delete(h.containers, id)
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("no such container %s", id)
	}
	return os.RemoveAll(c.root)
}
