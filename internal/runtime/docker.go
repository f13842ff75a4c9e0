package runtime

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// cli runs one backend command and captures its streams. Injectable so the
// docker backend is testable without a daemon.
type cli interface {
	run(ctx context.Context, name string, args ...string) (stdout, stderr string, exitCode int, err error)
}

type execCLI struct{}

func (execCLI) run(ctx context.Context, name string, args ...string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = 2 * time.Second
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	err := cmd.Run()
	code := 0
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			code = ee.ExitCode()
			err = nil
		}
	}
	return out.String(), errb.String(), code, err
}

// DockerRuntime drives containers through the docker CLI. Containers are
// created with a parked entrypoint so later Exec calls have a running
// target.
type DockerRuntime struct {
	bin     string
	cli     cli
	breaker *breaker
}

// NewDockerRuntime wraps the docker binary on PATH.
func NewDockerRuntime() *DockerRuntime {
	return &DockerRuntime{bin: "docker", cli: execCLI{}, breaker: newBreaker("docker")}
}

// docker runs one docker subcommand through the breaker and fails on any
// non-zero exit, carrying the captured stderr.
func (d *DockerRuntime) docker(ctx context.Context, args ...string) (string, error) {
	out, err := d.breaker.Execute(func() (any, error) {
		stdout, stderr, code, err := d.cli.run(ctx, d.bin, args...)
		if err != nil {
			return "", fmt.Errorf("docker %s: %w", args[0], err)
		}
		if code != 0 {
			return "", fmt.Errorf("docker %s exited %d: %s", args[0], code, strings.TrimSpace(stderr))
		}
		return stdout, nil
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// Create starts a parked container from the spec and returns its name.
func (d *DockerRuntime) Create(ctx context.Context, spec Spec) (string, error) {
	name := "solclash-" + uuid.NewString()
	args := []string{"create", "--name", name}
	if spec.Workdir != "" {
		args = append(args, "-w", spec.Workdir)
	}
	for _, k := range sortedEnvKeys(spec.Env) {
		args = append(args, "-e", k+"="+spec.Env[k])
	}
	for _, m := range spec.Mounts {
		vol := m.HostPath + ":" + m.ContainerPath
		if m.ReadOnly {
			vol += ":ro"
		}
		args = append(args, "-v", vol)
	}
	args = append(args, spec.Image, "sleep", "infinity")

	if _, err := d.docker(ctx, args...); err != nil {
		return "", err
	}
	if _, err := d.docker(ctx, "start", name); err != nil {
		// best effort: do not leak the created container
		if _, rmErr := d.docker(ctx, "rm", "-f", name); rmErr != nil {
			log.Warn().Err(rmErr).Str("container", name).Msg("failed to remove unstartable container")
		}
		return "", err
	}
	return name, nil
}

// Exec runs argv inside the container and returns its exit code and
// captured streams. The docker CLI propagates the command's exit code, so a
// non-zero code comes back in the result, not as an error.
func (d *DockerRuntime) Exec(ctx context.Context, id string, argv []string, opts ExecOpts) (ExecResult, error) {
	args := []string{"exec"}
	if opts.Cwd != "" {
		args = append(args, "-w", opts.Cwd)
	}
	for _, k := range sortedEnvKeys(opts.Env) {
		args = append(args, "-e", k+"="+opts.Env[k])
	}
	args = append(args, id)
	args = append(args, argv...)

	res, err := d.breaker.Execute(func() (any, error) {
		stdout, stderr, code, err := d.cli.run(ctx, d.bin, args...)
		if err != nil {
			return ExecResult{}, fmt.Errorf("docker exec: %w", err)
		}
		return ExecResult{ExitCode: code, Stdout: stdout, Stderr: stderr}, nil
	})
	if err != nil {
		return ExecResult{}, err
	}
	return res.(ExecResult), nil
}

// CopyTo ships a host path into the container.
func (d *DockerRuntime) CopyTo(ctx context.Context, id, hostPath, containerPath string) error {
	_, err := d.docker(ctx, "cp", hostPath, id+":"+containerPath)
	return err
}

// CopyFrom ships a container path out to the host.
func (d *DockerRuntime) CopyFrom(ctx context.Context, id, containerPath, hostPath string) error {
	_, err := d.docker(ctx, "cp", id+":"+containerPath, hostPath)
	return err
}

// Remove force-removes the container.
func (d *DockerRuntime) Remove(ctx context.Context, id string) error {
	_, err := d.docker(ctx, "rm", "-f", id)
	return err
}

// sortedEnvKeys keeps CLI argument order deterministic.
func sortedEnvKeys(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
