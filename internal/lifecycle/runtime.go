package lifecycle

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ServicePort is the port the service listens on inside its container.
const ServicePort = 8000

// RunSpec describes the container to launch.
type RunSpec struct {
	Name     string
	Image    string
	HostPort int
}

// Runtime launches and stops service containers.
type Runtime interface {
	Run(ctx context.Context, spec RunSpec) (string, error)
	Stop(ctx context.Context, name string) error
}

// CLIRuntime drives a docker-compatible command line (docker, podman).
type CLIRuntime struct {
	binary string
}

// NewCLIRuntime returns a runtime invoking binary; empty means docker.
func NewCLIRuntime(binary string) *CLIRuntime {
	if strings.TrimSpace(binary) == "" {
		binary = "docker"
	}
	return &CLIRuntime{binary: binary}
}

// Binary returns the command the runtime invokes.
func (r *CLIRuntime) Binary() string {
	return r.binary
}

// RunArgs returns the arguments used to launch spec.
func RunArgs(spec RunSpec) []string {
	return []string{
		"run",
		"-d",
		"--rm",
		"-p", strconv.Itoa(spec.HostPort) + ":" + strconv.Itoa(ServicePort),
		"--name", spec.Name,
		spec.Image,
	}
}

// Run starts a detached container and returns its ID.
func (r *CLIRuntime) Run(ctx context.Context, spec RunSpec) (string, error) {
	cmd := exec.CommandContext(ctx, r.binary, RunArgs(spec)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("starting container: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Stop stops the named container. A container that does not exist is not an error.
func (r *CLIRuntime) Stop(ctx context.Context, name string) error {
	cmd := exec.CommandContext(ctx, r.binary, "stop", name)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if strings.Contains(stderr.String(), "No such container") {
			return nil
		}
		return fmt.Errorf("stopping container: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
