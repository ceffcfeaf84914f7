// container.go implements container lifecycle operations for sandboxed
// agent runs: starting a labeled agent container, discovering containers
// by worktree, and stopping/removing them during reclaim.
//
// Starting uses `docker run` via os/exec rather than the SDK's
// ContainerCreate + ContainerStart workflow: the CLI flags map directly
// onto what a user would type to reproduce the container by hand, and
// avoid constructing the SDK's Config/HostConfig structs for a simple
// foreground run. Discovery and teardown use the SDK, where label
// filtering is done server-side.
package sandbox

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	"github.com/knakano/atelier/internal/model"
)

// ContainerInfo holds runtime information about a sandbox container.
type ContainerInfo struct {
	// ID is the Docker container identifier.
	ID string `json:"id"`

	// Name is the human-readable container name (leading "/" stripped).
	Name string `json:"name"`

	// State is the Docker container state ("running", "exited", ...).
	State string `json:"state"`

	// Meta is the atelier metadata parsed from the container's labels.
	Meta ContainerMeta `json:"meta"`
}

// RunArgs describes a sandboxed agent invocation.
type RunArgs struct {
	// Image is the container image to run.
	Image string

	// WorktreePath is bind-mounted at /workspace and used as the
	// container working directory.
	WorktreePath string

	// Command and Args form the agent invocation inside the container.
	Command string
	Args    []string

	// Env holds extra environment variables for the agent.
	Env map[string]string

	// Meta is applied to the container as atelier.* labels.
	Meta ContainerMeta
}

// RunAgent runs the agent in a container in the foreground, streaming
// its combined output to stdout/stderr writers. The container is
// removed automatically on exit (--rm); only containers that are still
// alive at reclaim time need label-based discovery.
func RunAgent(ctx context.Context, args RunArgs, stdout, stderr io.Writer) error {
	dockerArgs := []string{
		"run", "--rm", "-i",
		"-v", args.WorktreePath + ":/workspace",
		"-w", "/workspace",
	}

	for key, value := range BuildLabels(args.Meta) {
		dockerArgs = append(dockerArgs, "--label", key+"="+value)
	}
	for key, value := range args.Env {
		dockerArgs = append(dockerArgs, "-e", key+"="+value)
	}

	dockerArgs = append(dockerArgs, args.Image, args.Command)
	dockerArgs = append(dockerArgs, args.Args...)

	// #nosec G204 — arguments come from the project's own agent config
	cmd := exec.CommandContext(ctx, "docker", dockerArgs...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("docker run failed for image %q", args.Image),
			err,
		)
	}
	return nil
}

// ListManagedContainers queries the Docker daemon for all containers with
// the "atelier.managed-by=atelier" label, including stopped ones.
// Containers whose labels fail to parse are skipped — a half-labeled
// container cannot be attributed to a worktree anyway.
func ListManagedContainers(ctx context.Context, cli *Client) ([]ContainerInfo, error) {
	// Filter server-side; listing everything and filtering in Go would
	// pull unrelated containers over the API for no benefit.
	filterArgs := filters.NewArgs(
		filters.Arg("label", LabelManagedBy+"="+ManagedByValue),
	)

	containers, err := cli.Inner().ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filterArgs,
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker containers",
			err,
		)
	}

	result := make([]ContainerInfo, 0, len(containers))
	for _, c := range containers {
		meta, err := ParseLabels(c.Labels)
		if err != nil {
			continue
		}

		name := ""
		if len(c.Names) > 0 {
			// The API returns names with a leading "/" artifact.
			name = strings.TrimPrefix(c.Names[0], "/")
		}

		result = append(result, ContainerInfo{
			ID:    c.ID,
			Name:  name,
			State: c.State,
			Meta:  meta,
		})
	}

	return result, nil
}

// ContainersForWorktree returns the managed containers whose worktree
// label is the given directory or a path underneath it.
func ContainersForWorktree(ctx context.Context, cli *Client, dir string) ([]ContainerInfo, error) {
	all, err := ListManagedContainers(ctx, cli)
	if err != nil {
		return nil, err
	}

	var matched []ContainerInfo
	for _, c := range all {
		if model.PathWithin(c.Meta.WorktreePath, dir) {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

// StopContainer stops a running container. Docker sends the container's
// stop signal and escalates to SIGKILL after its default timeout.
func StopContainer(ctx context.Context, cli *Client, containerID string) error {
	err := cli.Inner().ContainerStop(ctx, containerID, container.StopOptions{})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to stop container %q", containerID),
			err,
		)
	}
	return nil
}

// RemoveContainer removes a container. With force, a running container
// is killed first — reclaim uses force because the whole point is that
// nothing may keep the worktree mount alive.
func RemoveContainer(ctx context.Context, cli *Client, containerID string, force bool) error {
	err := cli.Inner().ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force: force,
	})
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to remove container %q", containerID),
			err,
		)
	}
	return nil
}

// Available reports whether a Docker daemon is reachable. Used by the
// doctor command and by reclaim to decide whether container teardown
// is applicable at all.
func Available(ctx context.Context) bool {
	cli, err := NewClient()
	if err != nil {
		return false
	}
	defer func() { _ = cli.Close() }()

	return cli.Ping(ctx) == nil
}
