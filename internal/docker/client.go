package docker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/mitchellh/go-homedir"

	"composewatch/internal/models"
)

const (
	ProjectLabel = "com.docker.compose.project"
	ServiceLabel = "com.docker.compose.service"

	DefaultEndpoint = "unix:///var/run/docker.sock"
)

// ErrConnection marks failures to reach the engine at startup.
var ErrConnection = errors.New("docker engine unreachable")

// API is the subset of the Docker client used here.
type API interface {
	Ping(ctx context.Context) (types.Ping, error)
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	Close() error
}

type Client struct {
	api API
}

func NewClientFromAPI(api API) *Client {
	return &Client{api: api}
}

// Connect creates a client for endpoint and verifies the engine answers.
func Connect(ctx context.Context, endpoint string, timeout time.Duration) (*Client, error) {
	cli, err := client.NewClientWithOpts(
		client.WithHost(endpoint),
		client.WithTimeout(timeout),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, endpoint, err)
	}
	c := &Client{api: cli}
	if err := c.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.api.Close()
}

// ListProject returns every container, running or not, labelled with the
// given compose project. Only the listing itself can fail; a container that
// cannot be inspected is returned from its summary with the inspect error as
// its error message.
func (c *Client) ListProject(ctx context.Context, project string) ([]models.Observation, error) {
	containers, err := c.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", ProjectLabel+"="+project)),
	})
	if err != nil {
		return nil, fmt.Errorf("list containers for %s: %w", project, err)
	}
	out := make([]models.Observation, 0, len(containers))
	for _, s := range containers {
		obs := observationFromSummary(s)
		info, err := c.api.ContainerInspect(ctx, s.ID)
		if err != nil {
			// Removed between list and inspect, or the engine could not
			// describe it. Either way the summary still gets classified.
			if !errdefs.IsNotFound(err) {
				obs.ErrorMessage = fmt.Sprintf("inspect container %s: %v", obs.Name, err)
			}
			out = append(out, obs)
			continue
		}
		out = append(out, observationFromInspect(obs, info))
	}
	return out, nil
}

func observationFromSummary(s container.Summary) models.Observation {
	name := s.ID
	if len(s.Names) > 0 {
		name = strings.TrimPrefix(s.Names[0], "/")
	}
	return models.Observation{
		ID:      s.ID,
		Name:    name,
		Service: s.Labels[ServiceLabel],
		State:   string(s.State),
	}
}

func observationFromInspect(obs models.Observation, info container.InspectResponse) models.Observation {
	if info.ContainerJSONBase == nil || info.State == nil {
		return obs
	}
	st := info.State
	obs.State = string(st.Status)
	if st.Health != nil {
		obs.Health = string(st.Health.Status)
	}
	if strings.EqualFold(obs.State, "exited") {
		code := st.ExitCode
		obs.ExitCode = &code
	}
	obs.ErrorMessage = errorMessage(st)
	return obs
}

// errorMessage picks the most useful text the engine has about a failure.
func errorMessage(st *container.State) string {
	if st.Error != "" {
		return st.Error
	}
	if st.OOMKilled {
		return "container was OOM killed"
	}
	if st.Health != nil && len(st.Health.Log) > 0 {
		last := st.Health.Log[len(st.Health.Log)-1]
		if last != nil && last.ExitCode != 0 {
			return strings.TrimSpace(last.Output)
		}
	}
	return ""
}

// ExpandEndpoint expands a leading ~ and environment variables in the path
// part of an engine endpoint. Bare paths become unix:// endpoints.
func ExpandEndpoint(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	scheme, rest, found := strings.Cut(raw, "://")
	if !found {
		if strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "~") || strings.HasPrefix(raw, "$") {
			scheme, rest = "unix", raw
		} else {
			return os.ExpandEnv(raw), nil
		}
	}
	if scheme == "unix" || scheme == "npipe" {
		expanded, err := homedir.Expand(os.ExpandEnv(rest))
		if err != nil {
			return raw, fmt.Errorf("expand %q: %w", raw, err)
		}
		rest = expanded
	} else {
		rest = os.ExpandEnv(rest)
	}
	return scheme + "://" + rest, nil
}
