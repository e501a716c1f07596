package runner

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	docker "github.com/fsouza/go-dockerclient"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Docker is an Executor that runs each step in a throwaway container.
// The runner environment label on the spec picks the image.
type Docker struct {
	client *docker.Client

	// images maps runner environment labels (e.g. "ubuntu-latest") to
	// image references. defaultImage is used for unmapped labels.
	images       map[string]string
	defaultImage string
}

// NewDocker returns a Docker executor talking to the daemon at
// endpoint.
func NewDocker(endpoint string, images map[string]string, defaultImage string) (*Docker, error) {
	client, err := docker.NewClient(endpoint)
	if err != nil {
		return nil, err
	}

	return &Docker{
		client:       client,
		images:       images,
		defaultImage: defaultImage,
	}, nil
}

// Exec runs the command in a fresh container and returns its logs.
// The container is removed no matter how the command went.
func (e *Docker) Exec(ctx context.Context, spec ExecSpec) (string, error) {
	imgref := e.resolveImage(spec.Label)

	logger := logger.WithFields(log.Fields{
		"command": spec.Command,
		"image":   imgref,
	})

	if err := e.verifyImagePresent(imgref); err != nil {
		logger.WithError(err).Error("unable to verify image presence")
		return "", err
	}

	name := fmt.Sprintf("conveyor.%v", uuid.New())

	container, err := e.client.CreateContainer(docker.CreateContainerOptions{
		Name: name,
		Config: &docker.Config{
			Image: imgref,
			Cmd:   []string{"sh", "-c", spec.Command},
			Env:   flattenEnv(spec.Env),
		},
	})
	if err != nil {
		logger.WithError(err).Error("unable to create step container")
		return "", err
	}

	defer func() {
		rmerr := e.client.RemoveContainer(docker.RemoveContainerOptions{
			ID:    container.ID,
			Force: true,
		})
		if rmerr != nil {
			logger.WithError(rmerr).Warn("unable to remove step container")
		}
	}()

	logger = logger.WithField("container", container.ID)
	logger.Debug("starting step container")

	if err := e.client.StartContainer(container.ID, nil); err != nil {
		logger.WithError(err).Error("unable to start step container")
		return "", err
	}

	status, err := e.client.WaitContainerWithContext(container.ID, ctx)
	if err != nil {
		// The wait unblocks on cancellation but the container keeps
		// going until it's stopped.
		if stoperr := e.client.StopContainer(container.ID, 1); stoperr != nil {
			logger.WithError(stoperr).Warn("unable to stop step container")
		}

		return "", err
	}

	logger.Debugf("step container exited with status %v", status)

	var out bytes.Buffer
	logserr := e.client.Logs(docker.LogsOptions{
		Container:    container.ID,
		OutputStream: &out,
		ErrorStream:  &out,
		Stdout:       true,
		Stderr:       true,
	})
	if logserr != nil {
		logger.WithError(logserr).Warn("unable to collect step container logs")
	}

	if status != 0 {
		return out.String(), fmt.Errorf("step exited with status %v", status)
	}

	return out.String(), nil
}

func (e *Docker) resolveImage(label string) string {
	if imgref, ok := e.images[label]; ok {
		return imgref
	}

	return e.defaultImage
}

func (e *Docker) verifyImagePresent(imgref string) error {
	_, err := e.client.InspectImage(imgref)
	if err == nil {
		return nil
	}

	if err != docker.ErrNoSuchImage {
		return err
	}

	logger.WithField("image", imgref).Debug("pulling missing image")

	repo, tag := docker.ParseRepositoryTag(imgref)
	if tag == "" {
		tag = "latest"
	}

	return e.client.PullImage(docker.PullImageOptions{
		Repository: repo,
		Tag:        tag,
	}, docker.AuthConfiguration{})
}

// ParseImageMap parses a label=image mapping out of a comma-separated
// config string, e.g. "ubuntu-latest=ubuntu:24.04,macos-latest=sickcodes/docker-osx".
func ParseImageMap(raw string) map[string]string {
	images := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}

		images[parts[0]] = parts[1]
	}

	return images
}
