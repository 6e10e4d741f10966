package build

import (
	"context"
	"io"
	"log/slog"

	"github.com/mortenlj/yakupci/internal/runtime"
	"github.com/opencontainers/go-digest"
)

// Creates build containers from images.
type Engine interface {

	// Fetches ref for platform into the local image store.
	Pull(ctx context.Context, ref, platform string) error

	// Reports whether an image is in the local image store.
	HasImage(ctx context.Context, name string) (bool, error)

	// Starts a container from a stored image. The id must be unique among
	// live containers.
	Start(ctx context.Context, image, id, platform string) (Container, error)
}

// A running build container.
type Container interface {
	Exec(ctx context.Context, args, env []string, workdir string) (*runtime.ExecResult, error)
	CopyTo(ctx context.Context, r io.Reader, dir string) error
	ReadFile(ctx context.Context, path string) ([]byte, error)
	Commit(ctx context.Context, name string, cfg runtime.ImageConfig) (digest.Digest, error)
	Destroy(ctx context.Context)
}

// Engine backed by containerd.
type containerdEngine struct {
	rt *runtime.Runtime
}

// Returns an [Engine] that runs containers on rt.
func NewEngine(rt *runtime.Runtime) Engine {
	return &containerdEngine{rt: rt}
}

func (e *containerdEngine) Pull(ctx context.Context, ref, platform string) error {
	return e.rt.Pull(ctx, ref, platform)
}

func (e *containerdEngine) HasImage(ctx context.Context, name string) (bool, error) {
	return e.rt.HasImage(ctx, name)
}

func (e *containerdEngine) Start(ctx context.Context, image, id, platform string) (Container, error) {
	ctr, err := e.rt.StartContainer(ctx, image, id, platform)
	if err != nil {
		return nil, err
	}
	slog.Debug("build container started", "id", ctr.ID(), "image", image, "platform", ctr.Platform())
	return ctr, nil
}
