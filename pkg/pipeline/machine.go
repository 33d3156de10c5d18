// Package pipeline implements the staged image build workflow. It
// sequences archive fetch, image allocation, in-process GPT construction,
// optional partition population, and container conversion through the
// superfly/fsm library, recording progress in the builds database.
package pipeline

import (
	"context"

	"github.com/superfly/fsm"

	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/errors"
)

// Register registers the image build FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[Request, Response], fsm.Resume, error) {
	start, resume, err := fsm.Register[Request, Response](manager, "image-build").
		Start(StatePreflight, m.handlePreflight).
		To(StateFetch, m.handleFetch).
		To(StateAllocate, m.handleAllocate).
		To(StatePartition, m.handlePartition).
		To(StateFormat, m.handleFormat).
		To(StatePopulate, m.handlePopulate).
		To(StateConvert, m.handleConvert).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}
