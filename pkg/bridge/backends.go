package bridge

import (
	"go.uber.org/zap"

	"github.com/giannisaf2/crexdata-public/pkg/engine"
	sdkerrors "github.com/giannisaf2/crexdata-public/pkg/errors"
	"github.com/giannisaf2/crexdata-public/pkg/placement"
)

// Backend is the connection port of one platform of a site.
type Backend struct {
	Site     string
	Platform string
	Port     *engine.OutputPort
}

// ConnectBackends connects every backend port to the container generated for
// its (site, platform) in run runID. Edge containers additionally receive the
// AI-Hub connection from aihub through a shared multiply. Backends without a
// container are skipped.
func (b *Bridger) ConnectBackends(proc *engine.Process, backends []Backend, aihub *engine.OutputPort, runID string) error {
	var edges []*engine.Operator
	for _, op := range proc.Operators() {
		if engine.IsEdgeProcessing(op) {
			edges = append(edges, op)
		}
	}

	var fan *engine.Operator
	for _, op := range edges {
		if fan == nil {
			if aihub == nil {
				return sdkerrors.NewModelingError("NO_AIHUB_CHANNEL", "edge container needs an AI-Hub connection port", op.Name())
			}
			var err error
			if fan, err = attachFan(proc, aihub); err != nil {
				return err
			}
		}
		if err := fan.OutputPorts().NextFree().ConnectTo(op.InputPorts().ByName(engine.PortAIHubConnection)); err != nil {
			return sdkerrors.NewError(sdkerrors.KindModeling, "CONNECT_FAILED", "cannot connect AI-Hub", err, op.Name())
		}
	}

	for _, backend := range backends {
		name := placement.ContainerName(backend.Site, backend.Platform, runID)
		container := proc.OperatorByName(name)
		if container == nil {
			b.logger.Debug("No container for backend",
				zap.String("site", backend.Site),
				zap.String("platform", backend.Platform))
			continue
		}

		input := engine.PortNestConnection
		if engine.IsEdgeProcessing(container) {
			input = engine.PortRTSAConnection
		}
		if err := backend.Port.ConnectTo(container.InputPorts().ByName(input)); err != nil {
			return sdkerrors.NewError(sdkerrors.KindModeling, "CONNECT_FAILED", "cannot connect backend", err, name)
		}
		b.logger.Info("Connected backend",
			zap.String("site", backend.Site),
			zap.String("platform", backend.Platform),
			zap.String("container", name))
	}
	return nil
}
