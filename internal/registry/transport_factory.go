package registry

import (
	"atrax/internal/config"
	"atrax/internal/transport"
)

// newTransport builds the Transport substrate named by cfg.TransportType. It is the only
// place config.ServerConfig's variant-specific fields are translated into transport.* types,
// keeping internal/transport itself free of any dependency on internal/config.
func newTransport(label string, cfg config.ServerConfig) transport.Transport {
	switch cfg.TransportType {
	case config.TransportDocker:
		return transport.NewDocker(label, transport.DockerSpec{
			Image:   cfg.Image,
			Args:    cfg.Args,
			Env:     cfg.Env,
			Volumes: cfg.Volumes,
			Network: cfg.Network,
			Remove:  cfg.RemovesContainerOnExit(),
		})
	case config.TransportHTTP:
		return transport.NewHTTP(label, transport.HTTPSpec{
			URL:     cfg.URL,
			Headers: cfg.Headers,
		})
	default: // stdio
		return transport.NewStdio(label, cfg.Command, cfg.Args, cfg.Env)
	}
}
