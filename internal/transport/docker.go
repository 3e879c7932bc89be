package transport

import "fmt"

// DockerSpec carries the subset of a server's docker configuration needed to assemble the
// `docker run` argv; it intentionally mirrors config.ServerConfig's docker-only fields rather
// than importing the config package, keeping transport free of a dependency on config.
type DockerSpec struct {
	Image   string
	Args    []string
	Env     map[string]string
	Volumes map[string]string
	Network string
	Remove  bool
}

// NewDocker creates a transport that runs spec.Image as a container and speaks
// newline-delimited JSON-RPC over the container's stdin/stdout, stderr reserved for logs.
// The container is always run attached (`-i`) since the protocol requires a live pipe.
func NewDocker(label string, spec DockerSpec) Transport {
	argv := []string{"run", "-i"}
	if spec.Remove {
		argv = append(argv, "--rm")
	}
	for k, v := range spec.Env {
		argv = append(argv, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	for host, container := range spec.Volumes {
		argv = append(argv, "-v", fmt.Sprintf("%s:%s", host, container))
	}
	if spec.Network != "" {
		argv = append(argv, "--network", spec.Network)
	}
	argv = append(argv, spec.Image)
	argv = append(argv, spec.Args...)

	return newProcessTransport(label, "docker", argv, nil)
}
