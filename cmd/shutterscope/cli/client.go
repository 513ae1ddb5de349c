package cli

import (
	"fmt"
	"strings"

	"github.com/shutterscope/shutterscope/internal/client"
)

var serverFlag string

// resolveServer picks the server URL from --server, the stored config, or
// the stored token, in that order.
func resolveServer() (string, error) {
	server := serverFlag
	if server == "" {
		if cfg, err := LoadConfig(); err == nil && cfg.Server != "" {
			server = cfg.Server
		}
	}
	if server == "" {
		if tok, err := LoadToken(); err == nil && tok.Server != "" {
			server = tok.Server
		}
	}
	if server == "" {
		return "", fmt.Errorf("no server specified. Use --server or run 'shutterscope login' first")
	}
	return validateServer(server)
}

func validateServer(server string) (string, error) {
	server = strings.TrimRight(server, "/")
	if !strings.HasPrefix(server, "http://") && !strings.HasPrefix(server, "https://") {
		return "", fmt.Errorf("server URL must start with http:// or https://")
	}
	return server, nil
}

// newClient builds an authenticated client from stored credentials.
func newClient() (*client.Client, error) {
	tok, err := LoadToken()
	if err != nil {
		return nil, err
	}
	server := tok.Server
	if serverFlag != "" {
		if server, err = validateServer(serverFlag); err != nil {
			return nil, err
		}
	}
	return client.New(server, client.WithToken(tok.Token)), nil
}
