package main

import (
	"time"

	"github.com/emberfx/emberlink/pkg/client"
)

// GlobalFlags holds persistent flags shared by the API-backed commands.
type GlobalFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	ConfigPath string
}

func (gf *GlobalFlags) apiClient() *client.Client {
	return client.New(client.Config{
		BaseURL: gf.APIUrl,
		Timeout: gf.APITimeout,
	})
}
