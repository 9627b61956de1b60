//go:build windows

package app

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/JiscSD/ram-relationships/registry"

	"github.com/pkg/errors"
)

func interrupt(cancel <-chan struct{}, agencies *registry.Registry) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-c:
		return errors.Errorf("received signal %s", sig)
	case <-cancel:
		return errors.New("canceled")
	}
}
