//go:build !windows

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
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	for {
		select {
		case sig := <-c:
			switch sig {
			case syscall.SIGUSR1:
				agencies.Reload()
				continue
			case syscall.SIGUSR2:
				agencies.Log()
				continue
			default:
				return errors.Errorf("received signal %s", sig)
			}
		case <-cancel:
			return errors.New("canceled")
		}
	}
}
