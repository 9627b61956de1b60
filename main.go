package main

import (
	"context"
	"os"

	"github.com/JiscSD/ram-relationships/app"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func main() {
	err := app.Run(os.Stdout, os.Stderr)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		logrus.WithError(err).Debug("Shut down after cancellation")
	default:
		logrus.WithError(err).Fatal("ram-relationships stopped")
	}
}
