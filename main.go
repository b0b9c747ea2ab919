package main

import (
	"Gamebuddies/app"
	_ "Gamebuddies/config/swagger"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

// @title Gamebuddies API
// @version 1.0
// @description Gin-Gonic server for the Gamebuddies room hub and game gateway
// @BasePath /
// @paths
func main() {
	server, err := app.New()
	if err != nil {
		logrus.WithError(err).Fatal("Error setting up server")
	}
	server.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	sig := <-quit
	logrus.WithField("signal", sig.String()).Info("Shutdown signal received")

	server.Shutdown()
}
