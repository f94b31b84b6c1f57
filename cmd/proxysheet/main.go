package main

import (
	"proxysheet/internal/app"

	"github.com/charmbracelet/log"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal("proxysheet run failed", "error", err)
	}
}
