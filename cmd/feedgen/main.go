package main

import (
	"os"

	"github.com/deusflow/feedgen/internal/app"
)

func main() {
	os.Exit(app.Main())
}
