package main

import (
	"log"

	"github.com/pressline/insiderhub/internal/pkg/database"
	"github.com/pressline/insiderhub/internal/pkg/env"
)

// Standalone schema migration runner. The web binary migrates on boot as
// well; this exists for deploy pipelines that migrate before rollout.
func main() {
	env.SetupEnvFile()
	database.SetupDatabase()
	log.Println("schema migration complete")
}
