// Command schema-generator writes the JSON schema of superstate.yml for
// editor integration.
package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/superstate/config"
)

func main() {
	out := flag.String("out", "schema/superstate.schema.json", "output file")
	flag.Parse()

	schemaBytes, err := config.GenerateSchema()
	if err != nil {
		logrus.WithError(err).Fatal("Error generating schema")
	}
	if err := os.MkdirAll(filepath.Dir(*out), 0755); err != nil {
		logrus.WithError(err).Fatal("Error creating schema directory")
	}
	if err := os.WriteFile(*out, append(schemaBytes, '\n'), 0644); err != nil {
		logrus.WithError(err).Fatal("Error writing schema file")
	}
	logrus.WithField("path", *out).Info("Generated schema")
}
