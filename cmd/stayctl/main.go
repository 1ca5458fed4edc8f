// Copyright (C) 2025 Harborstay Labs (eng@harborstay.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log"
	"os"

	"github.com/harborstay/concierge/pkg/logging"
)

func main() {
	// Text logs on stderr; chat output itself goes to stdout.
	closeLogs := logging.Setup(logging.Config{
		Level:   os.Getenv("LOG_LEVEL"),
		Service: "stayctl",
	})
	defer closeLogs()

	// Execute the root command. Cobra handles parsing the arguments.
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
