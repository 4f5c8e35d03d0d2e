// main.go
//
// An industrial shop operations backend with versioned database backups
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of shopdb.
// shopdb is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// shopdb is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with shopdb.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/localnerve/shopdb/internal/services"
)

// The live store belongs to the running server, so the probe asks it over
// HTTP instead of opening the collection files itself.
func main() {
	envFile := flag.String("f", "", "Path to a .env file to load before reading the environment")
	host := flag.String("host", "127.0.0.1", "Host the server listens on")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("Failed to load env file %s: %v", *envFile, err)
		}
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	agent := fiber.Get(fmt.Sprintf("http://%s:%s/health", *host, port))
	agent.Timeout(5 * time.Second)
	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		log.Fatalf("Health request failed: %v", errs[0])
	}

	var result services.HealthCheckResult
	if err := json.Unmarshal(body, &result); err != nil {
		log.Fatalf("Failed to decode health check result: %v", err)
	}

	// Output result as JSON
	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal health check result: %v", err)
	}

	fmt.Println(string(output))

	// Exit with appropriate code
	if code != fiber.StatusOK || result.Status != "healthy" {
		os.Exit(1)
	}
	os.Exit(0)
}
