// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command ballast plans crane moves that balance a ship's bay.
//
// Usage:
//
//	ballast serve                    # HTTP API, websocket stream and /metrics
//	ballast plan ShipCase1.txt       # print the plan as YAML
//	ballast step ShipCase1.txt       # walk the plan in the terminal
//	ballast watch ./inbox            # plan manifests dropped into a directory
//
// Example requests against `ballast serve`:
//
//	# Health check
//	curl http://localhost:8080/v1/balance/health
//
//	# Upload a manifest and open a session
//	curl -F file=@ShipCase1.txt http://localhost:8080/v1/balance/manifests
//
//	# Finish the current step
//	curl -X POST http://localhost:8080/v1/balance/sessions/<id>/next
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
