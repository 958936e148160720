// Command sample runs a small users API on top of the endpoint framework.
//
// Run:
//
//	go run ./cmd/sample serve
//	go run ./cmd/sample serve --addr :9090 --telemetry telemetry.yaml
//
// Generate the OpenAPI document:
//
//	go run ./cmd/sample spec
//	go run ./cmd/sample spec --format yaml -o openapi.yaml
//
// Then explore:
//
//	GET    http://localhost:8080/docs                 API reference
//	GET    http://localhost:8080/openapi.json         OpenAPI 3 document
//	GET    http://localhost:8080/swagger.json         Swagger 2 document
//	GET    http://localhost:8080/v1/health            health check
//	GET    http://localhost:8080/v1/users             list users
//	POST   http://localhost:8080/v1/users             create user
//	GET    http://localhost:8080/v1/users/{id}        get user
//	PUT    http://localhost:8080/v1/users/{id}        update user
//	DELETE http://localhost:8080/v1/users/{id}        delete user
//	GET    http://localhost:8080/v1/events            event stream (raw)
//
// Requests under /v1/users need an "Authorization: ApiKey <key>" header
// and an X-Tenant header. The demo keys are "admin-key" and "member-key".
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
