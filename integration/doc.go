// Package integration exercises the DynamoDB stores and the ram-relationships
// server against local AWS services, e.g. localstack.
//
// The tests are skipped unless -dynamodb is given.
//
// `go test` flags supported:
//
//	-dynamodb
//
//	 Run the tests. Requires the services at -endpoint.
//
//	-endpoint="http://localhost:4566"
//
//	 Address of the local AWS services.
//
//	-debug
//
//	 Enable debug mode.
//
// The server tests also need the ram-relationships binary in $PATH.
//
// Example: go test -v ./integration/... -dynamodb
package integration
