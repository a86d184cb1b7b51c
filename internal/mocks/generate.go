// Package mocks provides gomock test doubles for the service ports.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
package mocks

//go:generate go tool mockgen -package=mocks -destination=model_registry_mock.go github.com/jocr1627/fun-with-ml-server/internal/service ModelRegistry
