package model

import "github.com/m-mizutani/goerr/v2"

// Error taxonomy shared across registries, usecases and the HTTP layer.
// Handlers map these to status codes; wrap with goerr.Wrap to add context.
var (
	ErrNotFound                = goerr.New("resource not found")
	ErrInvalidArgument         = goerr.New("invalid argument")
	ErrInvalidCredentialFormat = goerr.New("invalid credential format")
	ErrAgentConstruction       = goerr.New("failed to construct agent pipeline")
	ErrPipelineExecution       = goerr.New("pipeline execution failed")
	ErrMemoryStoreUnavailable  = goerr.New("memory store unavailable")
	ErrDurablePersistence      = goerr.New("durable persistence failed")
	ErrDuplicateResource       = goerr.New("resource already exists")
)
