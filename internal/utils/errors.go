package utils

import "errors"

// ----------------- storage ------------------
var (
	ErrStorageEmptyHostName       = errors.New("host name is empty")
	ErrStorageInvalidPortNumber   = errors.New("port number is empty")
	ErrStorageEmptyUsername       = errors.New("username is empty")
	ErrStorageEmptyPassword       = errors.New("password is empty")
	ErrStorageInvalidDatabaseName = errors.New("database name is empty")
	ErrStorageInvalidSslMode      = errors.New("SSL mode is invalid")
	ErrStorageInvalidPoolSize     = errors.New("pool size is invalid")
	ErrStorageInvalidTimeout      = errors.New("timeout is invalid")

	// ErrPersistence запись в хранилище не удалась
	ErrPersistence = errors.New("persistence error")
	ErrNotFound    = errors.New("not found")
)

// ----------------- accounts / sync ------------------
var (
	ErrInvalidAccountID = errors.New("invalid account id")
	ErrAccountInactive  = errors.New("account is inactive")
	ErrSyncInProgress   = errors.New("sync already in progress for account")
	ErrSyncNotAllowed   = errors.New("tenant is not allowed to sync")
	ErrAllChunksFailed  = errors.New("all chunks failed")
)

// ----------------- catalog / matching ------------------
var (
	ErrInvalidProductId  = errors.New("invalid product id")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrLinkNotFound      = errors.New("product link not found")
	ErrLinkExists        = errors.New("product already linked on account")
	ErrInvalidPrice      = errors.New("invalid price")
)
