package connectors

import (
	"encoding/json"
	"fmt"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// DecodeCredentials разбирает и проверяет набор учетных данных аккаунта
func DecodeCredentials(account *models.Account, dst interface{}) error {
	if len(account.Credentials) == 0 {
		return NewError(ErrInvalidCredentials, account.Platform, "credentials", 0, nil,
			fmt.Errorf("account %s has no credentials", account.ID))
	}
	if err := json.Unmarshal(account.Credentials, dst); err != nil {
		return NewError(ErrInvalidCredentials, account.Platform, "credentials", 0, nil, err)
	}
	if err := validate.Struct(dst); err != nil {
		return NewError(ErrInvalidCredentials, account.Platform, "credentials", 0, nil, err)
	}
	return nil
}
