package vault

import (
	"fmt"

	"github.com/hashicorp/vault/api"
)

// SecretManager reads runtime secrets from a vault KV v2 mount. Secrets
// resolved here override whatever the environment provides.
type SecretManager struct {
	client *api.Client
}

func NewSecretManager(address, token string) (*SecretManager, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, err
	}

	client.SetToken(token)

	return &SecretManager{client: client}, nil
}

func (sm *SecretManager) readString(path, field string) (string, error) {
	secret, err := sm.client.Logical().Read(path)
	if err != nil {
		return "", err
	}
	if secret == nil {
		return "", fmt.Errorf("secret not found: %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("secret %s has no data block", path)
	}
	value, ok := data[field].(string)
	if !ok {
		return "", fmt.Errorf("secret %s has no %s field", path, field)
	}
	return value, nil
}

// GetAPIKey returns the key the control API expects in X-Api-Key.
func (sm *SecretManager) GetAPIKey() (string, error) {
	return sm.readString("secret/data/api", "api_key")
}

func (sm *SecretManager) GetStripeKey() (string, error) {
	return sm.readString("secret/data/stripe", "secret_key")
}

func (sm *SecretManager) GetSendGridKey() (string, error) {
	return sm.readString("secret/data/sendgrid", "api_key")
}
