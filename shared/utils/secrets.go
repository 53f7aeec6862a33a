package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SecretsDir - каталог Docker Secrets. Переменная, чтобы тесты могли подменить.
var SecretsDir = "/run/secrets"

// ReadSecret читает секрет из файла Docker Secrets.
func ReadSecret(secretName string) (string, error) {
	filePath := filepath.Join(SecretsDir, secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}

// SecretFromEnvOrFile берёт секрет из переменной окружения, а если её нет -
// из файла Docker Secrets.
func SecretFromEnvOrFile(envKey, secretName string) (string, error) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		return v, nil
	}
	secret, err := ReadSecret(secretName)
	if err != nil {
		return "", fmt.Errorf("%s is not set and %w", envKey, err)
	}
	return secret, nil
}
