package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadLayered decodes configDir/base.yaml, then configDir/{env}.yaml on top of it,
// into out. secrets.env (if present) is loaded into the process environment first
// so ${VAR} placeholders in the yaml files and the Override*FromEnv helpers see it.
func LoadLayered(env, configDir string, out any) error {
	if configDir == "" {
		configDir = "config"
	}

	secretsFile := filepath.Join(configDir, "secrets.env")
	if _, err := os.Stat(secretsFile); err == nil {
		if err := godotenv.Load(secretsFile); err != nil {
			return fmt.Errorf("failed to load secrets.env: %w", err)
		}
	}

	if err := decodeYAMLFile(filepath.Join(configDir, "base.yaml"), out); err != nil {
		return fmt.Errorf("failed to load base.yaml: %w", err)
	}

	if env != "" && env != "base" {
		envFile := filepath.Join(configDir, fmt.Sprintf("%s.yaml", env))
		if _, err := os.Stat(envFile); err == nil {
			// yaml.v3 decodes into the already-populated struct, so only keys
			// present in the env file replace base values.
			if err := decodeYAMLFile(envFile, out); err != nil {
				return fmt.Errorf("failed to load %s.yaml: %w", env, err)
			}
		}
	}

	return nil
}

func decodeYAMLFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	expanded := os.ExpandEnv(string(data))
	return yaml.Unmarshal([]byte(expanded), out)
}

// GetEnv 获取环境变量，如果未设置则返回默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetConfigEnv 获取配置环境（从环境变量 CONFIG_ENV，默认为 local）
func GetConfigEnv() string {
	return GetEnv("CONFIG_ENV", "local")
}
