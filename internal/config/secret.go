package config

import (
	"fmt"
	"os"
	"strings"
)

const envPrefix = "$env:"

// SecretFromEnv resolves an "$env:VARNAME" indirection to the named
// environment variable's value, so passwords and tokens need not be
// written in plaintext into the config file. A string not using the
// prefix is returned unchanged.
func SecretFromEnv(s string) (string, error) {
	if !strings.HasPrefix(s, envPrefix) {
		return s, nil
	}
	name := strings.TrimPrefix(s, envPrefix)
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("environment variable %q is not set", name)
	}
	return v, nil
}
