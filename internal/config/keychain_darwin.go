//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os/exec"
)

// securityItemNotFound is the exit status of security(1) for a missing item.
const securityItemNotFound = 44

func keychainGet(service, account string) ([]byte, error) {
	out, err := exec.Command("security", "find-generic-password", "-s", service, "-a", account, "-w").Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == securityItemNotFound {
		return nil, fmt.Errorf("%w: %s/%s", errSecretNotStored, service, account)
	}
	return out, err
}

// keychainSet adds the item, or updates it in place (-U).
func keychainSet(service, account, value string) error {
	out, err := exec.Command("security", "add-generic-password", "-U", "-s", service, "-a", account, "-w", value).CombinedOutput()
	if err != nil {
		return fmt.Errorf("security add-generic-password: %w (%s)", err, out)
	}
	return nil
}
