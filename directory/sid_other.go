//go:build !windows

package directory

import "fmt"

// Kerberos principals map onto local accounts by their short name.
func osName(acct Account) string {
	return ShortName(acct.User)
}

func accountSID(acct Account) (string, error) {
	if acct.SID != "" {
		return acct.SID, nil
	}
	return "", fmt.Errorf("no SID database on this platform")
}

func sidName(string) (string, error) {
	return "", nil
}
