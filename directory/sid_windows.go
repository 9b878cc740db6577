//go:build windows

package directory

import "github.com/Microsoft/go-winio"

func osName(acct Account) string {
	return acct.String()
}

func accountSID(acct Account) (string, error) {
	if acct.SID != "" {
		return acct.SID, nil
	}
	return winio.LookupSidByName(acct.String())
}

func sidName(sid string) (string, error) {
	return winio.LookupNameBySid(sid)
}
