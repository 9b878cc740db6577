package secctx

import "bytes"

// Diagnostic mechanism labels returned by Label.
const (
	LabelKerberos = "Kerberos"
	LabelNTLM     = "NTLM"
	LabelSPNEGO   = "SPNEGO"
	LabelUnknown  = "Unknown"
)

var (
	ntlmSignature = []byte("NTLMSSP\x00")

	// DER-encoded OIDs as they appear after the 0x06 tag and length.
	oidSPNEGO       = []byte{0x06, 0x06, 0x2b, 0x06, 0x01, 0x05, 0x05, 0x02}
	oidKRB5         = []byte{0x06, 0x09, 0x2a, 0x86, 0x48, 0x86, 0xf7, 0x12, 0x01, 0x02, 0x02}
	oidMSLegacyKRB5 = []byte{0x06, 0x09, 0x2a, 0x86, 0x48, 0x82, 0xf7, 0x12, 0x01, 0x02, 0x02}
	oidNTLM         = []byte{0x06, 0x0a, 0x2b, 0x06, 0x01, 0x04, 0x01, 0x82, 0x37, 0x02, 0x02, 0x0a}
)

// Label guesses which mechanism a client token carries from its leading bytes.
//
// The result is for logs and metrics only. It is not a parse of the token and
// must never decide how a handshake proceeds.
func Label(token []byte) string {
	switch {
	case len(token) == 0:
		return LabelUnknown
	case bytes.HasPrefix(token, ntlmSignature):
		return LabelNTLM
	case token[0] == 0x60:
		// GSS-API InitialContextToken.
		if bytes.Contains(token, ntlmSignature) {
			return LabelNTLM
		}
		head := token
		if len(head) > 32 {
			head = head[:32]
		}
		if bytes.Contains(head, oidKRB5) || bytes.Contains(head, oidMSLegacyKRB5) {
			return LabelKerberos
		}
		if bytes.Contains(head, oidSPNEGO) {
			if bytes.Contains(token, oidNTLM) && !bytes.Contains(token, oidKRB5) && !bytes.Contains(token, oidMSLegacyKRB5) {
				return LabelNTLM
			}
			return LabelKerberos
		}
		return LabelUnknown
	case token[0] == 0xa1:
		// SPNEGO NegTokenResp on a later leg.
		if bytes.Contains(token, ntlmSignature) {
			return LabelNTLM
		}
		return LabelSPNEGO
	}
	return LabelUnknown
}
